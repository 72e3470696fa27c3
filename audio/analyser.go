package audio

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

const (
	analyserSize = 1024

	voiceMinHz = 32.0
	voiceMaxHz = 2000.0

	minDecibels = -100.0
	maxDecibels = -30.0
)

// Analyser keeps the most recent samples of a stream and reports the
// energy of the voice band, one value in [0, 1] per FFT bin.
type Analyser struct {
	rate int

	mu   sync.Mutex
	ring []float64
	pos  int
	fft  *fourier.FFT
	seq  []float64
	out  []complex128
}

func NewAnalyser(rate int) *Analyser {
	return &Analyser{
		rate: rate,
		ring: make([]float64, analyserSize),
		fft:  fourier.NewFFT(analyserSize),
		seq:  make([]float64, analyserSize),
	}
}

func (a *Analyser) Write(samples []int16) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range samples {
		a.ring[a.pos] = float64(s) / 32768
		a.pos = (a.pos + 1) % analyserSize
	}
}

// Reset forgets buffered samples so the next frames read as silence.
func (a *Analyser) Reset() {
	a.mu.Lock()
	clear(a.ring)
	a.pos = 0
	a.mu.Unlock()
}

func (a *Analyser) Frequencies() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := copy(a.seq, a.ring[a.pos:])
	copy(a.seq[n:], a.ring[:a.pos])
	window.Hann(a.seq)
	a.out = a.fft.Coefficients(a.out, a.seq)

	var values []float64
	for i, c := range a.out {
		hz := a.fft.Freq(i) * float64(a.rate)
		if hz < voiceMinHz || hz > voiceMaxHz {
			continue
		}
		values = append(values, decibelLevel(cmplx.Abs(c)/analyserSize))
	}
	return values
}

// decibelLevel maps a linear magnitude onto [0, 1] across the displayed
// decibel range.
func decibelLevel(mag float64) float64 {
	if mag <= 0 {
		return 0
	}
	db := 20 * math.Log10(mag)
	v := (db - minDecibels) / (maxDecibels - minDecibels)
	return max(0, min(v, 1))
}
