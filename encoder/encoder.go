package encoder

import "fmt"

const (
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

const (
	FormatWAV  = "wav"
	FormatFLAC = "flac"
)

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	TotalFrames() uint64
}

// New returns an encoder for format ("wav" or "flac") at sampleRate.
func New(format string, sampleRate int) (Encoder, error) {
	switch format {
	case FormatWAV, "":
		return NewWav(sampleRate), nil
	case FormatFLAC:
		return NewFlac(sampleRate)
	}
	return nil, fmt.Errorf("unknown audio format %q", format)
}

// Encode feeds samples through enc in BlockSize blocks and closes it.
func Encode(enc Encoder, samples []int16) ([]byte, error) {
	for i := 0; i < len(samples); i += BlockSize {
		end := min(i+BlockSize, len(samples))
		if err := enc.EncodeBlock(samples[i:end]); err != nil {
			return nil, fmt.Errorf("encoding block at %d: %w", i, err)
		}
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("closing encoder: %w", err)
	}
	return enc.Bytes(), nil
}

// Resample converts mono PCM16 between sample rates by linear
// interpolation. Equal rates return a copy.
func Resample(samples []int16, from, to int) []int16 {
	if from <= 0 || to <= 0 || from == to || len(samples) == 0 {
		out := make([]int16, len(samples))
		copy(out, samples)
		return out
	}
	n := int(int64(len(samples)) * int64(to) / int64(from))
	out := make([]int16, max(n, 1))
	step := float64(from) / float64(to)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		lo := int(pos)
		if lo >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(lo)
		v := float64(samples[lo]) + (float64(samples[lo+1])-float64(samples[lo]))*frac
		out[i] = int16(v)
	}
	return out
}
