package audio

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// TrackOffset reports how far playback of a track got before it was
// interrupted. Offset counts samples.
type TrackOffset struct {
	TrackID string
	Offset  int
}

type chunk struct {
	trackID string
	samples []int16
}

// StreamPlayer plays streamed audio tracks back to back.
type StreamPlayer struct {
	ctx      Context
	config   StreamConfig
	analyser *Analyser

	mu          sync.Mutex
	device      PlaybackDevice
	queue       []chunk
	current     string
	offsets     map[string]int
	interrupted map[string]bool
}

func NewStreamPlayer(ctx Context, sampleRate int) *StreamPlayer {
	if sampleRate == 0 {
		sampleRate = DefaultSampleRate
	}
	return &StreamPlayer{
		ctx:         ctx,
		config:      StreamConfig{SampleRate: sampleRate},
		analyser:    NewAnalyser(sampleRate),
		offsets:     make(map[string]int),
		interrupted: make(map[string]bool),
	}
}

// Connect opens and starts the playback device.
func (p *StreamPlayer) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	if p.device != nil {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	device, err := p.ctx.NewPlayback(p.config, p.read)
	if err != nil {
		return fmt.Errorf("open playback: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Close()
		return fmt.Errorf("start playback: %w", err)
	}

	p.mu.Lock()
	p.device = device
	p.mu.Unlock()
	return nil
}

// AddSamples queues samples for trackID. Samples for an interrupted track
// are dropped.
func (p *StreamPlayer) AddSamples(samples []int16, trackID string) {
	if len(samples) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.interrupted[trackID] {
		return
	}
	p.queue = append(p.queue, chunk{trackID: trackID, samples: slices.Clone(samples)})
}

// read is the device's sample source.
func (p *StreamPlayer) read(buf []int16) int {
	p.mu.Lock()
	n := 0
	for n < len(buf) && len(p.queue) > 0 {
		c := &p.queue[0]
		k := copy(buf[n:], c.samples)
		c.samples = c.samples[k:]
		n += k
		p.current = c.trackID
		p.offsets[c.trackID] += k
		if len(c.samples) == 0 {
			p.queue = p.queue[1:]
		}
	}
	if len(p.queue) == 0 && n < len(buf) {
		// ran dry: the current track, if any, has finished playing
		p.current = ""
	}
	p.mu.Unlock()

	p.analyser.Write(buf[:n])
	return n
}

// Interrupt stops playback and returns the track that was playing with the
// number of its samples played. It returns nil when nothing was playing.
func (p *StreamPlayer) Interrupt() *TrackOffset {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range p.queue {
		p.interrupted[c.trackID] = true
	}
	p.queue = nil

	if p.current == "" {
		return nil
	}
	off := &TrackOffset{TrackID: p.current, Offset: p.offsets[p.current]}
	p.interrupted[p.current] = true
	p.current = ""
	return off
}

// Playing reports whether samples are queued or being played.
func (p *StreamPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != "" || len(p.queue) > 0
}

func (p *StreamPlayer) Frequencies() []float64 {
	return p.analyser.Frequencies()
}

// Close stops and releases the device and forgets all tracks.
func (p *StreamPlayer) Close() error {
	p.mu.Lock()
	device := p.device
	p.device = nil
	p.queue = nil
	p.current = ""
	p.offsets = make(map[string]int)
	p.interrupted = make(map[string]bool)
	p.mu.Unlock()

	if device != nil {
		device.Stop()
		device.Close()
	}
	p.analyser.Reset()
	return nil
}
