package encoder

import (
	"bytes"
	"fmt"

	"github.com/mewkiz/flac"
)

// FlacEncoder streams blocks into an in-memory FLAC file.
type FlacEncoder struct {
	pcmStream
	out bytes.Buffer
	enc *flac.Encoder
}

func NewFlac(sampleRate int) (*FlacEncoder, error) {
	e := &FlacEncoder{pcmStream: pcmStream{rate: sampleRate}}
	enc, err := flac.NewEncoder(&e.out, e.streamInfo())
	if err != nil {
		return nil, fmt.Errorf("flac: new encoder: %w", err)
	}
	enc.EnablePredictionAnalysis(true)
	e.enc = enc
	return e, nil
}

func (e *FlacEncoder) EncodeBlock(block []int16) error {
	if len(block) == 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.WriteFrame(e.verbatimFrame(block)); err != nil {
		return fmt.Errorf("flac: write frame: %w", err)
	}
	e.counted(len(block))
	return nil
}

// Close flushes the stream header. Bytes is complete only afterwards.
func (e *FlacEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enc.Close()
}

func (e *FlacEncoder) Bytes() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.out.Bytes()
}
