package encoder

import (
	"sync"

	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

// pcmStream is the mono PCM16 layout both encoders write, plus the running
// sample count.
type pcmStream struct {
	rate int

	mu    sync.Mutex
	total uint64
}

func (s *pcmStream) blockAlign() int { return Channels * BitsPerSample / 8 }

func (s *pcmStream) byteRate() int { return s.rate * s.blockAlign() }

func (s *pcmStream) counted(n int) {
	s.total += uint64(n)
}

// TotalFrames reports how many samples have been accepted so far.
func (s *pcmStream) TotalFrames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// streamInfo is the FLAC header for the stream. The sample count is left
// unknown since blocks arrive incrementally.
func (s *pcmStream) streamInfo() *meta.StreamInfo {
	return &meta.StreamInfo{
		BlockSizeMin:  BlockSize,
		BlockSizeMax:  BlockSize,
		SampleRate:    uint32(s.rate),
		NChannels:     Channels,
		BitsPerSample: BitsPerSample,
	}
}

// verbatimFrame wraps block as a single uncompressed mono FLAC frame. The
// encoder picks a better predictor when analysis is enabled.
func (s *pcmStream) verbatimFrame(block []int16) *frame.Frame {
	wide := make([]int32, len(block))
	for i, v := range block {
		wide[i] = int32(v)
	}
	return &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(len(block)),
			SampleRate:    uint32(s.rate),
			Channels:      frame.ChannelsMono,
			BitsPerSample: BitsPerSample,
		},
		Subframes: []*frame.Subframe{{
			SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
			Samples:   wide,
			NSamples:  len(block),
		}},
	}
}
