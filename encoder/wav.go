package encoder

import (
	"bytes"
	"encoding/binary"
)

const WAVHeaderSize = 44

// WavEncoder collects samples and writes a canonical PCM WAV file on Close.
type WavEncoder struct {
	pcmStream
	samples []int16
	out     []byte
}

func NewWav(sampleRate int) *WavEncoder {
	return &WavEncoder{pcmStream: pcmStream{rate: sampleRate}}
}

func (e *WavEncoder) EncodeBlock(block []int16) error {
	e.mu.Lock()
	e.samples = append(e.samples, block...)
	e.counted(len(block))
	e.mu.Unlock()
	return nil
}

func (e *WavEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	dataSize := uint32(len(e.samples) * e.blockAlign())

	var buf bytes.Buffer
	buf.Grow(WAVHeaderSize + int(dataSize))
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, 36+dataSize)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16)) // PCM chunk size
	binary.Write(&buf, binary.LittleEndian, uint16(1))  // PCM format
	binary.Write(&buf, binary.LittleEndian, uint16(Channels))
	binary.Write(&buf, binary.LittleEndian, uint32(e.rate))
	binary.Write(&buf, binary.LittleEndian, uint32(e.byteRate()))
	binary.Write(&buf, binary.LittleEndian, uint16(e.blockAlign()))
	binary.Write(&buf, binary.LittleEndian, uint16(BitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataSize)
	binary.Write(&buf, binary.LittleEndian, e.samples)

	e.out = buf.Bytes()
	return nil
}

func (e *WavEncoder) Bytes() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.out
}

// DecodeWav returns the PCM16 samples of a canonical WAV file.
func DecodeWav(data []byte) []int16 {
	if len(data) <= WAVHeaderSize {
		return nil
	}
	pcm := data[WAVHeaderSize:]
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}
