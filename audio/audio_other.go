//go:build !linux

package audio

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

type malgoContext struct {
	ctx *malgo.AllocatedContext
}

func NewContext() (Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, err
	}
	return &malgoContext{ctx: ctx}, nil
}

func (m *malgoContext) Devices() ([]DeviceInfo, error) {
	devices, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("malgo devices: %w", err)
	}
	var result []DeviceInfo
	for _, d := range devices {
		result = append(result, DeviceInfo{
			ID:   hex.EncodeToString(d.ID.Pointer()[:]),
			Name: d.Name(),
		})
	}
	return result, nil
}

func (m *malgoContext) NewCapture(device *DeviceInfo, config StreamConfig) (CaptureDevice, error) {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(config.SampleRate)

	if device != nil {
		idBytes, err := hex.DecodeString(device.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid device ID: %w", err)
		}
		var devID malgo.DeviceID
		copy(devID[:], idBytes)
		deviceConfig.Capture.DeviceID = devID.Pointer()
	}

	c := &malgoCapture{}
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, frameCount uint32) {
			cb := c.callback.Load()
			if cb == nil || frameCount == 0 {
				return
			}
			(*cb)(int16s(in, int(frameCount)))
		},
	}

	dev, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, err
	}
	c.device = dev
	return c, nil
}

func (m *malgoContext) NewPlayback(config StreamConfig, source SampleSource) (PlaybackDevice, error) {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(config.SampleRate)

	var buf []int16
	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frameCount uint32) {
			if cap(buf) < int(frameCount) {
				buf = make([]int16, frameCount)
			}
			buf = buf[:frameCount]
			fill(source, buf)
			for i, s := range buf {
				binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
			}
		},
	}

	dev, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("malgo playback: %w", err)
	}
	return &malgoPlayback{device: dev}, nil
}

func (m *malgoContext) Close() {
	m.ctx.Uninit()
	m.ctx.Free()
}

func int16s(data []byte, frames int) []int16 {
	frames = min(frames, len(data)/2)
	samples := make([]int16, frames)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}
	return samples
}

type malgoCapture struct {
	device   *malgo.Device
	callback atomic.Pointer[DataCallback]
}

func (c *malgoCapture) Start() error {
	return c.device.Start()
}

func (c *malgoCapture) Stop() {
	c.device.Stop()
}

func (c *malgoCapture) Close() {
	c.device.Uninit()
}

func (c *malgoCapture) SetCallback(cb DataCallback) {
	c.callback.Store(&cb)
}

func (c *malgoCapture) ClearCallback() {
	c.callback.Store(nil)
}

type malgoPlayback struct {
	device *malgo.Device
}

func (p *malgoPlayback) Start() error {
	return p.device.Start()
}

func (p *malgoPlayback) Stop() {
	p.device.Stop()
}

func (p *malgoPlayback) Close() {
	p.device.Uninit()
}
