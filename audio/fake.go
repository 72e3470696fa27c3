package audio

import "sync"

// FakeContext hands out in-memory devices. Captured audio is injected with
// FakeCapture.Feed and playback is driven with FakePlayback.Pump.
type FakeContext struct {
	CaptureErr  error
	PlaybackErr error
	DeviceList  []DeviceInfo

	mu        sync.Mutex
	captures  []*FakeCapture
	playbacks []*FakePlayback
}

func NewFakeContext() *FakeContext {
	return &FakeContext{DeviceList: []DeviceInfo{{ID: "fake", Name: "Fake Microphone"}}}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) { return f.DeviceList, nil }
func (f *FakeContext) Close()                         {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ StreamConfig) (CaptureDevice, error) {
	if f.CaptureErr != nil {
		return nil, f.CaptureErr
	}
	c := &FakeCapture{}
	f.mu.Lock()
	f.captures = append(f.captures, c)
	f.mu.Unlock()
	return c, nil
}

func (f *FakeContext) NewPlayback(_ StreamConfig, source SampleSource) (PlaybackDevice, error) {
	if f.PlaybackErr != nil {
		return nil, f.PlaybackErr
	}
	p := &FakePlayback{source: source}
	f.mu.Lock()
	f.playbacks = append(f.playbacks, p)
	f.mu.Unlock()
	return p, nil
}

// Capture returns the most recently opened capture device.
func (f *FakeContext) Capture() *FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.captures) == 0 {
		return nil
	}
	return f.captures[len(f.captures)-1]
}

// Playback returns the most recently opened playback device.
func (f *FakeContext) Playback() *FakePlayback {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.playbacks) == 0 {
		return nil
	}
	return f.playbacks[len(f.playbacks)-1]
}

type FakeCapture struct {
	mu      sync.Mutex
	cb      DataCallback
	started bool
	closed  bool
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) Start() error {
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	f.started = false
	f.mu.Unlock()
}

func (f *FakeCapture) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *FakeCapture) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Feed delivers samples as if the microphone had captured them. It does
// nothing unless the device is started.
func (f *FakeCapture) Feed(samples []int16) {
	f.mu.Lock()
	cb := f.cb
	started := f.started
	f.mu.Unlock()
	if cb != nil && started {
		cb(samples)
	}
}

type FakePlayback struct {
	source SampleSource

	mu      sync.Mutex
	started bool
	closed  bool
}

func (f *FakePlayback) Start() error {
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
	return nil
}

func (f *FakePlayback) Stop() {
	f.mu.Lock()
	f.started = false
	f.mu.Unlock()
}

func (f *FakePlayback) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *FakePlayback) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Pump pulls n samples through the device, as the sound card would, and
// returns what was played.
func (f *FakePlayback) Pump(n int) []int16 {
	buf := make([]int16, n)
	fill(f.source, buf)
	return buf
}
