package visual

import (
	"sync"
	"sync/atomic"
	"time"
)

// Channel binds one signal source to one surface.
type Channel struct {
	Name string
	// Surface returns the drawing target, or nil while it is not mounted.
	Surface func() Surface
	// Source returns the latest analyser snapshot, or nil when unavailable.
	Source  func() *Buffer
	Options BarOptions
}

// Loop renders its channels once per frame until stopped. Each frame
// reschedules the next one only while the loop is live.
type Loop struct {
	channels []Channel
	cache    *Cache
	interval time.Duration
	onFrame  func()

	live    atomic.Bool
	frameMu sync.Mutex
	frames  atomic.Int64
}

// NewLoop builds a render loop. onFrame, if set, runs after every frame
// (typically to push the rendered surfaces to a view).
func NewLoop(interval time.Duration, cache *Cache, onFrame func(), channels ...Channel) *Loop {
	if cache == nil {
		cache = NewCache()
	}
	return &Loop{
		channels: channels,
		cache:    cache,
		interval: interval,
		onFrame:  onFrame,
	}
}

func (l *Loop) Start() {
	if l.live.Swap(true) {
		return
	}
	go l.tick()
}

// Stop clears the liveness flag and waits for an in-flight frame to finish.
// No frame starts after Stop returns.
func (l *Loop) Stop() {
	l.live.Store(false)
	l.frameMu.Lock()
	l.frameMu.Unlock()
}

func (l *Loop) Live() bool { return l.live.Load() }

// Frames reports how many frames have been rendered.
func (l *Loop) Frames() int64 { return l.frames.Load() }

func (l *Loop) tick() {
	l.frameMu.Lock()
	if !l.live.Load() {
		l.frameMu.Unlock()
		return
	}
	l.Frame()
	l.frameMu.Unlock()

	if l.live.Load() {
		time.AfterFunc(l.interval, l.tick)
	}
}

// Frame renders every channel once.
func (l *Loop) Frame() {
	for _, ch := range l.channels {
		if ch.Surface == nil {
			continue
		}
		s := ch.Surface()
		if s == nil {
			continue
		}
		var samples *Buffer
		if ch.Source != nil {
			samples = ch.Source()
		}
		s.Clear()
		DrawBars(s, samples, l.cache, ch.Options)
	}
	l.frames.Add(1)
	if l.onFrame != nil {
		l.onFrame()
	}
}
