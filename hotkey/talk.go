package hotkey

import (
	"context"
	"sync/atomic"
	"time"
)

type Action int

const (
	Start Action = iota
	Stop
)

func (a Action) String() string {
	if a == Stop {
		return "stop"
	}
	return "start"
}

// PushToTalk turns raw key presses into capture start/stop actions. A press
// starts capture at once. Holding past the threshold stops on release; a
// shorter tap latches capture on until the next press is released.
type PushToTalk struct {
	actions chan Action
	latched atomic.Bool
}

func NewPushToTalk(ctx context.Context, hk Hotkey, hold time.Duration) *PushToTalk {
	p := &PushToTalk{actions: make(chan Action, 2)}
	go p.run(ctx, hk, hold)
	return p
}

func (p *PushToTalk) Actions() <-chan Action { return p.actions }

// Latched reports whether the last press was a tap that left capture on.
func (p *PushToTalk) Latched() bool { return p.latched.Load() }

func (p *PushToTalk) emit(ctx context.Context, a Action) bool {
	select {
	case p.actions <- a:
		return true
	case <-ctx.Done():
		return false
	}
}

func wait(ctx context.Context, ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *PushToTalk) run(ctx context.Context, hk Hotkey, hold time.Duration) {
	defer close(p.actions)
	for {
		if !wait(ctx, hk.Keydown()) || !p.emit(ctx, Start) {
			return
		}

		timer := time.NewTimer(hold)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if !wait(ctx, hk.Keyup()) {
				return
			}
		case <-hk.Keyup():
			timer.Stop()
			p.latched.Store(true)
			// the next full press ends the turn
			if !wait(ctx, hk.Keydown()) || !wait(ctx, hk.Keyup()) {
				return
			}
			p.latched.Store(false)
		}

		if !p.emit(ctx, Stop) {
			return
		}
	}
}
