//go:build !linux

package hotkey

import (
	"context"

	"golang.design/x/hotkey"
)

type xHotkey struct {
	hk      *hotkey.Hotkey
	keydown chan struct{}
	keyup   chan struct{}
	cancel  context.CancelFunc
}

func New(b Binding) Hotkey {
	var mods []hotkey.Modifier
	if b.Ctrl {
		mods = append(mods, hotkey.ModCtrl)
	}
	if b.Shift {
		mods = append(mods, hotkey.ModShift)
	}
	return &xHotkey{
		hk:      hotkey.New(mods, keyCode(b.Key)),
		keydown: make(chan struct{}, 1),
		keyup:   make(chan struct{}, 1),
	}
}

func keyCode(k string) hotkey.Key {
	if n, ok := functionKey(k); ok {
		return []hotkey.Key{
			hotkey.KeyF1, hotkey.KeyF2, hotkey.KeyF3, hotkey.KeyF4,
			hotkey.KeyF5, hotkey.KeyF6, hotkey.KeyF7, hotkey.KeyF8,
			hotkey.KeyF9, hotkey.KeyF10, hotkey.KeyF11, hotkey.KeyF12,
		}[n-1]
	}
	if len(k) == 1 {
		return []hotkey.Key{
			hotkey.KeyA, hotkey.KeyB, hotkey.KeyC, hotkey.KeyD, hotkey.KeyE, hotkey.KeyF,
			hotkey.KeyG, hotkey.KeyH, hotkey.KeyI, hotkey.KeyJ, hotkey.KeyK, hotkey.KeyL,
			hotkey.KeyM, hotkey.KeyN, hotkey.KeyO, hotkey.KeyP, hotkey.KeyQ, hotkey.KeyR,
			hotkey.KeyS, hotkey.KeyT, hotkey.KeyU, hotkey.KeyV, hotkey.KeyW, hotkey.KeyX,
			hotkey.KeyY, hotkey.KeyZ,
		}[k[0]-'a']
	}
	return hotkey.KeySpace
}

func (h *xHotkey) Register() error {
	if err := h.hk.Register(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go forward(ctx, h.hk.Keydown(), h.keydown)
	go forward(ctx, h.hk.Keyup(), h.keyup)
	return nil
}

func forward(ctx context.Context, in <-chan hotkey.Event, out chan<- struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-in:
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}
}

func (h *xHotkey) Unregister() {
	if h.cancel != nil {
		h.cancel()
	}
	h.hk.Unregister()
}

func (h *xHotkey) Keydown() <-chan struct{} {
	return h.keydown
}

func (h *xHotkey) Keyup() <-chan struct{} {
	return h.keyup
}
