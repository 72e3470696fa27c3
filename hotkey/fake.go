package hotkey

import "sync/atomic"

// FakeHotkey is a Hotkey driven by Press and Release.
type FakeHotkey struct {
	keydown    chan struct{}
	keyup      chan struct{}
	registered atomic.Bool
}

func NewFake() *FakeHotkey {
	return &FakeHotkey{
		keydown: make(chan struct{}, 1),
		keyup:   make(chan struct{}, 1),
	}
}

func (f *FakeHotkey) Register() error {
	f.registered.Store(true)
	return nil
}

func (f *FakeHotkey) Unregister()      { f.registered.Store(false) }
func (f *FakeHotkey) Registered() bool { return f.registered.Load() }

func (f *FakeHotkey) Keydown() <-chan struct{} { return f.keydown }
func (f *FakeHotkey) Keyup() <-chan struct{}   { return f.keyup }

func (f *FakeHotkey) Press()   { f.keydown <- struct{}{} }
func (f *FakeHotkey) Release() { f.keyup <- struct{}{} }
