//go:build linux

package hotkey

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	evKey      = 1
	keyPress   = 1
	keyRelease = 0
	keyLCtrl   = 29
	keyRCtrl   = 97
	keyLShift  = 42
	keyRShift  = 54
	keySpace   = 57
	keyF1      = 59
	keyF11     = 87
)

// evdev codes for a-z, in alphabetical order.
var letterCodes = [26]uint16{
	30, 48, 46, 32, 18, 33, 34, 35, 23, 36, 37, 38, 50,
	49, 24, 25, 16, 19, 31, 20, 22, 47, 17, 45, 21, 44,
}

func keyCode(k string) uint16 {
	if n, ok := functionKey(k); ok {
		if n <= 10 {
			return uint16(keyF1 + n - 1)
		}
		return uint16(keyF11 + n - 11)
	}
	if len(k) == 1 {
		return letterCodes[k[0]-'a']
	}
	return keySpace
}

const inputEventSize = 24

// linuxHotkey reads key events straight from the keyboard devices, so it
// works under Wayland and without a focused window.
type linuxHotkey struct {
	binding Binding
	code    uint16
	keydown chan struct{}
	keyup   chan struct{}
	files   []*os.File
	stop    chan struct{}
	once    sync.Once
}

func New(b Binding) Hotkey {
	return &linuxHotkey{
		binding: b,
		code:    keyCode(b.Key),
		keydown: make(chan struct{}, 1),
		keyup:   make(chan struct{}, 1),
	}
}

func (h *linuxHotkey) Register() error {
	keyboards, err := findKeyboards()
	if err != nil {
		return fmt.Errorf("finding keyboards: %w", err)
	}
	if len(keyboards) == 0 {
		return fmt.Errorf("no keyboard devices found (is user in 'input' group?)")
	}

	h.stop = make(chan struct{})

	for _, path := range keyboards {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		h.files = append(h.files, f)
		go h.readEvents(f)
	}

	if len(h.files) == 0 {
		return fmt.Errorf("could not open any keyboard device (run: sudo usermod -aG input $USER, then re-login)")
	}

	return nil
}

func (h *linuxHotkey) readEvents(f *os.File) {
	buf := make([]byte, inputEventSize*16)
	var ctrlHeld, shiftHeld, keyHeld bool

	for {
		select {
		case <-h.stop:
			return
		default:
		}

		n, err := f.Read(buf)
		if err != nil {
			return
		}

		for i := 0; i+inputEventSize <= n; i += inputEventSize {
			evType := binary.LittleEndian.Uint16(buf[i+16:])
			evCode := binary.LittleEndian.Uint16(buf[i+18:])
			evValue := int32(binary.LittleEndian.Uint32(buf[i+20:]))

			if evType != evKey {
				continue
			}

			pressed := evValue == keyPress
			released := evValue == keyRelease

			switch evCode {
			case keyLCtrl, keyRCtrl:
				ctrlHeld = pressed || (!released && ctrlHeld)
			case keyLShift, keyRShift:
				shiftHeld = pressed || (!released && shiftHeld)
			case h.code:
				modsHeld := (!h.binding.Ctrl || ctrlHeld) && (!h.binding.Shift || shiftHeld)
				if pressed && !keyHeld && modsHeld {
					keyHeld = true
					notify(h.keydown)
				} else if released && keyHeld {
					keyHeld = false
					notify(h.keyup)
				}
			}
		}
	}
}

func notify(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (h *linuxHotkey) Unregister() {
	h.once.Do(func() {
		if h.stop != nil {
			close(h.stop)
		}
		for _, f := range h.files {
			f.Close()
		}
	})
}

func (h *linuxHotkey) Keydown() <-chan struct{} {
	return h.keydown
}

func (h *linuxHotkey) Keyup() <-chan struct{} {
	return h.keyup
}

func findKeyboards() ([]string, error) {
	entries, err := os.ReadDir("/dev/input")
	if err != nil {
		return nil, err
	}

	var keyboards []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "event") {
			continue
		}
		path := filepath.Join("/dev/input", e.Name())
		if isKeyboard(e.Name()) {
			keyboards = append(keyboards, path)
		}
	}
	return keyboards, nil
}

func isKeyboard(eventName string) bool {
	capsPath := filepath.Join("/sys/class/input", eventName, "device", "capabilities", "key")
	data, err := os.ReadFile(capsPath)
	if err != nil {
		return false
	}
	caps := strings.TrimSpace(string(data))
	return len(caps) > 10
}
