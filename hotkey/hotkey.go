package hotkey

import (
	"fmt"
	"strings"
)

// DefaultBinding is the global push-to-talk key.
const DefaultBinding = "ctrl+shift+space"

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

// Binding is a key with its required modifiers.
type Binding struct {
	Ctrl  bool
	Shift bool
	Key   string
}

// ParseBinding reads strings like "ctrl+shift+space" or "f9". Keys are
// space, a-z and f1-f12.
func ParseBinding(s string) (Binding, error) {
	var b Binding
	if strings.TrimSpace(s) == "" {
		s = DefaultBinding
	}
	for _, part := range strings.Split(strings.ToLower(s), "+") {
		part = strings.TrimSpace(part)
		switch part {
		case "ctrl", "control":
			b.Ctrl = true
		case "shift":
			b.Shift = true
		default:
			if b.Key != "" {
				return Binding{}, fmt.Errorf("hotkey %q: more than one key", s)
			}
			if !validKey(part) {
				return Binding{}, fmt.Errorf("hotkey %q: unsupported key %q", s, part)
			}
			b.Key = part
		}
	}
	if b.Key == "" {
		return Binding{}, fmt.Errorf("hotkey %q: missing key", s)
	}
	return b, nil
}

func (b Binding) String() string {
	var parts []string
	if b.Ctrl {
		parts = append(parts, "ctrl")
	}
	if b.Shift {
		parts = append(parts, "shift")
	}
	return strings.Join(append(parts, b.Key), "+")
}

func validKey(k string) bool {
	if k == "space" {
		return true
	}
	if len(k) == 1 && k[0] >= 'a' && k[0] <= 'z' {
		return true
	}
	_, ok := functionKey(k)
	return ok
}

// functionKey returns n for "fn", 1 <= n <= 12.
func functionKey(k string) (int, bool) {
	var n int
	if _, err := fmt.Sscanf(k, "f%d", &n); err != nil || n < 1 || n > 12 || k != fmt.Sprintf("f%d", n) {
		return 0, false
	}
	return n, true
}
