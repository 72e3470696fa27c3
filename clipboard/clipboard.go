package clipboard

import (
	"errors"
	"strings"

	cb "github.com/atotto/clipboard"
)

// ErrUnavailable is returned when no clipboard utility is installed
// (xclip, xsel or wl-clipboard on Linux).
var ErrUnavailable = errors.New("clipboard: no clipboard utility available")

func Read() (string, error) {
	if cb.Unsupported {
		return "", ErrUnavailable
	}
	return cb.ReadAll()
}

// Copy places text on the system clipboard. Trailing whitespace is dropped
// so pasted transcript lines do not carry the placeholder blank that marks
// an empty transcription.
func Copy(text string) error {
	if cb.Unsupported {
		return ErrUnavailable
	}
	return cb.WriteAll(strings.TrimRight(text, " \t\n"))
}
