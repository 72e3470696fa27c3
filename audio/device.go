package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

var errPickerCancelled = errors.New("device selection cancelled")

// ListDevices prints the capture devices, marking headsets that degrade
// audio quality.
func ListDevices(w io.Writer, ctx Context) error {
	devices, err := ctx.Devices()
	if err != nil {
		return fmt.Errorf("enumerating devices: %w", err)
	}
	if len(devices) == 0 {
		fmt.Fprintln(w, "no capture devices found")
		return nil
	}
	for _, d := range devices {
		tag := ""
		if IsBluetooth(d.Name) {
			tag = "  [bluetooth: lower audio quality]"
		}
		fmt.Fprintf(w, "%s\t%s%s\n", d.ID, d.Name, tag)
	}
	return nil
}

// FindDevice returns the device whose ID or name equals key.
func FindDevice(ctx Context, key string) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	for i, d := range devices {
		if d.ID == key || d.Name == key {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("capture device %q not found", key)
}

// pickerKey advances the picker cursor for one key press read from a raw
// terminal. done is set once the choice is confirmed.
func pickerKey(cursor, count int, key []byte) (next int, done bool, err error) {
	next = cursor
	switch {
	case len(key) == 1 && key[0] == 13: // Enter
		return cursor, true, nil
	case len(key) == 1 && key[0] == 3: // Ctrl+C
		return cursor, false, errPickerCancelled
	case len(key) == 1 && key[0] == 'j', len(key) == 3 && key[0] == 0x1b && key[1] == '[' && key[2] == 'B':
		if cursor < count-1 {
			next++
		}
	case len(key) == 1 && key[0] == 'k', len(key) == 3 && key[0] == 0x1b && key[1] == '[' && key[2] == 'A':
		if cursor > 0 {
			next--
		}
	}
	return next, false, nil
}

func renderPicker(w io.Writer, devices []DeviceInfo, cursor int) {
	fmt.Fprint(w, "\r\x1b[J")
	fmt.Fprint(w, "Select input device (↑/↓, Enter to confirm):\r\n\r\n")
	for i, d := range devices {
		btTag := ""
		if IsBluetooth(d.Name) {
			btTag = " \x1b[33m[⚠ Lower audio quality]\x1b[0m"
		}
		if i == cursor {
			fmt.Fprintf(w, "  \x1b[1;36m▶ %s%s\x1b[0m\r\n", d.Name, btTag)
		} else {
			fmt.Fprintf(w, "    %s%s\r\n", d.Name, btTag)
		}
	}
}

// SelectDevice presents an interactive device picker and returns the selected device.
// If only one device is available, it returns that device without prompting.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("no capture devices found")
	}
	if len(devices) == 1 {
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	cursor := 0
	renderPicker(os.Stdout, devices, cursor)

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		next, done, err := pickerKey(cursor, len(devices), buf[:n])
		if err != nil {
			fmt.Print("\r\n")
			return nil, err
		}
		if done {
			fmt.Print("\r\n")
			return &devices[next], nil
		}
		cursor = next

		fmt.Printf("\x1b[%dA", len(devices)+2)
		renderPicker(os.Stdout, devices, cursor)
	}
}
