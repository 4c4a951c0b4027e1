package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

var ErrSelectionAborted = errors.New("device selection aborted")

type pickerKey int

const (
	keyNone pickerKey = iota
	keyUp
	keyDown
	keyConfirm
	keyAbort
)

// decodeKey maps a raw terminal read to a picker action. Arrow keys arrive
// as ESC [ A / ESC [ B; j/k are accepted too.
func decodeKey(b []byte) pickerKey {
	switch {
	case len(b) == 1 && (b[0] == '\r' || b[0] == '\n'):
		return keyConfirm
	case len(b) == 1 && (b[0] == 3 || b[0] == 'q'):
		return keyAbort
	case len(b) == 1 && b[0] == 'k', len(b) == 3 && b[0] == 0x1b && b[1] == '[' && b[2] == 'A':
		return keyUp
	case len(b) == 1 && b[0] == 'j', len(b) == 3 && b[0] == 0x1b && b[1] == '[' && b[2] == 'B':
		return keyDown
	}
	return keyNone
}

func renderPicker(w io.Writer, devices []DeviceInfo, cursor int) {
	fmt.Fprint(w, "\r\x1b[J")
	fmt.Fprint(w, "Select microphone (↑/↓, Enter to confirm, q to cancel):\r\n\r\n")
	for i, d := range devices {
		if i == cursor {
			fmt.Fprintf(w, "  \x1b[1;36m▶ %s\x1b[0m\r\n", d.Name)
		} else {
			fmt.Fprintf(w, "    %s\r\n", d.Name)
		}
	}
}

// SelectDevice shows an interactive picker on the terminal. With a single
// device it returns that device without prompting.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	switch len(devices) {
	case 0:
		return nil, fmt.Errorf("no capture devices found")
	case 1:
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
		switch decodeKey(buf[:n]) {
		case keyConfirm:
			fmt.Print("\r\n")
			return &devices[cursor], nil
		case keyAbort:
			fmt.Print("\r\n")
			return nil, ErrSelectionAborted
		case keyUp:
			cursor = max(cursor-1, 0)
		case keyDown:
			cursor = min(cursor+1, len(devices)-1)
		}
		fmt.Printf("\x1b[%dA", len(devices)+2)
		renderPicker(os.Stdout, devices, cursor)
	}
}

// FindDevice returns the device with the given name, or nil when absent.
func FindDevice(ctx Context, name string) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	for i := range devices {
		if devices[i].Name == name {
			return &devices[i], nil
		}
	}
	return nil, nil
}
