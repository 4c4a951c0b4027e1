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

// evdev key codes and event layout (struct input_event on 64-bit).
const (
	evKey          = 1
	keyRelease     = 0
	keyPress       = 1
	keyLCtrl       = 29
	keyRCtrl       = 97
	keyLShift      = 42
	keyRShift      = 54
	keySpace       = 57
	inputEventSize = 24
)

type edge int

const (
	noEdge edge = iota
	down
	up
)

// comboTracker follows modifier state for one keyboard and reports the
// combo's press and release edges. Autorepeat events are ignored.
type comboTracker struct {
	ctrl, shift, held bool
}

func (c *comboTracker) feed(typ, code uint16, value int32) edge {
	if typ != evKey || (value != keyPress && value != keyRelease) {
		return noEdge
	}
	pressed := value == keyPress
	switch code {
	case keyLCtrl, keyRCtrl:
		c.ctrl = pressed
	case keyLShift, keyRShift:
		c.shift = pressed
	case keySpace:
		if pressed && !c.held && c.ctrl && c.shift {
			c.held = true
			return down
		}
		if !pressed && c.held {
			c.held = false
			return up
		}
	}
	return noEdge
}

// evdevHotkey reads /dev/input directly so it works without an X server.
// The user needs read access to the keyboard devices.
type evdevHotkey struct {
	keydown chan struct{}
	keyup   chan struct{}
	files   []*os.File
	once    sync.Once
}

func New() Hotkey {
	return &evdevHotkey{
		keydown: make(chan struct{}, 1),
		keyup:   make(chan struct{}, 1),
	}
}

func (h *evdevHotkey) Register() error {
	keyboards, err := findKeyboards()
	if err != nil {
		return fmt.Errorf("finding keyboards: %w", err)
	}
	for _, path := range keyboards {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		h.files = append(h.files, f)
		go h.read(f)
	}
	if len(h.files) == 0 {
		return fmt.Errorf("no readable keyboard among %d device(s) (run: sudo usermod -aG input $USER, then re-login)", len(keyboards))
	}
	return nil
}

func (h *evdevHotkey) read(f *os.File) {
	var tr comboTracker
	buf := make([]byte, inputEventSize*16)
	for {
		n, err := f.Read(buf)
		if err != nil {
			return // closed by Unregister
		}
		for i := 0; i+inputEventSize <= n; i += inputEventSize {
			ev := buf[i : i+inputEventSize]
			switch tr.feed(
				binary.LittleEndian.Uint16(ev[16:]),
				binary.LittleEndian.Uint16(ev[18:]),
				int32(binary.LittleEndian.Uint32(ev[20:])),
			) {
			case down:
				signal(h.keydown)
			case up:
				signal(h.keyup)
			}
		}
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (h *evdevHotkey) Unregister() {
	h.once.Do(func() {
		for _, f := range h.files {
			f.Close()
		}
	})
}

func (h *evdevHotkey) Keydown() <-chan struct{} { return h.keydown }
func (h *evdevHotkey) Keyup() <-chan struct{}   { return h.keyup }

func findKeyboards() ([]string, error) {
	entries, err := os.ReadDir("/dev/input")
	if err != nil {
		return nil, err
	}
	var keyboards []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "event") && isKeyboard(e.Name()) {
			keyboards = append(keyboards, filepath.Join("/dev/input", e.Name()))
		}
	}
	if len(keyboards) == 0 {
		return nil, fmt.Errorf("no keyboard devices found (is user in 'input' group?)")
	}
	return keyboards, nil
}

// isKeyboard treats devices advertising a wide key bitmap as keyboards;
// mice and power buttons report only a word or two.
func isKeyboard(eventName string) bool {
	data, err := os.ReadFile(filepath.Join("/sys/class/input", eventName, "device", "capabilities", "key"))
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(data))) > 10
}
