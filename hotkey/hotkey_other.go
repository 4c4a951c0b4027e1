//go:build !linux

package hotkey

import (
	"sync"

	"golang.design/x/hotkey"
)

// osHotkey registers the combo with the window system. On macOS it must be
// used after mainthread.Init.
type osHotkey struct {
	hk      *hotkey.Hotkey
	keydown chan struct{}
	keyup   chan struct{}
	stop    chan struct{}
	once    sync.Once
}

func New() Hotkey {
	return &osHotkey{
		hk:      hotkey.New([]hotkey.Modifier{hotkey.ModCtrl, hotkey.ModShift}, hotkey.KeySpace),
		keydown: make(chan struct{}, 1),
		keyup:   make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
}

func (h *osHotkey) Register() error {
	if err := h.hk.Register(); err != nil {
		return err
	}
	go forward(h.hk.Keydown(), h.keydown, h.stop)
	go forward(h.hk.Keyup(), h.keyup, h.stop)
	return nil
}

func forward(src <-chan hotkey.Event, dst chan struct{}, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-src:
		}
		select {
		case dst <- struct{}{}:
		default:
		}
	}
}

func (h *osHotkey) Unregister() {
	h.once.Do(func() {
		close(h.stop)
		h.hk.Unregister()
	})
}

func (h *osHotkey) Keydown() <-chan struct{} { return h.keydown }
func (h *osHotkey) Keyup() <-chan struct{}   { return h.keyup }
