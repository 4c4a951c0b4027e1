// Package hotkey watches a global Ctrl+Shift+Space key combination.
package hotkey

import (
	"context"
	"time"
)

const Combo = "Ctrl+Shift+Space"

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

type Event int

const (
	Start Event = iota
	Stop
)

func (e Event) String() string {
	if e == Start {
		return "start"
	}
	return "stop"
}

// DefaultHold is how long the combo must be held before its release ends the
// recording it started.
const DefaultHold = 400 * time.Millisecond

// Toggle turns combo presses into Start and Stop events. A tap starts a
// recording and the next press stops it. Holding the combo past hold records
// until it is released. recording reports the controller's state so that a
// recording stopped elsewhere does not desynchronize the toggle.
type Toggle struct {
	events chan Event
}

func NewToggle(ctx context.Context, hk Hotkey, hold time.Duration, recording func() bool) *Toggle {
	t := &Toggle{events: make(chan Event, 1)}
	go t.run(ctx, hk, hold, recording)
	return t
}

func (t *Toggle) Events() <-chan Event { return t.events }

func (t *Toggle) run(ctx context.Context, hk Hotkey, hold time.Duration, recording func() bool) {
	defer close(t.events)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hk.Keydown():
		}

		if recording() {
			if !t.emit(ctx, Stop) || !waitKeyup(ctx, hk) {
				return
			}
			continue
		}

		if !t.emit(ctx, Start) {
			return
		}
		timer := time.NewTimer(hold)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-hk.Keyup():
			timer.Stop()
		case <-timer.C:
			if !waitKeyup(ctx, hk) || !t.emit(ctx, Stop) {
				return
			}
		}
	}
}

func (t *Toggle) emit(ctx context.Context, e Event) bool {
	select {
	case t.events <- e:
		return true
	case <-ctx.Done():
		return false
	}
}

func waitKeyup(ctx context.Context, hk Hotkey) bool {
	select {
	case <-hk.Keyup():
		return true
	case <-ctx.Done():
		return false
	}
}
