// Package notify shows user-facing alerts.
package notify

import (
	"sync"

	"github.com/gen2brain/beeep"

	"rtscribe/log"
)

type Notifier interface {
	Alert(title, message string)
}

// Func adapts a plain function to Notifier.
type Func func(title, message string)

func (f Func) Alert(title, message string) { f(title, message) }

// Desktop raises a native desktop notification. Failures are logged and
// otherwise ignored.
type Desktop struct {
	Icon string
}

func (d Desktop) Alert(title, message string) {
	if err := beeep.Alert(title, message, d.Icon); err != nil {
		log.Warnf("desktop alert: %v", err)
	}
}

// Multi fans an alert out to every notifier in order.
type Multi []Notifier

func (m Multi) Alert(title, message string) {
	for _, n := range m {
		if n != nil {
			n.Alert(title, message)
		}
	}
}

type Alert struct {
	Title   string
	Message string
}

// Recorder collects alerts for inspection.
type Recorder struct {
	mu     sync.Mutex
	alerts []Alert
}

func (r *Recorder) Alert(title, message string) {
	r.mu.Lock()
	r.alerts = append(r.alerts, Alert{title, message})
	r.mu.Unlock()
}

func (r *Recorder) Alerts() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Alert(nil), r.alerts...)
}
