// Package speech adapts external speech-to-text engines to a recognizer
// shaped like the browser speech API: start/stop, continuous and
// interim-result switches, result events carrying alternatives with a final
// flag, and error events.
package speech

import (
	"errors"
	"strings"
)

// ErrUnsupported is returned by an Engine that cannot provide recognition on
// this host (no credentials, no backend).
var ErrUnsupported = errors.New("speech recognition not supported")

type Config struct {
	// Continuous keeps listening across pauses. Without it the recognizer
	// stops itself after the first final result.
	Continuous bool
	// InterimResults also emits unstable, non-final fragments.
	InterimResults bool
	Language       string
}

type Alternative struct {
	Transcript string
	Confidence float64
}

// Result is one recognition event for a single utterance span.
type Result struct {
	Alternatives []Alternative
	Final        bool
}

// Transcript returns the top alternative, trimmed.
func (r Result) Transcript() string {
	if len(r.Alternatives) == 0 {
		return ""
	}
	return strings.TrimSpace(r.Alternatives[0].Transcript)
}

// Handler receives recognizer events. Either callback may be invoked from
// any goroutine. An event racing Stop may still be delivered after Stop
// returns, so callers must ignore events from a recognizer they stopped.
type Handler struct {
	OnResult func(Result)
	OnError  func(error)
}

func (h Handler) result(r Result) {
	if h.OnResult != nil {
		h.OnResult(r)
	}
}

func (h Handler) fail(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

type Recognizer interface {
	Start() error
	// Feed hands captured 16 kHz mono PCM to the recognizer.
	Feed(pcm []byte)
	// Stop is idempotent.
	Stop()
}

// Engine creates recognizers. It is the injectable stand-in for a host's
// speech recognition constructor.
type Engine interface {
	Name() string
	New(cfg Config, h Handler) (Recognizer, error)
}
