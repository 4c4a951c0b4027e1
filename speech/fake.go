package speech

import (
	"errors"
	"sync"
)

// FakeEngine hands out FakeRecognizers. With Unsupported set, New fails with
// ErrUnsupported; StartErr makes Start fail.
type FakeEngine struct {
	Unsupported bool
	StartErr    error

	mu      sync.Mutex
	created []*FakeRecognizer
}

func (e *FakeEngine) Name() string { return "fake" }

func (e *FakeEngine) New(cfg Config, h Handler) (Recognizer, error) {
	if e.Unsupported {
		return nil, ErrUnsupported
	}
	r := &FakeRecognizer{cfg: cfg, h: h, startErr: e.StartErr}
	e.mu.Lock()
	e.created = append(e.created, r)
	e.mu.Unlock()
	return r, nil
}

// Created reports how many recognizers were constructed.
func (e *FakeEngine) Created() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.created)
}

func (e *FakeEngine) Last() *FakeRecognizer {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.created) == 0 {
		return nil
	}
	return e.created[len(e.created)-1]
}

// FakeRecognizer records lifecycle calls and lets tests emit events.
type FakeRecognizer struct {
	cfg      Config
	h        Handler
	startErr error

	mu      sync.Mutex
	started bool
	stopped bool
	fed     int
}

func (r *FakeRecognizer) Config() Config { return r.cfg }

func (r *FakeRecognizer) Start() error {
	if r.startErr != nil {
		return r.startErr
	}
	r.mu.Lock()
	r.started = true
	r.mu.Unlock()
	return nil
}

func (r *FakeRecognizer) Feed(pcm []byte) {
	r.mu.Lock()
	r.fed += len(pcm)
	r.mu.Unlock()
}

func (r *FakeRecognizer) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
}

// Active reports whether the recognizer was started and not yet stopped.
func (r *FakeRecognizer) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started && !r.stopped
}

func (r *FakeRecognizer) Stopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// Fed is the number of PCM bytes received.
func (r *FakeRecognizer) Fed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fed
}

// Emit delivers a single-alternative result.
func (r *FakeRecognizer) Emit(text string, final bool) {
	r.h.result(Result{Alternatives: []Alternative{{Transcript: text, Confidence: 1}}, Final: final})
}

// Fail delivers an error event.
func (r *FakeRecognizer) Fail(msg string) {
	r.h.fail(errors.New(msg))
}
