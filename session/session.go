// Package session runs one recording at a time: a recognizer fed by the
// microphone, a transcript, voice commands and the bar graph.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"rtscribe/audio"
	"rtscribe/command"
	"rtscribe/log"
	"rtscribe/notify"
	"rtscribe/speech"
	"rtscribe/transcript"
	"rtscribe/visualizer"
)

var (
	ErrUnsupportedCapability = errors.New("speech recognition unavailable")
	ErrPermissionDenied      = errors.New("microphone permission denied")
	ErrClosed                = errors.New("session closed")
)

const (
	alertTitle         = "rtscribe"
	unsupportedMessage = "Speech recognition is not supported on this system. Set GROQ_API_KEY or OPENAI_API_KEY to enable it."
	micDeniedMessage   = "Microphone access is required for transcription."
)

type State int

const (
	Idle State = iota
	Recording
	Complete
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Complete:
		return "complete"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Status is the line shown to the user for a state.
func (s State) Status() string {
	switch s {
	case Recording:
		return "Listening..."
	case Complete:
		return "Transcription complete. Thanks for speaking!"
	}
	return "Press Record to start"
}

// Snapshot is what observers see after every change.
type Snapshot struct {
	// Seq orders snapshots; a later change always has a larger Seq.
	Seq        uint64
	State      State
	Starting   bool
	Transcript string
	// Pending is the unstable interim text not yet folded into Transcript.
	Pending string
	// Fired lists the triggers matched by the fragment that produced this
	// snapshot.
	Fired []string
}

type Deps struct {
	Speech   speech.Engine
	Mic      audio.Microphone
	Analyser *audio.Analyser // created when nil

	// Surface and Frames enable the bar graph; either nil disables it.
	Surface visualizer.Surface
	Frames  visualizer.FrameScheduler

	Notifier notify.Notifier
	Commands *command.Table

	Policy   transcript.Policy
	Interim  bool
	Language string
	// MarkComplete ends a stopped recording in Complete instead of Idle.
	MarkComplete bool

	// OnChange is called outside the controller lock, one call at a time
	// and in Seq order; snapshots overtaken by a newer one are dropped. It
	// must not call back into the Controller.
	OnChange func(Snapshot)
}

type Controller struct {
	deps     Deps
	buf      *transcript.Buffer
	analyser *audio.Analyser
	loop     *visualizer.Loop

	mu       sync.Mutex
	state    State
	starting bool
	closed   bool
	gen      uint64
	rec      speech.Recognizer
	dev      audio.CaptureDevice
	pending  string
	seq      uint64
	// cancelOpen aborts a microphone request still in flight.
	cancelOpen context.CancelFunc

	pubMu     sync.Mutex
	delivered uint64
}

func New(d Deps) *Controller {
	c := &Controller{
		deps:     d,
		buf:      transcript.NewBuffer(d.Policy),
		analyser: d.Analyser,
	}
	if c.analyser == nil {
		c.analyser = audio.NewAnalyser(audio.DefaultFFTSize)
	}
	if d.Surface != nil && d.Frames != nil {
		c.loop = visualizer.NewLoop(c.analyser, d.Surface, d.Frames)
	}
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	c.seq++
	return Snapshot{
		Seq:        c.seq,
		State:      c.state,
		Starting:   c.starting,
		Transcript: c.buf.Text(),
		Pending:    c.pending,
	}
}

func (c *Controller) Analyser() *audio.Analyser { return c.analyser }

func (c *Controller) Transcript() string { return c.buf.Text() }

// Start begins a recording. It returns nil without doing anything while a
// recording is active or still waiting for the microphone.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == Recording || c.starting {
		c.mu.Unlock()
		return nil
	}
	c.starting = true
	c.gen++
	gen := c.gen
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)

	rec, err := c.newRecognizer(gen)
	if err != nil {
		if !c.abortStart(gen) {
			return nil
		}
		log.Errorf("speech recognition unavailable: %v", err)
		c.alert(unsupportedMessage)
		return fmt.Errorf("%w: %v", ErrUnsupportedCapability, err)
	}

	// From here on stop owns the recognizer and can cancel the wait.
	openCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		rec.Stop()
		return nil
	}
	c.rec = rec
	c.cancelOpen = cancel
	c.mu.Unlock()

	if c.deps.Mic == nil {
		err = audio.ErrPermissionDenied
	}
	var dev audio.CaptureDevice
	if err == nil {
		dev, err = c.deps.Mic.Open(openCtx)
	}
	if err != nil {
		if !c.abortStart(gen) {
			// stopped while waiting for the microphone
			return nil
		}
		log.Errorf("microphone: %v", err)
		c.alert(micDeniedMessage)
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		dev.Close()
		return nil
	}
	c.state = Recording
	c.starting = false
	c.cancelOpen = nil
	c.dev = dev
	c.pending = ""
	c.buf.Begin()
	c.analyser.Reset()
	snap = c.snapshotLocked()
	c.mu.Unlock()

	analyser := c.analyser
	dev.SetCallback(func(pcm []byte, _ uint32) {
		rec.Feed(pcm)
		analyser.Write(pcm)
	})
	if c.loop != nil {
		c.loop.Start()
	}
	log.SessionStart(c.engineName(), c.deps.Policy.String())
	log.RecordingState(Recording.String())
	c.publish(snap)
	return nil
}

func (c *Controller) newRecognizer(gen uint64) (speech.Recognizer, error) {
	if c.deps.Speech == nil {
		return nil, speech.ErrUnsupported
	}
	rec, err := c.deps.Speech.New(speech.Config{
		Continuous:     true,
		InterimResults: c.deps.Interim,
		Language:       c.deps.Language,
	}, speech.Handler{
		OnResult: func(r speech.Result) { c.onResult(gen, r) },
		OnError:  func(err error) { c.onError(gen, err) },
	})
	if err != nil {
		return nil, err
	}
	if err := rec.Start(); err != nil {
		rec.Stop()
		return nil, err
	}
	return rec, nil
}

// abortStart undoes a failed start and reports whether it was still the
// current one. A start that was stopped meanwhile has already been torn down.
func (c *Controller) abortStart(gen uint64) bool {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return false
	}
	c.gen++
	rec := c.rec
	c.rec, c.cancelOpen = nil, nil
	c.starting = false
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if rec != nil {
		rec.Stop()
	}
	c.publish(snap)
	return true
}

func (c *Controller) engineName() string {
	if c.deps.Speech == nil {
		return "none"
	}
	return c.deps.Speech.Name()
}

// Stop ends the active recording. It is a no-op when nothing is recording.
func (c *Controller) Stop() {
	final := Idle
	if c.deps.MarkComplete {
		final = Complete
	}
	c.stop(0, final)
}

// Close stops any recording; later Start calls fail with ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.stop(0, Idle)
}

// stop tears down the recording or pending start of generation gen, or
// whatever is current when gen is 0.
func (c *Controller) stop(gen uint64, final State) {
	c.mu.Lock()
	if c.state != Recording && !c.starting || gen != 0 && gen != c.gen {
		c.mu.Unlock()
		return
	}
	wasRecording := c.state == Recording
	c.gen++
	rec, dev, cancel := c.rec, c.dev, c.cancelOpen
	c.rec, c.dev, c.cancelOpen = nil, nil, nil
	c.starting = false
	c.pending = ""
	if wasRecording {
		c.state = final
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if rec != nil {
		rec.Stop()
	}
	if c.loop != nil {
		c.loop.Stop()
	}
	if dev != nil {
		dev.ClearCallback()
		dev.Close()
	}
	if wasRecording {
		log.SessionEnd(c.buf.Count())
		log.RecordingState(snap.State.String())
	}
	c.publish(snap)
}

func (c *Controller) onResult(gen uint64, r speech.Result) {
	if !r.Final && !c.deps.Interim {
		return
	}
	text := r.Transcript()
	if text == "" {
		return
	}

	c.mu.Lock()
	if gen != c.gen || c.state != Recording {
		c.mu.Unlock()
		return
	}
	if r.Final || c.deps.Policy == transcript.Replace {
		c.buf.Apply(text)
		c.pending = ""
	} else {
		c.pending = text
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	log.Fragment(text, r.Final)
	c.publish(snap)
	if fired := c.deps.Commands.Evaluate(text); len(fired) > 0 {
		c.mu.Lock()
		snap = c.snapshotLocked()
		c.mu.Unlock()
		snap.Fired = fired
		c.publish(snap)
	}
}

func (c *Controller) onError(gen uint64, err error) {
	c.mu.Lock()
	stale := gen != c.gen || (c.state != Recording && !c.starting)
	c.mu.Unlock()
	if stale {
		return
	}
	log.RecognizerError(err)
	c.stop(gen, Idle)
}

func (c *Controller) publish(s Snapshot) {
	if c.deps.OnChange == nil {
		return
	}
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	if s.Seq <= c.delivered {
		return
	}
	c.delivered = s.Seq
	c.deps.OnChange(s)
}

func (c *Controller) alert(msg string) {
	if c.deps.Notifier != nil {
		c.deps.Notifier.Alert(alertTitle, msg)
	}
}
