package session

import (
	"context"
	"encoding/binary"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"rtscribe/audio"
	"rtscribe/command"
	"rtscribe/notify"
	"rtscribe/speech"
	"rtscribe/transcript"
	"rtscribe/visualizer"
)

type harness struct {
	engine  *speech.FakeEngine
	mic     *audio.FakeMicrophone
	frames  *visualizer.FakeScheduler
	canvas  *visualizer.Canvas
	alerts  *notify.Recorder
	opened  []string
	hellos  int
	ctrl    *Controller
	mu      sync.Mutex
	history []Snapshot
}

func newHarness(t *testing.T, mod func(*Deps)) *harness {
	t.Helper()
	h := &harness{
		engine: &speech.FakeEngine{},
		mic:    &audio.FakeMicrophone{},
		frames: visualizer.NewFakeScheduler(),
		canvas: visualizer.NewCanvas(16, 4, nil),
		alerts: &notify.Recorder{},
	}
	d := Deps{
		Speech:   h.engine,
		Mic:      h.mic,
		Surface:  h.canvas,
		Frames:   h.frames,
		Notifier: h.alerts,
		Commands: command.New(
			command.Entry{Trigger: "open google", Action: func() { h.opened = append(h.opened, "https://www.google.com") }},
			command.Entry{Trigger: "hello", Action: func() { h.hellos++ }},
		),
		Policy: transcript.Accumulate,
		OnChange: func(s Snapshot) {
			h.mu.Lock()
			h.history = append(h.history, s)
			h.mu.Unlock()
		},
	}
	if mod != nil {
		mod(&d)
	}
	h.ctrl = New(d)
	t.Cleanup(h.ctrl.Close)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := h.ctrl.State(); got != Recording {
		t.Fatalf("state = %v, want recording", got)
	}
}

func (h *harness) last() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.history[len(h.history)-1]
}

func TestStartRecords(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	rec := h.engine.Last()
	if !rec.Active() {
		t.Error("recognizer not started")
	}
	if cfg := rec.Config(); !cfg.Continuous || cfg.InterimResults {
		t.Errorf("recognizer config = %+v", cfg)
	}
	if h.frames.Pending() != 1 {
		t.Errorf("pending frames = %d, want 1", h.frames.Pending())
	}

	h.mic.Last().Push(make([]byte, 512))
	if rec.Fed() < 512 {
		t.Errorf("recognizer fed %d bytes, want >= 512", rec.Fed())
	}
}

func TestStartWhileRecordingIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.start(t)
	if h.engine.Created() != 1 || h.mic.Opened() != 1 {
		t.Errorf("created=%d opened=%d, want 1 each", h.engine.Created(), h.mic.Opened())
	}
}

func TestStartUnsupported(t *testing.T) {
	for _, tt := range []struct {
		name   string
		engine speech.Engine
	}{
		{"no engine", nil},
		{"engine refuses", &speech.FakeEngine{Unsupported: true}},
		{"start fails", &speech.FakeEngine{StartErr: errors.New("service not allowed")}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(d *Deps) { d.Speech = tt.engine })
			err := h.ctrl.Start(context.Background())
			if !errors.Is(err, ErrUnsupportedCapability) {
				t.Fatalf("err = %v, want ErrUnsupportedCapability", err)
			}
			if h.ctrl.State() != Idle {
				t.Errorf("state = %v, want idle", h.ctrl.State())
			}
			if h.mic.Opened() != 0 {
				t.Error("microphone opened without a recognizer")
			}
			if got := h.alerts.Alerts(); len(got) != 1 || got[0].Message != unsupportedMessage {
				t.Errorf("alerts = %v", got)
			}
			for _, s := range h.history {
				if s.State == Recording {
					t.Error("observer saw recording state")
				}
			}
		})
	}
}

func TestStartPermissionDenied(t *testing.T) {
	h := newHarness(t, nil)
	h.mic.Deny = errors.New("NotAllowedError")

	err := h.ctrl.Start(context.Background())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
	if h.ctrl.State() != Idle {
		t.Errorf("state = %v, want idle", h.ctrl.State())
	}
	rec := h.engine.Last()
	if rec == nil || rec.Active() {
		t.Error("recognizer left active after denial")
	}
	if got := h.alerts.Alerts(); len(got) != 1 || got[0].Message != micDeniedMessage {
		t.Errorf("alerts = %v", got)
	}
	if h.frames.Pending() != 0 {
		t.Error("visualizer started after denial")
	}
	if h.last().Starting {
		t.Error("last snapshot still starting")
	}

	h.mic.Deny = nil
	h.start(t)
}

func TestStartContextCancelledWhileWaiting(t *testing.T) {
	h := newHarness(t, nil)
	h.mic.Hold()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := h.ctrl.Start(ctx); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
	if h.engine.Last().Active() {
		t.Error("recognizer left active")
	}
}

func TestStartIgnoredWhileWaitingForMicrophone(t *testing.T) {
	h := newHarness(t, nil)
	h.mic.Hold()
	done := make(chan error, 1)
	go func() { done <- h.ctrl.Start(context.Background()) }()

	deadline := time.Now().Add(time.Second)
	for !h.ctrl.Snapshot().Starting {
		if time.Now().After(deadline) {
			t.Fatal("never entered starting")
		}
		time.Sleep(time.Millisecond)
	}
	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Errorf("second Start = %v, want nil", err)
	}
	h.mic.Release()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if h.engine.Created() != 1 {
		t.Errorf("created %d recognizers, want 1", h.engine.Created())
	}
	if h.ctrl.State() != Recording {
		t.Errorf("state = %v", h.ctrl.State())
	}
}

// waitForMicrophone blocks until a Start is parked inside Mic.Open.
func (h *harness) waitForMicrophone(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for h.mic.Waiting() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Start never asked for the microphone")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStopWhileWaitingForMicrophone(t *testing.T) {
	h := newHarness(t, nil)
	h.mic.Hold()
	defer h.mic.Release()
	done := make(chan error, 1)
	go func() { done <- h.ctrl.Start(context.Background()) }()
	h.waitForMicrophone(t)

	first := h.engine.Last()
	h.ctrl.Stop()
	if first.Active() {
		t.Fatal("recognizer still active after Stop returned")
	}
	if s := h.ctrl.Snapshot(); s.State != Idle || s.Starting {
		t.Errorf("snapshot = %+v, want idle and not starting", s)
	}

	// Stop cancels the pending request; Start returns without a grant.
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start still waiting for the microphone after Stop")
	}
	if h.mic.Opened() != 0 || len(h.alerts.Alerts()) != 0 {
		t.Errorf("opened=%d alerts=%v after a cancelled start", h.mic.Opened(), h.alerts.Alerts())
	}

	h.mic.Release()
	h.start(t)
	if h.engine.Created() != 2 || first.Active() {
		t.Errorf("created=%d firstActive=%v, want 2 and false", h.engine.Created(), first.Active())
	}
}

func TestRecognizerErrorWhileWaitingForMicrophone(t *testing.T) {
	h := newHarness(t, nil)
	h.mic.Hold()
	defer h.mic.Release()
	done := make(chan error, 1)
	go func() { done <- h.ctrl.Start(context.Background()) }()
	h.waitForMicrophone(t)

	rec := h.engine.Last()
	rec.Fail("network")
	if rec.Active() {
		t.Error("failed recognizer left active")
	}
	if err := <-done; err != nil {
		t.Fatalf("Start = %v, want nil", err)
	}
	if s := h.ctrl.Snapshot(); s.State != Idle || s.Starting {
		t.Errorf("snapshot = %+v, want idle", s)
	}
}

func TestStaleErrorDoesNotStopNewSession(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.ctrl.mu.Lock()
	oldGen := h.ctrl.gen
	h.ctrl.mu.Unlock()
	h.ctrl.Stop()
	h.start(t)

	// an error from the first recognizer that passed its check before the
	// restart reaches teardown late
	h.ctrl.stop(oldGen, Idle)
	if h.ctrl.State() != Recording {
		t.Errorf("state = %v, want recording", h.ctrl.State())
	}
	if !h.engine.Last().Active() {
		t.Error("current recognizer stopped by a stale error")
	}
}

func TestSlowObserverSeesStopLast(t *testing.T) {
	held := make(chan struct{})
	hold := make(chan struct{})
	h := newHarness(t, nil)
	next := h.ctrl.deps.OnChange
	h.ctrl.deps.OnChange = func(s Snapshot) {
		if s.State == Recording && s.Transcript == "hello" && s.Fired == nil {
			close(held)
			<-hold
		}
		next(s)
	}
	h.start(t)

	emitted := make(chan struct{})
	go func() {
		h.engine.Last().Emit("hello", true)
		close(emitted)
	}()
	<-held

	stopped := make(chan struct{})
	go func() {
		h.ctrl.Stop()
		close(stopped)
	}()
	deadline := time.Now().Add(time.Second)
	for h.ctrl.State() != Idle {
		if time.Now().After(deadline) {
			t.Fatal("Stop never moved the state")
		}
		time.Sleep(time.Millisecond)
	}
	close(hold)
	<-emitted
	<-stopped

	if s := h.last(); s.State != Idle {
		t.Errorf("last snapshot state = %v, want idle", s.State)
	}
	if h.hellos != 1 {
		t.Errorf("hello fired %d times, want 1", h.hellos)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := 1; i < len(h.history); i++ {
		if h.history[i].Seq <= h.history[i-1].Seq {
			t.Errorf("snapshot %d has Seq %d after %d", i, h.history[i].Seq, h.history[i-1].Seq)
		}
	}
}

func TestStopWhenIdleIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	h.ctrl.Stop()
	h.ctrl.Stop()
	if h.ctrl.State() != Idle {
		t.Errorf("state = %v", h.ctrl.State())
	}
	if len(h.history) != 0 {
		t.Errorf("observer called %d times", len(h.history))
	}
}

func TestStopReleasesEverything(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.frames.Step()
	rec, dev := h.engine.Last(), h.mic.Last()

	h.ctrl.Stop()
	if h.ctrl.State() != Idle {
		t.Errorf("state = %v, want idle", h.ctrl.State())
	}
	if rec.Active() {
		t.Error("recognizer still active")
	}
	if !dev.Closed() {
		t.Error("capture not closed")
	}
	if h.frames.Pending() != 0 {
		t.Errorf("pending frames after Stop = %d", h.frames.Pending())
	}
	presents := h.canvas.Presents()
	if h.frames.Step() != 0 || h.canvas.Presents() != presents {
		t.Error("visualizer ticked after Stop")
	}
}

func TestStopMarksComplete(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.MarkComplete = true })
	h.start(t)
	h.ctrl.Stop()
	if h.ctrl.State() != Complete {
		t.Fatalf("state = %v, want complete", h.ctrl.State())
	}
	h.start(t)
}

func TestAnalyserRetainedAcrossSessions(t *testing.T) {
	h := newHarness(t, nil)
	a := h.ctrl.Analyser()
	h.start(t)
	h.ctrl.Stop()
	h.start(t)
	if h.ctrl.Analyser() != a {
		t.Error("analyser replaced between sessions")
	}
}

func TestRecognizerErrorStops(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.MarkComplete = true })
	h.start(t)
	rec := h.engine.Last()

	rec.Fail("audio-capture")
	if h.ctrl.State() != Idle {
		t.Errorf("state = %v, want idle", h.ctrl.State())
	}
	if rec.Active() || h.frames.Pending() != 0 {
		t.Error("error did not clean up")
	}
	if len(h.alerts.Alerts()) != 0 {
		t.Error("mid-session error raised an alert")
	}
}

func TestStaleRecognizerEventsIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	old := h.engine.Last()
	h.ctrl.Stop()
	h.start(t)

	old.Emit("hello", true)
	old.Fail("late")
	if h.hellos != 0 {
		t.Error("stale result fired a command")
	}
	if h.ctrl.State() != Recording {
		t.Errorf("stale error changed state to %v", h.ctrl.State())
	}
}

func TestCommandsScenario(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	rec := h.engine.Last()

	rec.Emit("Open Google now", true)
	if !slices.Equal(h.opened, []string{"https://www.google.com"}) {
		t.Errorf("opened = %v, want one google", h.opened)
	}
	if got := h.last().Fired; !slices.Equal(got, []string{"open google"}) {
		t.Errorf("Fired = %v", got)
	}

	rec.Emit("nothing special", true)
	if len(h.opened) != 1 || h.hellos != 0 {
		t.Errorf("opened=%v hellos=%d after unrelated fragment", h.opened, h.hellos)
	}
}

func TestCommandsFirePerFragment(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	rec := h.engine.Last()
	rec.Emit("hello", true)
	rec.Emit("hello there", true)
	if h.hellos != 2 {
		t.Errorf("hello fired %d times, want 2", h.hellos)
	}
}

func TestEveryMatchFiresOncePerFragment(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.engine.Last().Emit("hello hello, OPEN GOOGLE", true)
	if h.hellos != 1 || len(h.opened) != 1 {
		t.Errorf("hellos=%d opened=%d, want 1 each", h.hellos, len(h.opened))
	}
}

func TestFinalOnlyDropsInterim(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.engine.Last().Emit("hello", false)
	if h.hellos != 0 || h.ctrl.Transcript() != "" {
		t.Error("interim fragment used in final-only mode")
	}
}

func TestAccumulatePolicy(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Interim = true })
	h.start(t)
	rec := h.engine.Last()
	rec.Emit("hello", true)
	rec.Emit("wor", false)
	if s := h.last(); s.Transcript != "hello" || s.Pending != "wor" {
		t.Errorf("snapshot = %+v", s)
	}
	rec.Emit("world", true)
	if s := h.last(); s.Transcript != "hello world" || s.Pending != "" {
		t.Errorf("snapshot = %+v", s)
	}

	h.ctrl.Stop()
	h.start(t)
	if got := h.ctrl.Transcript(); got != "" {
		t.Errorf("accumulated transcript survived restart: %q", got)
	}
}

func TestReplacePolicy(t *testing.T) {
	h := newHarness(t, func(d *Deps) {
		d.Policy = transcript.Replace
		d.Interim = true
	})
	h.start(t)
	rec := h.engine.Last()
	rec.Emit("open goo", false)
	rec.Emit("open google", true)
	if got := h.ctrl.Transcript(); got != "open google" {
		t.Errorf("transcript = %q", got)
	}
	if len(h.opened) != 2 {
		t.Errorf("opened %d times, want once per fragment", len(h.opened))
	}

	h.ctrl.Stop()
	h.start(t)
	if got := h.ctrl.Transcript(); got != "open google" {
		t.Errorf("replace transcript after restart = %q", got)
	}
}

func TestVisualizerPaintsAnalyserData(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	dev := h.mic.Last()

	// 250 Hz square wave lands in the first few bins, which fit on the canvas
	pcm := make([]byte, audio.DefaultFFTSize*2)
	for i := range audio.DefaultFFTSize {
		v := int16(16384)
		if (i/32)%2 == 1 {
			v = -16384
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	dev.Push(pcm)
	h.frames.Step()
	if h.canvas.Presents() != 1 {
		t.Fatalf("presents = %d", h.canvas.Presents())
	}
	painted := false
	w, hgt := h.canvas.Size()
	for x := 0; x < w; x++ {
		if h.canvas.At(x, hgt-1) != visualizer.Background {
			painted = true
		}
	}
	if !painted {
		t.Error("no bars painted for loud input")
	}
}

func TestNoVisualizerWithoutSurface(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Surface = nil })
	h.start(t)
	if h.frames.Pending() != 0 {
		t.Error("frames requested without a surface")
	}
}

func TestClose(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	rec := h.engine.Last()
	h.ctrl.Close()
	if rec.Active() || h.frames.Pending() != 0 {
		t.Error("Close left the session running")
	}
	if err := h.ctrl.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Start after Close = %v, want ErrClosed", err)
	}
}

func TestStateStrings(t *testing.T) {
	for s, want := range map[State]string{Idle: "idle", Recording: "recording", Complete: "complete", State(9): "State(9)"} {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(s), got, want)
		}
	}
	if Complete.Status() == Idle.Status() {
		t.Error("complete and idle share a status line")
	}
}
