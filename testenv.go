package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"rtscribe/audio"
	"rtscribe/command"
	"rtscribe/config"
	"rtscribe/notify"
	"rtscribe/session"
	"rtscribe/speech"
)

// replayMic opens captures that replay a WAV file in real time and remembers
// the latest one so WAIT can block on its end.
type replayMic struct {
	inner audio.Microphone

	mu   sync.Mutex
	last *audio.FakeCapture
}

func (m *replayMic) Open(ctx context.Context) (audio.CaptureDevice, error) {
	dev, err := m.inner.Open(ctx)
	if err != nil {
		return nil, err
	}
	if fc, ok := dev.(*audio.FakeCapture); ok {
		m.mu.Lock()
		m.last = fc
		m.mu.Unlock()
	}
	return dev, nil
}

func (m *replayMic) audioDone() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return m.last.AudioDone()
}

// testDriver runs the session headless. Output lines are prefixed so that
// scripts can grep them.
type testDriver struct {
	out  io.Writer
	ctrl *session.Controller
	mic  *replayMic

	mu      sync.Mutex
	text    string
	changed chan struct{}
}

func newTestDriver(out io.Writer, engine speech.Engine, mic audio.Microphone, cfg config.Config) *testDriver {
	d := &testDriver{
		out:     out,
		mic:     &replayMic{inner: mic},
		changed: make(chan struct{}, 1),
	}
	alerts := notify.Func(func(title, msg string) {
		fmt.Fprintf(d.out, "ALERT: %s\n", msg)
	})
	// actions are printed instead of performed
	actions := command.Actions{
		OpenURL: func(url string) error {
			fmt.Fprintf(d.out, "OPEN: %s\n", url)
			return nil
		},
		Notifier: alerts,
	}
	tbl, err := command.Build(cfg.Commands, actions)
	if err != nil {
		fatal("%v", err)
	}
	d.ctrl = session.New(session.Deps{
		Speech:       engine,
		Mic:          d.mic,
		Notifier:     alerts,
		Commands:     tbl,
		Policy:       cfg.Policy(),
		Interim:      cfg.Recognition.Interim,
		Language:     cfg.Recognition.Language,
		MarkComplete: cfg.Display.MarkComplete,
		OnChange:     d.onChange,
	})
	return d
}

func (d *testDriver) onChange(s session.Snapshot) {
	if len(s.Fired) > 0 {
		fmt.Fprintf(d.out, "COMMAND: %s\n", strings.Join(s.Fired, ", "))
		return
	}
	d.mu.Lock()
	changed := s.Transcript != d.text
	d.text = s.Transcript
	d.mu.Unlock()
	if changed {
		fmt.Fprintf(d.out, "TRANSCRIPT: %s\n", s.Transcript)
		select {
		case d.changed <- struct{}{}:
		default:
		}
	}
	if s.Pending != "" {
		fmt.Fprintf(d.out, "INTERIM: %s\n", s.Pending)
	}
}

// exec runs one stdin command and reports false on QUIT.
//
//	START | STOP | WAIT | WAIT_TEXT [ms] | SLEEP <ms> | QUIT
func (d *testDriver) exec(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	switch cmd {
	case "START":
		if err := d.ctrl.Start(ctx); err != nil {
			fmt.Fprintf(d.out, "ERROR: %v\n", err)
		}
		fmt.Fprintf(d.out, "STATE: %s\n", d.ctrl.State())
	case "STOP":
		d.ctrl.Stop()
		fmt.Fprintf(d.out, "STATE: %s\n", d.ctrl.State())
	case "WAIT":
		<-d.mic.audioDone()
	case "WAIT_TEXT":
		timeout := 30 * time.Second
		if ms, err := strconv.Atoi(arg); err == nil {
			timeout = time.Duration(ms) * time.Millisecond
		}
		select {
		case <-d.changed:
		case <-time.After(timeout):
			fmt.Fprintln(d.out, "TIMEOUT")
		}
	case "SLEEP":
		if ms, err := strconv.Atoi(arg); err == nil {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		}
	case "QUIT":
		return false
	}
	return true
}

func (d *testDriver) drive(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if !d.exec(ctx, scanner.Text()) {
			break
		}
	}
	d.ctrl.Close()
}

func runTestMode(wavPath string, cfg config.Config) {
	fakeCtx, err := audio.NewFakeContext(wavPath, true)
	if err != nil {
		fatal("loading WAV: %v", err)
	}
	d := newTestDriver(os.Stdout, newEngine(cfg), audio.NewMicrophone(fakeCtx, nil), cfg)
	d.drive(context.Background(), os.Stdin)
}
