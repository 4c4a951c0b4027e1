package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"rtscribe/audio"
	"rtscribe/beep"
	"rtscribe/config"
	"rtscribe/log"
	"rtscribe/session"
	"rtscribe/visualizer"
)

// TUI message types
type SnapshotMsg struct{ Snapshot session.Snapshot }
type AlertMsg struct{ Title, Text string }
type toggleMsg struct{ start bool }
type startResultMsg struct{ err error }
type tickMsg time.Time

var (
	recStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	idleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	doneStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	helpBold      = helpStyle.Bold(true)
	textStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Italic(true)
	commandStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	copiedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	alertBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("208")).
			Padding(1, 3)
)

type tuiModel struct {
	ctx    context.Context
	ctrl   *session.Controller
	frame  *atomic.Pointer[string]
	canvas *visualizer.Canvas

	vizHeight  int
	modeLine   string
	deviceLine string
	hotkeyHelp string

	width, height int
	snap          session.Snapshot
	started       time.Time
	elapsed       float64
	bars          string
	fired         []string
	copied        bool
	alert         *AlertMsg
}

// tui owns the bubbletea program and the canvas the visualizer paints on.
type tui struct {
	model  tuiModel
	canvas *visualizer.Canvas
	frame  atomic.Pointer[string]

	mu      sync.Mutex
	program *tea.Program
	last    session.State
}

func newTUI(cfg config.Config, provider string, device *audio.DeviceInfo) *tui {
	t := &tui{}
	if cfg.Visualizer.Enabled {
		t.canvas = visualizer.NewCanvas(40, cfg.Visualizer.Height, func(f string) { t.frame.Store(&f) })
	}
	results := "final only"
	if cfg.Recognition.Interim {
		results = "interim"
	}
	deviceName := "system default"
	if device != nil {
		deviceName = device.Name
	}
	t.model = tuiModel{
		frame:      &t.frame,
		canvas:     t.canvas,
		vizHeight:  cfg.Visualizer.Height,
		modeLine:   fmt.Sprintf("[%s | %s | %s]", provider, cfg.Display.Policy, results),
		deviceLine: "mic: " + deviceName,
	}
	return t
}

// attach binds the controller; call before run.
func (t *tui) attach(ctx context.Context, ctrl *session.Controller) {
	t.model.ctx = ctx
	t.model.ctrl = ctrl
	t.model.snap = ctrl.Snapshot()
	t.mu.Lock()
	t.program = tea.NewProgram(t.model, tea.WithAltScreen())
	t.mu.Unlock()
}

func (t *tui) run() error {
	_, err := t.program.Run()
	return err
}

func (t *tui) quit() {
	t.mu.Lock()
	p := t.program
	t.mu.Unlock()
	if p != nil {
		p.Quit()
	}
}

func (t *tui) send(msg tea.Msg) {
	t.mu.Lock()
	p := t.program
	t.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// onChange is the session observer: cues on recording edges, then redraw.
func (t *tui) onChange(s session.Snapshot) {
	t.mu.Lock()
	prev := t.last
	t.last = s.State
	t.mu.Unlock()

	switch {
	case s.State == session.Recording && prev != session.Recording:
		beep.Play(beep.Start)
	case s.State != session.Recording && prev == session.Recording:
		beep.Play(beep.Stop)
	}
	t.send(SnapshotMsg{Snapshot: s})
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) recording() bool {
	return m.snap.State == session.Recording || m.snap.Starting
}

func (m tuiModel) startCmd() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return startResultMsg{err: ctrl.Start(ctx)}
	}
}

func (m tuiModel) stopCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctrl.Stop()
		return nil
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.canvas != nil {
			m.canvas.Resize(max(m.width-2, 10), m.vizHeight)
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}
		if m.alert != nil {
			// alerts are modal until acknowledged
			switch msg.String() {
			case "enter", " ", "space", "esc":
				m.alert = nil
			}
			return m, nil
		}
		switch msg.String() {
		case " ", "space", "enter":
			if m.recording() {
				return m, m.stopCmd()
			}
			return m, m.startCmd()
		case "y":
			if text := m.snap.Transcript; text != "" {
				if err := clipboard.WriteAll(text); err != nil {
					log.Warnf("clipboard: %v", err)
				} else {
					m.copied = true
				}
			}
		}

	case toggleMsg:
		if msg.start && !m.recording() {
			return m, m.startCmd()
		}
		if !msg.start && m.recording() {
			return m, m.stopCmd()
		}

	case startResultMsg:
		// the controller has already alerted; add the audible cue
		if msg.err != nil {
			beep.Play(beep.Error)
		}

	case SnapshotMsg:
		s := msg.Snapshot
		if s.State == session.Recording && m.snap.State != session.Recording {
			m.started = time.Now()
			m.elapsed = 0
			m.fired = nil
		}
		if s.Transcript != m.snap.Transcript {
			m.copied = false
		}
		if len(s.Fired) > 0 {
			m.fired = s.Fired
		}
		m.snap = s

	case AlertMsg:
		m.alert = &msg

	case tickMsg:
		if m.snap.State == session.Recording {
			m.elapsed = time.Since(m.started).Seconds()
		}
		if f := m.frame.Load(); f != nil {
			m.bars = *f
		}
		return m, tuiTick()
	}
	return m, nil
}

func (m tuiModel) statusLine() string {
	switch {
	case m.snap.Starting:
		return recStyle.Render("◌ WAITING FOR MICROPHONE")
	case m.snap.State == session.Recording:
		return recStyle.Render(fmt.Sprintf("● REC %.1fs", m.elapsed))
	case m.snap.State == session.Complete:
		return doneStyle.Render("✓ " + m.snap.State.Status())
	}
	return idleStyle.Render("○ STANDBY")
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	if m.alert != nil {
		return m.alertView()
	}

	wrapWidth := max(m.width-2, 10)
	var lines []string
	lines = append(lines, m.statusLine())
	if m.snap.State == session.Recording {
		lines = append(lines, dimStyle.Render(m.snap.State.Status()))
	}
	lines = append(lines, dimStyle.Render(m.modeLine), idleStyle.Render(m.deviceLine), "")

	if m.canvas != nil {
		if m.snap.State == session.Recording && m.bars != "" {
			lines = append(lines, m.bars)
		} else {
			lines = append(lines, strings.Repeat("\n", max(m.vizHeight-1, 0)))
		}
		lines = append(lines, "")
	}

	lines = append(lines, dimStyle.Render("Transcript"))
	if m.snap.Transcript == "" && m.snap.Pending == "" {
		lines = append(lines, idleStyle.Render("Nothing transcribed yet"))
	}
	if m.snap.Transcript != "" {
		wrapped := wrapText(m.snap.Transcript, wrapWidth)
		for i, l := range wrapped {
			l = textStyle.Render(l)
			if i == len(wrapped)-1 && m.copied {
				l += " " + copiedStyle.Render("[✓ copied]")
			}
			lines = append(lines, l)
		}
	}
	if m.snap.Pending != "" {
		for _, l := range wrapText(m.snap.Pending, wrapWidth) {
			lines = append(lines, pendingStyle.Render(l))
		}
	}
	if len(m.fired) > 0 {
		lines = append(lines, "", commandStyle.Render("⚡ "+strings.Join(m.fired, ", ")))
	}

	lines = append(lines, "")
	help := helpBold.Render("space") + helpStyle.Render(" record/stop  ") +
		helpBold.Render("y") + helpStyle.Render(" copy  ") +
		helpBold.Render("q") + helpStyle.Render(" quit")
	lines = append(lines, help)
	if m.hotkeyHelp != "" {
		lines = append(lines, helpBold.Render(m.hotkeyHelp)+helpStyle.Render(" toggles from anywhere"))
	}
	lines = append(lines, helpStyle.Render("rtscribe "+version))

	return lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		PaddingLeft(1).
		Render(strings.Join(lines, "\n"))
}

func (m tuiModel) alertView() string {
	body := lipgloss.NewStyle().Bold(true).Render(m.alert.Title) + "\n\n" +
		strings.Join(wrapText(m.alert.Text, max(min(m.width-10, 60), 10)), "\n") + "\n\n" +
		helpStyle.Render("[enter] OK")
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, alertBoxStyle.Render(body))
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	// split on runes so non-ASCII transcripts are never cut mid-character
	r := []rune(text)
	var lines []string
	for len(r) > width {
		splitAt := width
		for i := width; i > 0; i-- {
			if r[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, string(r[:splitAt]))
		r = []rune(strings.TrimLeft(string(r[splitAt:]), " "))
	}
	if len(r) > 0 {
		lines = append(lines, string(r))
	}
	return lines
}
