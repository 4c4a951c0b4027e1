package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"rtscribe/audio"
	"rtscribe/beep"
	"rtscribe/command"
	"rtscribe/config"
	"rtscribe/hotkey"
	"rtscribe/log"
	"rtscribe/notify"
	"rtscribe/session"
	"rtscribe/speech"
	"rtscribe/visualizer"
)

var version = "dev"

type options struct {
	configPath string
	preset     string
	policy     string
	interim    bool
	lang       string
	provider   string
	device     string
	setup      bool
	hotkey     bool
	beep       bool
	notify     bool
	logPath    string
	test       string
	version    bool
}

func parseFlags() (options, map[string]bool) {
	var o options
	flag.StringVar(&o.configPath, "config", "", "YAML config file")
	flag.StringVar(&o.preset, "preset", "visualizer", "Starting preset: visualizer or display")
	flag.StringVar(&o.policy, "policy", "", "Transcript policy: accumulate or replace")
	flag.BoolVar(&o.interim, "interim", false, "Show interim (unstable) results")
	flag.StringVar(&o.lang, "lang", "", "Language code for recognition (e.g. en, de). auto = detect")
	flag.StringVar(&o.provider, "provider", "", "Speech provider: auto, openai or groq")
	flag.StringVar(&o.device, "device", "", "Use named microphone device")
	flag.BoolVar(&o.setup, "setup", false, "Pick the microphone interactively")
	flag.BoolVar(&o.hotkey, "hotkey", false, "Toggle recording with global "+hotkey.Combo)
	flag.BoolVar(&o.beep, "beep", false, "Play audible cues on start and stop")
	flag.BoolVar(&o.notify, "notify", false, "Also raise desktop notifications for alerts")
	flag.StringVar(&o.logPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	flag.StringVar(&o.test, "test", "", "Test mode: replay a 16 kHz WAV file, driven by stdin")
	flag.BoolVar(&o.version, "version", false, "Print version and exit")
	flag.Parse()

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return o, set
}

// applyFlags overrides config values with flags given on the command line.
func applyFlags(cfg *config.Config, o options, set map[string]bool) {
	if set["policy"] {
		cfg.Display.Policy = o.policy
	}
	if set["interim"] {
		cfg.Recognition.Interim = o.interim
	}
	if set["lang"] {
		cfg.Recognition.Language = o.lang
	}
	if set["provider"] {
		cfg.Recognition.Provider = o.provider
	}
	if set["device"] {
		cfg.Audio.Device = o.device
	}
	if set["beep"] {
		cfg.Audio.Beep = o.beep
	}
	if set["notify"] {
		cfg.Notify = o.notify
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	log.Errorf(format, args...)
	log.Close()
	os.Exit(1)
}

func setupCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	f, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(f, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(f, debug.CrashOptions{})
}

func newEngine(cfg config.Config) speech.Engine {
	wc := speech.WhisperFromEnv(cfg.Recognition.Provider)
	wc.Segment = time.Duration(cfg.Recognition.SegmentMS) * time.Millisecond
	wc.Interim = time.Duration(cfg.Recognition.InterimMS) * time.Millisecond
	return speech.NewWhisperEngine(wc)
}

func newCommands(cfg config.Config, a command.Actions) *command.Table {
	tbl, err := command.Build(cfg.Commands, a)
	if err != nil {
		fatal("%v", err)
	}
	return tbl
}

func run() {
	o, set := parseFlags()

	if o.version {
		fmt.Printf("rtscribe %s\n", version)
		return
	}

	logPath, err := log.ResolveDir(o.logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	setupCrashLog()
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	cfg, err := config.Load(o.configPath, o.preset)
	if err != nil {
		fatal("%v", err)
	}
	applyFlags(&cfg, o, set)
	if err := cfg.Validate(); err != nil {
		fatal("%v", err)
	}

	if cfg.Audio.Beep {
		beep.Enable()
	}

	if o.test != "" {
		runTestMode(o.test, cfg)
		return
	}

	actx, err := audio.NewContext()
	if err != nil {
		fatal("initializing audio: %v", err)
	}
	defer actx.Close()

	var device *audio.DeviceInfo
	switch {
	case cfg.Audio.Device != "":
		device, err = audio.FindDevice(actx, cfg.Audio.Device)
		if err != nil {
			fatal("%v", err)
		}
	case o.setup:
		device, err = audio.SelectDevice(actx)
		if err != nil {
			fmt.Printf("Warning: device selection failed: %v\n", err)
			fmt.Println("Falling back to default device")
			log.Warnf("device selection failed: %v", err)
		}
	}

	runTUI(cfg, o, audio.NewMicrophone(actx, device), device)
}

func runTUI(cfg config.Config, o options, mic audio.Microphone, device *audio.DeviceInfo) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := newEngine(cfg)
	ui := newTUI(cfg, engine.Name(), device)

	var notifier notify.Notifier = notify.Func(func(title, msg string) {
		ui.send(AlertMsg{Title: title, Text: msg})
	})
	if cfg.Notify {
		notifier = notify.Multi{notifier, notify.Desktop{}}
	}

	deps := session.Deps{
		Speech:       engine,
		Mic:          mic,
		Analyser:     audio.NewAnalyser(cfg.Visualizer.FFTSize),
		Notifier:     notifier,
		Commands:     newCommands(cfg, command.DefaultActions(notifier)),
		Policy:       cfg.Policy(),
		Interim:      cfg.Recognition.Interim,
		Language:     cfg.Recognition.Language,
		MarkComplete: cfg.Display.MarkComplete,
		OnChange:     ui.onChange,
	}
	if cfg.Visualizer.Enabled {
		deps.Surface = ui.canvas
		deps.Frames = visualizer.NewTickerScheduler(time.Duration(cfg.Visualizer.FrameMS) * time.Millisecond)
	}
	ctrl := session.New(deps)
	defer ctrl.Close()

	var hk hotkey.Hotkey
	if o.hotkey {
		hk = hotkey.New()
		if err := hk.Register(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: hotkey unavailable: %v\n", err)
			log.Warnf("hotkey register: %v", err)
			hk = nil
		} else {
			defer hk.Unregister()
			ui.model.hotkeyHelp = hotkey.Combo
		}
	}

	ui.attach(ctx, ctrl)
	if hk != nil {
		watchHotkey(ctx, hk, ctrl, ui)
	}

	go func() {
		<-ctx.Done()
		ui.quit()
	}()

	if err := ui.run(); err != nil {
		fatal("TUI: %v", err)
	}
}

// watchHotkey forwards combo presses to the TUI as toggle requests.
func watchHotkey(ctx context.Context, hk hotkey.Hotkey, ctrl *session.Controller, ui *tui) {
	toggle := hotkey.NewToggle(ctx, hk, hotkey.DefaultHold, func() bool {
		s := ctrl.Snapshot()
		return s.State == session.Recording || s.Starting
	})
	go func() {
		for ev := range toggle.Events() {
			ui.send(toggleMsg{start: ev == hotkey.Start})
		}
	}()
}
