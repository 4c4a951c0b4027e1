package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rtscribe/command"
	"rtscribe/transcript"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rtscribe.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	for _, name := range []string{"", "visualizer", "display"} {
		cfg, err := Preset(name)
		if err != nil {
			t.Fatalf("Preset(%q): %v", name, err)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Preset(%q) invalid: %v", name, err)
		}
	}
}

func TestPresets(t *testing.T) {
	v, _ := Preset("visualizer")
	if v.Policy() != transcript.Accumulate || v.Recognition.Interim || !v.Visualizer.Enabled || v.Display.MarkComplete {
		t.Errorf("visualizer preset = %+v", v)
	}
	if len(v.Commands) != 1 || v.Commands[0].Trigger != "open google" {
		t.Errorf("visualizer commands = %+v", v.Commands)
	}

	d, _ := Preset("display")
	if d.Policy() != transcript.Replace || !d.Recognition.Interim || d.Visualizer.Enabled || !d.Display.MarkComplete {
		t.Errorf("display preset = %+v", d)
	}
	if len(d.Commands) != 2 || d.Commands[0].Trigger != "hello" {
		t.Errorf("display commands = %+v", d.Commands)
	}

	if _, err := Preset("karaoke"); err == nil {
		t.Error("unknown preset accepted")
	}
}

func TestLoadFileOverridesPreset(t *testing.T) {
	path := writeConfig(t, `
recognition:
  provider: groq
  language: de
display:
  policy: replace
commands:
  - trigger: open docs
    action: open_url
    target: https://go.dev/doc
`)
	cfg, err := Load(path, "visualizer")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Recognition.Provider != "groq" || cfg.Recognition.Language != "de" {
		t.Errorf("recognition = %+v", cfg.Recognition)
	}
	if cfg.Recognition.SegmentMS != 3000 {
		t.Errorf("unset field lost its default: segment_ms = %d", cfg.Recognition.SegmentMS)
	}
	if cfg.Policy() != transcript.Replace {
		t.Errorf("policy = %v", cfg.Policy())
	}
	want := command.Spec{Trigger: "open docs", Kind: command.KindOpenURL, Target: "https://go.dev/doc"}
	if len(cfg.Commands) != 1 || cfg.Commands[0] != want {
		t.Errorf("commands = %+v", cfg.Commands)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("RTSCRIBE_PROVIDER", "openai")
	t.Setenv("RTSCRIBE_INTERIM", "true")
	t.Setenv("RTSCRIBE_POLICY", "  ")
	cfg, err := Load("", "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Recognition.Provider != "openai" || !cfg.Recognition.Interim {
		t.Errorf("recognition = %+v", cfg.Recognition)
	}
	if cfg.Display.Policy != "accumulate" {
		t.Errorf("blank env replaced policy: %q", cfg.Display.Policy)
	}
}

func TestLoadErrors(t *testing.T) {
	for _, tt := range []struct {
		name, body, want string
	}{
		{"bad yaml", "recognition: [", "failed to parse"},
		{"bad provider", "recognition:\n  provider: azure\n", "recognition.provider"},
		{"bad policy", "display:\n  policy: append\n", "display.policy"},
		{"bad fft", "visualizer:\n  fft_size: 100\n", "fft_size"},
		{"empty trigger", "commands:\n  - trigger: ''\n    action: alert\n    target: x\n", "commands[0]"},
		{"bad action", "commands:\n  - trigger: x\n    action: shell\n    target: ls\n", "unknown action"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body), "")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), ""); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("missing file err = %v", err)
	}
}

func TestVisualizerSettingsIgnoredWhenDisabled(t *testing.T) {
	cfg := Default()
	cfg.Visualizer.Enabled = false
	cfg.Visualizer.FFTSize = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled visualizer validated: %v", err)
	}
}
