// Package config loads rtscribe settings: a preset, then an optional YAML
// file, then RTSCRIBE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"rtscribe/command"
	"rtscribe/transcript"
)

type RecognitionConfig struct {
	Provider  string `yaml:"provider"` // auto, openai, groq
	Language  string `yaml:"language"`
	Interim   bool   `yaml:"interim"`
	SegmentMS int    `yaml:"segment_ms"`
	InterimMS int    `yaml:"interim_ms"`
}

type DisplayConfig struct {
	Policy       string `yaml:"policy"` // accumulate, replace
	MarkComplete bool   `yaml:"mark_complete"`
}

type VisualizerConfig struct {
	Enabled bool `yaml:"enabled"`
	FFTSize int  `yaml:"fft_size"`
	FrameMS int  `yaml:"frame_ms"`
	Height  int  `yaml:"height"`
}

type AudioConfig struct {
	Device string `yaml:"device"`
	Beep   bool   `yaml:"beep"`
}

type Config struct {
	Recognition RecognitionConfig `yaml:"recognition"`
	Display     DisplayConfig     `yaml:"display"`
	Visualizer  VisualizerConfig  `yaml:"visualizer"`
	Audio       AudioConfig       `yaml:"audio"`
	Notify      bool              `yaml:"notify"`
	Commands    []command.Spec    `yaml:"commands"`
}

var (
	openGoogle = command.Spec{Trigger: "open google", Kind: command.KindOpenURL, Target: "https://www.google.com"}
	hello      = command.Spec{Trigger: "hello", Kind: command.KindAlert, Target: "Hello!"}
)

func Default() Config {
	return Config{
		Recognition: RecognitionConfig{
			Provider:  "auto",
			Language:  "en",
			SegmentMS: 3000,
			InterimMS: 1000,
		},
		Display: DisplayConfig{
			Policy: "accumulate",
		},
		Visualizer: VisualizerConfig{
			Enabled: true,
			FFTSize: 256,
			FrameMS: 60,
			Height:  8,
		},
		Commands: []command.Spec{openGoogle},
	}
}

// Preset returns the named starting configuration. "visualizer" is the
// default: accumulated final results under a live bar graph. "display"
// shows only the latest fragment, interim results included, and marks the
// recording complete when stopped.
func Preset(name string) (Config, error) {
	cfg := Default()
	switch name {
	case "", "visualizer":
	case "display":
		cfg.Recognition.Interim = true
		cfg.Display.Policy = "replace"
		cfg.Display.MarkComplete = true
		cfg.Visualizer.Enabled = false
		cfg.Commands = []command.Spec{hello, openGoogle}
	default:
		return cfg, fmt.Errorf("unknown preset %q (want visualizer or display)", name)
	}
	return cfg, nil
}

// Load applies path (if non-empty) and the environment over the preset.
func Load(path, preset string) (Config, error) {
	cfg, err := Preset(preset)
	if err != nil {
		return cfg, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Recognition.Provider, "RTSCRIBE_PROVIDER")
	overrideString(&cfg.Recognition.Language, "RTSCRIBE_LANGUAGE")
	overrideBool(&cfg.Recognition.Interim, "RTSCRIBE_INTERIM")
	overrideString(&cfg.Display.Policy, "RTSCRIBE_POLICY")
	overrideString(&cfg.Audio.Device, "RTSCRIBE_DEVICE")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

// Policy parses display.policy; call after Validate.
func (c Config) Policy() transcript.Policy {
	p, _ := transcript.ParsePolicy(c.Display.Policy)
	return p
}

func (c Config) Validate() error {
	switch c.Recognition.Provider {
	case "auto", "openai", "groq":
	default:
		return fmt.Errorf("recognition.provider must be one of auto|openai|groq, got %q", c.Recognition.Provider)
	}
	if c.Recognition.SegmentMS < 500 {
		return errors.New("recognition.segment_ms must be at least 500")
	}
	if c.Recognition.InterimMS <= 0 {
		return errors.New("recognition.interim_ms must be positive")
	}
	if _, err := transcript.ParsePolicy(c.Display.Policy); err != nil {
		return fmt.Errorf("display.policy: %w", err)
	}
	if c.Visualizer.Enabled {
		if n := c.Visualizer.FFTSize; n < 32 || n > 4096 || n&(n-1) != 0 {
			return errors.New("visualizer.fft_size must be a power of two between 32 and 4096")
		}
		if c.Visualizer.FrameMS <= 0 {
			return errors.New("visualizer.frame_ms must be positive")
		}
		if c.Visualizer.Height <= 0 {
			return errors.New("visualizer.height must be positive")
		}
	}
	for i, s := range c.Commands {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("commands[%d]: %w", i, err)
		}
	}
	return nil
}
