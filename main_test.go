package main

import (
	"testing"

	"rtscribe/config"
)

func TestApplyFlagsOnlyOverridesSetFlags(t *testing.T) {
	cfg, _ := config.Preset("display")
	o := options{policy: "accumulate", interim: false, lang: "de", provider: "groq"}
	applyFlags(&cfg, o, map[string]bool{"policy": true, "lang": true})

	if cfg.Display.Policy != "accumulate" || cfg.Recognition.Language != "de" {
		t.Errorf("set flags not applied: %+v", cfg)
	}
	if !cfg.Recognition.Interim {
		t.Error("unset -interim overrode the preset")
	}
	if cfg.Recognition.Provider != "auto" {
		t.Errorf("unset -provider overrode config: %q", cfg.Recognition.Provider)
	}
}
