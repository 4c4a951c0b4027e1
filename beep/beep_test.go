package beep

import "testing"

func TestRender(t *testing.T) {
	s := render(tones[Start])
	if want := int(sampleRate * 0.2); len(s) != want {
		t.Fatalf("len = %d, want %d", len(s), want)
	}
	if s[0] != 0 {
		t.Errorf("first sample = %d, want 0", s[0])
	}
	peak := int16(0)
	for _, v := range s[:200] {
		peak = max(peak, v)
	}
	if peak < 10000 {
		t.Errorf("peak in attack = %d, want a loud onset", peak)
	}
	if tail := s[len(s)-1]; tail > 100 || tail < -100 {
		t.Errorf("tail sample = %d, want decayed to near zero", tail)
	}
}

func TestRenderRepeatsWithGap(t *testing.T) {
	tn := tones[Error]
	s := render(tn)
	n, gap := int(sampleRate*tn.dur), int(sampleRate*tn.gap)
	if len(s) != 2*n+gap {
		t.Fatalf("len = %d, want %d", len(s), 2*n+gap)
	}
	for i := n; i < n+gap; i++ {
		if s[i] != 0 {
			t.Fatalf("gap sample %d = %d", i, s[i])
		}
	}
}

func TestSamplesCached(t *testing.T) {
	a, b := samples(Stop), samples(Stop)
	if &a[0] != &b[0] {
		t.Error("samples re-rendered")
	}
	if samples(Cue(42)) != nil {
		t.Error("unknown cue produced samples")
	}
}

func TestPlayDisabledIsNoop(t *testing.T) {
	Disable()
	Play(Start)
	if Enabled() {
		t.Error("Enabled() after Disable")
	}
}
