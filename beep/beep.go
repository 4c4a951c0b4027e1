// Package beep plays short audible cues for recording state changes.
package beep

import (
	"math"
	"sync"
	"sync/atomic"
)

type Cue int

const (
	Start Cue = iota
	Stop
	Error
)

const sampleRate = 44100

type tone struct {
	freq, volume, decay float64
	dur                 float64 // seconds
	repeat              int
	gap                 float64 // seconds between repeats
}

var tones = map[Cue]tone{
	Start: {freq: 1200, volume: 0.5, decay: 60, dur: 0.2, repeat: 1},
	Stop:  {freq: 900, volume: 0.5, decay: 40, dur: 0.2, repeat: 1},
	Error: {freq: 350, volume: 0.6, decay: 30, dur: 0.08, repeat: 2, gap: 0.05},
}

var (
	enabled atomic.Bool
	cache   = map[Cue][]int16{}
	cacheMu sync.Mutex
)

func Enable()  { enabled.Store(true) }
func Disable() { enabled.Store(false) }

func Enabled() bool { return enabled.Load() }

// Play queues the cue and returns immediately. It does nothing unless
// Enable was called.
func Play(c Cue) {
	if !enabled.Load() {
		return
	}
	if s := samples(c); len(s) > 0 {
		go play(s)
	}
}

func samples(c Cue) []int16 {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if s, ok := cache[c]; ok {
		return s
	}
	t, ok := tones[c]
	if !ok {
		return nil
	}
	s := render(t)
	cache[c] = s
	return s
}

// render produces mono 16-bit samples of an exponentially decaying sine,
// repeated with silent gaps.
func render(t tone) []int16 {
	n := int(sampleRate * t.dur)
	gap := int(sampleRate * t.gap)
	out := make([]int16, 0, t.repeat*n+(t.repeat-1)*gap)
	for r := range t.repeat {
		if r > 0 {
			out = append(out, make([]int16, gap)...)
		}
		for i := range n {
			x := float64(i) / sampleRate
			env := math.Exp(-x * t.decay)
			out = append(out, int16(math.Sin(2*math.Pi*t.freq*x)*32767*t.volume*env))
		}
	}
	return out
}
