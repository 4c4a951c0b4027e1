// Package visualizer paints a live frequency bar graph.
package visualizer

import "sync"

// Source provides spectrum snapshots, one byte per bin.
type Source interface {
	BinCount() int
	ByteFrequencyData(dst []uint8)
}

var Background = Color{0x1f, 0x1f, 0x1f}

// BarColor maps a bin amplitude to its bar colour.
func BarColor(v uint8) Color {
	return Color{R: v/2 + 100, G: 50, B: 255}
}

// PaintBars clears the surface and draws one bottom-aligned bar per bin.
// Bars are 2.5 times the even share of the width, separated by one cell.
// Bars that fall past the right edge are not drawn.
func PaintBars(s Surface, data []uint8) {
	w, h := s.Size()
	s.Clear(Background)
	if len(data) == 0 || w <= 0 || h <= 0 {
		return
	}
	barWidth := max(1, w*5/(2*len(data)))
	x := 0
	for _, v := range data {
		if x >= w {
			break
		}
		barHeight := int(v) * h / 255
		if barHeight > 0 {
			s.FillRect(x, h-barHeight, barWidth, barHeight, BarColor(v))
		}
		x += barWidth + 1
	}
}

// Loop repaints the surface once per scheduled frame until stopped. It owns
// at most one pending frame handle at a time.
type Loop struct {
	src     Source
	surface Surface
	frames  FrameScheduler

	mu      sync.Mutex
	running bool
	gen     uint64
	handle  FrameHandle
	ticks   int
}

func NewLoop(src Source, surface Surface, frames FrameScheduler) *Loop {
	return &Loop{src: src, surface: surface, frames: frames}
}

// Start is a no-op while running.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}
	l.running = true
	l.gen++
	l.schedule(l.gen)
}

// Stop cancels the pending frame. A frame that fires after Stop neither
// paints nor reschedules; one already painting finishes without
// rescheduling.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}
	l.running = false
	l.gen++
	l.frames.CancelFrame(l.handle)
	l.handle = 0
}

func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Ticks counts frames that painted.
func (l *Loop) Ticks() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ticks
}

// schedule must be called with l.mu held.
func (l *Loop) schedule(gen uint64) {
	l.handle = l.frames.RequestFrame(func() { l.tick(gen) })
}

func (l *Loop) tick(gen uint64) {
	l.mu.Lock()
	if !l.running || gen != l.gen {
		l.mu.Unlock()
		return
	}
	l.handle = 0
	l.mu.Unlock()

	data := make([]uint8, l.src.BinCount())
	l.src.ByteFrequencyData(data)
	PaintBars(l.surface, data)
	l.surface.Present()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.ticks++
	if l.running && gen == l.gen {
		l.schedule(gen)
	}
}
