package visualizer

import (
	"sync"
	"time"
)

type FrameHandle uint64

// FrameScheduler runs a callback once at the next frame boundary.
type FrameScheduler interface {
	RequestFrame(fn func()) FrameHandle
	CancelFrame(h FrameHandle)
}

const DefaultFrameInterval = 60 * time.Millisecond

// TickerScheduler fires frames on a fixed wall-clock interval.
type TickerScheduler struct {
	Interval time.Duration

	mu     sync.Mutex
	next   FrameHandle
	timers map[FrameHandle]*time.Timer
}

func NewTickerScheduler(interval time.Duration) *TickerScheduler {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &TickerScheduler{Interval: interval, timers: map[FrameHandle]*time.Timer{}}
}

func (s *TickerScheduler) RequestFrame(fn func()) FrameHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	h := s.next
	s.timers[h] = time.AfterFunc(s.Interval, func() {
		s.mu.Lock()
		_, live := s.timers[h]
		delete(s.timers, h)
		s.mu.Unlock()
		if live {
			fn()
		}
	})
	return h
}

func (s *TickerScheduler) CancelFrame(h FrameHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[h]; ok {
		t.Stop()
		delete(s.timers, h)
	}
}

// FakeScheduler queues frames until Step runs them.
type FakeScheduler struct {
	mu      sync.Mutex
	next    FrameHandle
	pending map[FrameHandle]func()
	order   []FrameHandle
}

func NewFakeScheduler() *FakeScheduler {
	return &FakeScheduler{pending: map[FrameHandle]func(){}}
}

func (s *FakeScheduler) RequestFrame(fn func()) FrameHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.pending[s.next] = fn
	s.order = append(s.order, s.next)
	return s.next
}

func (s *FakeScheduler) CancelFrame(h FrameHandle) {
	s.mu.Lock()
	delete(s.pending, h)
	s.mu.Unlock()
}

func (s *FakeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Take removes the callbacks currently queued without running them. Tests
// use it to race a frame against Stop.
func (s *FakeScheduler) Take() []func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var fns []func()
	for _, h := range s.order {
		if fn, ok := s.pending[h]; ok {
			fns = append(fns, fn)
			delete(s.pending, h)
		}
	}
	s.order = nil
	return fns
}

// Step runs every queued frame once and reports how many ran.
func (s *FakeScheduler) Step() int {
	fns := s.Take()
	for _, fn := range fns {
		fn()
	}
	return len(fns)
}
