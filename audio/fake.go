package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const fakeFrameSize = 1024 // samples per callback

// LoadWAV reads a 16-bit mono 16 kHz WAV file into little-endian PCM.
func LoadWAV(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%s: not a usable WAV file: %w", path, err)
	}
	if d.BitDepth != 16 {
		return nil, fmt.Errorf("%s: %d-bit audio, want 16-bit", path, d.BitDepth)
	}
	if d.SampleRate != SampleRate {
		return nil, fmt.Errorf("%s: %d Hz audio, want %d Hz", path, d.SampleRate, SampleRate)
	}
	return pcmFromBuffer(buf), nil
}

// pcmFromBuffer downmixes to mono by averaging channels.
func pcmFromBuffer(buf *goaudio.IntBuffer) []byte {
	ch := 1
	if buf.Format != nil && buf.Format.NumChannels > 1 {
		ch = buf.Format.NumChannels
	}
	frames := len(buf.Data) / ch
	out := make([]byte, frames*2)
	for i := range frames {
		sum := 0
		for c := range ch {
			sum += buf.Data[i*ch+c]
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(sum/ch)))
	}
	return out
}

// FakeContext hands out captures that replay a fixed PCM buffer.
type FakeContext struct {
	pcm      []byte
	realtime bool
}

func NewFakeContext(wavPath string, realtime bool) (*FakeContext, error) {
	pcm, err := LoadWAV(wavPath)
	if err != nil {
		return nil, err
	}
	return &FakeContext{pcm: pcm, realtime: realtime}, nil
}

func NewFakeContextPCM(pcm []byte, realtime bool) *FakeContext {
	return &FakeContext{pcm: pcm, realtime: realtime}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	return NewFakeCapture(f.pcm, f.realtime), nil
}

// FakeCapture replays pcm once Start is called, then feeds silence until
// stopped. In non-realtime mode the whole buffer is delivered synchronously
// inside Start. Push injects extra audio from tests.
type FakeCapture struct {
	pcm      []byte
	realtime bool

	mu        sync.Mutex
	cb        DataCallback
	running   bool
	stopCh    chan struct{}
	feedDone  chan struct{}
	audioDone chan struct{}
	closed    bool
}

func NewFakeCapture(pcm []byte, realtime bool) *FakeCapture {
	return &FakeCapture{pcm: pcm, realtime: realtime, audioDone: make(chan struct{})}
}

// AudioDone closes once the replay buffer has been fully delivered.
func (f *FakeCapture) AudioDone() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.audioDone
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake" }

func (f *FakeCapture) callback() DataCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

// Push delivers pcm to the current callback, if any.
func (f *FakeCapture) Push(pcm []byte) {
	if cb := f.callback(); cb != nil {
		cb(pcm, uint32(len(pcm)/2))
	}
}

func (f *FakeCapture) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *FakeCapture) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FakeCapture) Start() error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = true
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})
	stop, feedDone, audioDone := f.stopCh, f.feedDone, f.audioDone
	f.mu.Unlock()

	chunk := fakeFrameSize * 2
	interval := time.Duration(fakeFrameSize) * time.Second / SampleRate
	pos := 0
	if !f.realtime {
		for pos < len(f.pcm) {
			end := min(pos+chunk, len(f.pcm))
			f.Push(f.pcm[pos:end])
			pos = end
		}
	}
	if pos >= len(f.pcm) {
		close(audioDone)
	}

	go func() {
		defer close(feedDone)
		silence := make([]byte, chunk)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
			if pos < len(f.pcm) {
				end := min(pos+chunk, len(f.pcm))
				f.Push(f.pcm[pos:end])
				pos = end
				if pos >= len(f.pcm) {
					close(audioDone)
				}
				continue
			}
			f.Push(silence)
		}
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	close(f.stopCh)
	feedDone := f.feedDone
	f.mu.Unlock()

	<-feedDone

	f.mu.Lock()
	f.audioDone = make(chan struct{}) // reset for replay
	f.mu.Unlock()
}

func (f *FakeCapture) Close() {
	f.Stop()
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// FakeMicrophone grants or denies access on demand. Each granted Open
// returns a fresh started FakeCapture that feeds only what tests Push,
// retrievable through Last.
type FakeMicrophone struct {
	Deny error

	mu      sync.Mutex
	opened  []*FakeCapture
	gate    chan struct{}
	waiting int
}

// Hold makes the next Open calls block until Release.
func (m *FakeMicrophone) Hold() {
	m.mu.Lock()
	m.gate = make(chan struct{})
	m.mu.Unlock()
}

func (m *FakeMicrophone) Release() {
	m.mu.Lock()
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
	m.mu.Unlock()
}

func (m *FakeMicrophone) Open(ctx context.Context) (CaptureDevice, error) {
	m.mu.Lock()
	gate := m.gate
	m.mu.Unlock()
	if gate != nil {
		m.mu.Lock()
		m.waiting++
		m.mu.Unlock()
		defer func() {
			m.mu.Lock()
			m.waiting--
			m.mu.Unlock()
		}()
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, ctx.Err())
		}
	}
	if m.Deny != nil {
		return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, m.Deny)
	}
	c := NewFakeCapture(nil, false)
	if err := c.Start(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.opened = append(m.opened, c)
	m.mu.Unlock()
	return c, nil
}

// Waiting reports how many Open calls are blocked on Hold.
func (m *FakeMicrophone) Waiting() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waiting
}

// Opened reports how many captures were granted.
func (m *FakeMicrophone) Opened() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.opened)
}

func (m *FakeMicrophone) Last() *FakeCapture {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.opened) == 0 {
		return nil
	}
	return m.opened[len(m.opened)-1]
}
