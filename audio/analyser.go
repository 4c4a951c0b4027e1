package audio

import (
	"encoding/binary"
	"math"
	"sync"
)

const (
	DefaultFFTSize = 256

	minDecibels     = -100.0
	maxDecibels     = -30.0
	smoothingFactor = 0.8
)

// Analyser keeps the most recent FFTSize samples of a capture stream and
// answers per-bin magnitude snapshots scaled to bytes, the same shape a
// browser AnalyserNode hands to a canvas visualizer: Blackman window,
// temporal smoothing, and a -100..-30 dB range mapped onto 0..255.
//
// Write is called from the capture callback and ByteFrequencyData from the
// frame loop, so both lock.
type Analyser struct {
	mu       sync.Mutex
	size     int
	ring     []float64
	pos      int
	window   []float64
	cos, sin []float64
	smoothed []float64
}

// NewAnalyser accepts power-of-two sizes in [32, 4096]; anything else falls
// back to DefaultFFTSize.
func NewAnalyser(fftSize int) *Analyser {
	if fftSize < 32 || fftSize > 4096 || fftSize&(fftSize-1) != 0 {
		fftSize = DefaultFFTSize
	}
	a := &Analyser{
		size:     fftSize,
		ring:     make([]float64, fftSize),
		window:   make([]float64, fftSize),
		cos:      make([]float64, fftSize),
		sin:      make([]float64, fftSize),
		smoothed: make([]float64, fftSize/2),
	}
	n := float64(fftSize)
	for i := range fftSize {
		x := 2 * math.Pi * float64(i) / n
		a.window[i] = 0.42 - 0.5*math.Cos(x) + 0.08*math.Cos(2*x)
		a.cos[i] = math.Cos(x)
		a.sin[i] = math.Sin(x)
	}
	return a
}

func (a *Analyser) FFTSize() int { return a.size }

// BinCount is the number of frequency bins, half the FFT size.
func (a *Analyser) BinCount() int { return a.size / 2 }

// Write appends 16-bit little-endian PCM samples.
func (a *Analyser) Write(pcm []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(binary.LittleEndian.Uint16(pcm[i:]))
		a.ring[a.pos] = float64(s) / 32768.0
		a.pos = (a.pos + 1) % a.size
	}
}

// ByteFrequencyData fills dst with up to BinCount magnitudes.
func (a *Analyser) ByteFrequencyData(dst []uint8) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := a.size
	frame := make([]float64, n)
	for i := range n {
		frame[i] = a.ring[(a.pos+i)%n] * a.window[i]
	}

	bins := min(len(dst), n/2)
	for k := range n / 2 {
		var re, im float64
		for i, v := range frame {
			idx := (k * i) % n
			re += v * a.cos[idx]
			im -= v * a.sin[idx]
		}
		mag := math.Hypot(re, im) / float64(n)
		a.smoothed[k] = smoothingFactor*a.smoothed[k] + (1-smoothingFactor)*mag
		if k < bins {
			dst[k] = toByte(a.smoothed[k])
		}
	}
}

// Reset clears the sample history and smoothing state.
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.ring)
	clear(a.smoothed)
	a.pos = 0
}

func toByte(mag float64) uint8 {
	if mag <= 0 {
		return 0
	}
	db := 20 * math.Log10(mag)
	scaled := 255 * (db - minDecibels) / (maxDecibels - minDecibels)
	switch {
	case scaled <= 0:
		return 0
	case scaled >= 255:
		return 255
	}
	return uint8(scaled)
}
