package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	sampleRate     = 16000
	bytesPerSecond = sampleRate * 2

	// Spans quieter than this RMS are never uploaded; Whisper tends to
	// hallucinate text on silence.
	silenceRMS = 0.01
)

var providerDefaults = map[string]struct{ baseURL, model, keyEnv string }{
	"openai": {"https://api.openai.com/v1/", "whisper-1", "OPENAI_API_KEY"},
	"groq":   {"https://api.groq.com/openai/v1/", "whisper-large-v3-turbo", "GROQ_API_KEY"},
}

type WhisperConfig struct {
	Provider string // "openai" or "groq"
	APIKey   string
	BaseURL  string
	Model    string

	// Segment is the target utterance length. A segment is closed at the
	// first quiet tail after Segment, or unconditionally at twice Segment.
	Segment time.Duration
	// Interim is how often the open segment is re-transcribed when interim
	// results are enabled.
	Interim time.Duration
}

// WhisperFromEnv resolves provider credentials from the environment.
// Provider "auto" prefers Groq, then OpenAI. The returned config has an
// empty APIKey when nothing is configured.
func WhisperFromEnv(provider string) WhisperConfig {
	order := []string{provider}
	if provider == "" || provider == "auto" {
		order = []string{"groq", "openai"}
	}
	for _, p := range order {
		d, ok := providerDefaults[p]
		if !ok {
			continue
		}
		if key := os.Getenv(d.keyEnv); key != "" {
			return WhisperConfig{Provider: p, APIKey: key, BaseURL: d.baseURL, Model: d.model}
		}
	}
	return WhisperConfig{Provider: order[0]}
}

type transcribeFunc func(ctx context.Context, wav []byte, language string) (string, error)

// WhisperEngine segments captured audio and transcribes each span through
// an OpenAI-compatible audio transcription endpoint.
type WhisperEngine struct {
	cfg        WhisperConfig
	client     openai.Client
	transcribe transcribeFunc
	tick       time.Duration
}

func NewWhisperEngine(cfg WhisperConfig) *WhisperEngine {
	if d, ok := providerDefaults[cfg.Provider]; ok {
		if cfg.BaseURL == "" {
			cfg.BaseURL = d.baseURL
		}
		if cfg.Model == "" {
			cfg.Model = d.model
		}
	}
	if cfg.Segment <= 0 {
		cfg.Segment = 3 * time.Second
	}
	if cfg.Interim <= 0 {
		cfg.Interim = time.Second
	}
	e := &WhisperEngine{cfg: cfg, tick: 100 * time.Millisecond}
	if cfg.APIKey != "" {
		e.client = openai.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(cfg.BaseURL),
			option.WithMaxRetries(1),
		)
		e.transcribe = e.transcribeAPI
	}
	return e
}

func (e *WhisperEngine) Name() string {
	if e.cfg.Provider == "" {
		return "whisper"
	}
	return e.cfg.Provider
}

func (e *WhisperEngine) transcribeAPI(ctx context.Context, wav []byte, language string) (string, error) {
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model: openai.AudioModel(e.cfg.Model),
	}
	if language != "" && language != "auto" {
		params.Language = openai.String(language)
	}
	resp, err := e.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%s transcription: %w", e.Name(), err)
	}
	return resp.Text, nil
}

func (e *WhisperEngine) New(cfg Config, h Handler) (Recognizer, error) {
	if e.transcribe == nil {
		return nil, fmt.Errorf("%w: no API key for %s", ErrUnsupported, e.Name())
	}
	return &whisperRecognizer{
		cfg:        cfg,
		h:          h,
		transcribe: e.transcribe,
		segment:    int(e.cfg.Segment.Seconds() * bytesPerSecond),
		interim:    e.cfg.Interim,
		tick:       e.tick,
	}, nil
}

type job struct {
	pcm   []byte
	final bool
}

type whisperRecognizer struct {
	cfg        Config
	h          Handler
	transcribe transcribeFunc
	segment    int // bytes
	interim    time.Duration
	tick       time.Duration

	mu          sync.Mutex
	running     bool
	buf         []byte
	interimSent int // len(buf) at the last interim upload
	cancel      context.CancelFunc
	jobs        chan job
}

func (r *whisperRecognizer) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.running = true
	r.cancel = cancel
	r.buf = r.buf[:0]
	r.interimSent = 0
	r.jobs = make(chan job, 4)

	go r.segmenter(ctx, r.jobs)
	go r.worker(ctx, r.jobs)
	return nil
}

func (r *whisperRecognizer) Feed(pcm []byte) {
	r.mu.Lock()
	if r.running {
		r.buf = append(r.buf, pcm...)
	}
	r.mu.Unlock()
}

// Stop discards audio that has not been transcribed yet. An upload already
// in flight is cancelled; events racing Stop may still be delivered.
func (r *whisperRecognizer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.running = false
	r.cancel()
	r.buf = nil
}

func (r *whisperRecognizer) segmenter(ctx context.Context, jobs chan<- job) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()
	lastInterim := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		r.mu.Lock()
		var j *job
		switch {
		case len(r.buf) >= 2*r.segment,
			len(r.buf) >= r.segment && rms(tail(r.buf, bytesPerSecond/5)) < silenceRMS:
			j = &job{pcm: r.buf, final: true}
			r.buf = nil
			r.interimSent = 0
		case r.cfg.InterimResults && time.Since(lastInterim) >= r.interim && len(r.buf) > r.interimSent:
			j = &job{pcm: bytes.Clone(r.buf)}
			r.interimSent = len(r.buf)
			lastInterim = time.Now()
		}
		r.mu.Unlock()

		if j == nil || rms(j.pcm) < silenceRMS {
			continue
		}
		if j.final {
			select {
			case jobs <- *j:
			case <-ctx.Done():
				return
			}
			continue
		}
		select {
		case jobs <- *j:
		default: // uploads are behind; skip this interim refresh
		}
	}
}

func (r *whisperRecognizer) worker(ctx context.Context, jobs <-chan job) {
	for {
		var j job
		select {
		case <-ctx.Done():
			return
		case j = <-jobs:
		}

		text, err := r.transcribe(ctx, pcmToWAV(j.pcm), r.cfg.Language)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			r.h.fail(err)
			continue
		}
		if text == "" {
			continue
		}
		r.h.result(Result{Alternatives: []Alternative{{Transcript: text}}, Final: j.final})
		if j.final && !r.cfg.Continuous {
			r.Stop()
			return
		}
	}
}

func tail(pcm []byte, n int) []byte {
	n &^= 1
	if len(pcm) <= n {
		return pcm
	}
	return pcm[len(pcm)-n:]
}

func rms(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i+1 < len(pcm); i += 2 {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i:]))) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// pcmToWAV wraps 16-bit mono PCM in a canonical 44-byte RIFF header.
func pcmToWAV(pcm []byte) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))
	le := func(v any) { binary.Write(buf, binary.LittleEndian, v) }

	buf.WriteString("RIFF")
	le(uint32(36 + len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	le(uint32(16))
	le(uint16(1)) // PCM
	le(uint16(1)) // mono
	le(uint32(sampleRate))
	le(uint32(bytesPerSecond))
	le(uint16(2))  // block align
	le(uint16(16)) // bits per sample
	buf.WriteString("data")
	le(uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
