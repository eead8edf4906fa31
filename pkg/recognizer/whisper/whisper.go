// Package whisper provides a [recognizer.Engine] backed by the whisper.cpp
// CGO bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// The model is loaded once at startup and shared across all sessions; each
// session creates its own whisper context per inference, so sessions for
// different speakers can run concurrently without interference.
//
// whisper.cpp is a batch (non-streaming) engine, so a session simulates
// streaming: it buffers incoming PCM, applies an energy-based silence
// detector to segment utterances, and decodes the accumulated buffer —
// periodically while speech is ongoing (emitting partials) and once more
// when the utterance ends on silence (emitting the final).
package whisper

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/tallyvox/pkg/recognizer"
)

const (
	// bitsPerSample is fixed at 16 for the 16-bit signed little-endian PCM
	// audio that whisper.cpp expects.
	bitsPerSample = 16

	// defaultRMSThreshold is the root-mean-square energy level (in 16-bit
	// PCM units) below which audio is considered silent. The maximum value
	// for 16-bit audio is 32 767; 300 corresponds to near-silence.
	defaultRMSThreshold = 300.0

	defaultLanguage            = "en"
	defaultSampleRate          = 16000
	defaultSilenceThresholdMs  = 500
	defaultMaxBufferDurationMs = 10_000
	defaultPartialIntervalMs   = 750
)

// Compile-time assertion that Engine satisfies recognizer.Engine.
var _ recognizer.Engine = (*Engine)(nil)

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithLanguage sets the BCP-47 language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(e *Engine) { e.language = lang }
}

// WithSilenceThresholdMs sets the consecutive-silence duration (ms) after
// speech that commits the accumulated utterance as a final fragment.
// Defaults to 500 ms.
func WithSilenceThresholdMs(ms int) Option {
	return func(e *Engine) { e.silenceThresholdMs = ms }
}

// WithMaxBufferDurationMs sets the maximum buffered audio duration (ms)
// before a forced commit regardless of silence. Prevents unbounded memory
// growth during continuous speech. Defaults to 10 000 ms.
func WithMaxBufferDurationMs(ms int) Option {
	return func(e *Engine) { e.maxBufferDurationMs = ms }
}

// WithPartialIntervalMs sets how much new speech audio (ms) accumulates
// between partial decodes of the in-progress utterance. Smaller values give
// lower detection latency at higher CPU cost. Defaults to 750 ms.
func WithPartialIntervalMs(ms int) Option {
	return func(e *Engine) { e.partialIntervalMs = ms }
}

// Engine implements recognizer.Engine using whisper.cpp Go bindings.
// Safe for concurrent use; the loaded model is shared across sessions.
type Engine struct {
	model    whisperlib.Model
	language string

	silenceThresholdMs  int
	maxBufferDurationMs int
	partialIntervalMs   int
}

// New creates an Engine that loads the whisper.cpp model from the given file
// path. A missing or unreadable model is a construction-time failure — the
// process should not start without it. The caller must call Close when the
// engine is no longer needed.
func New(modelPath string, opts ...Option) (*Engine, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	e := &Engine{
		model:               model,
		language:            defaultLanguage,
		silenceThresholdMs:  defaultSilenceThresholdMs,
		maxBufferDurationMs: defaultMaxBufferDurationMs,
		partialIntervalMs:   defaultPartialIntervalMs,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Close releases the whisper model. Open sessions become invalid.
func (e *Engine) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}

// NewSession opens a recognition stream bound to one speaker.
func (e *Engine) NewSession(ctx context.Context, cfg recognizer.SessionConfig) (recognizer.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	lang := cfg.Language
	if lang == "" {
		lang = e.language
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = defaultSampleRate
	}

	bytesPerMs := sr * (bitsPerSample / 8) / 1000
	if bytesPerMs <= 0 {
		bytesPerMs = 32
	}

	return &session{
		model:              e.model,
		language:           lang,
		sampleRate:         sr,
		bytesPerMs:         bytesPerMs,
		silenceThresholdMs: e.silenceThresholdMs,
		maxBufferBytes:     e.maxBufferDurationMs * bytesPerMs,
		partialIntervalMs:  e.partialIntervalMs,
	}, nil
}

// session is a live whisper recognition stream. It implements
// recognizer.Session. All mutable state is confined to the owning worker
// goroutine; no internal synchronisation is needed or provided.
type session struct {
	model      whisperlib.Model
	language   string
	sampleRate int
	bytesPerMs int

	silenceThresholdMs int
	maxBufferBytes     int
	partialIntervalMs  int

	buffer         []byte
	hadSpeech      bool
	silenceMs      int
	sinceDecodeMs  int
}

// Accept buffers one chunk of mono 16-bit PCM and returns the engine's
// current view of the in-progress utterance: a partial while speech is
// ongoing, a final once the utterance has ended on silence (or the buffer
// limit forced a commit), or an empty partial when there is nothing new.
func (s *session) Accept(pcm []byte) (recognizer.Fragment, error) {
	if len(pcm) == 0 {
		return recognizer.Partial(""), nil
	}

	rms := computeRMS(pcm)
	chunkMs := len(pcm) / s.bytesPerMs

	if rms < defaultRMSThreshold {
		// Leading silence before any speech is discarded.
		if !s.hadSpeech {
			return recognizer.Partial(""), nil
		}
		s.silenceMs += chunkMs
		s.buffer = append(s.buffer, pcm...)
		if s.silenceMs >= s.silenceThresholdMs {
			return s.commit()
		}
		return recognizer.Partial(""), nil
	}

	s.hadSpeech = true
	s.silenceMs = 0
	s.buffer = append(s.buffer, pcm...)
	s.sinceDecodeMs += chunkMs

	if s.maxBufferBytes > 0 && len(s.buffer) >= s.maxBufferBytes {
		return s.commit()
	}

	if s.sinceDecodeMs >= s.partialIntervalMs {
		s.sinceDecodeMs = 0
		text, err := s.infer(s.buffer)
		if err != nil {
			return recognizer.Fragment{}, err
		}
		return recognizer.Partial(text), nil
	}

	return recognizer.Partial(""), nil
}

// commit decodes the accumulated utterance as a final fragment and clears
// the buffer state.
func (s *session) commit() (recognizer.Fragment, error) {
	pcm := s.buffer
	s.Reset()

	text, err := s.infer(pcm)
	if err != nil {
		return recognizer.Fragment{}, err
	}
	return recognizer.Final(text), nil
}

// Reset discards all buffered audio and silence-detection state. The caller
// invokes this after consuming a final fragment; commit has usually already
// cleared the state, so Reset is an idempotent no-op in that path.
func (s *session) Reset() {
	s.buffer = nil
	s.hadSpeech = false
	s.silenceMs = 0
	s.sinceDecodeMs = 0
}

// Close releases the session. The whisper model is engine-owned, so there is
// nothing to free per session beyond the buffer.
func (s *session) Close() error {
	s.Reset()
	return nil
}

// infer converts the buffered PCM audio to float32, runs whisper.cpp
// inference using a fresh context, and returns the concatenated text.
// Each context is NOT thread-safe, but the model is shared safely.
func (s *session) infer(pcm []byte) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}
	samples := pcmToFloat32(pcm)

	wctx, err := s.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(s.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", s.language, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}

// pcmToFloat32 converts little-endian 16-bit signed PCM to the normalised
// float32 samples whisper.cpp expects.
func pcmToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		out[i] = float32(sample) / 32768.0
	}
	return out
}

// computeRMS returns the root-mean-square energy of a 16-bit signed
// little-endian PCM buffer. Returns 0 for buffers shorter than one sample.
func computeRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		v := float64(sample)
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
