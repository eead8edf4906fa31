// Package deepgram provides a [recognizer.Engine] backed by the Deepgram
// streaming WebSocket API. Unlike the whisper engine it produces true
// low-latency interim results, so partial fragments arrive while the
// speaker is still mid-sentence.
//
// The synchronous Accept contract is adapted onto the asynchronous wire
// protocol by buffering: Accept queues the audio chunk for the write loop
// and returns the oldest recognition result the read loop has received
// since the previous Accept call, or an empty partial when none is pending.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/coder/websocket"

	"github.com/MrWong99/tallyvox/pkg/recognizer"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000

	// resultBuffer bounds the queue of recognition results between the read
	// loop and Accept. When full the oldest result is dropped — only keyword
	// presence matters, and a fresher fragment supersedes a stale one.
	resultBuffer = 64
)

// Compile-time assertion that Engine satisfies recognizer.Engine.
var _ recognizer.Engine = (*Engine)(nil)

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(e *Engine) { e.model = model }
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(e *Engine) { e.language = language }
}

// Engine implements recognizer.Engine backed by the Deepgram streaming API.
type Engine struct {
	apiKey   string
	model    string
	language string
}

// New creates a Deepgram Engine. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Engine, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	e := &Engine{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Close is a no-op; the engine holds no shared resources. Each session owns
// its own WebSocket connection.
func (e *Engine) Close() error { return nil }

// NewSession dials the Deepgram streaming endpoint and returns a live
// recognition stream for one speaker.
func (e *Engine) NewSession(ctx context.Context, cfg recognizer.SessionConfig) (recognizer.Session, error) {
	wsURL, err := e.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+e.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	s := &session{
		conn:    conn,
		results: make(chan recognizer.Fragment, resultBuffer),
		done:    make(chan struct{}),
	}
	go s.readLoop(context.WithoutCancel(ctx))

	return s, nil
}

// buildURL constructs the Deepgram streaming endpoint URL for the given config.
func (e *Engine) buildURL(cfg recognizer.SessionConfig) (string, error) {
	u, err := url.Parse(deepgramEndpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = e.language
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = defaultSampleRate
	}

	q := u.Query()
	q.Set("model", e.model)
	q.Set("language", lang)
	q.Set("encoding", "linear16")
	q.Set("interim_results", "true")
	q.Set("sample_rate", strconv.Itoa(sr))
	q.Set("channels", "1")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- session ----

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// session is a live Deepgram recognition stream. It implements
// recognizer.Session. Accept and Reset are called only from the owning
// worker goroutine; the read loop communicates exclusively through the
// buffered results channel.
type session struct {
	conn    *websocket.Conn
	results chan recognizer.Fragment
	done    chan struct{}
	closed  bool
}

// Accept sends the PCM chunk to Deepgram and returns the oldest pending
// recognition result, or an empty partial when the server has not responded
// yet. Write errors are returned so the worker can log and drop the frame.
func (s *session) Accept(pcm []byte) (recognizer.Fragment, error) {
	if s.closed {
		return recognizer.Fragment{}, errors.New("deepgram: session is closed")
	}
	if len(pcm) > 0 {
		if err := s.conn.Write(context.Background(), websocket.MessageBinary, pcm); err != nil {
			return recognizer.Fragment{}, fmt.Errorf("deepgram: send audio: %w", err)
		}
	}

	select {
	case frag := <-s.results:
		return frag, nil
	default:
		return recognizer.Partial(""), nil
	}
}

// Reset is a no-op: Deepgram segments utterances server-side, so committed
// audio is never reprocessed.
func (s *session) Reset() {}

// Close terminates the session cleanly, asking Deepgram to flush pending audio.
func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"CloseStream"}`))
	return s.conn.Close(websocket.StatusNormalClosure, "session closed")
}

// readLoop receives JSON messages from Deepgram and queues them as fragments.
// When the queue is full the oldest entry is evicted in favour of the newer
// result.
func (s *session) readLoop(ctx context.Context) {
	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			// Normal close or connection failure — exit quietly; the worker
			// surfaces errors through Accept.
			return
		}

		frag, ok := parseResponse(msg)
		if !ok {
			continue
		}

		for {
			select {
			case s.results <- frag:
			case <-s.done:
				return
			default:
				select {
				case <-s.results:
				default:
				}
				continue
			}
			break
		}
	}
}

// parseResponse parses a raw Deepgram WebSocket message into a Fragment.
// Returns (frag, true) on success, or (zero, false) if the message should be
// ignored (non-Results events, empty alternatives, empty transcripts).
func parseResponse(data []byte) (recognizer.Fragment, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return recognizer.Fragment{}, false
	}
	if resp.Type != "Results" {
		return recognizer.Fragment{}, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return recognizer.Fragment{}, false
	}
	text := resp.Channel.Alternatives[0].Transcript
	if text == "" {
		return recognizer.Fragment{}, false
	}

	if resp.IsFinal {
		return recognizer.Final(text), true
	}
	return recognizer.Partial(text), true
}
