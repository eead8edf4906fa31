// Package mock provides scripted in-memory implementations of
// [recognizer.Engine] and [recognizer.Session] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/tallyvox/pkg/recognizer"
)

// Compile-time interface assertions.
var (
	_ recognizer.Engine  = (*Engine)(nil)
	_ recognizer.Session = (*Session)(nil)
)

// Engine is a scripted recognizer.Engine. Each NewSession call returns a
// fresh recording [Session]; the test can pre-script fragments on it or
// retrieve it afterwards via [Engine.Sessions].
//
// OnNewSession, when set, is invoked with each new session before it is
// returned, letting tests script sessions at creation time.
type Engine struct {
	mu       sync.Mutex
	sessions []*Session
	closed   bool

	OnNewSession func(s *Session)

	// NewSessionErr, when non-nil, is returned by NewSession instead of a session.
	NewSessionErr error
}

// NewEngine returns an empty scripted engine.
func NewEngine() *Engine { return &Engine{} }

// NewSession implements recognizer.Engine.
func (e *Engine) NewSession(_ context.Context, cfg recognizer.SessionConfig) (recognizer.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	s := &Session{Config: cfg}
	if e.OnNewSession != nil {
		e.OnNewSession(s)
	}
	e.sessions = append(e.sessions, s)
	return s, nil
}

// Close implements recognizer.Engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Sessions returns all sessions created so far.
func (e *Engine) Sessions() []*Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Session(nil), e.sessions...)
}

// Session is a recording recognizer.Session. Accept pops pre-scripted
// fragments in order; once the script is exhausted it returns empty
// partials. All methods are locked so tests can inspect state while a
// worker goroutine drives the session.
type Session struct {
	Config recognizer.SessionConfig

	mu       sync.Mutex
	script   []recognizer.Fragment
	accepted [][]byte
	resets   int
	closed   bool

	// AcceptErr, when non-nil, is returned by every Accept call.
	AcceptErr error
}

// Enqueue appends fragments to the script consumed by successive Accept calls.
func (s *Session) Enqueue(frags ...recognizer.Fragment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, frags...)
}

// Accept implements recognizer.Session.
func (s *Session) Accept(pcm []byte) (recognizer.Fragment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accepted = append(s.accepted, append([]byte(nil), pcm...))
	if s.AcceptErr != nil {
		return recognizer.Fragment{}, s.AcceptErr
	}
	if len(s.script) == 0 {
		return recognizer.Partial(""), nil
	}
	frag := s.script[0]
	s.script = s.script[1:]
	return frag, nil
}

// Reset implements recognizer.Session.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
}

// Close implements recognizer.Session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Accepted returns a copy of every PCM buffer passed to Accept.
func (s *Session) Accepted() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.accepted...)
}

// Resets returns how many times Reset was called.
func (s *Session) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
