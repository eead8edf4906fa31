// Package recognizer defines the narrow streaming interface through which
// Tallyvox consumes an external speech-recognition engine.
//
// The central abstraction is [Session]: a stateful, per-speaker decoding
// stream. Audio is pushed in with Accept, which synchronously returns a
// [Fragment] — either a tentative partial or a committed final piece of
// transcribed text. A Session is NOT safe for concurrent use: it is owned
// exclusively by one speaker worker for the speaker's entire active period.
// Constructing a session per frame is incorrect (it loses acoustic context);
// one session per speaker join is the only valid lifecycle.
//
// [Engine] is the factory and must be safe for concurrent use — multiple
// sessions may be open simultaneously, one per active speaker.
package recognizer

import "context"

// Kind tags a Fragment as partial or final. Modelled as an explicit variant
// so every call site handles both cases rather than probing for an optional
// field.
type Kind int

const (
	// KindPartial marks tentative text that may be superseded by a later
	// fragment covering overlapping audio.
	KindPartial Kind = iota

	// KindFinal marks committed text. After a final fragment the caller
	// should Reset the session so already-committed audio is not reprocessed.
	KindFinal
)

// String returns the human-readable name of the fragment kind.
func (k Kind) String() string {
	switch k {
	case KindPartial:
		return "partial"
	case KindFinal:
		return "final"
	default:
		return "unknown"
	}
}

// Fragment is one unit of transcribed text produced by a Session.
// An empty Text is valid and means the engine has nothing to report yet.
type Fragment struct {
	Kind Kind
	Text string
}

// Partial constructs a tentative fragment.
func Partial(text string) Fragment { return Fragment{Kind: KindPartial, Text: text} }

// Final constructs a committed fragment.
func Final(text string) Fragment { return Fragment{Kind: KindFinal, Text: text} }

// SessionConfig describes the audio format for a new recognition session.
type SessionConfig struct {
	// SampleRate is the PCM sample rate in Hz the caller will deliver to
	// Accept. The pipeline converts to this rate before calling Accept.
	SampleRate int

	// Language is the BCP-47 language tag for recognition (e.g., "en").
	// Empty lets the engine use its default.
	Language string
}

// Session is one open streaming recognition stream bound to one speaker.
//
// Sessions hold mutable decoder state and must only ever be touched by
// their owning worker goroutine. Callers must call Close when the speaker's
// session ends; failing to do so may leak engine resources.
type Session interface {
	// Accept delivers a chunk of mono little-endian 16-bit PCM at the
	// configured sample rate and returns the engine's current view of the
	// evolving transcript. A zero-value Fragment with empty Text means
	// "nothing yet". Errors are per-frame: the caller may log, drop the
	// frame, and keep feeding the session.
	Accept(pcm []byte) (Fragment, error)

	// Reset discards decoder state for audio that has already produced a
	// final fragment, so committed speech is not reprocessed. Engines that
	// segment utterances themselves may implement this as a no-op.
	Reset()

	// Close releases all resources held by the session. Safe to call more
	// than once.
	Close() error
}

// Engine is the abstraction over any speech-recognition backend.
// Implementations must be safe for concurrent use.
type Engine interface {
	// NewSession opens a recognition stream. The returned Session is ready
	// to accept audio immediately and is owned by the caller.
	NewSession(ctx context.Context, cfg SessionConfig) (Session, error)

	// Close releases engine-wide resources (e.g., a loaded model). Open
	// sessions become invalid after Close.
	Close() error
}
