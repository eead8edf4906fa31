package audio

import "time"

// Frame is one discrete buffer of raw PCM audio handed to the pipeline.
// Frames are immutable once enqueued; ownership transfers from the voice
// transport to exactly one speaker worker queue.
type Frame struct {
	// Data is interleaved little-endian 16-bit signed PCM.
	Data []byte

	// SampleRate in Hz (e.g., 48000 for Discord Opus decode output).
	SampleRate int

	// Channels: 2 for the Discord capture path, 1 after downmix.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Speaker identifies a live voice participant whose audio is independently
// tracked. The ID is the platform-specific opaque identifier, stable for the
// session. DisplayName is mutable on the platform side; the last-seen value
// is cached for rendering only.
type Speaker struct {
	ID          string
	DisplayName string

	// Bot marks self-originated or other bot participants. Frames from bot
	// speakers are dropped before reaching any worker.
	Bot bool
}

// Sink receives speaker-tagged audio frames and lifecycle signals from a
// voice transport. The per-speaker processing pipeline implements Sink;
// transport adapters (e.g., voice/discord) call it from their delivery path.
//
// Implementations must be safe for concurrent use: Dispatch may be invoked
// concurrently for different speakers.
type Sink interface {
	// Dispatch routes one frame to the speaker's processing pipeline.
	// A zero-ID speaker or an empty frame is a valid, ignorable input.
	// Dispatch must never block on a slow consumer.
	Dispatch(sp Speaker, frame Frame)

	// SpeakerLeft signals that the speaker's session ended. Frames dispatched
	// for that speaker afterwards are silently dropped.
	SpeakerLeft(id string)

	// Shutdown stops processing for all speakers. Subsequent Dispatch calls
	// are no-ops.
	Shutdown()
}
