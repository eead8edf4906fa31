// Package countstore defines the persistence interface for per-speaker
// keyword hit counts. Counts are keyed by the composite (speaker, keyword)
// pair — one row per pair — and mutate exclusively through
// [Store.IncrementOrInsert], which keeps the monotonic non-decreasing
// invariant trivially true.
//
// Implementations live in the sqlite and postgres sub-packages; a recording
// test double lives in mock.
package countstore

import "context"

// Record is one persisted (speaker, keyword, count) row.
type Record struct {
	SpeakerID string
	Keyword   string
	Count     int64
}

// Store is the durable count persistence collaborator.
//
// Implementations must be safe for concurrent use: multiple speaker workers
// call IncrementOrInsert in parallel and rely on the store's own
// serialisation for atomicity.
type Store interface {
	// IncrementOrInsert atomically upserts the (speakerID, keyword) row:
	// it is created with delta if absent, otherwise delta is added to the
	// existing count.
	IncrementOrInsert(ctx context.Context, speakerID, keyword string, delta int64) error

	// UpsertName records the speaker's last-known display name so the
	// leaderboard survives restarts with names attached.
	UpsertName(ctx context.Context, speakerID, name string) error

	// ReadAll returns every count row. Used to hydrate the in-memory mirror
	// at startup and has no ordering guarantee.
	ReadAll(ctx context.Context) ([]Record, error)

	// ReadNames returns the speaker-ID-to-display-name mapping.
	ReadNames(ctx context.Context) (map[string]string, error)

	// Close releases underlying resources.
	Close() error
}
