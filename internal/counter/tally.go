// Package counter implements the keyword-counting core of Tallyvox: the
// debounced per-speaker keyword matcher and the shared in-memory count
// mirror backing leaderboard queries.
package counter

import (
	"sync"

	"github.com/MrWong99/tallyvox/pkg/countstore"
)

// pairKey is the composite (speaker, keyword) key. One map entry per pair.
type pairKey struct {
	speakerID string
	keyword   string
}

// RankEntry is one row of the leaderboard: a speaker and their total hit
// count summed across all keywords.
type RankEntry struct {
	SpeakerID   string
	DisplayName string
	Total       int64
}

// Tally is the in-memory mirror of the durable count store plus the
// display-name cache. It is shared mutable state between all speaker
// workers and the leaderboard query path, so every read and write is
// serialised through one mutex.
//
// Locking discipline: the lock is held only around the read-modify-write of
// the maps, never around store I/O or recognizer calls — those happen on the
// worker's own time.
type Tally struct {
	mu     sync.Mutex
	counts map[pairKey]int64
	names  map[string]string

	// order records speaker IDs in first-detection order; it breaks
	// leaderboard ties deterministically.
	order []string
	seen  map[string]bool
}

// NewTally returns an empty mirror.
func NewTally() *Tally {
	return &Tally{
		counts: make(map[pairKey]int64),
		names:  make(map[string]string),
		seen:   make(map[string]bool),
	}
}

// Hydrate replaces the mirror contents with rows read from the durable
// store at startup. First-detection order for pre-existing speakers follows
// the record order as given.
func (t *Tally) Hydrate(records []countstore.Record, names map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counts = make(map[pairKey]int64, len(records))
	t.names = make(map[string]string, len(names))
	t.order = nil
	t.seen = make(map[string]bool)

	for _, r := range records {
		t.counts[pairKey{r.SpeakerID, r.Keyword}] = r.Count
		t.noteSpeakerLocked(r.SpeakerID)
	}
	for id, name := range names {
		t.names[id] = name
	}
}

// RecordHit increments the mirror count for the (speaker, keyword) pair and
// refreshes the speaker's cached display name. Returns the new count.
func (t *Tally) RecordHit(speakerID, displayName, keyword string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.noteSpeakerLocked(speakerID)
	if displayName != "" {
		t.names[speakerID] = displayName
	}
	key := pairKey{speakerID, keyword}
	t.counts[key]++
	return t.counts[key]
}

// Count returns the mirror count for one (speaker, keyword) pair.
func (t *Tally) Count(speakerID, keyword string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[pairKey{speakerID, keyword}]
}

// Name returns the cached display name for a speaker, or "" if unknown.
func (t *Tally) Name(speakerID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.names[speakerID]
}

/// Ranking returns the leaderboard: per-speaker totals summed across all
// keywords, sorted by total descending. Ties keep first-detection order —
// the sort is an insertion into an already first-detection-ordered list, so
// stability is structural, not incidental.
func (t *Tally) Ranking() []RankEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	totals := make(map[string]int64, len(t.seen))
	for key, c := range t.counts {
		totals[key.speakerID] += c
	}

	entries := make([]RankEntry, 0, len(t.order))
	for _, id := range t.order {
		entries = append(entries, RankEntry{
			SpeakerID:   id,
			DisplayName: t.names[id],
			Total:       totals[id],
		})
	}

	// Stable insertion sort by descending total over the
	// first-detection-ordered slice.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].Total > entries[j-1].Total; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
	return entries
}

// noteSpeakerLocked appends the speaker to the first-detection order once.
// Caller must hold t.mu.
func (t *Tally) noteSpeakerLocked(speakerID string) {
	if !t.seen[speakerID] {
		t.seen[speakerID] = true
		t.order = append(t.order, speakerID)
	}
}
