package counter

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/tallyvox/pkg/audio"
	"github.com/MrWong99/tallyvox/pkg/countstore"
)

// DefaultDebounce is the minimum interval between two countable occurrences
// of the same (speaker, keyword) pair.
const DefaultDebounce = 2 * time.Second

// Hit is one accepted keyword occurrence.
type Hit struct {
	SpeakerID string
	Keyword   string
	At        time.Time
}

// Matcher detects keywords in transcript fragments and counts fresh hits.
//
// Matching is pure substring containment on lower-cased text against the
// fixed session-wide keyword set — no stemming or tokenisation, so a
// keyword that is a substring of a longer unrelated word also matches.
// That is an accepted, documented limitation.
//
// A Matcher's debounce clock is single-owner state: create one per speaker
// worker and call Check only from that worker's goroutine. The clock
// persists for the worker's lifetime and is deliberately NOT reset when the
// recognizer session resets — a final fragment re-covering a partial's span
// must not count twice. The shared Tally and Store handle their own
// synchronisation.
type Matcher struct {
	keywords []string
	debounce time.Duration
	tally    *Tally
	store    countstore.Store

	// lastHit maps the composite (speaker, keyword) pair to the time of its
	// last accepted hit. An explicit composite key keeps the one-entry-per-
	// pair invariant obvious.
	lastHit map[pairKey]time.Time
}

// NewMatcher creates a Matcher for the given keyword set. Keywords are
// lower-cased and blank entries dropped; the set is read-only afterwards.
// A non-positive debounce falls back to [DefaultDebounce].
func NewMatcher(keywords []string, debounce time.Duration, tally *Tally, store countstore.Store) *Matcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	normalized := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			normalized = append(normalized, kw)
		}
	}
	return &Matcher{
		keywords: normalized,
		debounce: debounce,
		tally:    tally,
		store:    store,
		lastHit:  make(map[pairKey]time.Time),
	}
}

// Check scans text for keywords and returns the fresh hits. It must be
// called on every fragment, partial and final: partials are the primary
// low-latency detection signal, and the debounce suppresses the duplicate
// when a final re-covers the same span.
//
// For each fresh hit Check updates the display-name cache and count mirror,
// then calls the store's increment-or-insert exactly once, synchronously,
// before returning. The mirror is updated optimistically: a store failure
// is logged but not rolled back and never stops the worker.
func (m *Matcher) Check(ctx context.Context, sp audio.Speaker, text string, now time.Time) []Hit {
	if text == "" {
		return nil
	}
	text = strings.ToLower(text)

	var hits []Hit
	for _, kw := range m.keywords {
		if !strings.Contains(text, kw) {
			continue
		}
		key := pairKey{sp.ID, kw}
		if last, ok := m.lastHit[key]; ok && now.Sub(last) < m.debounce {
			continue
		}
		m.lastHit[key] = now

		count := m.tally.RecordHit(sp.ID, sp.DisplayName, kw)

		if err := m.store.UpsertName(ctx, sp.ID, sp.DisplayName); err != nil {
			slog.Warn("counter: persist display name failed", "speaker", sp.ID, "error", err)
		}
		if err := m.store.IncrementOrInsert(ctx, sp.ID, kw, 1); err != nil {
			slog.Warn("counter: persist hit failed, mirror and store may diverge",
				"speaker", sp.ID,
				"keyword", kw,
				"error", err,
			)
		}

		slog.Info("keyword detected",
			"speaker", sp.DisplayName,
			"keyword", kw,
			"count", count,
		)
		hits = append(hits, Hit{SpeakerID: sp.ID, Keyword: kw, At: now})
	}
	return hits
}

// Keywords returns the normalised keyword set.
func (m *Matcher) Keywords() []string {
	return m.keywords
}
