package counter_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/tallyvox/internal/counter"
	"github.com/MrWong99/tallyvox/pkg/audio"
	storemock "github.com/MrWong99/tallyvox/pkg/countstore/mock"
)

var alice = audio.Speaker{ID: "100", DisplayName: "alice"}

func newTestMatcher(t *testing.T, keywords []string) (*counter.Matcher, *counter.Tally, *storemock.Store) {
	t.Helper()
	tally := counter.NewTally()
	store := storemock.NewStore()
	return counter.NewMatcher(keywords, 2*time.Second, tally, store), tally, store
}

func TestCheck_FreshHit(t *testing.T) {
	m, tally, store := newTestMatcher(t, []string{"hello"})
	now := time.Now()

	hits := m.Check(context.Background(), alice, "well hello there", now)
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	if hits[0].SpeakerID != "100" || hits[0].Keyword != "hello" {
		t.Errorf("unexpected hit: %+v", hits[0])
	}
	if got := tally.Count("100", "hello"); got != 1 {
		t.Errorf("mirror count: got %d, want 1", got)
	}
	if got := tally.Name("100"); got != "alice" {
		t.Errorf("cached name: got %q, want %q", got, "alice")
	}
	if calls := store.Calls(); len(calls) != 1 || calls[0].Delta != 1 {
		t.Errorf("store calls: got %+v, want one delta-1 call", calls)
	}
	if got := store.Name("100"); got != "alice" {
		t.Errorf("persisted name: got %q, want %q", got, "alice")
	}
}

func TestCheck_DebounceIdempotence(t *testing.T) {
	m, _, store := newTestMatcher(t, []string{"hello"})
	base := time.Now()

	// Two checks within the debounce interval yield at most one fresh hit.
	first := m.Check(context.Background(), alice, "hello", base)
	second := m.Check(context.Background(), alice, "hello again", base.Add(500*time.Millisecond))
	if len(first)+len(second) != 1 {
		t.Fatalf("got %d hits within window, want 1", len(first)+len(second))
	}

	// A third check after the interval elapses yields exactly one more.
	third := m.Check(context.Background(), alice, "hello once more", base.Add(2100*time.Millisecond))
	if len(third) != 1 {
		t.Fatalf("got %d hits after window, want 1", len(third))
	}

	if calls := store.Calls(); len(calls) != 2 {
		t.Errorf("store calls: got %d, want 2", len(calls))
	}
}

func TestCheck_DebounceIsPerPair(t *testing.T) {
	m, _, _ := newTestMatcher(t, []string{"hello", "bye"})
	bob := audio.Speaker{ID: "200", DisplayName: "bob"}
	now := time.Now()

	if hits := m.Check(context.Background(), alice, "hello", now); len(hits) != 1 {
		t.Fatalf("alice hello: got %d hits, want 1", len(hits))
	}
	// Different keyword, same speaker: not debounced.
	if hits := m.Check(context.Background(), alice, "bye", now); len(hits) != 1 {
		t.Fatalf("alice bye: got %d hits, want 1", len(hits))
	}
	// Same keyword, different speaker: not debounced.
	if hits := m.Check(context.Background(), bob, "hello", now); len(hits) != 1 {
		t.Fatalf("bob hello: got %d hits, want 1", len(hits))
	}
}

func TestCheck_CaseInsensitive(t *testing.T) {
	m, _, _ := newTestMatcher(t, []string{"HeLLo"})

	hits := m.Check(context.Background(), alice, "HELLO WORLD", time.Now())
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	if hits[0].Keyword != "hello" {
		t.Errorf("keyword not normalised: %q", hits[0].Keyword)
	}
}

func TestCheck_SubstringMatchesLongerWord(t *testing.T) {
	// Documented limitation: "hell" matches inside "hello".
	m, _, _ := newTestMatcher(t, []string{"hell"})

	hits := m.Check(context.Background(), alice, "hello there", time.Now())
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
}

func TestCheck_EmptyAndMissSkipped(t *testing.T) {
	m, _, store := newTestMatcher(t, []string{"hello"})

	if hits := m.Check(context.Background(), alice, "", time.Now()); hits != nil {
		t.Errorf("empty text: got %v, want nil", hits)
	}
	if hits := m.Check(context.Background(), alice, "goodbye world", time.Now()); hits != nil {
		t.Errorf("no keyword: got %v, want nil", hits)
	}
	if calls := store.Calls(); len(calls) != 0 {
		t.Errorf("store calls: got %d, want 0", len(calls))
	}
}

func TestCheck_StoreFailureKeepsMirror(t *testing.T) {
	m, tally, store := newTestMatcher(t, []string{"hello"})
	store.IncrementErr = errors.New("disk full")

	hits := m.Check(context.Background(), alice, "hello", time.Now())
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	// The mirror was updated optimistically and is not rolled back.
	if got := tally.Count("100", "hello"); got != 1 {
		t.Errorf("mirror count: got %d, want 1", got)
	}
}

func TestCheck_MonotonicCounts(t *testing.T) {
	m, tally, _ := newTestMatcher(t, []string{"hello"})
	now := time.Now()

	var prev int64
	for i := range 10 {
		m.Check(context.Background(), alice, "hello", now.Add(time.Duration(i)*3*time.Second))
		cur := tally.Count("100", "hello")
		if cur < prev {
			t.Fatalf("count decreased: %d -> %d", prev, cur)
		}
		prev = cur
	}
	if prev != 10 {
		t.Errorf("final count: got %d, want 10", prev)
	}
}
