package counter_test

import (
	"testing"

	"github.com/MrWong99/tallyvox/internal/counter"
	"github.com/MrWong99/tallyvox/pkg/countstore"
)

func TestRanking_TiesBrokenByFirstDetection(t *testing.T) {
	tally := counter.NewTally()

	// A speaks first, then B, then C. Totals end up A=5, B=9, C=9.
	for range 5 {
		tally.RecordHit("A", "a", "hello")
	}
	for range 9 {
		tally.RecordHit("B", "b", "hello")
	}
	for range 9 {
		tally.RecordHit("C", "c", "hello")
	}

	ranking := tally.Ranking()
	if len(ranking) != 3 {
		t.Fatalf("got %d entries, want 3", len(ranking))
	}
	want := []string{"B", "C", "A"}
	for i, id := range want {
		if ranking[i].SpeakerID != id {
			t.Errorf("ranking[%d]: got %s, want %s", i, ranking[i].SpeakerID, id)
		}
	}
	if ranking[0].Total != 9 || ranking[1].Total != 9 || ranking[2].Total != 5 {
		t.Errorf("totals wrong: %+v", ranking)
	}
}

func TestRanking_SumsAcrossKeywords(t *testing.T) {
	tally := counter.NewTally()
	tally.RecordHit("A", "a", "hello")
	tally.RecordHit("A", "a", "bye")
	tally.RecordHit("B", "b", "hello")

	ranking := tally.Ranking()
	if len(ranking) != 2 {
		t.Fatalf("got %d entries, want 2", len(ranking))
	}
	if ranking[0].SpeakerID != "A" || ranking[0].Total != 2 {
		t.Errorf("top entry: %+v", ranking[0])
	}
}

func TestRecordHit_ReturnsRunningCount(t *testing.T) {
	tally := counter.NewTally()
	if got := tally.RecordHit("A", "a", "hello"); got != 1 {
		t.Errorf("first hit: got %d, want 1", got)
	}
	if got := tally.RecordHit("A", "a", "hello"); got != 2 {
		t.Errorf("second hit: got %d, want 2", got)
	}
	if got := tally.RecordHit("A", "a", "bye"); got != 1 {
		t.Errorf("other keyword: got %d, want 1", got)
	}
}

func TestHydrate_SeedsCountsAndNames(t *testing.T) {
	tally := counter.NewTally()
	tally.Hydrate([]countstore.Record{
		{SpeakerID: "A", Keyword: "hello", Count: 3},
		{SpeakerID: "B", Keyword: "hello", Count: 7},
	}, map[string]string{"A": "alice", "B": "bob"})

	if got := tally.Count("A", "hello"); got != 3 {
		t.Errorf("A count: got %d, want 3", got)
	}
	if got := tally.Name("B"); got != "bob" {
		t.Errorf("B name: got %q, want %q", got, "bob")
	}

	// Hits after hydration continue from persisted totals.
	if got := tally.RecordHit("A", "alice", "hello"); got != 4 {
		t.Errorf("post-hydrate hit: got %d, want 4", got)
	}
}

func TestName_UnknownSpeaker(t *testing.T) {
	tally := counter.NewTally()
	tally.RecordHit("A", "", "hello")
	if got := tally.Name("A"); got != "" {
		t.Errorf("got %q, want empty for speaker without a cached name", got)
	}
}
