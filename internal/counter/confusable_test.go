package counter_test

import (
	"testing"

	"github.com/MrWong99/tallyvox/internal/counter"
)

func TestConfusablePairs_Homophones(t *testing.T) {
	pairs := counter.ConfusablePairs([]string{"night", "knight", "zebra"})
	if len(pairs) != 1 {
		t.Fatalf("got %d pairs, want 1: %v", len(pairs), pairs)
	}
	if pairs[0] != [2]string{"night", "knight"} {
		t.Errorf("unexpected pair: %v", pairs[0])
	}
}

func TestConfusablePairs_Distinct(t *testing.T) {
	if pairs := counter.ConfusablePairs([]string{"hello", "zebra", "dragon"}); len(pairs) != 0 {
		t.Errorf("got %v, want none", pairs)
	}
}

func TestConfusablePairs_FewerThanTwo(t *testing.T) {
	if pairs := counter.ConfusablePairs([]string{"hello"}); len(pairs) != 0 {
		t.Errorf("single keyword: got %v, want none", pairs)
	}
	if pairs := counter.ConfusablePairs(nil); len(pairs) != 0 {
		t.Errorf("nil keywords: got %v, want none", pairs)
	}
}
