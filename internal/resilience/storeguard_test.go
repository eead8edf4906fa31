package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	storemock "github.com/MrWong99/tallyvox/pkg/countstore/mock"
)

func TestGuardedStore_PassesWritesThrough(t *testing.T) {
	inner := storemock.NewStore()
	g := GuardStore(inner, CircuitBreakerConfig{})

	if err := g.IncrementOrInsert(context.Background(), "42", "hello", 1); err != nil {
		t.Fatalf("IncrementOrInsert: %v", err)
	}
	if got := inner.Count("42", "hello"); got != 1 {
		t.Errorf("count: got %d, want 1", got)
	}
	if err := g.UpsertName(context.Background(), "42", "alice"); err != nil {
		t.Fatalf("UpsertName: %v", err)
	}
	if got := inner.Name("42"); got != "alice" {
		t.Errorf("name: got %q, want %q", got, "alice")
	}
}

func TestGuardedStore_OpensAfterRepeatedFailures(t *testing.T) {
	inner := storemock.NewStore()
	inner.IncrementErr = errors.New("disk full")
	g := GuardStore(inner, CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: time.Hour})

	for range 3 {
		if err := g.IncrementOrInsert(context.Background(), "42", "hello", 1); err == nil {
			t.Fatal("expected write error")
		}
	}
	if got := g.State(); got != StateOpen {
		t.Fatalf("state: got %v, want open", got)
	}

	err := g.IncrementOrInsert(context.Background(), "42", "hello", 1)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("got %v, want ErrCircuitOpen", err)
	}
}

func TestGuardedStore_ReadsBypassBreaker(t *testing.T) {
	inner := storemock.NewStore()
	inner.Seed("42", "hello", 5)
	inner.IncrementErr = errors.New("disk full")
	g := GuardStore(inner, CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})

	// Trip the breaker.
	_ = g.IncrementOrInsert(context.Background(), "42", "hello", 1)

	records, err := g.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(records) != 1 || records[0].Count != 5 {
		t.Errorf("records: %+v", records)
	}
}
