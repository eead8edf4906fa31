package resilience

import (
	"context"

	"github.com/MrWong99/tallyvox/internal/observe"
	"github.com/MrWong99/tallyvox/pkg/countstore"
)

// Compile-time interface assertion.
var _ countstore.Store = (*GuardedStore)(nil)

// GuardedStore wraps a [countstore.Store] with a circuit breaker on the write
// path. When the underlying store fails repeatedly, further writes are
// rejected fast with [ErrCircuitOpen] instead of stalling every keyword hit
// on a dead database. Reads pass through unguarded: they happen at startup
// and in health probes, where the caller wants the real error.
type GuardedStore struct {
	inner   countstore.Store
	breaker *CircuitBreaker
	metrics *observe.Metrics
}

// GuardStore wraps store with a breaker. A nil cfg.Name defaults to "countstore".
func GuardStore(store countstore.Store, cfg CircuitBreakerConfig) *GuardedStore {
	if cfg.Name == "" {
		cfg.Name = "countstore"
	}
	return &GuardedStore{
		inner:   store,
		breaker: NewCircuitBreaker(cfg),
		metrics: observe.DefaultMetrics(),
	}
}

// IncrementOrInsert implements countstore.Store.
func (g *GuardedStore) IncrementOrInsert(ctx context.Context, speakerID, keyword string, delta int64) error {
	err := g.breaker.Execute(func() error {
		return g.inner.IncrementOrInsert(ctx, speakerID, keyword, delta)
	})
	if err != nil {
		g.metrics.StoreErrors.Add(ctx, 1)
	}
	return err
}

// UpsertName implements countstore.Store.
func (g *GuardedStore) UpsertName(ctx context.Context, speakerID, name string) error {
	err := g.breaker.Execute(func() error {
		return g.inner.UpsertName(ctx, speakerID, name)
	})
	if err != nil {
		g.metrics.StoreErrors.Add(ctx, 1)
	}
	return err
}

// ReadAll implements countstore.Store.
func (g *GuardedStore) ReadAll(ctx context.Context) ([]countstore.Record, error) {
	return g.inner.ReadAll(ctx)
}

// ReadNames implements countstore.Store.
func (g *GuardedStore) ReadNames(ctx context.Context) (map[string]string, error) {
	return g.inner.ReadNames(ctx)
}

// Close implements countstore.Store.
func (g *GuardedStore) Close() error {
	return g.inner.Close()
}

// State exposes the breaker state for diagnostics.
func (g *GuardedStore) State() State {
	return g.breaker.State()
}
