// Package app wires all Tallyvox subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes them until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithStore, WithEngine, etc.). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/tallyvox/internal/config"
	"github.com/MrWong99/tallyvox/internal/counter"
	"github.com/MrWong99/tallyvox/internal/discord"
	"github.com/MrWong99/tallyvox/internal/health"
	"github.com/MrWong99/tallyvox/internal/observe"
	"github.com/MrWong99/tallyvox/internal/pipeline"
	"github.com/MrWong99/tallyvox/internal/resilience"
	"github.com/MrWong99/tallyvox/pkg/countstore"
	"github.com/MrWong99/tallyvox/pkg/countstore/postgres"
	"github.com/MrWong99/tallyvox/pkg/countstore/sqlite"
	"github.com/MrWong99/tallyvox/pkg/recognizer"
	"github.com/MrWong99/tallyvox/pkg/recognizer/deepgram"
	recmock "github.com/MrWong99/tallyvox/pkg/recognizer/mock"
	"github.com/MrWong99/tallyvox/pkg/recognizer/whisper"
)

// shutdownGrace bounds how long the HTTP server may take to drain on exit.
const shutdownGrace = 5 * time.Second

// App owns all subsystem lifetimes: the count store, the recognizer engine,
// the per-speaker pipeline, the Discord bot, and the HTTP sidecar serving
// metrics and health probes.
type App struct {
	cfg *config.Config

	store   countstore.Store
	engine  recognizer.Engine
	tally   *counter.Tally
	router  *pipeline.Router
	metrics *observe.Metrics

	// newBot connects the Discord bot. Defaults to discord.New; overridden
	// in tests.
	newBot func(ctx context.Context, cfg discord.Config, sink *pipeline.Router, tally *counter.Tally) (bot, error)

	// closers are called in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// bot is the slice of the Discord bot the app drives.
type bot interface {
	Run(ctx context.Context) error
	Close() error
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a count store instead of creating one from config.
func WithStore(s countstore.Store) Option {
	return func(a *App) { a.store = s }
}

// WithEngine injects a recognizer engine instead of creating one from config.
func WithEngine(e recognizer.Engine) Option {
	return func(a *App) { a.engine = e }
}

// WithMetrics injects a metrics instance instead of the process-wide default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together: the durable count
// store (hydrating the in-memory tally from it), the recognizer engine, and
// the audio router. The Discord connection is established in Run.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.newBot == nil {
		a.newBot = func(ctx context.Context, cfg discord.Config, sink *pipeline.Router, tally *counter.Tally) (bot, error) {
			return discord.New(ctx, cfg, sink, tally)
		}
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	if err := a.initTally(ctx); err != nil {
		return nil, fmt.Errorf("app: hydrate counts: %w", err)
	}
	if err := a.initEngine(ctx); err != nil {
		return nil, fmt.Errorf("app: init recognizer: %w", err)
	}

	a.router = pipeline.NewRouter(ctx, pipeline.RouterConfig{
		Engine: a.engine,
		SessionConfig: recognizer.SessionConfig{
			SampleRate: a.cfg.Audio.TargetRate,
			Language:   a.cfg.STT.Language,
		},
		Keywords:   a.cfg.Keywords.Track,
		Debounce:   a.cfg.Keywords.DebounceInterval.Std(),
		Tally:      a.tally,
		Store:      a.store,
		SourceRate: a.cfg.Audio.SourceRate,
		TargetRate: a.cfg.Audio.TargetRate,
		QueueSize:  a.cfg.Audio.QueueSize,
		Metrics:    a.metrics,
	})

	return a, nil
}

// initStore opens the configured count store unless one was injected.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	var (
		store countstore.Store
		err   error
	)
	switch a.cfg.Store.Name {
	case "postgres":
		store, err = postgres.Open(ctx, a.cfg.Store.PostgresDSN)
	default:
		store, err = sqlite.Open(ctx, a.cfg.Store.Path)
	}
	if err != nil {
		return err
	}

	// A dead database must not stall the audio pipeline; the breaker sheds
	// durable writes until the store answers again.
	a.store = resilience.GuardStore(store, resilience.CircuitBreakerConfig{})
	a.closers = append(a.closers, store.Close)
	return nil
}

// initTally seeds the in-memory mirror from the durable store so the
// leaderboard survives restarts.
func (a *App) initTally(ctx context.Context) error {
	a.tally = counter.NewTally()

	records, err := a.store.ReadAll(ctx)
	if err != nil {
		return err
	}
	names, err := a.store.ReadNames(ctx)
	if err != nil {
		return err
	}
	a.tally.Hydrate(records, names)
	slog.Info("counts hydrated from store", "pairs", len(records), "speakers", len(names))
	return nil
}

// initEngine builds the configured recognizer engine unless one was injected.
func (a *App) initEngine(_ context.Context) error {
	if a.engine != nil {
		return nil
	}

	switch a.cfg.STT.Name {
	case "whisper-native":
		eng, err := whisper.New(a.cfg.STT.ModelPath, whisper.WithLanguage(a.cfg.STT.Language))
		if err != nil {
			return err
		}
		a.engine = eng
	case "deepgram":
		eng, err := deepgram.New(a.cfg.STT.APIKey,
			deepgram.WithModel(a.cfg.STT.Model),
			deepgram.WithLanguage(a.cfg.STT.Language),
		)
		if err != nil {
			return err
		}
		a.engine = eng
	case "mock":
		a.engine = recmock.NewEngine()
	default:
		return fmt.Errorf("unknown stt engine %q", a.cfg.STT.Name)
	}

	a.closers = append(a.closers, a.engine.Close)
	return nil
}

// Run connects the Discord bot and serves metrics and health probes until
// ctx is cancelled. It always calls Shutdown on the way out.
func (a *App) Run(ctx context.Context) error {
	defer func() {
		if err := a.Shutdown(); err != nil {
			slog.Warn("app: shutdown", "err", err)
		}
	}()

	b, err := a.newBot(ctx, a.cfg.Discord, a.router, a.tally)
	if err != nil {
		return fmt.Errorf("app: connect discord: %w", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			slog.Warn("app: closing discord bot", "err", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(health.StoreChecker(a.store)).Register(mux)
	srv := &http.Server{Addr: a.cfg.Server.ListenAddr, Handler: mux}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := b.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown stops the audio pipeline and closes all subsystems in reverse
// creation order. Safe to call more than once.
func (a *App) Shutdown() error {
	var errs []error
	a.stopOnce.Do(func() {
		if a.router != nil {
			a.router.Shutdown()
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		slog.Info("app shut down")
	})
	return errors.Join(errs...)
}

// Router exposes the audio sink for wiring and tests.
func (a *App) Router() *pipeline.Router { return a.router }

// Tally exposes the in-memory count mirror.
func (a *App) Tally() *counter.Tally { return a.tally }
