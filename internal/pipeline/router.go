package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/tallyvox/internal/counter"
	"github.com/MrWong99/tallyvox/internal/observe"
	"github.com/MrWong99/tallyvox/pkg/audio"
	"github.com/MrWong99/tallyvox/pkg/countstore"
	"github.com/MrWong99/tallyvox/pkg/recognizer"
)

// defaultQueueSize bounds each speaker's frame queue. At 20ms per frame this
// is roughly 1.3 seconds of backlog before frames drop.
const defaultQueueSize = 64

// RouterConfig carries everything a Router needs to build per-speaker
// workers.
type RouterConfig struct {
	Engine        recognizer.Engine
	SessionConfig recognizer.SessionConfig

	Keywords []string
	Debounce time.Duration
	Tally    *counter.Tally
	Store    countstore.Store

	// SourceRate and TargetRate configure each worker's resampler.
	SourceRate int
	TargetRate int

	// QueueSize overrides the per-speaker queue capacity when positive.
	QueueSize int

	Metrics *observe.Metrics
}

// Router fans incoming audio frames out to one worker per speaker, creating
// workers on first sight of a speaker. It implements [audio.Sink].
//
// Dispatch is safe for concurrent use. After Shutdown every Dispatch call is
// a silent drop; the voice transport may still deliver a few frames after
// the session ends.
type Router struct {
	cfg RouterConfig
	ctx context.Context

	mu       sync.Mutex
	workers  map[string]*Worker
	shutdown bool
	wg       sync.WaitGroup
}

// NewRouter returns a Router whose workers run until Shutdown. ctx is the
// lifetime context handed to recognizer sessions and worker loops.
func NewRouter(ctx context.Context, cfg RouterConfig) *Router {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Router{
		cfg:     cfg,
		ctx:     ctx,
		workers: make(map[string]*Worker),
	}
}

// Dispatch routes one frame to the speaker's worker, creating the worker on
// first contact. The call never blocks on a slow worker: when the speaker's
// queue is full the frame is dropped and counted.
func (r *Router) Dispatch(sp audio.Speaker, frame audio.Frame) {
	if sp.Bot || sp.ID == "" {
		return
	}

	w, ok := r.lookupOrCreate(sp)
	if !ok {
		return
	}
	if !w.enqueue(frame) {
		r.cfg.Metrics.RecordDrop(r.ctx, "queue_full")
	}
}

// lookupOrCreate returns the live worker for a speaker, creating one if none
// exists. Session creation happens outside the lock because it may block on
// model load or a network dial; when two goroutines race, the loser closes
// its candidate session and adopts the winner's worker.
func (r *Router) lookupOrCreate(sp audio.Speaker) (*Worker, bool) {
	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		r.cfg.Metrics.RecordDrop(r.ctx, "shutdown")
		return nil, false
	}
	if w, ok := r.workers[sp.ID]; ok {
		r.mu.Unlock()
		return w, true
	}
	r.mu.Unlock()

	session, err := r.cfg.Engine.NewSession(r.ctx, r.cfg.SessionConfig)
	if err != nil {
		slog.Error("pipeline: creating recognizer session",
			"speaker", sp.ID,
			"error", err,
		)
		r.cfg.Metrics.RecordDrop(r.ctx, "session_error")
		return nil, false
	}

	matcher := counter.NewMatcher(r.cfg.Keywords, r.cfg.Debounce, r.cfg.Tally, r.cfg.Store)
	mixer := &audio.Downmixer{SourceRate: r.cfg.SourceRate, TargetRate: r.cfg.TargetRate}
	candidate := newWorker(sp, session, matcher, mixer, r.cfg.QueueSize, r.cfg.Metrics)

	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		_ = session.Close()
		r.cfg.Metrics.RecordDrop(r.ctx, "shutdown")
		return nil, false
	}
	if w, ok := r.workers[sp.ID]; ok {
		// Lost the race; another Dispatch created the worker first.
		r.mu.Unlock()
		_ = session.Close()
		return w, true
	}
	r.workers[sp.ID] = candidate
	r.wg.Add(1)
	r.mu.Unlock()

	slog.Info("pipeline: speaker worker started", "speaker", sp.ID, "name", sp.DisplayName)
	go func() {
		defer r.wg.Done()
		candidate.run(r.ctx)
	}()
	return candidate, true
}

// SpeakerLeft stops and removes the speaker's worker, if any. Counts persist;
// only the live session ends.
func (r *Router) SpeakerLeft(id string) {
	r.mu.Lock()
	w, ok := r.workers[id]
	if ok {
		delete(r.workers, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	w.halt()
	slog.Info("pipeline: speaker worker stopped", "speaker", id)
}

// Shutdown stops all workers and waits for them to exit. Subsequent Dispatch
// calls are dropped.
func (r *Router) Shutdown() {
	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		return
	}
	r.shutdown = true
	workers := make([]*Worker, 0, len(r.workers))
	for _, w := range r.workers {
		workers = append(workers, w)
	}
	r.workers = make(map[string]*Worker)
	r.mu.Unlock()

	for _, w := range workers {
		w.halt()
	}
	r.wg.Wait()
}

// WorkerCount reports the number of live workers.
func (r *Router) WorkerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workers)
}
