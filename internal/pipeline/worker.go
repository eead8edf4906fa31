// Package pipeline connects incoming speaker audio to keyword counting. A
// [Router] fans raw frames out to one [Worker] per speaker; each worker owns
// a recognizer session and a matcher and processes its queue in order.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/tallyvox/internal/counter"
	"github.com/MrWong99/tallyvox/internal/observe"
	"github.com/MrWong99/tallyvox/pkg/audio"
	"github.com/MrWong99/tallyvox/pkg/recognizer"
)

// Worker processes one speaker's audio frames sequentially. It owns the
// speaker's recognizer session, resampler, and matcher; nothing else touches
// them, so the worker needs no locking of its own.
type Worker struct {
	speaker audio.Speaker
	queue   chan audio.Frame
	mixer   *audio.Downmixer
	session recognizer.Session
	matcher *counter.Matcher
	metrics *observe.Metrics

	stop chan struct{}
	done chan struct{}
}

func newWorker(sp audio.Speaker, session recognizer.Session, matcher *counter.Matcher, mixer *audio.Downmixer, queueSize int, metrics *observe.Metrics) *Worker {
	return &Worker{
		speaker: sp,
		queue:   make(chan audio.Frame, queueSize),
		mixer:   mixer,
		session: session,
		matcher: matcher,
		metrics: metrics,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// enqueue offers a frame to the worker without blocking. Returns false when
// the queue is full.
func (w *Worker) enqueue(frame audio.Frame) bool {
	select {
	case w.queue <- frame:
		return true
	default:
		return false
	}
}

// run is the worker loop. It exits when the stop channel closes, draining
// nothing: frames still queued at shutdown are discarded with the session.
func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	defer func() {
		if err := w.session.Close(); err != nil {
			slog.Warn("pipeline: closing recognizer session",
				"speaker", w.speaker.ID,
				"error", err,
			)
		}
	}()

	w.metrics.ActiveWorkers.Add(ctx, 1)
	defer w.metrics.ActiveWorkers.Add(ctx, -1)

	for {
		select {
		case <-w.stop:
			return
		case frame := <-w.queue:
			w.process(ctx, frame)
		}
	}
}

func (w *Worker) process(ctx context.Context, frame audio.Frame) {
	if len(frame.Data) == 0 {
		return
	}

	mono := w.mixer.Process(frame.Data)
	if len(mono) == 0 {
		return
	}

	start := time.Now()
	frag, err := w.session.Accept(mono)
	w.metrics.RecognizeDuration.Record(ctx, time.Since(start).Seconds())
	w.metrics.FramesProcessed.Add(ctx, 1)
	if err != nil {
		// A failed chunk does not kill the worker; the next frame may
		// decode fine.
		w.metrics.RecognizeErrors.Add(ctx, 1)
		slog.Warn("pipeline: recognizer rejected audio chunk",
			"speaker", w.speaker.ID,
			"error", err,
		)
		return
	}

	if frag.Text != "" {
		hits := w.matcher.Check(ctx, w.speaker, frag.Text, time.Now())
		for _, hit := range hits {
			w.metrics.RecordHit(ctx, hit.Keyword)
		}
	}

	// A final fragment ends the utterance; the session starts fresh so the
	// same words in the next utterance count again after the debounce.
	if frag.Kind == recognizer.KindFinal {
		w.session.Reset()
	}
}

// halt signals the worker loop to exit and waits for it to finish.
func (w *Worker) halt() {
	close(w.stop)
	<-w.done
}
