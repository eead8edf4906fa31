package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/tallyvox/internal/counter"
	"github.com/MrWong99/tallyvox/internal/pipeline"
	"github.com/MrWong99/tallyvox/pkg/audio"
	storemock "github.com/MrWong99/tallyvox/pkg/countstore/mock"
	"github.com/MrWong99/tallyvox/pkg/recognizer"
	recmock "github.com/MrWong99/tallyvox/pkg/recognizer/mock"
)

type fixture struct {
	router *pipeline.Router
	engine *recmock.Engine
	tally  *counter.Tally
	store  *storemock.Store
}

func newFixture(t *testing.T, keywords []string) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	engine := recmock.NewEngine()
	tally := counter.NewTally()
	store := storemock.NewStore()
	router := pipeline.NewRouter(ctx, pipeline.RouterConfig{
		Engine:        engine,
		SessionConfig: recognizer.SessionConfig{SampleRate: 16000},
		Keywords:      keywords,
		Debounce:      2 * time.Second,
		Tally:         tally,
		Store:         store,
		SourceRate:    48000,
		TargetRate:    16000,
	})
	t.Cleanup(router.Shutdown)
	return &fixture{router: router, engine: engine, tally: tally, store: store}
}

// stereoFrame returns a 48 kHz stereo frame of n sample pairs of silence.
func stereoFrame(n int) audio.Frame {
	return audio.Frame{
		Data:       make([]byte, n*4),
		SampleRate: 48000,
		Channels:   2,
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached within deadline")
}

var speaker = audio.Speaker{ID: "42", DisplayName: "alice"}

func TestDispatch_GrowingTranscriptCountsOnce(t *testing.T) {
	f := newFixture(t, []string{"hello"})
	f.engine.OnNewSession = func(s *recmock.Session) {
		s.Enqueue(
			recognizer.Partial("hell"),
			recognizer.Partial("hello there"),
			recognizer.Final("hello there friend"),
		)
	}

	for range 3 {
		f.router.Dispatch(speaker, stereoFrame(960))
	}

	waitFor(t, func() bool {
		sessions := f.engine.Sessions()
		return len(sessions) == 1 && len(sessions[0].Accepted()) == 3
	})

	// The growing transcript repeats the keyword but the debounce collapses
	// it to a single hit, persisted exactly once.
	if got := f.tally.Count("42", "hello"); got != 1 {
		t.Errorf("count: got %d, want 1", got)
	}
	if calls := f.store.Calls(); len(calls) != 1 {
		t.Errorf("store calls: got %d, want 1", len(calls))
	}

	// The final fragment ends the utterance and resets the session.
	waitFor(t, func() bool { return f.engine.Sessions()[0].Resets() == 1 })
}

func TestDispatch_OneWorkerPerSpeaker(t *testing.T) {
	f := newFixture(t, []string{"hello"})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.router.Dispatch(speaker, stereoFrame(960))
		}()
	}
	wg.Wait()

	if got := f.router.WorkerCount(); got != 1 {
		t.Errorf("worker count: got %d, want 1", got)
	}

	// Racing dispatches may create extra candidate sessions, but every
	// loser must be closed again.
	open := 0
	for _, s := range f.engine.Sessions() {
		if !s.Closed() {
			open++
		}
	}
	if open != 1 {
		t.Errorf("open sessions: got %d, want 1", open)
	}
}

func TestDispatch_SpeakerIsolation(t *testing.T) {
	f := newFixture(t, []string{"hello"})
	f.engine.OnNewSession = func(s *recmock.Session) {
		s.Enqueue(recognizer.Final("hello"))
	}
	bob := audio.Speaker{ID: "7", DisplayName: "bob"}

	f.router.Dispatch(speaker, stereoFrame(960))
	f.router.Dispatch(bob, stereoFrame(960))

	waitFor(t, func() bool {
		return f.tally.Count("42", "hello") == 1 && f.tally.Count("7", "hello") == 1
	})

	if got := f.router.WorkerCount(); got != 2 {
		t.Errorf("worker count: got %d, want 2", got)
	}
}

func TestDispatch_DropsBotsAndEmptyIDs(t *testing.T) {
	f := newFixture(t, []string{"hello"})

	f.router.Dispatch(audio.Speaker{ID: "9", Bot: true}, stereoFrame(960))
	f.router.Dispatch(audio.Speaker{ID: ""}, stereoFrame(960))

	if got := len(f.engine.Sessions()); got != 0 {
		t.Errorf("sessions created: got %d, want 0", got)
	}
}

func TestDispatch_AfterShutdownIsNoop(t *testing.T) {
	f := newFixture(t, []string{"hello"})

	f.router.Dispatch(speaker, stereoFrame(960))
	f.router.Shutdown()

	before := len(f.engine.Sessions())
	f.router.Dispatch(speaker, stereoFrame(960))
	f.router.Dispatch(audio.Speaker{ID: "7"}, stereoFrame(960))

	if got := len(f.engine.Sessions()); got != before {
		t.Errorf("sessions after shutdown: got %d, want %d", got, before)
	}
	if got := f.router.WorkerCount(); got != 0 {
		t.Errorf("worker count after shutdown: got %d, want 0", got)
	}
}

func TestShutdown_ClosesSessions(t *testing.T) {
	f := newFixture(t, []string{"hello"})

	f.router.Dispatch(speaker, stereoFrame(960))
	f.router.Shutdown()

	sessions := f.engine.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("sessions: got %d, want 1", len(sessions))
	}
	if !sessions[0].Closed() {
		t.Error("session not closed after shutdown")
	}
}

func TestSpeakerLeft_StopsOnlyThatWorker(t *testing.T) {
	f := newFixture(t, []string{"hello"})
	bob := audio.Speaker{ID: "7", DisplayName: "bob"}

	f.router.Dispatch(speaker, stereoFrame(960))
	f.router.Dispatch(bob, stereoFrame(960))
	f.router.SpeakerLeft("42")

	if got := f.router.WorkerCount(); got != 1 {
		t.Errorf("worker count: got %d, want 1", got)
	}
	for _, s := range f.engine.Sessions() {
		if s.Config.SampleRate != 16000 {
			t.Errorf("session sample rate: got %d, want 16000", s.Config.SampleRate)
		}
	}

	// Leaving again, or with an unknown ID, is harmless.
	f.router.SpeakerLeft("42")
	f.router.SpeakerLeft("unknown")
}

func TestDispatch_SessionErrorDropsFrame(t *testing.T) {
	f := newFixture(t, []string{"hello"})
	f.engine.NewSessionErr = errors.New("model not loaded")

	f.router.Dispatch(speaker, stereoFrame(960))

	if got := f.router.WorkerCount(); got != 0 {
		t.Errorf("worker count: got %d, want 0", got)
	}
}
