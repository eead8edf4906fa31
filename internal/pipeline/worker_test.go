package pipeline_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/tallyvox/pkg/audio"
	recmock "github.com/MrWong99/tallyvox/pkg/recognizer/mock"
)

func TestWorker_SurvivesAcceptErrors(t *testing.T) {
	f := newFixture(t, []string{"hello"})
	f.engine.OnNewSession = func(s *recmock.Session) {
		s.AcceptErr = errors.New("corrupt chunk")
	}

	f.router.Dispatch(speaker, stereoFrame(960))
	f.router.Dispatch(speaker, stereoFrame(960))

	waitFor(t, func() bool {
		sessions := f.engine.Sessions()
		return len(sessions) == 1 && len(sessions[0].Accepted()) == 2
	})

	// Both chunks reached the session despite the first one failing.
	if got := f.router.WorkerCount(); got != 1 {
		t.Errorf("worker count: got %d, want 1", got)
	}
	if calls := f.store.Calls(); len(calls) != 0 {
		t.Errorf("store calls: got %d, want 0", len(calls))
	}
}

func TestWorker_IgnoresEmptyFrames(t *testing.T) {
	f := newFixture(t, []string{"hello"})

	f.router.Dispatch(speaker, audio.Frame{SampleRate: 48000, Channels: 2})
	f.router.Dispatch(speaker, stereoFrame(960))

	waitFor(t, func() bool {
		sessions := f.engine.Sessions()
		return len(sessions) == 1 && len(sessions[0].Accepted()) == 1
	})

	// Only the non-empty frame was recognised; the empty one was skipped
	// before the session.
	if got := len(f.engine.Sessions()[0].Accepted()[0]); got == 0 {
		t.Error("accepted chunk is empty")
	}
}

func TestWorker_ResampledChunkLength(t *testing.T) {
	f := newFixture(t, []string{"hello"})

	// 960 stereo sample pairs at 48 kHz downmix to 320 mono samples at
	// 16 kHz, i.e. 640 bytes.
	f.router.Dispatch(speaker, stereoFrame(960))

	waitFor(t, func() bool {
		sessions := f.engine.Sessions()
		return len(sessions) == 1 && len(sessions[0].Accepted()) == 1
	})

	if got := len(f.engine.Sessions()[0].Accepted()[0]); got != 640 {
		t.Errorf("mono chunk length: got %d bytes, want 640", got)
	}
}
