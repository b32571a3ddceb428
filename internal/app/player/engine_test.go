package player

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/tapedeck/internal/app/mode"
	"github.com/osa030/tapedeck/internal/app/playback"
	"github.com/osa030/tapedeck/internal/app/presentation"
	"github.com/osa030/tapedeck/internal/app/progress"
	"github.com/osa030/tapedeck/internal/app/queue"
	"github.com/osa030/tapedeck/internal/app/transport"
	"github.com/osa030/tapedeck/internal/domain/track"
)

type harness struct {
	t      *testing.T
	engine *Engine
	rec    *transport.Recorder
	cancel context.CancelFunc
	done   chan struct{}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Rand = rand.New(rand.NewPCG(7, 7))
	return cfg
}

func start(t *testing.T, opts ...Option) *harness {
	t.Helper()
	rec := transport.NewRecorder()
	e := New(testConfig(), rec, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{t: t, engine: e, rec: rec, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		_ = e.Run(ctx)
	}()
	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.cancel()
	<-h.done
}

func (h *harness) snap() Snapshot {
	h.t.Helper()
	s, err := h.engine.Snapshot(context.Background())
	require.NoError(h.t, err)
	return s
}

// emit delivers an event and waits for the engine to settle.
func (h *harness) emit(ev transport.Event) {
	h.rec.Emit(ev)
	synctest.Wait()
}

func (h *harness) lastLoad() transport.Command {
	h.t.Helper()
	cmd, ok := h.rec.Last(transport.CommandLoad)
	require.True(h.t, ok, "no load sent")
	return cmd
}

// confirmPlaying reports the latest load as playing.
func (h *harness) confirmPlaying() {
	h.t.Helper()
	h.emit(transport.Event{Seq: h.lastLoad().Seq, Kind: transport.EventStateChanged, State: transport.NativePlaying})
	require.Equal(h.t, playback.StatePlaying, h.snap().State)
}

func refs(n int) []track.Ref {
	out := make([]track.Ref, n)
	for i := range out {
		out[i] = track.Ref{ID: fmt.Sprintf("t%d", i), Title: fmt.Sprintf("Track %d", i), DurationMs: 180000}
	}
	return out
}

var ctx = context.Background()

func TestEngine_TrackChangeBuffersUntilPlaying(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := start(t)

		require.NoError(t, h.engine.SetQueue(ctx, refs(3), 1))
		s := h.snap()
		assert.Equal(t, playback.StateBuffering, s.State)
		assert.Equal(t, 1, s.Index)

		load := h.lastLoad()
		assert.Equal(t, "t1", load.Track.ID)
		assert.Equal(t, 1, load.Index)
		assert.True(t, load.Autoplay)

		h.emit(transport.Event{Seq: load.Seq, Kind: transport.EventStateChanged, State: transport.NativePlaying})
		assert.Equal(t, playback.StatePlaying, h.snap().State)
	})
}

func TestEngine_PlayIntentDoesNotEndBuffering(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := start(t)
		require.NoError(t, h.engine.SetQueue(ctx, refs(2), 0))

		require.NoError(t, h.engine.Play(ctx))

		assert.Equal(t, playback.StateBuffering, h.snap().State)
		assert.Equal(t, 0, h.rec.Count(transport.CommandPlay))
	})
}

func TestEngine_RemoveLastTrackStops(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := start(t)
		require.NoError(t, h.engine.SetQueue(ctx, refs(1), 0))
		h.confirmPlaying()

		require.NoError(t, h.engine.Remove(ctx, 0))

		s := h.snap()
		assert.Equal(t, playback.StateStopped, s.State)
		assert.Equal(t, -1, s.Index)
		assert.Nil(t, s.Current)
		_, ok := h.rec.Last(transport.CommandStop)
		assert.True(t, ok)

		require.NoError(t, h.engine.Acknowledge(ctx))
		assert.Equal(t, playback.StateNone, h.snap().State)
		assert.True(t, errors.Is(h.engine.Acknowledge(ctx), playback.ErrInvalidTransition))
	})
}

func TestEngine_RemoveCurrentLoadsShiftedTrack(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := start(t)
		require.NoError(t, h.engine.SetQueue(ctx, refs(3), 1))
		h.confirmPlaying()

		require.NoError(t, h.engine.Remove(ctx, 1))

		s := h.snap()
		assert.Equal(t, 1, s.Index)
		assert.Equal(t, "t2", s.Current.Ref.ID)
		assert.Equal(t, playback.StateBuffering, s.State)
		assert.Equal(t, "t2", h.lastLoad().Track.ID)
	})
}

func TestEngine_PauseTimesOutAndReverts(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := start(t)
		require.NoError(t, h.engine.SetQueue(ctx, refs(2), 0))
		h.confirmPlaying()

		require.NoError(t, h.engine.Pause(ctx))
		s := h.snap()
		assert.Equal(t, playback.StatePaused, s.State)
		assert.True(t, s.Pending)

		time.Sleep(testConfig().ConfirmTimeout + time.Millisecond)
		synctest.Wait()

		s = h.snap()
		assert.Equal(t, playback.StatePlaying, s.State)
		assert.False(t, s.Pending)
		require.Len(t, s.Notices, 1)
		assert.Equal(t, NoticeCommandTimeout, s.Notices[0].Kind)

		require.NoError(t, h.engine.DismissNotice(ctx, s.Notices[0].ID))
		assert.Empty(t, h.snap().Notices)
		assert.True(t, errors.Is(h.engine.DismissNotice(ctx, "nope"), ErrNoticeNotFound))
	})
}

func TestEngine_PauseConfirmedBeforeTimeout(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := start(t)
		require.NoError(t, h.engine.SetQueue(ctx, refs(2), 0))
		h.confirmPlaying()

		require.NoError(t, h.engine.Toggle(ctx))
		pause, ok := h.rec.Last(transport.CommandPause)
		require.True(t, ok)
		h.emit(transport.Event{Seq: pause.Seq, Kind: transport.EventStateChanged, State: transport.NativePaused})

		time.Sleep(testConfig().ConfirmTimeout * 2)
		synctest.Wait()

		s := h.snap()
		assert.Equal(t, playback.StatePaused, s.State)
		assert.Empty(t, s.Notices)

		require.NoError(t, h.engine.Toggle(ctx))
		assert.Equal(t, playback.StatePlaying, h.snap().State)
		assert.Equal(t, 1, h.rec.Count(transport.CommandPlay))
	})
}

func TestEngine_StaleEventsDiscarded(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := start(t)
		require.NoError(t, h.engine.SetQueue(ctx, refs(3), 0))
		first := h.lastLoad()
		require.NoError(t, h.engine.Next(ctx))
		second := h.lastLoad()
		require.Greater(t, second.Seq, first.Seq)

		h.emit(transport.Event{Seq: first.Seq, Kind: transport.EventStateChanged, State: transport.NativePlaying})
		h.emit(transport.Event{Seq: first.Seq, Kind: transport.EventProgress,
			Progress: progress.Sample{PositionMs: 90000, DurationMs: 180000}})

		s := h.snap()
		assert.Equal(t, playback.StateBuffering, s.State)
		assert.Equal(t, int64(0), s.Progress.PositionMs)

		h.emit(transport.Event{Seq: second.Seq, Kind: transport.EventStateChanged, State: transport.NativePlaying})
		assert.Equal(t, playback.StatePlaying, h.snap().State)
	})
}

func TestEngine_EndedAdvancesThenStops(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := start(t)
		require.NoError(t, h.engine.SetQueue(ctx, refs(2), 0))
		h.confirmPlaying()

		h.emit(transport.Event{Seq: h.lastLoad().Seq, Kind: transport.EventStateChanged, State: transport.NativeEnded})
		s := h.snap()
		assert.Equal(t, 1, s.Index)
		assert.Equal(t, playback.StateBuffering, s.State)
		assert.Equal(t, "t1", h.lastLoad().Track.ID)

		h.confirmPlaying()
		h.emit(transport.Event{Seq: h.lastLoad().Seq, Kind: transport.EventStateChanged, State: transport.NativeEnded})
		s = h.snap()
		assert.Equal(t, playback.StateStopped, s.State)
		assert.Equal(t, 1, s.Index, "end of queue keeps the index")
	})
}

func TestEngine_EndedWithRepeatAllWraps(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := start(t)
		require.NoError(t, h.engine.SetQueue(ctx, refs(2), 1))
		require.NoError(t, h.engine.SetRepeat(ctx, mode.RepeatAll))
		repeat, ok := h.rec.Last(transport.CommandSetRepeat)
		require.True(t, ok)
		assert.Equal(t, mode.RepeatAll, repeat.Repeat)
		h.confirmPlaying()

		h.emit(transport.Event{Seq: h.rec.Commands()[len(h.rec.Commands())-1].Seq, Kind: transport.EventStateChanged, State: transport.NativeEnded})

		assert.Equal(t, 0, h.snap().Index)
	})
}

func TestEngine_NextAtEndOfQueue(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := start(t)
		require.NoError(t, h.engine.SetQueue(ctx, refs(2), 1))

		err := h.engine.Next(ctx)

		assert.True(t, errors.Is(err, queue.ErrEndOfQueue))
		assert.Equal(t, 1, h.snap().Index)
	})
}

func TestEngine_PreviousRestartsPastThreshold(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := start(t)
		require.NoError(t, h.engine.SetQueue(ctx, refs(3), 2))
		h.confirmPlaying()
		load := h.lastLoad()

		h.emit(transport.Event{Seq: load.Seq, Kind: transport.EventProgress,
			Progress: progress.Sample{PositionMs: 5000, DurationMs: 180000}})
		require.NoError(t, h.engine.Previous(ctx))

		seek, ok := h.rec.Last(transport.CommandSeek)
		require.True(t, ok)
		assert.Equal(t, int64(0), seek.PositionMs)
		assert.Equal(t, 2, h.snap().Index)

		// Transport catches up with the restart.
		h.emit(transport.Event{Seq: seek.Seq, Kind: transport.EventProgress,
			Progress: progress.Sample{PositionMs: 200, DurationMs: 180000}})
		require.NoError(t, h.engine.Previous(ctx))

		s := h.snap()
		assert.Equal(t, 1, s.Index)
		assert.Equal(t, "t1", h.lastLoad().Track.ID)
	})
}

func TestEngine_SeekHoldsStaleTicks(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := start(t)
		require.NoError(t, h.engine.SetQueue(ctx, refs(1), 0))
		h.confirmPlaying()
		load := h.lastLoad()

		require.NoError(t, h.engine.Seek(ctx, 90*time.Second))
		h.emit(transport.Event{Seq: load.Seq, Kind: transport.EventProgress,
			Progress: progress.Sample{PositionMs: 1000, DurationMs: 180000}})

		s := h.snap()
		assert.Equal(t, int64(90000), s.Progress.PositionMs)
		assert.True(t, s.Progress.Seeking)

		time.Sleep(testConfig().SeekTimeout + time.Millisecond)
		synctest.Wait()
		s = h.snap()
		assert.False(t, s.Progress.Seeking)
		assert.Equal(t, int64(1000), s.Progress.PositionMs)
	})
}

func TestEngine_SeekRequiresTrack(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := start(t)
		err := h.engine.Seek(ctx, time.Second)
		assert.True(t, errors.Is(err, playback.ErrInvalidTransition))
	})
}

func TestEngine_DurationCorrection(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := start(t)
		require.NoError(t, h.engine.SetQueue(ctx, refs(2), 0))
		before := h.snap().Items[0].InstanceID

		h.emit(transport.Event{Seq: h.lastLoad().Seq, Kind: transport.EventProgress,
			Progress: progress.Sample{PositionMs: 0, DurationMs: 181500}})

		s := h.snap()
		assert.Equal(t, int64(181500), s.Items[0].Ref.DurationMs)
		assert.Equal(t, before, s.Items[0].InstanceID)
		assert.Equal(t, int64(181500), s.Progress.DurationMs)
	})
}

func TestEngine_FatalErrorStops(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := start(t)
		require.NoError(t, h.engine.SetQueue(ctx, refs(2), 0))
		h.confirmPlaying()

		h.emit(transport.Event{Seq: h.lastLoad().Seq, Kind: transport.EventError,
			Code: "decoder", Message: "corrupt stream", Fatal: true})

		s := h.snap()
		assert.Equal(t, playback.StateStopped, s.State)
		require.Len(t, s.Notices, 1)
		assert.Equal(t, NoticeFatal, s.Notices[0].Kind)
		assert.Contains(t, s.Notices[0].Message, "corrupt stream")

		// Play from Stopped reloads the current track.
		require.NoError(t, h.engine.Play(ctx))
		assert.Equal(t, playback.StateBuffering, h.snap().State)
		assert.Equal(t, 2, h.rec.Count(transport.CommandLoad))
	})
}

func TestEngine_RejectedCommandReverts(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := start(t)
		require.NoError(t, h.engine.SetQueue(ctx, refs(2), 0))
		h.confirmPlaying()

		require.NoError(t, h.engine.Pause(ctx))
		pause, _ := h.rec.Last(transport.CommandPause)
		h.emit(transport.Event{Seq: pause.Seq, Kind: transport.EventError, Code: "busy", Message: "audio focus lost"})

		s := h.snap()
		assert.Equal(t, playback.StatePlaying, s.State)
		require.Len(t, s.Notices, 1)
		assert.Equal(t, NoticeCommandFailed, s.Notices[0].Kind)
	})
}

func TestEngine_LateConfirmationAfterClearIgnored(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := start(t)
		require.NoError(t, h.engine.SetQueue(ctx, refs(2), 0))
		h.confirmPlaying()
		require.NoError(t, h.engine.Pause(ctx))
		require.NoError(t, h.engine.Play(ctx))
		play, ok := h.rec.Last(transport.CommandPlay)
		require.True(t, ok)

		require.NoError(t, h.engine.Clear(ctx))
		require.NoError(t, h.engine.Acknowledge(ctx))
		require.Equal(t, playback.StateNone, h.snap().State)

		h.emit(transport.Event{Seq: play.Seq, Kind: transport.EventStateChanged, State: transport.NativePlaying})

		s := h.snap()
		assert.Equal(t, playback.StateNone, s.State)
		assert.Equal(t, -1, s.Index)
		assert.Empty(t, s.Items)
	})
}

func TestEngine_EventsAfterFatalErrorIgnored(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := start(t)
		require.NoError(t, h.engine.SetQueue(ctx, refs(2), 0))
		load := h.lastLoad()

		h.emit(transport.Event{Seq: load.Seq, Kind: transport.EventError,
			Code: "decoder", Message: "corrupt stream", Fatal: true})
		h.emit(transport.Event{Seq: load.Seq, Kind: transport.EventStateChanged, State: transport.NativePlaying})
		h.emit(transport.Event{Seq: load.Seq, Kind: transport.EventProgress,
			Progress: progress.Sample{PositionMs: 5000, DurationMs: 180000}})

		s := h.snap()
		assert.Equal(t, playback.StateStopped, s.State)
		assert.Equal(t, int64(0), s.Progress.PositionMs)
	})
}

func TestEngine_FailedLoadStops(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := start(t)
		require.NoError(t, h.engine.SetQueue(ctx, refs(2), 0))
		load := h.lastLoad()
		require.Equal(t, playback.StateBuffering, h.snap().State)

		h.emit(transport.Event{Seq: load.Seq, Kind: transport.EventError, Code: "network", Message: "host unreachable"})

		s := h.snap()
		assert.Equal(t, playback.StateStopped, s.State)
		assert.Equal(t, 0, s.Index, "the queue keeps its position")
		require.Len(t, s.Notices, 1)
		assert.Equal(t, NoticeCommandFailed, s.Notices[0].Kind)
		assert.Contains(t, s.Notices[0].Message, "host unreachable")
		stop, ok := h.rec.Last(transport.CommandStop)
		require.True(t, ok)
		assert.Greater(t, stop.Seq, load.Seq)

		// A late confirmation of the failed load changes nothing.
		h.emit(transport.Event{Seq: load.Seq, Kind: transport.EventStateChanged, State: transport.NativePlaying})
		assert.Equal(t, playback.StateStopped, h.snap().State)

		// Play reloads the track.
		require.NoError(t, h.engine.Play(ctx))
		assert.Equal(t, playback.StateBuffering, h.snap().State)
		assert.Equal(t, 2, h.rec.Count(transport.CommandLoad))
	})
}

func TestEngine_LatePauseConfirmationAfterPlay(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := start(t)
		require.NoError(t, h.engine.SetQueue(ctx, refs(2), 0))
		h.confirmPlaying()

		require.NoError(t, h.engine.Pause(ctx))
		pause, _ := h.rec.Last(transport.CommandPause)
		require.NoError(t, h.engine.Play(ctx))
		play, _ := h.rec.Last(transport.CommandPlay)
		require.Greater(t, play.Seq, pause.Seq)
		require.Equal(t, playback.StatePlaying, h.snap().State)

		h.emit(transport.Event{Seq: pause.Seq, Kind: transport.EventStateChanged, State: transport.NativePaused})

		s := h.snap()
		assert.Equal(t, playback.StatePlaying, s.State)
		assert.True(t, s.Pending)
		assert.Empty(t, s.Notices)

		h.emit(transport.Event{Seq: play.Seq, Kind: transport.EventStateChanged, State: transport.NativePlaying})

		s = h.snap()
		assert.Equal(t, playback.StatePlaying, s.State)
		assert.False(t, s.Pending)
		assert.Empty(t, s.Notices)
	})
}

func TestEngine_SendFailureBecomesNotice(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := start(t)
		require.NoError(t, h.engine.SetQueue(ctx, refs(2), 0))
		h.confirmPlaying()
		h.rec.FailWith(transport.ErrCommandFailed)

		err := h.engine.Pause(ctx)

		assert.True(t, errors.Is(err, transport.ErrCommandFailed))
		s := h.snap()
		assert.Equal(t, playback.StatePlaying, s.State)
		assert.Len(t, s.Notices, 1)
	})
}

func TestEngine_PlayFromNoneStartsQueue(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := start(t)
		assert.True(t, errors.Is(h.engine.Play(ctx), queue.ErrEmpty))

		require.NoError(t, h.engine.Add(ctx, refs(2)...))
		assert.Equal(t, -1, h.snap().Index)

		require.NoError(t, h.engine.Play(ctx))
		s := h.snap()
		assert.Equal(t, 0, s.Index)
		assert.Equal(t, playback.StateBuffering, s.State)
	})
}

func TestEngine_QueueEditsKeepCurrent(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := start(t)
		require.NoError(t, h.engine.SetQueue(ctx, refs(3), 1))
		loads := h.rec.Count(transport.CommandLoad)

		require.NoError(t, h.engine.InsertNext(ctx, track.Ref{ID: "next"}))
		require.NoError(t, h.engine.Reorder(ctx, 0, 3))
		require.NoError(t, h.engine.Remove(ctx, 3))

		s := h.snap()
		assert.Equal(t, "t1", s.Current.Ref.ID)
		assert.Equal(t, []string{"t1", "next", "t2"}, []string{s.Items[0].Ref.ID, s.Items[1].Ref.ID, s.Items[2].Ref.ID})
		assert.Equal(t, loads, h.rec.Count(transport.CommandLoad), "no reload")

		assert.True(t, errors.Is(h.engine.Remove(ctx, 10), queue.ErrOutOfRange))
	})
}

func TestEngine_ShuffleAndRepeat(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := start(t)

		on, err := h.engine.ToggleShuffle(ctx)
		require.NoError(t, err)
		assert.True(t, on)
		r, err := h.engine.CycleRepeat(ctx)
		require.NoError(t, err)
		assert.Equal(t, mode.RepeatAll, r)

		require.NoError(t, h.engine.SetShuffle(ctx, false))
		assert.Equal(t, mode.State{Shuffle: false, Repeat: mode.RepeatAll}, h.snap().Mode)
	})
}

func TestEngine_SubscribeReceivesSnapshots(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := start(t)
		sub, err := h.engine.Subscribe(ctx, 8)
		require.NoError(t, err)

		first := <-sub.C
		assert.Equal(t, playback.StateNone, first.Payload.State)

		require.NoError(t, h.engine.SetQueue(ctx, refs(1), 0))
		env := <-sub.C
		assert.Equal(t, playback.StateBuffering, env.Payload.State)
		require.NotNil(t, env.Payload.Change)
		assert.Equal(t, playback.StateBuffering, env.Payload.Change.Current)
		assert.Greater(t, env.SequenceNo, first.SequenceNo)

		h.engine.Unsubscribe(sub.ID)
		for range sub.C {
		}
	})
}

func TestEngine_NewPresentationUsesConfig(t *testing.T) {
	e := New(testConfig(), transport.NewRecorder())
	p := e.NewPresentation()

	p.Begin()
	assert.Equal(t, presentation.SnapComplete, p.End(-40, -1200))
	assert.Equal(t, presentation.ModeFull, p.State().Mode)
}

func TestEngine_StoppedEngineRejectsIntents(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := start(t)
		h.stop()

		assert.True(t, errors.Is(h.engine.Play(ctx), ErrStopped))
	})
}

type memSaver struct {
	mu      sync.Mutex
	saved   *Session
	saves   int
	initial *Session
}

func (m *memSaver) SaveSession(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = &s
	m.saves++
	return nil
}

func (m *memSaver) LoadSession(context.Context) (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initial == nil {
		return Session{}, false, nil
	}
	return *m.initial, true, nil
}

func (m *memSaver) last() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved
}

func TestEngine_PersistsSession(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		saver := &memSaver{}
		h := start(t, WithSaver(saver))

		require.NoError(t, h.engine.SetQueue(ctx, refs(3), 2))
		require.NoError(t, h.engine.SetShuffle(ctx, true))
		synctest.Wait()

		s := saver.last()
		require.NotNil(t, s)
		assert.Len(t, s.Items, 3)
		assert.Equal(t, 2, s.Index)
		assert.True(t, s.Mode.Shuffle)
	})
}

func TestEngine_RestoresWithoutAutoplay(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		entries := track.NewEntries(refs(3))
		saver := &memSaver{initial: &Session{
			Items:      entries,
			Index:      1,
			Mode:       mode.State{Repeat: mode.RepeatOne},
			PositionMs: 42000,
		}}
		h := start(t, WithSaver(saver))

		s := h.snap()
		assert.Equal(t, playback.StateNone, s.State)
		assert.Equal(t, 1, s.Index)
		assert.Equal(t, entries[1].InstanceID, s.Current.InstanceID)
		assert.Equal(t, int64(42000), s.Progress.PositionMs)
		assert.Equal(t, mode.RepeatOne, s.Mode.Repeat)
		assert.Equal(t, 0, h.rec.Count(transport.CommandLoad))

		require.NoError(t, h.engine.Play(ctx))
		load := h.lastLoad()
		assert.Equal(t, "t1", load.Track.ID)
		seek, ok := h.rec.Last(transport.CommandSeek)
		require.True(t, ok)
		assert.Equal(t, int64(42000), seek.PositionMs)
		assert.Greater(t, seek.Seq, load.Seq)
	})
}

func TestEngine_FinalSaveOnShutdown(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		saver := &memSaver{}
		h := start(t, WithSaver(saver))
		require.NoError(t, h.engine.SetQueue(ctx, refs(2), 0))
		h.emit(transport.Event{Seq: h.lastLoad().Seq, Kind: transport.EventProgress,
			Progress: progress.Sample{PositionMs: 12000, DurationMs: 180000}})

		h.stop()

		s := saver.last()
		require.NotNil(t, s)
		assert.Equal(t, int64(12000), s.PositionMs)
	})
}
