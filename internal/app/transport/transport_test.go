package transport

import (
	"context"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/tapedeck/internal/app/mode"
	"github.com/osa030/tapedeck/internal/domain/track"
)

func TestSequencer_StampIsMonotonic(t *testing.T) {
	var seq Sequencer
	a, b := Command{Kind: CommandPlay}, Command{Kind: CommandPause}

	assert.Equal(t, uint64(1), seq.Stamp(&a))
	assert.Equal(t, uint64(2), seq.Stamp(&b))
	assert.Equal(t, uint64(1), a.Seq)
	assert.Equal(t, uint64(2), b.Seq)
	assert.Equal(t, uint64(2), seq.Last())
	assert.Equal(t, uint64(0), seq.Floor())
}

func TestSequencer_DropsEventsOlderThanLatestLoad(t *testing.T) {
	var seq Sequencer
	first := Command{Kind: CommandLoad}
	seq.Stamp(&first)
	play := Command{Kind: CommandPlay}
	seq.Stamp(&play)
	second := Command{Kind: CommandLoad}
	seq.Stamp(&second)

	assert.False(t, seq.Accept(Event{Seq: first.Seq, Kind: EventProgress}))
	assert.False(t, seq.Accept(Event{Seq: play.Seq, Kind: EventStateChanged}))
	assert.True(t, seq.Accept(Event{Seq: second.Seq, Kind: EventStateChanged}))
	assert.Equal(t, uint64(3), seq.Floor())
}

func TestSequencer_StopCancelsEarlierCommands(t *testing.T) {
	var seq Sequencer
	load := Command{Kind: CommandLoad}
	seq.Stamp(&load)
	play := Command{Kind: CommandPlay}
	seq.Stamp(&play)
	stop := Command{Kind: CommandStop}
	seq.Stamp(&stop)

	assert.False(t, seq.Accept(Event{Seq: play.Seq, Kind: EventStateChanged}))
	assert.True(t, seq.Accept(Event{Seq: stop.Seq, Kind: EventStateChanged}))
	assert.Equal(t, stop.Seq, seq.Floor())
}

func TestSequencer_Fence(t *testing.T) {
	var seq Sequencer
	load := Command{Kind: CommandLoad}
	seq.Stamp(&load)

	seq.Fence()
	assert.False(t, seq.Accept(Event{Seq: load.Seq, Kind: EventProgress}))

	play := Command{Kind: CommandPlay}
	seq.Stamp(&play)
	assert.True(t, seq.Accept(Event{Seq: play.Seq, Kind: EventStateChanged}))
}

func TestSequencer_DropsOutOfOrderEvents(t *testing.T) {
	var seq Sequencer
	for range 5 {
		c := Command{Kind: CommandPlay}
		seq.Stamp(&c)
	}

	assert.True(t, seq.Accept(Event{Seq: 4}))
	assert.True(t, seq.Accept(Event{Seq: 4}), "same sequence twice is fine")
	assert.False(t, seq.Accept(Event{Seq: 3}))
	assert.True(t, seq.Accept(Event{Seq: 5}))
}

func TestEvent_Err(t *testing.T) {
	assert.NoError(t, Event{Kind: EventProgress}.Err())

	err := Event{Kind: EventError, Code: "decode", Message: "bad frame"}.Err()
	assert.True(t, errors.Is(err, ErrCommandFailed))
	assert.Contains(t, err.Error(), "decode")

	err = Event{Kind: EventError, Code: "io", Fatal: true}.Err()
	assert.True(t, errors.Is(err, ErrFatal))
}

func TestParseNativeState(t *testing.T) {
	for s := NativeNone; s <= NativeEnded; s++ {
		assert.Equal(t, s, ParseNativeState(s.String()))
	}
	assert.Equal(t, NativePlaying, ParseNativeState("PLAYING"))
	assert.Equal(t, NativeNone, ParseNativeState("bogus"))
	assert.Equal(t, "unknown", NativeState(42).String())
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()

	require.NoError(t, r.Send(ctx, Command{Seq: 1, Kind: CommandLoad}))
	require.NoError(t, r.Send(ctx, Command{Seq: 2, Kind: CommandPlay}))
	r.FailWith(ErrCommandFailed)
	assert.ErrorIs(t, r.Send(ctx, Command{Seq: 3, Kind: CommandPlay}), ErrCommandFailed)

	last, ok := r.Last(CommandPlay)
	require.True(t, ok)
	assert.Equal(t, uint64(3), last.Seq)
	assert.Equal(t, 2, r.Count(CommandPlay))
	assert.Len(t, r.Commands(), 3)

	_, ok = r.Last(CommandSeek)
	assert.False(t, ok)

	r.Emit(Event{Seq: 2, Kind: EventStateChanged, State: NativePlaying})
	ev := <-r.Events()
	assert.Equal(t, NativePlaying, ev.State)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.ErrorIs(t, r.Send(ctx, Command{}), ErrClosed)
}

func nextEvent(t *testing.T, s *Simulated) Event {
	t.Helper()
	ev, ok := <-s.Events()
	require.True(t, ok, "event channel closed")
	return ev
}

func TestSimulated_LoadAutoplayAndEnd(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		s := NewSimulated(SimulatedConfig{
			ConfirmLatency: 100 * time.Millisecond,
			TickInterval:   500 * time.Millisecond,
		})
		defer s.Close()

		ref := track.Ref{ID: "t1", DurationMs: 2000}
		require.NoError(t, s.Send(context.Background(), Command{
			Seq: 1, Kind: CommandLoad, Track: &ref, Index: 3, Autoplay: true,
		}))

		ev := nextEvent(t, s)
		assert.Equal(t, EventTrackChanged, ev.Kind)
		assert.Equal(t, 3, ev.Index)
		assert.Equal(t, uint64(1), ev.Seq)

		ev = nextEvent(t, s)
		assert.Equal(t, NativeBuffering, ev.State)
		ev = nextEvent(t, s)
		assert.Equal(t, NativePlaying, ev.State)
		ev = nextEvent(t, s)
		assert.Equal(t, EventProgress, ev.Kind)
		assert.Equal(t, int64(0), ev.Progress.PositionMs)
		assert.Equal(t, int64(2000), ev.Progress.DurationMs)

		var lastPos int64
		for {
			ev = nextEvent(t, s)
			if ev.Kind == EventStateChanged {
				break
			}
			require.Equal(t, EventProgress, ev.Kind)
			assert.GreaterOrEqual(t, ev.Progress.PositionMs, lastPos)
			lastPos = ev.Progress.PositionMs
		}
		assert.Equal(t, NativeEnded, ev.State)
		assert.Equal(t, int64(2000), lastPos)
	})
}

func TestSimulated_PauseSeekStop(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		s := NewSimulated(SimulatedConfig{
			ConfirmLatency: 100 * time.Millisecond,
			TickInterval:   time.Second,
		})
		defer s.Close()
		ctx := context.Background()

		ref := track.Ref{ID: "t1", DurationMs: 60000}
		require.NoError(t, s.Send(ctx, Command{Seq: 1, Kind: CommandLoad, Track: &ref, Autoplay: false}))
		assert.Equal(t, EventTrackChanged, nextEvent(t, s).Kind)
		assert.Equal(t, NativeReady, nextEvent(t, s).State)
		assert.Equal(t, EventProgress, nextEvent(t, s).Kind)

		require.NoError(t, s.Send(ctx, Command{Seq: 2, Kind: CommandPlay}))
		ev := nextEvent(t, s)
		assert.Equal(t, NativePlaying, ev.State)
		assert.Equal(t, uint64(2), ev.Seq)
		assert.Equal(t, EventProgress, nextEvent(t, s).Kind)

		require.NoError(t, s.Send(ctx, Command{Seq: 3, Kind: CommandPause}))
		ev = nextEvent(t, s)
		assert.Equal(t, NativePaused, ev.State)
		assert.Equal(t, uint64(3), ev.Seq)

		require.NoError(t, s.Send(ctx, Command{Seq: 4, Kind: CommandSeek, PositionMs: 90000}))
		ev = nextEvent(t, s)
		assert.Equal(t, EventProgress, ev.Kind)
		assert.Equal(t, int64(60000), ev.Progress.PositionMs, "seek clamps to duration")

		require.NoError(t, s.Send(ctx, Command{Seq: 5, Kind: CommandStop}))
		assert.Equal(t, NativeStopped, nextEvent(t, s).State)
	})
}

func TestSimulated_PlayWithoutTrack(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		s := NewSimulated(SimulatedConfig{})
		defer s.Close()

		require.NoError(t, s.Send(context.Background(), Command{Seq: 1, Kind: CommandPlay}))

		ev := nextEvent(t, s)
		assert.Equal(t, EventError, ev.Kind)
		assert.False(t, ev.Fatal)
		assert.ErrorIs(t, ev.Err(), ErrCommandFailed)
	})
}

func TestSimulated_RepeatOneLoops(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		s := NewSimulated(SimulatedConfig{TickInterval: 500 * time.Millisecond})
		defer s.Close()
		ctx := context.Background()

		require.NoError(t, s.Send(ctx, Command{Seq: 1, Kind: CommandSetRepeat, Repeat: mode.RepeatOne}))
		ref := track.Ref{ID: "t1", DurationMs: 1000}
		require.NoError(t, s.Send(ctx, Command{Seq: 2, Kind: CommandLoad, Track: &ref, Autoplay: true}))

		sawProgress, looped := false, false
		for !looped {
			ev := nextEvent(t, s)
			require.NotEqual(t, NativeEnded, ev.State)
			if ev.Kind != EventProgress {
				continue
			}
			if ev.Progress.PositionMs > 0 {
				sawProgress = true
			} else if sawProgress {
				looped = true
			}
		}
	})
}

func TestSimulated_SendAfterClose(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		s := NewSimulated(SimulatedConfig{})
		require.NoError(t, s.Close())
		require.NoError(t, s.Close())

		assert.ErrorIs(t, s.Send(context.Background(), Command{Kind: CommandPlay}), ErrClosed)
		_, ok := <-s.Events()
		assert.False(t, ok)
	})
}

func TestSimulated_ConcurrentClose(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		s := NewSimulated(SimulatedConfig{})

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, s.Close())
			}()
		}
		wg.Wait()

		_, ok := <-s.Events()
		assert.False(t, ok)
	})
}
