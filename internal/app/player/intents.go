package player

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/tapedeck/internal/app/mode"
	"github.com/osa030/tapedeck/internal/app/notification"
	"github.com/osa030/tapedeck/internal/app/playback"
	"github.com/osa030/tapedeck/internal/app/queue"
	"github.com/osa030/tapedeck/internal/app/transport"
	"github.com/osa030/tapedeck/internal/domain/track"
)

// SetQueue replaces the queue and starts playing at startIndex.
func (e *Engine) SetQueue(ctx context.Context, refs []track.Ref, startIndex int) error {
	return e.call(ctx, func() error {
		if err := e.queue.SetQueue(refs, startIndex); err != nil {
			return err
		}
		e.scheduleSave()
		return nil
	})
}

// Add appends tracks to the queue.
func (e *Engine) Add(ctx context.Context, refs ...track.Ref) error {
	return e.mutate(ctx, func() error { return e.queue.Add(refs...) })
}

// InsertNext queues a track to play right after the current one.
func (e *Engine) InsertNext(ctx context.Context, ref track.Ref) error {
	return e.mutate(ctx, func() error { return e.queue.InsertNext(ref) })
}

// Remove removes the entry at index.
func (e *Engine) Remove(ctx context.Context, index int) error {
	return e.mutate(ctx, func() error { return e.queue.Remove(index) })
}

// Reorder moves the entry at from to to.
func (e *Engine) Reorder(ctx context.Context, from, to int) error {
	return e.mutate(ctx, func() error { return e.queue.Reorder(from, to) })
}

// JumpTo plays the entry at index.
func (e *Engine) JumpTo(ctx context.Context, index int) error {
	return e.mutate(ctx, func() error { return e.queue.JumpTo(index) })
}

// Clear empties the queue and stops playback.
func (e *Engine) Clear(ctx context.Context) error {
	return e.mutate(ctx, func() error {
		e.queue.Clear()
		return nil
	})
}

// Next skips to the next track. At the end of the queue with repeat off it
// returns queue.ErrEndOfQueue and nothing changes.
func (e *Engine) Next(ctx context.Context) error {
	return e.mutate(ctx, e.queue.Advance)
}

// Previous restarts the current track when it has played past the restart
// threshold, and goes back one track otherwise.
func (e *Engine) Previous(ctx context.Context) error {
	return e.call(ctx, func() error {
		if e.machine.State().Active() && e.progress.Position() > e.config.PreviousRestartThreshold {
			return e.seek(0)
		}
		if err := e.queue.Rewind(); err != nil {
			return err
		}
		e.scheduleSave()
		return nil
	})
}

// Play starts or resumes playback.
func (e *Engine) Play(ctx context.Context) error {
	return e.call(ctx, e.play)
}

// Pause pauses playback.
func (e *Engine) Pause(ctx context.Context) error {
	return e.call(ctx, e.pause)
}

// Toggle pauses when playing (or about to) and plays otherwise.
func (e *Engine) Toggle(ctx context.Context) error {
	return e.call(ctx, func() error {
		pending, ok := e.machine.Pending()
		switch e.machine.State() {
		case playback.StatePlaying:
			return e.pause()
		case playback.StateBuffering:
			if ok && pending.Target == playback.StatePaused {
				return e.play()
			}
			return e.pause()
		default:
			return e.play()
		}
	})
}

// Seek moves the playback position of the current track.
func (e *Engine) Seek(ctx context.Context, position time.Duration) error {
	return e.call(ctx, func() error {
		return e.seek(position.Milliseconds())
	})
}

// SetRepeat sets the repeat mode.
func (e *Engine) SetRepeat(ctx context.Context, r mode.Repeat) error {
	return e.call(ctx, func() error {
		e.queue.SetRepeat(r)
		return e.syncRepeat()
	})
}

// CycleRepeat advances the repeat mode (off, all, one) and returns it.
func (e *Engine) CycleRepeat(ctx context.Context) (mode.Repeat, error) {
	var r mode.Repeat
	err := e.call(ctx, func() error {
		r = e.queue.CycleRepeat()
		return e.syncRepeat()
	})
	return r, err
}

// SetShuffle enables or disables shuffle.
func (e *Engine) SetShuffle(ctx context.Context, enabled bool) error {
	return e.call(ctx, func() error {
		e.queue.SetShuffle(enabled)
		e.scheduleSave()
		return nil
	})
}

// ToggleShuffle flips shuffle and returns the new value.
func (e *Engine) ToggleShuffle(ctx context.Context) (bool, error) {
	var on bool
	err := e.call(ctx, func() error {
		on = e.queue.ToggleShuffle()
		e.scheduleSave()
		return nil
	})
	return on, err
}

// Acknowledge clears a stop, moving Stopped to None.
func (e *Engine) Acknowledge(ctx context.Context) error {
	return e.call(ctx, func() error {
		if !e.machine.Acknowledge() {
			return errors.Wrapf(playback.ErrInvalidTransition, "acknowledge in %s", e.machine.State())
		}
		return nil
	})
}

// DismissNotice removes the notice with the given ID.
func (e *Engine) DismissNotice(ctx context.Context, id string) error {
	return e.call(ctx, func() error {
		return e.dismiss(id)
	})
}

// Snapshot returns the current engine state.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := e.call(ctx, func() error {
		snap = e.snapshot()
		return nil
	})
	return snap, err
}

// Subscribe registers for snapshots. The current snapshot is delivered
// right away.
func (e *Engine) Subscribe(ctx context.Context, buffer int) (notification.Subscription[Snapshot], error) {
	var sub notification.Subscription[Snapshot]
	err := e.call(ctx, func() error {
		sub = e.hub.Subscribe(buffer)
		return nil
	})
	return sub, err
}

// Unsubscribe cancels a subscription and closes its channel.
func (e *Engine) Unsubscribe(id string) {
	e.hub.Unsubscribe(id)
}

func (e *Engine) mutate(ctx context.Context, fn func() error) error {
	return e.call(ctx, func() error {
		if err := fn(); err != nil {
			return err
		}
		e.scheduleSave()
		return nil
	})
}

func (e *Engine) play() error {
	switch e.machine.State() {
	case playback.StateNone, playback.StateStopped:
		cur := e.queue.Current()
		if cur == nil {
			if e.queue.IsEmpty() {
				return queue.ErrEmpty
			}
			return e.queue.JumpTo(0)
		}
		resume := e.resumeAt
		e.resumeAt = 0
		e.load(*cur, e.queue.CurrentIndex(), resume)
		return nil
	}

	sent, err := e.machine.RequestPlay(e.seq.Last() + 1)
	if err != nil || !sent {
		return err
	}
	return e.sendIntent(transport.Command{Kind: transport.CommandPlay})
}

func (e *Engine) pause() error {
	sent, err := e.machine.RequestPause(e.seq.Last() + 1)
	if err != nil || !sent {
		return err
	}
	return e.sendIntent(transport.Command{Kind: transport.CommandPause})
}

func (e *Engine) seek(positionMs int64) error {
	if !e.machine.State().Active() {
		return errors.Wrapf(playback.ErrInvalidTransition, "seek in %s", e.machine.State())
	}
	target := e.progress.BeginSeek(positionMs)
	if _, err := e.send(transport.Command{Kind: transport.CommandSeek, PositionMs: target}); err != nil {
		return err
	}
	e.armSeekExpiry()
	return nil
}

func (e *Engine) syncRepeat() error {
	e.scheduleSave()
	_, err := e.send(transport.Command{Kind: transport.CommandSetRepeat, Repeat: e.queue.Mode().Repeat})
	return err
}
