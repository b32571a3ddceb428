package player

import (
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tapedeck/internal/app/playback"
	"github.com/osa030/tapedeck/internal/app/queue"
	"github.com/osa030/tapedeck/internal/app/transport"
	"github.com/osa030/tapedeck/internal/domain/track"
)

// handleEvent applies a transport event. It returns false for stale events.
func (e *Engine) handleEvent(ev transport.Event) bool {
	if !e.seq.Accept(ev) {
		zlog.Debug().Msgf("engine: dropping stale %s seq=%d (floor=%d last=%d)",
			ev.Kind, ev.Seq, e.seq.Floor(), e.seq.Last())
		return false
	}

	switch ev.Kind {
	case transport.EventTrackChanged:
		if ev.Index != e.queue.CurrentIndex() {
			zlog.Warn().Msgf("engine: transport reports index %d, queue is at %d", ev.Index, e.queue.CurrentIndex())
		}
	case transport.EventStateChanged:
		action := e.machine.Native(ev.Seq, ev.State)
		if _, ok := e.machine.Pending(); !ok {
			e.stopTimers()
		}
		if action == playback.ActionAdvance {
			e.advanceAfterEnd()
		}
	case transport.EventProgress:
		res, err := e.progress.Apply(ev.Progress)
		if err != nil {
			return false
		}
		if res.DurationCorrected {
			e.correctDuration(res.DurationMs)
		}
	case transport.EventError:
		err := ev.Err()
		if ev.Fatal {
			e.seq.Fence()
			e.stopTimers()
			e.machine.Stop()
			e.notify(NoticeFatal, err)
			return true
		}
		if ev.Seq == e.loadSeq && e.machine.Confirmed() == playback.StateBuffering {
			// The track never started: there is no earlier state to go back to.
			e.stopTimers()
			e.machine.Stop()
			_, _ = e.send(transport.Command{Kind: transport.CommandStop})
			e.notify(NoticeCommandFailed, errors.Wrapf(err, "load seq=%d failed", ev.Seq))
			return true
		}
		e.machine.Reject(ev.Seq)
		e.notify(NoticeCommandFailed, err)
	}
	return true
}

// onTrackChanged loads whatever the queue made current, or stops when the
// queue has nothing current any more.
func (e *Engine) onTrackChanged(c queue.TrackChange) {
	e.resumeAt = 0
	if c.Current == nil {
		e.stopTimers()
		e.progress.Reset(0)
		e.machine.Stop()
		_, _ = e.send(transport.Command{Kind: transport.CommandStop})
		return
	}
	e.load(*c.Current, c.Index, 0)
}

func (e *Engine) onStateChanged(c playback.StateChange) {
	e.change = &c
	if c.Current == playback.StatePaused || c.Current == playback.StateStopped {
		e.scheduleSave()
	}
}

func (e *Engine) load(entry track.Entry, index int, resumeMs int64) {
	e.stopTimers()
	e.progress.Reset(entry.Ref.DurationMs)
	e.machine.TrackLoading()

	ref := entry.Ref
	cmd := transport.Command{Kind: transport.CommandLoad, Track: &ref, Index: index, Autoplay: true}
	seq, err := e.send(cmd)
	e.loadSeq = seq
	if err != nil {
		e.machine.Stop()
		return
	}
	if resumeMs > 0 {
		_ = e.seek(resumeMs)
	}
}

func (e *Engine) advanceAfterEnd() {
	err := e.queue.Advance()
	switch {
	case err == nil:
		e.scheduleSave()
	case errors.Is(err, queue.ErrEndOfQueue), errors.Is(err, queue.ErrEmpty):
		zlog.Info().Msg("engine: end of queue")
		e.machine.Stop()
	default:
		zlog.Error().Msgf("engine: advance failed: %v", err)
		e.machine.Stop()
	}
}

func (e *Engine) correctDuration(durationMs int64) {
	idx := e.queue.CurrentIndex()
	cur := e.queue.Current()
	if cur == nil {
		return
	}
	zlog.Debug().Msgf("engine: duration of %s corrected %dms -> %dms", cur.Ref.ID, cur.Ref.DurationMs, durationMs)
	if err := e.queue.ReplaceTrack(idx, cur.Ref.WithDuration(durationMs)); err != nil {
		zlog.Warn().Msgf("engine: duration correction failed: %v", err)
		return
	}
	e.scheduleSave()
}

// send stamps and sends a command. Failures become notices.
func (e *Engine) send(cmd transport.Command) (uint64, error) {
	seq := e.seq.Stamp(&cmd)
	if err := e.transport.Send(e.ctx, cmd); err != nil {
		err = errors.Wrapf(err, "%s seq=%d", cmd.Kind, seq)
		e.notify(NoticeCommandFailed, err)
		return seq, err
	}
	return seq, nil
}

// sendIntent sends a play/pause command and arms its confirmation timer.
func (e *Engine) sendIntent(cmd transport.Command) error {
	seq, err := e.send(cmd)
	if err != nil {
		e.machine.Reject(seq)
		return err
	}
	e.timers[seq] = time.AfterFunc(e.config.ConfirmTimeout, func() {
		e.post(func() { e.onConfirmTimeout(seq) })
	})
	return nil
}

func (e *Engine) onConfirmTimeout(seq uint64) {
	delete(e.timers, seq)
	if !e.machine.Timeout(seq) {
		return
	}
	e.notify(NoticeCommandTimeout, errors.Wrapf(transport.ErrCommandTimeout,
		"seq=%d after %v", seq, e.config.ConfirmTimeout))
}

func (e *Engine) stopTimers() {
	for seq, t := range e.timers {
		t.Stop()
		delete(e.timers, seq)
	}
}

func (e *Engine) armSeekExpiry() {
	if e.seekTmr != nil {
		e.seekTmr.Stop()
	}
	e.seekTmr = time.AfterFunc(e.config.SeekTimeout, func() {
		e.post(func() { e.progress.Expire() })
	})
}
