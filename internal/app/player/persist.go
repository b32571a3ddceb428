package player

import (
	"context"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tapedeck/internal/app/mode"
	"github.com/osa030/tapedeck/internal/app/progress"
	"github.com/osa030/tapedeck/internal/domain/track"
)

// Session is the part of the engine state that survives a restart.
type Session struct {
	Items      []track.Entry
	Index      int
	Mode       mode.State
	PositionMs int64
	SavedAt    time.Time
}

// Saver persists sessions. Implementations are called from a goroutine of
// their own, never from the engine loop.
type Saver interface {
	SaveSession(ctx context.Context, s Session) error
	// LoadSession returns false if nothing was saved yet.
	LoadSession(ctx context.Context) (Session, bool, error)
}

func (e *Engine) session() Session {
	return Session{
		Items:      e.queue.Items(),
		Index:      e.queue.CurrentIndex(),
		Mode:       e.queue.Mode(),
		PositionMs: e.progress.Progress().PositionMs,
		SavedAt:    e.config.Now(),
	}
}

// scheduleSave hands the current session to the persistence goroutine. Only
// the latest pending session is kept.
func (e *Engine) scheduleSave() {
	if e.saver == nil {
		return
	}
	s := e.session()
	select {
	case e.saveCh <- s:
		return
	default:
	}
	select {
	case <-e.saveCh:
	default:
	}
	select {
	case e.saveCh <- s:
	default:
	}
}

func (e *Engine) persistLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-e.saveCh:
			if err := e.saver.SaveSession(ctx, s); err != nil {
				zlog.Error().Msgf("engine: saving session failed: %v", err)
			}
		}
	}
}

// restore loads the saved session. Playback does not start: the first Play
// loads the current track and seeks to the saved position.
func (e *Engine) restore(ctx context.Context) {
	s, ok, err := e.saver.LoadSession(ctx)
	if err != nil {
		zlog.Warn().Msgf("engine: restoring session failed: %v", err)
		return
	}
	if !ok {
		return
	}

	e.queue.Restore(s.Items, s.Index, s.Mode)
	if cur := e.queue.Current(); cur != nil {
		e.progress.Reset(cur.Ref.DurationMs)
		if _, err := e.progress.Apply(progress.Sample{
			PositionMs: s.PositionMs,
			DurationMs: cur.Ref.DurationMs,
		}); err == nil {
			e.resumeAt = s.PositionMs
		}
	}
	if s.Mode.Repeat != mode.RepeatOff {
		_ = e.syncRepeat()
	}
	zlog.Info().Msgf("engine: restored %d tracks (index=%d position=%dms)", len(s.Items), s.Index, s.PositionMs)
}
