package player

import (
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tapedeck/internal/app/mode"
	"github.com/osa030/tapedeck/internal/app/playback"
	"github.com/osa030/tapedeck/internal/app/progress"
	"github.com/osa030/tapedeck/internal/domain/track"
)

// ErrNoticeNotFound is returned when dismissing an unknown notice.
var ErrNoticeNotFound = errors.New("player: notice not found")

// NoticeKind classifies a notice.
type NoticeKind string

const (
	NoticeCommandTimeout NoticeKind = "command_timeout"
	NoticeCommandFailed  NoticeKind = "command_failed"
	NoticeFatal          NoticeKind = "fatal"
)

// Notice is a dismissible, non-blocking message for the user.
type Notice struct {
	ID      string
	Kind    NoticeKind
	Message string
	Time    time.Time
}

// Snapshot is a read-only copy of the engine state.
type Snapshot struct {
	Items     []track.Entry
	Index     int
	Current   *track.Entry
	Mode      mode.State
	State     playback.State
	Confirmed playback.State
	Pending   bool
	Progress  progress.Progress
	Notices   []Notice
	// Change is the last state change since the previous snapshot, if any.
	Change *playback.StateChange
	Seq    uint64
}

func (e *Engine) snapshot() Snapshot {
	_, pending := e.machine.Pending()
	return Snapshot{
		Items:     e.queue.Items(),
		Index:     e.queue.CurrentIndex(),
		Current:   e.queue.Current(),
		Mode:      e.queue.Mode(),
		State:     e.machine.State(),
		Confirmed: e.machine.Confirmed(),
		Pending:   pending,
		Progress:  e.progress.Progress(),
		Notices:   slices.Clone(e.notices),
		Change:    e.change,
		Seq:       e.seq.Last(),
	}
}

func (e *Engine) publish() {
	e.hub.Broadcast(e.snapshot())
	e.change = nil
}

func (e *Engine) notify(kind NoticeKind, err error) {
	n := Notice{
		ID:      uuid.New().String(),
		Kind:    kind,
		Message: err.Error(),
		Time:    e.config.Now(),
	}
	zlog.Warn().Msgf("engine: %s: %v", kind, err)
	e.notices = append(e.notices, n)
	if over := len(e.notices) - e.config.MaxNotices; over > 0 {
		e.notices = slices.Delete(e.notices, 0, over)
	}
}

func (e *Engine) dismiss(id string) error {
	i := slices.IndexFunc(e.notices, func(n Notice) bool { return n.ID == id })
	if i < 0 {
		return errors.Wrapf(ErrNoticeNotFound, "%s", id)
	}
	e.notices = slices.Delete(e.notices, i, i+1)
	return nil
}
