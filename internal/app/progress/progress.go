// Package progress reconciles position/duration/buffered samples reported by
// the transport into the progress shown to the user.
package progress

import (
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// ErrInconsistent is returned for samples that break position <= duration or
// carry negative values. Such samples are dropped.
var ErrInconsistent = errors.New("progress: inconsistent sample")

// Sample is one progress tick from the transport. It always replaces the
// previous sample as a whole.
type Sample struct {
	PositionMs int64
	DurationMs int64 // 0 means unknown
	BufferedMs int64 // 0 means unknown
}

// Validate reports whether the sample can be applied.
func (s Sample) Validate() error {
	if s.PositionMs < 0 || s.DurationMs < 0 || s.BufferedMs < 0 {
		return errors.Wrapf(ErrInconsistent, "negative value in %+v", s)
	}
	if s.DurationMs > 0 && s.PositionMs > s.DurationMs {
		return errors.Wrapf(ErrInconsistent, "position %dms past duration %dms", s.PositionMs, s.DurationMs)
	}
	return nil
}

// Progress is the UI-facing view of the latest applied sample.
type Progress struct {
	PositionMs int64
	DurationMs int64
	BufferedMs int64
	Percent    float64 // position/duration in [0, 1]; 0 when duration is unknown
	Seeking    bool
}

// Config holds tracker tunables.
type Config struct {
	SeekTolerance time.Duration    // Distance from the seek target at which ticks resume
	SeekTimeout   time.Duration    // Ticks resume after this long even if the target is never reached
	Now           func() time.Time // Clock, defaults to time.Now
}

// Result describes what Apply did with a sample.
type Result struct {
	Applied bool // Sample became the UI-facing progress
	Held    bool // Sample was held back because a seek is in flight
	// DurationCorrected is set once per track, when the transport reports a
	// non-zero duration different from the one the track was loaded with.
	DurationCorrected bool
	DurationMs        int64
}

type pendingSeek struct {
	targetMs int64
	deadline time.Time
}

// Tracker owns the latest progress sample. It is not safe for concurrent use.
type Tracker struct {
	cfg Config

	latest          Sample
	trackDurationMs int64 // Duration the current track was loaded with
	corrected       bool

	seek *pendingSeek
	held *Sample
}

// NewTracker creates a tracker.
func NewTracker(cfg Config) *Tracker {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Tracker{cfg: cfg}
}

// Reset starts tracking a new track whose length is known to be durationMs
// (0 if unknown). Any seek in flight is abandoned.
func (t *Tracker) Reset(durationMs int64) {
	t.latest = Sample{DurationMs: durationMs}
	t.trackDurationMs = durationMs
	t.corrected = false
	t.seek = nil
	t.held = nil
}

// Apply reconciles a transport sample.
func (t *Tracker) Apply(s Sample) (Result, error) {
	if err := s.Validate(); err != nil {
		zlog.Debug().Msgf("progress: dropping sample: %v", err)
		return Result{}, err
	}

	var res Result
	if s.DurationMs == 0 {
		// Duration not known yet: keep what we have.
		s.DurationMs = t.latest.DurationMs
	} else if !t.corrected && s.DurationMs != t.trackDurationMs {
		t.corrected = true
		res.DurationCorrected = true
		res.DurationMs = s.DurationMs
	}
	if s.BufferedMs > 0 && s.BufferedMs < s.PositionMs {
		s.BufferedMs = s.PositionMs
	}

	if t.seek != nil {
		if !t.seekSettled(s) {
			t.held = &s
			t.latest.DurationMs = s.DurationMs
			res.Held = true
			return res, nil
		}
		t.seek = nil
		t.held = nil
	}

	t.latest = s
	res.Applied = true
	return res, nil
}

// BeginSeek marks a seek to targetMs as in flight. The UI-facing position
// jumps to the target right away; later ticks are held until the transport
// catches up.
func (t *Tracker) BeginSeek(targetMs int64) int64 {
	if targetMs < 0 {
		targetMs = 0
	}
	if t.latest.DurationMs > 0 && targetMs > t.latest.DurationMs {
		targetMs = t.latest.DurationMs
	}
	t.seek = &pendingSeek{
		targetMs: targetMs,
		deadline: t.cfg.Now().Add(t.cfg.SeekTimeout),
	}
	t.held = nil
	t.latest.PositionMs = targetMs
	return targetMs
}

// Expire releases a seek whose timeout has elapsed, applying the last held
// sample if any. It returns true if a seek was released.
func (t *Tracker) Expire() bool {
	if t.seek == nil || t.cfg.Now().Before(t.seek.deadline) {
		return false
	}
	t.seek = nil
	if t.held != nil {
		t.latest = *t.held
		t.held = nil
	}
	return true
}

// Seeking reports whether a seek is in flight.
func (t *Tracker) Seeking() bool {
	return t.seek != nil
}

// Progress returns the UI-facing progress.
func (t *Tracker) Progress() Progress {
	return Progress{
		PositionMs: t.latest.PositionMs,
		DurationMs: t.latest.DurationMs,
		BufferedMs: t.latest.BufferedMs,
		Percent:    Percent(t.latest.PositionMs, t.latest.DurationMs),
		Seeking:    t.seek != nil,
	}
}

// Position returns the UI-facing position.
func (t *Tracker) Position() time.Duration {
	return time.Duration(t.latest.PositionMs) * time.Millisecond
}

func (t *Tracker) seekSettled(s Sample) bool {
	diff := s.PositionMs - t.seek.targetMs
	if diff < 0 {
		diff = -diff
	}
	if time.Duration(diff)*time.Millisecond <= t.cfg.SeekTolerance {
		return true
	}
	return !t.cfg.Now().Before(t.seek.deadline)
}

// Percent returns position/duration clamped to [0, 1], or 0 when the
// duration is unknown.
func Percent(positionMs, durationMs int64) float64 {
	if durationMs <= 0 {
		return 0
	}
	p := float64(positionMs) / float64(durationMs)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}
