package transport

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tapedeck/internal/app/mode"
	"github.com/osa030/tapedeck/internal/app/progress"
	"github.com/osa030/tapedeck/internal/domain/track"
)

// SimulatedConfig holds simulated transport configuration.
type SimulatedConfig struct {
	ConfirmLatency  time.Duration // Delay before play/pause/load are confirmed
	TickInterval    time.Duration // Interval between progress events
	DefaultDuration time.Duration // Length used for tracks without a known duration
}

// Simulated is a wall-clock transport that plays nothing but behaves like a
// native engine: it confirms commands after a latency, reports progress on a
// ticker and ends tracks when their duration elapses.
type Simulated struct {
	config SimulatedConfig

	cmdCh   chan Command
	eventCh chan Event

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	// Owned by run
	current       *track.Ref
	index         int
	seq           uint64
	state         NativeState
	duration      time.Duration
	startTime     time.Time // Wall time the current position was anchored
	startPosition time.Duration
	repeat        mode.Repeat
}

var _ Transport = (*Simulated)(nil)

// NewSimulated creates and starts a simulated transport.
func NewSimulated(config SimulatedConfig) *Simulated {
	if config.TickInterval <= 0 {
		config.TickInterval = 500 * time.Millisecond
	}
	if config.DefaultDuration <= 0 {
		config.DefaultDuration = 3 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Simulated{
		config:  config,
		cmdCh:   make(chan Command, 32),
		eventCh: make(chan Event, 64),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		index:   -1,
	}
	go s.run()
	return s
}

// Send queues a command. It never waits for the command to be processed.
func (s *Simulated) Send(ctx context.Context, cmd Command) error {
	if s.ctx.Err() != nil {
		return ErrClosed
	}
	select {
	case s.cmdCh <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errors.Wrapf(ErrCommandFailed, "%s: transport busy", cmd.Kind)
	}
}

// Events returns the event channel. It is closed by Close.
func (s *Simulated) Events() <-chan Event {
	return s.eventCh
}

// Close stops the transport. It is safe to call more than once.
func (s *Simulated) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		close(s.eventCh)
	})
	return nil
}

func (s *Simulated) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case cmd := <-s.cmdCh:
			s.handle(cmd)
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Simulated) handle(cmd Command) {
	s.seq = cmd.Seq
	zlog.Debug().Msgf("transport: %s seq=%d", cmd.Kind, cmd.Seq)

	switch cmd.Kind {
	case CommandLoad:
		s.load(cmd)
	case CommandPlay:
		if s.current == nil {
			s.emitError("no_track", "play without a loaded track", false)
			return
		}
		if !s.wait() {
			return
		}
		if s.state == NativeEnded {
			s.startPosition = 0
		}
		s.startTime = toWallTime(time.Now())
		s.setState(NativePlaying)
		s.emitProgress()
	case CommandPause:
		if s.current == nil {
			s.emitError("no_track", "pause without a loaded track", false)
			return
		}
		if !s.wait() {
			return
		}
		s.startPosition = s.position()
		s.startTime = toWallTime(time.Now())
		s.setState(NativePaused)
	case CommandSeek:
		if s.current == nil {
			s.emitError("no_track", "seek without a loaded track", false)
			return
		}
		pos := time.Duration(cmd.PositionMs) * time.Millisecond
		pos = min(max(pos, 0), s.duration)
		s.startPosition = pos
		s.startTime = toWallTime(time.Now())
		s.emitProgress()
	case CommandStop:
		s.current = nil
		s.index = -1
		s.startPosition = 0
		s.setState(NativeStopped)
	case CommandSetRepeat:
		s.repeat = cmd.Repeat
	}
}

func (s *Simulated) load(cmd Command) {
	if cmd.Track == nil {
		s.emitError("invalid_track", "load without a track", true)
		return
	}
	ref := *cmd.Track
	s.current = &ref
	s.index = cmd.Index
	s.duration = ref.Duration()
	if s.duration <= 0 {
		s.duration = s.config.DefaultDuration
	}
	s.startPosition = 0
	s.startTime = toWallTime(time.Now())

	s.emit(Event{Kind: EventTrackChanged, Index: cmd.Index})
	if !cmd.Autoplay {
		s.setState(NativeReady)
		s.emitProgress()
		return
	}
	s.setState(NativeBuffering)
	if !s.wait() {
		return
	}
	s.startTime = toWallTime(time.Now())
	s.setState(NativePlaying)
	s.emitProgress()
}

func (s *Simulated) tick() {
	if s.current == nil || s.state != NativePlaying {
		return
	}
	if s.position() < s.duration {
		s.emitProgress()
		return
	}

	if s.repeat == mode.RepeatOne {
		zlog.Debug().Msgf("transport: looping track %s", s.current.ID)
		s.startPosition = 0
		s.startTime = toWallTime(time.Now())
		s.emitProgress()
		return
	}

	zlog.Debug().Msgf("transport: track ended: track=%s duration=%v", s.current.ID, s.duration)
	s.startPosition = s.duration
	s.emitProgress()
	s.setState(NativeEnded)
}

func (s *Simulated) position() time.Duration {
	pos := s.startPosition
	if s.state == NativePlaying {
		pos += toWallTime(time.Now()).Sub(s.startTime)
	}
	return min(pos, s.duration)
}

// wait blocks for the confirmation latency. It returns false if the
// transport was closed meanwhile.
func (s *Simulated) wait() bool {
	if s.config.ConfirmLatency <= 0 {
		return true
	}
	timer := time.NewTimer(s.config.ConfirmLatency)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Simulated) setState(state NativeState) {
	s.state = state
	s.emit(Event{Kind: EventStateChanged, State: state})
}

func (s *Simulated) emitProgress() {
	s.emit(Event{
		Kind: EventProgress,
		Progress: progress.Sample{
			PositionMs: s.position().Milliseconds(),
			DurationMs: s.duration.Milliseconds(),
			BufferedMs: s.duration.Milliseconds(),
		},
	})
}

func (s *Simulated) emitError(code, message string, fatal bool) {
	s.emit(Event{Kind: EventError, Code: code, Message: message, Fatal: fatal})
}

func (s *Simulated) emit(ev Event) {
	ev.Seq = s.seq
	select {
	case s.eventCh <- ev:
	case <-s.ctx.Done():
	}
}

// toWallTime returns the time with monotonic clock stripped.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}
