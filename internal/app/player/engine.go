// Package player provides the player engine: one queue, one state machine
// and one progress tracker driven by a single event loop against a native
// transport.
package player

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tapedeck/internal/app/notification"
	"github.com/osa030/tapedeck/internal/app/playback"
	"github.com/osa030/tapedeck/internal/app/presentation"
	"github.com/osa030/tapedeck/internal/app/progress"
	"github.com/osa030/tapedeck/internal/app/queue"
	"github.com/osa030/tapedeck/internal/app/transport"
)

// ErrStopped is returned by intents sent after the engine loop exited.
var ErrStopped = errors.New("player: engine stopped")

// Config holds engine configuration.
type Config struct {
	ConfirmTimeout           time.Duration // Play/pause must be confirmed within this
	SeekTolerance            time.Duration // Seek is settled once a tick lands this close to the target
	SeekTimeout              time.Duration // Seek is settled after this long regardless
	PreviousRestartThreshold time.Duration // Previous restarts the track past this position
	Presentation             presentation.Thresholds
	MaxNotices               int

	Rand *rand.Rand       // Shuffle source, nil uses the global one
	Now  func() time.Time // Clock, defaults to time.Now
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		ConfirmTimeout:           3 * time.Second,
		SeekTolerance:            1500 * time.Millisecond,
		SeekTimeout:              4 * time.Second,
		PreviousRestartThreshold: 3 * time.Second,
		Presentation:             presentation.Thresholds{Distance: 100, Velocity: 1000},
		MaxNotices:               20,
	}
}

// Option configures an engine.
type Option func(*Engine)

// WithSaver persists the session through s and restores it on Run.
func WithSaver(s Saver) Option {
	return func(e *Engine) {
		e.saver = s
	}
}

// Engine is the player engine. All state is owned by the goroutine running
// Run; the exported methods post closures to it and wait for the result.
type Engine struct {
	config    Config
	transport transport.Transport
	saver     Saver

	// Owned by the loop
	queue    *queue.Store
	machine  *playback.Machine
	progress *progress.Tracker
	seq      transport.Sequencer
	notices  []Notice
	change   *playback.StateChange
	timers   map[uint64]*time.Timer // Confirmation timers by command sequence
	seekTmr  *time.Timer
	resumeAt int64  // Restored position applied on the next load
	loadSeq  uint64 // Sequence number of the latest load
	ctx      context.Context

	hub     *notification.Manager[Snapshot]
	inbox   chan func()
	saveCh  chan Session
	stopped chan struct{}
	running sync.Once
}

// New creates an engine. It does nothing until Run is called.
func New(config Config, t transport.Transport, opts ...Option) *Engine {
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.MaxNotices <= 0 {
		config.MaxNotices = 20
	}

	e := &Engine{
		config:    config,
		transport: t,
		queue:     queue.NewStore(config.Rand),
		machine:   playback.NewMachine(),
		progress: progress.NewTracker(progress.Config{
			SeekTolerance: config.SeekTolerance,
			SeekTimeout:   config.SeekTimeout,
			Now:           config.Now,
		}),
		timers:  make(map[uint64]*time.Timer),
		ctx:     context.Background(),
		hub:     notification.NewManager[Snapshot](),
		inbox:   make(chan func()),
		saveCh:  make(chan Session, 1),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.queue.OnTrackChanged(e.onTrackChanged)
	e.machine.OnChange(e.onStateChanged)
	return e
}

// Run runs the event loop until ctx is cancelled. It must be called once.
func (e *Engine) Run(ctx context.Context) error {
	started := false
	e.running.Do(func() { started = true })
	if !started {
		return errors.New("player: engine already running")
	}

	e.ctx = ctx
	var wg sync.WaitGroup
	if e.saver != nil {
		e.restore(ctx)
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.persistLoop(ctx)
		}()
	}
	e.publish()
	zlog.Info().Msgf("engine: running (queue=%d)", e.queue.Len())

	events := e.transport.Events()
	for {
		select {
		case <-ctx.Done():
			e.shutdown(&wg)
			return nil
		case fn := <-e.inbox:
			fn()
			e.publish()
		case ev, ok := <-events:
			if !ok {
				zlog.Warn().Msg("engine: transport event channel closed")
				events = nil
				continue
			}
			if e.handleEvent(ev) {
				e.publish()
			}
		}
	}
}

func (e *Engine) shutdown(wg *sync.WaitGroup) {
	e.stopTimers()
	if e.seekTmr != nil {
		e.seekTmr.Stop()
	}
	close(e.stopped)
	wg.Wait()

	if e.saver != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := e.saver.SaveSession(ctx, e.session()); err != nil {
			zlog.Error().Msgf("engine: final save failed: %v", err)
		}
	}
	e.hub.Close()
	zlog.Info().Msg("engine: stopped")
}

// call runs fn on the loop and waits for its result.
func (e *Engine) call(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	select {
	case e.inbox <- func() { done <- fn() }:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrStopped
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post runs fn on the loop without waiting. Used by timers.
func (e *Engine) post(fn func()) {
	select {
	case e.inbox <- fn:
	case <-e.stopped:
	}
}

// NewPresentation returns a presentation controller for one mounted player
// view, using the configured thresholds.
func (e *Engine) NewPresentation() *presentation.Controller {
	return presentation.NewController(e.config.Presentation)
}
