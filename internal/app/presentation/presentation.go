// Package presentation decides whether a drag gesture on the player view
// completes (mini to full, or full back to mini) or snaps back.
package presentation

import (
	zlog "github.com/rs/zerolog/log"
)

// Mode is how the player view is presented.
type Mode int

const (
	ModeMini Mode = iota
	ModeFull
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeMini:
		return "mini"
	case ModeFull:
		return "full"
	default:
		return "unknown"
	}
}

// Direction is the screen direction a gesture completes in. Screen
// coordinates grow downwards.
type Direction int

const (
	DirectionUp Direction = iota
	DirectionDown
)

// Gesture describes one presentation transition.
type Gesture struct {
	Name      string
	From      Mode
	To        Mode
	Direction Direction
}

// Gestures shared by every view that hosts the player.
var (
	Expand   = Gesture{Name: "expand", From: ModeMini, To: ModeFull, Direction: DirectionUp}
	Collapse = Gesture{Name: "collapse", From: ModeFull, To: ModeMini, Direction: DirectionDown}
)

// Thresholds are the distance (points) and velocity (points/s) past which a
// gesture completes.
type Thresholds struct {
	Distance float64
	Velocity float64
}

// Snap is the outcome of a gesture.
type Snap int

const (
	SnapRevert   Snap = iota // Go back to the mode the gesture started in
	SnapComplete             // Move to the gesture's target mode
)

// String returns the string representation of the snap.
func (s Snap) String() string {
	if s == SnapComplete {
		return "complete"
	}
	return "revert"
}

// Decide completes the gesture when the translation or the release velocity
// along its direction exceeds its threshold.
func Decide(g Gesture, th Thresholds, translation, velocity float64) Snap {
	if g.Direction == DirectionUp {
		translation, velocity = -translation, -velocity
	}
	if translation > th.Distance || velocity > th.Velocity {
		return SnapComplete
	}
	return SnapRevert
}

// State is the presentation state of one mounted player view.
type State struct {
	Mode       Mode
	DragOffset float64
	IsDragging bool
}

// Controller tracks the presentation of one mounted player view. It is not
// safe for concurrent use; each view owns its own controller.
type Controller struct {
	thresholds Thresholds
	state      State
}

// NewController creates a controller in mini mode.
func NewController(th Thresholds) *Controller {
	return &Controller{thresholds: th}
}

// State returns the current presentation state.
func (c *Controller) State() State {
	return c.state
}

// Gesture returns the gesture a drag would perform from the current mode.
func (c *Controller) Gesture() Gesture {
	if c.state.Mode == ModeFull {
		return Collapse
	}
	return Expand
}

// Begin starts a drag.
func (c *Controller) Begin() {
	c.state.IsDragging = true
	c.state.DragOffset = 0
}

// Drag updates the drag offset. It is ignored outside a drag.
func (c *Controller) Drag(offset float64) {
	if !c.state.IsDragging {
		return
	}
	c.state.DragOffset = offset
}

// End finishes the drag and snaps the view. Outside a drag it reverts and
// leaves the state alone.
func (c *Controller) End(translation, velocity float64) Snap {
	if !c.state.IsDragging {
		return SnapRevert
	}
	g := c.Gesture()
	snap := Decide(g, c.thresholds, translation, velocity)
	if snap == SnapComplete {
		c.state.Mode = g.To
	}
	zlog.Debug().Msgf("presentation: %s %s (translation=%.0f velocity=%.0f)",
		g.Name, snap, translation, velocity)
	c.state.DragOffset = 0
	c.state.IsDragging = false
	return snap
}

// Present switches mode without a gesture (e.g. tapping the mini player).
func (c *Controller) Present(m Mode) {
	c.state = State{Mode: m}
}

// Reset returns to mini mode, dropping any drag in progress.
func (c *Controller) Reset() {
	c.state = State{Mode: ModeMini}
}
