package viewport

import (
	"time"

	"github.com/gustavodarosa/KidGo/pkg/clock"
	"github.com/gustavodarosa/KidGo/pkg/eventloop"
	"github.com/gustavodarosa/KidGo/pkg/geo"
)

// DefaultSettleDelay is the wait between the surface reporting ready and the
// first camera move.
const DefaultSettleDelay = 500 * time.Millisecond

// Surface renders the map.
type Surface interface {
	FitCamera(region Region)
}

type surfaceState int

const (
	surfaceNotReady surfaceState = iota
	surfaceSettling
	surfaceReady
)

// Controller holds camera commands until the surface can apply them. Every
// method must be called on the session loop.
type Controller struct {
	loop    *eventloop.Loop
	clock   clock.Clock
	surface Surface
	fitter  Fitter
	settle  time.Duration

	state   surfaceState
	timer   clock.Timer
	pending *Region
	applied *Region
}

// NewController creates a controller for surface.
func NewController(loop *eventloop.Loop, clk clock.Clock, surface Surface, fitter Fitter, settle time.Duration) *Controller {
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	return &Controller{
		loop:    loop,
		clock:   clk,
		surface: surface,
		fitter:  fitter,
		settle:  settle,
	}
}

// Request fits the camera to the trip. Before the surface settles only the
// latest command is kept.
func (c *Controller) Request(origin, destination geo.Coordinate, polyline []geo.Coordinate) {
	c.Show(c.fitter.Fit(origin, destination, polyline))
}

// Show moves the camera to region, or defers it until the surface settles.
func (c *Controller) Show(region Region) {
	r := region
	if c.state != surfaceReady {
		c.pending = &r
		return
	}
	c.apply(r)
}

// Ready records that the surface can render. The deferred command is applied
// after one settle delay; repeated calls are ignored.
func (c *Controller) Ready() {
	if c.state != surfaceNotReady {
		return
	}
	c.state = surfaceSettling
	c.timer = c.clock.AfterFunc(c.settle, func() {
		c.loop.Post(c.settled)
	})
}

// Applied returns the last region sent to the surface.
func (c *Controller) Applied() (Region, bool) {
	if c.applied == nil {
		return Region{}, false
	}
	return *c.applied, true
}

// Pending returns the deferred region, if any.
func (c *Controller) Pending() (Region, bool) {
	if c.pending == nil {
		return Region{}, false
	}
	return *c.pending, true
}

// Stop cancels a pending settle.
func (c *Controller) Stop() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) settled() {
	if c.state != surfaceSettling {
		return
	}
	c.state = surfaceReady
	c.timer = nil
	if c.pending != nil {
		r := *c.pending
		c.pending = nil
		c.apply(r)
	}
}

func (c *Controller) apply(r Region) {
	c.applied = &r
	c.surface.FitCamera(r)
}
