// Package pacing adapts the producer's inter-frame delay toward a target
// frame rate and reports the achieved rate to the consumer.
package pacing

import (
	"math"
	"time"

	"github.com/babelcloud/holocast/internal/protocol"
	"github.com/babelcloud/holocast/internal/util"
	"k8s.io/utils/clock"
)

const (
	// DefaultMinDelay is the lowest delay the controller will settle on.
	DefaultMinDelay = 3 * time.Millisecond
	// DefaultSmoothing weighs the newest instantaneous rate in the estimate.
	DefaultSmoothing = 0.1
	step             = time.Millisecond
)

// Sink receives feedback. Publish must not block.
type Sink interface {
	Publish(protocol.Feedback)
}

type SinkFunc func(protocol.Feedback)

func (f SinkFunc) Publish(fb protocol.Feedback) { f(fb) }

type Config struct {
	TargetFPS int
	MinDelay  time.Duration
	Smoothing float64
}

// Controller tracks completed frames. Every TargetFPS frames it moves the
// delay one millisecond toward the target rate and publishes feedback.
// It is owned by the capture loop and not safe for concurrent use.
type Controller struct {
	clock    clock.PassiveClock
	sink     Sink
	target   int
	minDelay time.Duration
	alpha    float64

	delay  time.Duration
	frames int
	fps    float64
	last   time.Time
}

func New(cfg Config, clk clock.PassiveClock, sink Sink) *Controller {
	if cfg.TargetFPS <= 0 {
		cfg.TargetFPS = protocol.DefaultFPS
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = DefaultMinDelay
	}
	if cfg.Smoothing <= 0 || cfg.Smoothing > 1 {
		cfg.Smoothing = DefaultSmoothing
	}
	delay := time.Duration(1000/cfg.TargetFPS) * time.Millisecond
	if delay < cfg.MinDelay {
		delay = cfg.MinDelay
	}
	return &Controller{
		clock:    clk,
		sink:     sink,
		target:   cfg.TargetFPS,
		minDelay: cfg.MinDelay,
		alpha:    cfg.Smoothing,
		delay:    delay,
	}
}

func (c *Controller) Delay() time.Duration { return c.delay }

func (c *Controller) Target() int { return c.target }

func (c *Controller) Frames() int { return c.frames }

// Achieved returns the smoothed frame rate rounded to an integer.
func (c *Controller) Achieved() int {
	return int(math.Round(c.fps))
}

// FrameCompleted records one finished tick.
func (c *Controller) FrameCompleted() {
	now := c.clock.Now()
	if !c.last.IsZero() {
		if dt := now.Sub(c.last).Seconds(); dt > 0 {
			inst := 1 / dt
			if c.fps == 0 {
				c.fps = inst
			} else {
				c.fps += c.alpha * (inst - c.fps)
			}
		}
	}
	c.last = now
	c.frames++

	if c.frames%c.target != 0 {
		return
	}
	achieved := c.Achieved()
	c.Adjust(achieved)
	util.GetLogger().Debug("frame pacing", "fps", achieved, "target", c.target, "delay", c.delay)
	if c.sink != nil {
		c.sink.Publish(protocol.Feedback{FPS: achieved})
	}
}

// Adjust steps the delay: down when achieved is below target (never below
// the floor), up when above, unchanged when equal.
func (c *Controller) Adjust(achieved int) {
	switch {
	case achieved < c.target:
		c.delay -= step
		if c.delay < c.minDelay {
			c.delay = c.minDelay
		}
	case achieved > c.target:
		c.delay += step
	}
}

// SetDelay overrides the current delay, clamped to the floor.
func (c *Controller) SetDelay(d time.Duration) {
	if d < c.minDelay {
		d = c.minDelay
	}
	c.delay = d
}
