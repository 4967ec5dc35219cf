// Package input replays consumer pointer and key events against content as
// pans, clicks and text edits.
package input

import (
	"math"
	"sync"

	"github.com/babelcloud/holocast/internal/dispatch"
	"github.com/babelcloud/holocast/internal/protocol"
	"github.com/babelcloud/holocast/internal/util"
	"github.com/pkg/errors"
)

const (
	// ClickThreshold is the per-axis displacement under which a press and
	// release count as a click instead of a drag.
	ClickThreshold = 10
	// KeyBackspace is the virtual key code that deletes a character.
	KeyBackspace = 8
)

// Rect is an axis-aligned rectangle in the consumer's pointer space.
type Rect struct {
	X, Y, Width, Height float64
}

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p protocol.Point) bool {
	return p.X >= r.X && p.X <= r.X+r.Width && p.Y >= r.Y && p.Y <= r.Y+r.Height
}

// Local converts p into r's local coordinates.
func (r Rect) Local(p protocol.Point) protocol.Point {
	return protocol.Point{X: p.X - r.X, Y: p.Y - r.Y}
}

// Layout reports where the content currently sits on screen.
type Layout interface {
	ContentBounds() Rect
}

type FixedLayout Rect

func (l FixedLayout) ContentBounds() Rect { return Rect(l) }

// Target is the content surface synthetic interactions are applied to.
// Methods are only called on the dispatcher's execution context.
type Target interface {
	Click(x, y int)
	ScrollBy(dx, dy int)
	AppendText(r rune)
	DeleteBackward()
}

// Router turns an ordered input stream into content actions.
type Router struct {
	layout     Layout
	target     Target
	dispatcher dispatch.Dispatcher

	mu       sync.Mutex
	tracking bool
	start    protocol.Point
	current  protocol.Point
}

func NewRouter(layout Layout, target Target, dispatcher dispatch.Dispatcher) *Router {
	return &Router{layout: layout, target: target, dispatcher: dispatcher}
}

// Tracking reports whether a press is being followed.
func (r *Router) Tracking() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tracking
}

// Reset forgets any press in progress.
func (r *Router) Reset() {
	r.mu.Lock()
	r.tracking = false
	r.mu.Unlock()
}

// Handle applies one event. Pointer events outside the content rectangle
// are dropped and end tracking.
func (r *Router) Handle(ev protocol.InputEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch e := ev.(type) {
	case protocol.PointerPressedEvent:
		local, ok := r.locate(e.Point)
		if !ok {
			return nil
		}
		r.tracking = true
		r.start, r.current = local, local

	case protocol.PointerMovedEvent:
		local, ok := r.locate(e.Point)
		if !ok || !r.tracking {
			return nil
		}
		dx, dy := r.current.X-local.X, r.current.Y-local.Y
		r.current = local
		return r.dispatch(func() { r.target.ScrollBy(int(dx), int(dy)) })

	case protocol.PointerReleasedEvent:
		local, ok := r.locate(e.Point)
		if !ok || !r.tracking {
			return nil
		}
		r.tracking = false
		if math.Abs(local.X-r.start.X) < ClickThreshold && math.Abs(local.Y-r.start.Y) < ClickThreshold {
			return r.dispatch(func() { r.target.Click(int(local.X), int(local.Y)) })
		}

	case protocol.KeyDownEvent:
		switch {
		case e.Key == KeyBackspace:
			return r.dispatch(r.target.DeleteBackward)
		case isPrintable(e.Key):
			ch := rune(e.Key)
			return r.dispatch(func() { r.target.AppendText(ch) })
		}

	default:
		util.GetLogger().Debug("ignoring unknown input event", "event", ev)
	}
	return nil
}

func (r *Router) locate(p protocol.Point) (protocol.Point, bool) {
	bounds := r.layout.ContentBounds()
	if !bounds.Contains(p) {
		r.tracking = false
		return protocol.Point{}, false
	}
	return bounds.Local(p), true
}

func (r *Router) dispatch(fn func()) error {
	return errors.Wrap(r.dispatcher.Dispatch(fn), "failed to dispatch input")
}

func isPrintable(key int) bool {
	return key >= 0x20 && key != 0x7f && key <= 0x10ffff && !(key >= 0xd800 && key <= 0xdfff)
}
