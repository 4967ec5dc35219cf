// Package dispatch provides the single-goroutine execution context that
// owns the content surface. Everything that touches content runs there.
package dispatch

import (
	"context"
	"runtime/debug"

	"github.com/babelcloud/holocast/internal/util"
	"github.com/pkg/errors"
)

// ErrStopped is returned when work is submitted to a loop that has exited.
var ErrStopped = errors.New("dispatch loop stopped")

// Dispatcher runs functions on an execution context in submission order.
type Dispatcher interface {
	Dispatch(fn func()) error
}

// Loop runs queued functions one at a time on the goroutine calling Run.
type Loop struct {
	name  string
	tasks chan func()
	done  chan struct{}
}

func NewLoop(name string, depth int) *Loop {
	if depth <= 0 {
		depth = 64
	}
	return &Loop{name: name, tasks: make(chan func(), depth), done: make(chan struct{})}
}

// Run processes tasks until ctx is cancelled. Tasks still queued are dropped.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.tasks:
			l.run(fn)
		}
	}
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			util.GetLogger().Error("dispatched task panicked", "loop", l.name, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}

// Dispatch queues fn, waiting for room if the queue is full.
func (l *Loop) Dispatch(fn func()) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}
	select {
	case l.tasks <- fn:
		return nil
	case <-l.done:
		return ErrStopped
	}
}

// Call runs fn on the loop and waits for its result.
func (l *Loop) Call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	if err := l.Dispatch(func() { result <- fn() }); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		select {
		case err := <-result:
			return err
		default:
			return ErrStopped
		}
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} { return l.done }
