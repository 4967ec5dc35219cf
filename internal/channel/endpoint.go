package channel

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/babelcloud/holocast/internal/util"
	"github.com/pkg/errors"
)

// Transport moves opaque frames between the two ends of a channel.
// WriteFrame must be safe to call from one goroutine at a time; the
// endpoint serializes writers.
type Transport interface {
	WriteFrame(frame []byte) error
	ReadFrame() ([]byte, error)
	Close() error
}

// Handler processes a request received from the peer. A nil reply is
// acknowledged with {Status: "OK"}; an error is acknowledged with
// {Status: "Error", Error: text}.
type Handler interface {
	HandleMessage(ctx context.Context, msg Message) (Message, error)
}

type HandlerFunc func(ctx context.Context, msg Message) (Message, error)

func (f HandlerFunc) HandleMessage(ctx context.Context, msg Message) (Message, error) {
	return f(ctx, msg)
}

type envelope struct {
	ID      uint64  `json:"id,omitempty"`
	ReplyTo uint64  `json:"reply_to,omitempty"`
	Data    Message `json:"data"`
}

const inboxSize = 64

// Endpoint is one side of a request/acknowledge message channel. Inbound
// requests are handled one at a time in arrival order.
type Endpoint struct {
	name      string
	transport Transport
	handler   Handler
	logger    *slog.Logger

	writeMu sync.Mutex
	nextID  atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan Message

	inbox     chan envelope
	closed    chan struct{}
	closeOnce sync.Once
	closing   atomic.Bool
}

func NewEndpoint(name string, t Transport, h Handler) *Endpoint {
	if h == nil {
		h = HandlerFunc(func(context.Context, Message) (Message, error) { return nil, nil })
	}
	return &Endpoint{
		name:      name,
		transport: t,
		handler:   h,
		logger:    util.GetLogger().With("endpoint", name),
		pending:   map[uint64]chan Message{},
		inbox:     make(chan envelope, inboxSize),
		closed:    make(chan struct{}),
	}
}

// Run reads frames until the transport fails, Close is called or ctx is
// cancelled. A nil error means the endpoint was closed locally.
func (e *Endpoint) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Go(func() { e.work(ctx) })
	defer wg.Wait()

	go func() {
		select {
		case <-ctx.Done():
			e.Close()
		case <-e.closed:
		}
	}()

	for {
		frame, err := e.transport.ReadFrame()
		if err != nil {
			e.shutdown()
			cancel()
			if e.closing.Load() {
				return nil
			}
			return errors.Wrapf(err, "endpoint %s read failed", e.name)
		}

		var env envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			e.logger.Warn("dropping malformed frame", "error", err)
			continue
		}

		if env.ReplyTo != 0 {
			e.resolve(env.ReplyTo, env.Data)
			continue
		}

		select {
		case e.inbox <- env:
		case <-ctx.Done():
		}
	}
}

func (e *Endpoint) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-e.inbox:
			reply := e.dispatch(ctx, env.Data)
			if env.ID == 0 {
				continue
			}
			if err := e.write(envelope{ReplyTo: env.ID, Data: reply}); err != nil {
				e.logger.Debug("acknowledgement not delivered", "id", env.ID, "error", err)
			}
		}
	}
}

func (e *Endpoint) dispatch(ctx context.Context, msg Message) (reply Message) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("message handler panicked", "panic", r)
			reply = Message{"Status": "Error", "Error": "internal error"}
		}
	}()

	reply, err := e.handler.HandleMessage(ctx, msg)
	if err != nil {
		return Message{"Status": "Error", "Error": err.Error()}
	}
	if reply == nil {
		return Ack()
	}
	return reply
}

func (e *Endpoint) resolve(id uint64, data Message) {
	e.mu.Lock()
	ch, ok := e.pending[id]
	delete(e.pending, id)
	e.mu.Unlock()
	if ok {
		ch <- data
	}
}

func (e *Endpoint) write(env envelope) error {
	if err := env.Data.Validate(); err != nil {
		return err
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "failed to encode message")
	}

	select {
	case <-e.closed:
		return ErrClosed
	default:
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.transport.WriteFrame(frame)
}

// Request sends msg and waits for the peer's reply.
func (e *Endpoint) Request(ctx context.Context, msg Message) (Message, error) {
	id := e.nextID.Add(1)
	ch := make(chan Message, 1)

	e.mu.Lock()
	e.pending[id] = ch
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.pending, id)
		e.mu.Unlock()
	}()

	if err := e.write(envelope{ID: id, Data: msg}); err != nil {
		return nil, &DeliveryError{Op: "send", Err: err}
	}

	select {
	case reply := <-ch:
		return reply, nil
	case <-ctx.Done():
		return nil, &DeliveryError{Op: "await reply", Err: ctx.Err()}
	case <-e.closed:
		return nil, &DeliveryError{Op: "await reply", Err: ErrClosed}
	}
}

// Notify sends msg without waiting. The peer still acknowledges it; the
// acknowledgement is discarded.
func (e *Endpoint) Notify(msg Message) error {
	if err := e.write(envelope{ID: e.nextID.Add(1), Data: msg}); err != nil {
		return &DeliveryError{Op: "send", Err: err}
	}
	return nil
}

// Done is closed once the endpoint stops.
func (e *Endpoint) Done() <-chan struct{} {
	return e.closed
}

func (e *Endpoint) Close() error {
	e.closing.Store(true)
	e.shutdown()
	return e.transport.Close()
}

func (e *Endpoint) shutdown() {
	e.closeOnce.Do(func() {
		close(e.closed)
	})
}
