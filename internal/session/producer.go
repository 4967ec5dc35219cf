// Package session ties the pipeline pieces into the two ends of a stream:
// a Producer that captures content into a shared surface, and a Consumer
// that negotiates, presents and sends input.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/babelcloud/holocast/internal/capture"
	"github.com/babelcloud/holocast/internal/channel"
	"github.com/babelcloud/holocast/internal/content"
	"github.com/babelcloud/holocast/internal/dispatch"
	"github.com/babelcloud/holocast/internal/gpu"
	"github.com/babelcloud/holocast/internal/input"
	"github.com/babelcloud/holocast/internal/pacing"
	"github.com/babelcloud/holocast/internal/protocol"
	"github.com/babelcloud/holocast/internal/surface"
	"github.com/babelcloud/holocast/internal/util"
	"github.com/pkg/errors"
	"k8s.io/utils/clock"
)

// ProducerConfig configures a Producer.
type ProducerConfig struct {
	Device         *gpu.Device
	AppType        string
	MinDelay       time.Duration
	Smoothing      float64
	FeedbackBuffer int
	// Clock drives capture scheduling and pacing. Defaults to the real clock.
	Clock clock.Clock
	// Layout places content on screen for input routing. Defaults to the
	// negotiated surface rectangle at the origin.
	Layout func(width, height int) input.Layout
}

// Producer serves one channel connection. It runs at most one capture
// session at a time; a new negotiation replaces the current session.
type Producer struct {
	cfg    ProducerConfig
	keeper *Keeper
	ep     *channel.Endpoint
	logger *slog.Logger

	mu     sync.Mutex
	active *ProducerSession

	errs chan error
}

func NewProducer(cfg ProducerConfig, keeper *Keeper, t channel.Transport) *Producer {
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.AppType == "" {
		cfg.AppType = "viewer"
	}
	if keeper == nil {
		keeper = NewKeeper()
	}
	p := &Producer{
		cfg:    cfg,
		keeper: keeper,
		logger: util.GetLogger().With("role", "producer"),
		errs:   make(chan error, 8),
	}
	p.ep = channel.NewEndpoint("producer", t, p)
	return p
}

// Run serves the connection until it closes or ctx is cancelled. The
// active session is stopped before Run returns.
func (p *Producer) Run(ctx context.Context) error {
	err := p.ep.Run(ctx)
	p.stopActive()
	return err
}

func (p *Producer) Close() error { return p.ep.Close() }

// Errors delivers fatal session errors.
func (p *Producer) Errors() <-chan error { return p.errs }

// Active returns the running session, or nil.
func (p *Producer) Active() *ProducerSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// HandleMessage implements channel.Handler. Negotiation failures are
// replied as errors; every other message is acknowledged.
func (p *Producer) HandleMessage(ctx context.Context, msg channel.Message) (channel.Message, error) {
	if protocol.IsNegotiation(msg) {
		params, err := protocol.ParseNegotiation(msg, p.cfg.AppType)
		if err != nil {
			p.logger.Warn("negotiation rejected", "error", err)
			return nil, err
		}
		if err := p.start(ctx, params); err != nil {
			p.logger.Error("failed to start session", "id", params.ID, "error", err)
			return nil, err
		}
		return nil, nil
	}

	if ev, ok := protocol.ParseInput(msg); ok {
		if s := p.Active(); s != nil {
			s.handleInput(ev)
		}
	}
	return nil, nil
}

func (p *Producer) start(ctx context.Context, params protocol.Params) error {
	p.keeper.LockID(params.ID)
	defer p.keeper.UnlockID(params.ID)

	if owner, ok := p.keeper.HandleOwner(params.SharedTexture); ok && owner != params.ID {
		return &protocol.NegotiationError{
			Field:  protocol.KeySharedTexture,
			Reason: fmt.Sprintf("is in use by session %s", owner),
		}
	}

	// the old surface must be gone before a same-named one is created
	p.stopActive()
	if prev, ok := p.keeper.Get(params.ID); ok {
		prev.Stop()
	}

	s, err := p.newSession(ctx, params)
	if err != nil {
		return err
	}
	p.keeper.add(s)

	p.mu.Lock()
	p.active = s
	p.mu.Unlock()

	s.start()
	return nil
}

func (p *Producer) stopActive() {
	p.mu.Lock()
	s := p.active
	p.active = nil
	p.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}

func (p *Producer) newSession(parent context.Context, params protocol.Params) (*ProducerSession, error) {
	logger := p.logger.With("id", params.ID, "handle", params.SharedTexture)

	w, err := surface.Create(p.cfg.Device, surface.Handle(params.SharedTexture), params.Width, params.Height)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create surface for session %s", params.ID)
	}

	ctx, cancel := context.WithCancel(parent)
	s := &ProducerSession{
		params:  params,
		surface: w,
		loop:    dispatch.NewLoop("content "+params.ID, 0),
		cancel:  cancel,
		ctx:     ctx,
		done:    make(chan struct{}),
		logger:  logger,
		owner:   p,
	}
	s.host = content.NewHost(content.NewPage(params.Width, params.Height), s.loop)

	s.publisher = pacing.NewPublisher(p.cfg.FeedbackBuffer, func(_ context.Context, fb protocol.Feedback) error {
		return p.ep.Notify(fb.Message())
	})
	pacer := pacing.New(pacing.Config{
		TargetFPS: params.FPS,
		MinDelay:  p.cfg.MinDelay,
		Smoothing: p.cfg.Smoothing,
	}, p.cfg.Clock, s.publisher)

	s.pipeline = capture.NewPipeline(capture.Config{
		Content: s.host,
		Surface: w,
		Pacer:   pacer,
		Clock:   p.cfg.Clock,
		Logger:  logger,
	})

	var layout input.Layout = input.FixedLayout(input.Rect{Width: float64(params.Width), Height: float64(params.Height)})
	if p.cfg.Layout != nil {
		layout = p.cfg.Layout(params.Width, params.Height)
	}
	s.router = input.NewRouter(layout, s.host.Page(), s.loop)
	s.host.SetEvents(navigation{s})
	return s, nil
}

// finished is called by a session once its loop has exited.
func (p *Producer) finished(s *ProducerSession, err error) {
	p.keeper.remove(s)
	p.mu.Lock()
	if p.active == s {
		p.active = nil
	}
	p.mu.Unlock()

	if err == nil {
		return
	}
	s.logger.Error("session stopped", "error", err)
	if nerr := p.ep.Notify(protocol.Stopped{ID: s.params.ID, Reason: err.Error()}.Message()); nerr != nil {
		s.logger.Debug("stop notice not delivered", "error", nerr)
	}
	select {
	case p.errs <- errors.Wrapf(err, "session %s", s.params.ID):
	default:
		s.logger.Warn("session error dropped, nobody is listening")
	}
}

// ProducerSession is one negotiated capture session.
type ProducerSession struct {
	params    protocol.Params
	token     string
	surface   *surface.Writable
	loop      *dispatch.Loop
	host      *content.Host
	pipeline  *capture.Pipeline
	router    *input.Router
	publisher *pacing.Publisher
	logger    *slog.Logger
	owner     *Producer

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

func (s *ProducerSession) Params() protocol.Params { return s.params }

func (s *ProducerSession) Pipeline() *capture.Pipeline { return s.pipeline }

func (s *ProducerSession) Host() *content.Host { return s.host }

func (s *ProducerSession) Router() *input.Router { return s.router }

func (s *ProducerSession) Surface() *surface.Writable { return s.surface }

// Done is closed after the session released its resources.
func (s *ProducerSession) Done() <-chan struct{} { return s.done }

func (s *ProducerSession) start() {
	go s.run()
	if err := s.host.Navigate(s.params.Source); err != nil {
		s.logger.Error("failed to start navigation", "error", err)
	}
}

func (s *ProducerSession) run() {
	var wg sync.WaitGroup
	wg.Go(func() { s.loop.Run(s.ctx) })
	wg.Go(func() { s.publisher.Run(s.ctx) })

	s.logger.Info("capture session started", "width", s.params.Width, "height", s.params.Height, "fps", s.params.FPS)
	err := s.pipeline.Run(s.ctx)

	s.pipeline.NavigationStarting()
	s.cancel()
	wg.Wait()
	if rerr := s.surface.Release(); rerr != nil {
		s.logger.Debug("failed to release surface", "error", rerr)
	}
	s.owner.finished(s, err)
	s.logger.Info("capture session ended")
	close(s.done)
}

// Stop ends the session and waits for its resources to be released.
func (s *ProducerSession) Stop() {
	s.stopOnce.Do(func() {
		s.pipeline.NavigationStarting()
		s.cancel()
	})
	<-s.done
}

// handleInput forwards an event to the router while content is loaded.
func (s *ProducerSession) handleInput(ev protocol.InputEvent) {
	if !s.pipeline.Loaded() {
		return
	}
	if err := s.router.Handle(ev); err != nil {
		s.logger.Debug("input not delivered", "error", err)
	}
}

// navigation fans content navigation events out to the pipeline and the
// router.
type navigation struct {
	s *ProducerSession
}

func (n navigation) NavigationStarting() {
	n.s.pipeline.NavigationStarting()
	n.s.router.Reset()
}

func (n navigation) ContentReady() {
	n.s.pipeline.ContentReady()
}
