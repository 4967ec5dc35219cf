package session

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/babelcloud/holocast/internal/channel"
	"github.com/babelcloud/holocast/internal/compositor"
	"github.com/babelcloud/holocast/internal/gpu"
	"github.com/babelcloud/holocast/internal/protocol"
	"github.com/babelcloud/holocast/internal/surface"
	"github.com/babelcloud/holocast/internal/util"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
	Device         *gpu.Device
	AppType        string
	RequestTimeout time.Duration
	Presenter      compositor.Config
}

// Consumer negotiates a session with a producer and presents its surface.
type Consumer struct {
	cfg       ConsumerConfig
	id        string
	ep        *channel.Endpoint
	presenter *compositor.Presenter
	logger    *slog.Logger

	mu     sync.Mutex
	params protocol.Params

	// guards presenter, which frames and teardown notices both touch
	presentMu sync.Mutex

	fps      atomic.Int64
	feedback chan protocol.Feedback
	stopped  chan protocol.Stopped
}

func NewConsumer(cfg ConsumerConfig, t channel.Transport) *Consumer {
	if cfg.AppType == "" {
		cfg.AppType = "viewer"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	id := uuid.NewString()
	c := &Consumer{
		cfg:       cfg,
		id:        id,
		presenter: compositor.NewPresenter(cfg.Device, cfg.Presenter),
		logger:    util.GetLogger().With("role", "consumer", "id", id),
		feedback:  make(chan protocol.Feedback, 16),
		stopped:   make(chan protocol.Stopped, 1),
	}
	c.ep = channel.NewEndpoint("consumer", t, c)
	return c
}

// ID is the session id sent by Negotiate.
func (c *Consumer) ID() string { return c.id }

// sessionID is the id of the negotiated session, which differs from ID
// after NegotiateURI.
func (c *Consumer) sessionID() string {
	if p := c.Params(); p.ID != "" {
		return p.ID
	}
	return c.id
}

func (c *Consumer) Presenter() *compositor.Presenter { return c.presenter }

// Run serves the connection until it closes or ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	err := c.ep.Run(ctx)
	c.detach()
	return err
}

func (c *Consumer) Close() error { return c.ep.Close() }

// Feedback delivers the producer's frame rate reports. Reports are dropped
// when nobody reads them.
func (c *Consumer) Feedback() <-chan protocol.Feedback { return c.feedback }

// Stopped delivers producer-side session teardowns.
func (c *Consumer) Stopped() <-chan protocol.Stopped { return c.stopped }

// LastFPS is the most recently reported producer frame rate.
func (c *Consumer) LastFPS() int { return int(c.fps.Load()) }

// Params returns the last successful negotiation.
func (c *Consumer) Params() protocol.Params {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

// HandleMessage implements channel.Handler.
func (c *Consumer) HandleMessage(_ context.Context, msg channel.Message) (channel.Message, error) {
	if st, ok := protocol.ParseStopped(msg); ok {
		if st.ID != "" && st.ID != c.sessionID() {
			return nil, nil
		}
		c.logger.Warn("producer stopped the session", "reason", st.Reason)
		c.detach()
		select {
		case c.stopped <- st:
		default:
		}
		return nil, nil
	}

	if fb, ok := protocol.ParseFeedback(msg); ok {
		c.fps.Store(int64(fb.FPS))
		c.logger.Debug("producer feedback", "fps", fb.FPS)
		select {
		case c.feedback <- fb:
		default:
		}
	}
	return nil, nil
}

// Negotiate starts a session showing source at the given size. Any
// attached surface is detached first; on failure nothing is presented.
func (c *Consumer) Negotiate(ctx context.Context, source string, width, height, fps int) error {
	if fps <= 0 {
		fps = protocol.DefaultFPS
	}
	return c.negotiate(ctx, protocol.Params{
		AppType:       c.cfg.AppType,
		SharedTexture: string(surface.NewHandle()),
		ID:            c.id,
		Source:        source,
		Width:         width,
		Height:        height,
		FPS:           fps,
	})
}

// NegotiateURI starts the session described by a negotiation URI such as
// holocast:?id=1&apptype=viewer&sharedtexture=h&width=512&height=512&source=s.
// The URI's id and shared texture handle are used as given.
func (c *Consumer) NegotiateURI(ctx context.Context, uri string) error {
	params, err := protocol.ParseNegotiationURI(uri, c.cfg.AppType)
	if err != nil {
		return errors.Wrap(err, "invalid negotiation uri")
	}
	return c.negotiate(ctx, params)
}

func (c *Consumer) negotiate(ctx context.Context, params protocol.Params) error {
	c.detach()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	reply, err := c.ep.Request(ctx, params.Message())
	if err != nil {
		return errors.Wrap(err, "negotiation not delivered")
	}
	if text, failed := protocol.ReplyError(reply); failed {
		return errors.Errorf("producer rejected negotiation: %s", text)
	}

	view, err := surface.Open(c.cfg.Device, surface.Handle(params.SharedTexture), params.Width, params.Height)
	if err != nil {
		return errors.Wrap(err, "failed to open negotiated surface")
	}
	c.presentMu.Lock()
	err = c.presenter.Attach(view)
	c.presentMu.Unlock()
	if err != nil {
		view.Release()
		return errors.Wrap(err, "failed to present surface")
	}

	c.mu.Lock()
	c.params = params
	c.mu.Unlock()
	c.logger.Info("session negotiated", "session", params.ID, "source", params.Source,
		"width", params.Width, "height", params.Height, "fps", params.FPS)
	return nil
}

// Resize renegotiates the current session at a new size under a fresh
// handle.
func (c *Consumer) Resize(ctx context.Context, width, height int) error {
	p := c.Params()
	if p.ID == "" {
		return errors.New("no session to resize")
	}
	p.SharedTexture = string(surface.NewHandle())
	p.Width, p.Height = width, height
	return c.negotiate(ctx, p)
}

// SendInput delivers ev to the producer and waits for its acknowledgement.
func (c *Consumer) SendInput(ctx context.Context, ev protocol.InputEvent) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	_, err := c.ep.Request(ctx, ev.Message())
	return err
}

// Frame presents one frame. A stale surface comes back as
// surface.ErrSurfaceUnavailable; the caller should renegotiate.
func (c *Consumer) Frame(dt time.Duration, pose *compositor.Pose) ([]gpu.DrawCall, error) {
	c.presentMu.Lock()
	defer c.presentMu.Unlock()
	return c.presenter.Frame(dt, pose)
}

// Snapshot reads back the presented surface.
func (c *Consumer) Snapshot() (*image.NRGBA, error) {
	c.presentMu.Lock()
	defer c.presentMu.Unlock()
	view := c.presenter.Surface()
	if view == nil {
		return nil, surface.ErrSurfaceUnavailable
	}
	return view.Snapshot()
}

func (c *Consumer) detach() {
	c.presentMu.Lock()
	c.presenter.Detach()
	c.presentMu.Unlock()
}
