// Package capture turns rendered content into frames on a shared surface
// at an adaptive cadence.
package capture

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync/atomic"

	"github.com/babelcloud/holocast/internal/gpu"
	"github.com/babelcloud/holocast/internal/pacing"
	"github.com/babelcloud/holocast/internal/surface"
	"github.com/babelcloud/holocast/internal/util"
	"github.com/pkg/errors"
	"k8s.io/utils/clock"
)

// Content is the renderer frames are captured from.
type Content interface {
	Capture(ctx context.Context) (image.Image, error)
}

// TransientError is a per-tick failure. The tick is skipped and the loop
// continues.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("capture %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

type Config struct {
	Content Content
	Surface *surface.Writable
	Pacer   *pacing.Controller
	Clock   clock.Clock
	Logger  *slog.Logger
}

// Pipeline runs the capture loop of one session. Ticks never overlap; only
// ContentReady and NavigationStarting may be called from other goroutines.
type Pipeline struct {
	content Content
	surface *surface.Writable
	pacer   *pacing.Controller
	clock   clock.Clock
	logger  *slog.Logger
	scaler  Scaler

	loaded atomic.Bool
	ready  chan struct{}
}

func NewPipeline(cfg Config) *Pipeline {
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = util.GetLogger()
	}
	return &Pipeline{
		content: cfg.Content,
		surface: cfg.Surface,
		pacer:   cfg.Pacer,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		ready:   make(chan struct{}, 1),
	}
}

// ContentReady marks the content loaded and wakes a waiting loop.
func (p *Pipeline) ContentReady() {
	p.loaded.Store(true)
	select {
	case p.ready <- struct{}{}:
	default:
	}
}

// NavigationStarting pauses capture until the next ContentReady.
func (p *Pipeline) NavigationStarting() {
	p.loaded.Store(false)
}

func (p *Pipeline) Loaded() bool { return p.loaded.Load() }

func (p *Pipeline) Pacer() *pacing.Controller { return p.pacer }

// Tick captures, scales and uploads one frame. It is a no-op while content
// is not loaded. Capture and scale failures come back as *TransientError;
// surface failures as *gpu.DeviceResourceError.
func (p *Pipeline) Tick(ctx context.Context) error {
	if !p.loaded.Load() {
		return nil
	}

	img, err := p.content.Capture(ctx)
	if err != nil {
		return &TransientError{Op: "capture", Err: err}
	}
	if ctx.Err() != nil {
		return nil
	}
	if img == nil || img.Bounds().Empty() {
		return &TransientError{Op: "capture", Err: errors.New("content produced an empty image")}
	}

	frame := p.scaler.Scale(img, p.surface.Width(), p.surface.Height())
	if err := p.surface.Upload(frame); err != nil {
		var re *gpu.DeviceResourceError
		if errors.As(err, &re) {
			return err
		}
		return &TransientError{Op: "upload", Err: err}
	}

	p.pacer.FrameCompleted()
	return nil
}

// Run ticks until ctx is cancelled or a device error occurs. After every
// tick it sleeps for the pacer's current delay; while content is not
// loaded it waits for ContentReady instead.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		if !p.loaded.Load() {
			select {
			case <-ctx.Done():
				return nil
			case <-p.ready:
				continue
			}
		}

		err := p.Tick(ctx)
		var te *TransientError
		switch {
		case errors.As(err, &te):
			p.logger.Debug("capture tick skipped", "error", err)
		case err != nil:
			return errors.Wrap(err, "capture loop stopped")
		}

		timer := p.clock.NewTimer(p.pacer.Delay())
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C():
		}
	}
}
