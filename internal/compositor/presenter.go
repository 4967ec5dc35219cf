package compositor

import (
	"log/slog"
	"time"

	"github.com/babelcloud/holocast/internal/gpu"
	"github.com/babelcloud/holocast/internal/surface"
	"github.com/babelcloud/holocast/internal/util"
	"github.com/pkg/errors"
)

// Config configures a Presenter.
type Config struct {
	Distance     float32
	FadeDuration time.Duration
	AllowVPRT    bool
}

// Presenter draws the attached surface on a quad every frame.
type Presenter struct {
	dev      *gpu.Device
	quad     *Quad
	renderer *Renderer
	cl       *gpu.CommandList
	surface  *surface.Readable
	logger   *slog.Logger
}

// NewPresenter selects the stereo path for dev and starts the quad fading
// in.
func NewPresenter(dev *gpu.Device, cfg Config) *Presenter {
	path := SelectStereoPath(dev.Capabilities(), cfg.AllowVPRT)
	p := &Presenter{
		dev:      dev,
		quad:     NewQuad(cfg.Distance, cfg.FadeDuration),
		renderer: NewRenderer(dev, path),
		cl:       dev.NewCommandList(),
		logger:   util.GetLogger().With("device", dev.Name(), "stereo", path.String()),
	}
	p.quad.StartFadeIn()
	return p
}

func (p *Presenter) Quad() *Quad { return p.quad }

func (p *Presenter) StereoPath() StereoPath { return p.renderer.Path() }

// Surface returns the attached surface, or nil.
func (p *Presenter) Surface() *surface.Readable { return p.surface }

// Attach starts presenting s, replacing any attached surface.
func (p *Presenter) Attach(s *surface.Readable) error {
	if s.Height() == 0 {
		return errors.New("surface has zero height")
	}
	if err := p.renderer.SetAspect(float32(s.Width()) / float32(s.Height())); err != nil {
		return err
	}
	p.Detach()
	p.surface = s
	p.logger.Debug("surface attached", "handle", s.Handle(), "width", s.Width(), "height", s.Height())
	return nil
}

// Detach stops presenting and releases the consumer view.
func (p *Presenter) Detach() {
	if p.surface == nil {
		return
	}
	if err := p.surface.Release(); err != nil {
		p.logger.Debug("failed to release surface view", "error", err)
	}
	p.logger.Debug("surface detached", "handle", p.surface.Handle())
	p.surface = nil
}

// Frame advances the quad by dt and records its draw. It returns no draws
// while nothing is attached. A stale surface is detached and reported as
// surface.ErrSurfaceUnavailable so the caller renegotiates.
func (p *Presenter) Frame(dt time.Duration, pose *Pose) ([]gpu.DrawCall, error) {
	p.quad.Update(dt, pose)
	p.cl.Reset()
	if p.surface == nil {
		return nil, nil
	}
	if err := p.surface.Validate(); err != nil {
		p.Detach()
		return nil, err
	}
	if err := p.renderer.Render(p.cl, p.surface.Texture(), p.quad.Constants()); err != nil {
		return nil, errors.Wrap(err, "failed to record quad draw")
	}
	return p.cl.Draws(), nil
}
