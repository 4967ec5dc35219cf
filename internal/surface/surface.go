// Package surface exposes a shared BGRA texture as two capability views:
// a Writable owned by the producer and a Readable held by the consumer.
package surface

import (
	"image"

	"github.com/babelcloud/holocast/internal/gpu"
	"github.com/dchest/uniuri"
	"github.com/gogpu/gputypes"
	"github.com/pkg/errors"
)

// Format is the only pixel layout surfaces carry.
const Format = gputypes.TextureFormatBGRA8Unorm

// ErrSurfaceUnavailable is returned when a handle does not resolve, the
// allocation was torn down, or it no longer matches the negotiated size.
var ErrSurfaceUnavailable = errors.New("shared surface unavailable")

// Handle is an opaque name both sides resolve to the same allocation.
type Handle string

// NewHandle returns a fresh random handle.
func NewHandle() Handle {
	return Handle(uniuri.NewLen(24))
}

const (
	sharedUsage  = gputypes.TextureUsageCopyDst | gputypes.TextureUsageTextureBinding
	stagingUsage = gputypes.TextureUsageCopySrc
)

func descriptor(label string, width, height int, usage gputypes.TextureUsage) gputypes.TextureDescriptor {
	return gpu.Texture2D(label, width, height, Format, usage)
}

// Writable is the producer's view: the shared texture plus a private
// staging texture frames are uploaded through.
type Writable struct {
	handle  Handle
	device  *gpu.Device
	shared  *gpu.Texture
	staging *gpu.Texture
}

// Create allocates a surface of width x height and publishes it under handle.
func Create(dev *gpu.Device, handle Handle, width, height int) (*Writable, error) {
	shared, err := dev.CreateSharedTexture(string(handle), descriptor("shared "+string(handle), width, height, sharedUsage))
	if err != nil {
		return nil, err
	}
	staging, err := dev.CreateStagingTexture(descriptor("staging "+string(handle), width, height, stagingUsage))
	if err != nil {
		shared.Destroy()
		return nil, err
	}
	return &Writable{handle: handle, device: dev, shared: shared, staging: staging}, nil
}

func (w *Writable) Handle() Handle { return w.handle }

func (w *Writable) Width() int { return w.shared.Width() }

func (w *Writable) Height() int { return w.shared.Height() }

// Frame is tightly or loosely packed BGRA pixel data. Stride is the
// distance in bytes between row starts.
type Frame struct {
	Pix    []byte
	Width  int
	Height int
	Stride int
}

// Upload copies frame into the staging texture row by row, honoring the
// staging row pitch, then copies staging into the shared texture.
func (w *Writable) Upload(frame Frame) error {
	if frame.Width != w.Width() || frame.Height != w.Height() {
		return errors.Errorf("frame is %dx%d, surface is %dx%d", frame.Width, frame.Height, w.Width(), w.Height())
	}
	row := frame.Width * 4
	if frame.Stride < row || len(frame.Pix) < frame.Stride*(frame.Height-1)+row {
		return errors.Errorf("frame buffer of %d bytes too small for stride %d", len(frame.Pix), frame.Stride)
	}

	m, err := w.staging.Map()
	if err != nil {
		return err
	}
	for y := 0; y < frame.Height; y++ {
		copy(m.Data[y*m.RowPitch:y*m.RowPitch+row], frame.Pix[y*frame.Stride:y*frame.Stride+row])
	}
	m.Unmap()

	return w.device.CopyTexture(w.shared, w.staging)
}

// Release destroys both textures and withdraws the handle.
func (w *Writable) Release() error {
	w.staging.Destroy()
	return errors.Wrapf(w.shared.Destroy(), "failed to release surface %s", w.handle)
}

// Readable is the consumer's view of a surface.
type Readable struct {
	handle  Handle
	texture *gpu.Texture
}

// Open resolves handle on the consumer's device. Any failure to resolve a
// matching allocation is ErrSurfaceUnavailable; device failures are
// returned as they are.
func Open(dev *gpu.Device, handle Handle, width, height int) (*Readable, error) {
	tex, err := dev.OpenSharedTexture(string(handle), descriptor("view "+string(handle), width, height, sharedUsage))
	if err != nil {
		var re *gpu.DeviceResourceError
		if errors.As(err, &re) {
			return nil, err
		}
		return nil, errors.Wrapf(ErrSurfaceUnavailable, "%s: %v", handle, err)
	}
	return &Readable{handle: handle, texture: tex}, nil
}

func (r *Readable) Handle() Handle { return r.handle }

func (r *Readable) Width() int { return r.texture.Width() }

func (r *Readable) Height() int { return r.texture.Height() }

// Texture returns the texture to bind for sampling.
func (r *Readable) Texture() *gpu.Texture { return r.texture }

// Validate reports ErrSurfaceUnavailable once the producer released or
// recreated the allocation behind the handle.
func (r *Readable) Validate() error {
	if r.texture.Stale() {
		return errors.Wrapf(ErrSurfaceUnavailable, "%s is stale", r.handle)
	}
	return nil
}

// Snapshot converts the current texels into a straight-alpha image.
func (r *Readable) Snapshot() (*image.NRGBA, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	img := image.NewNRGBA(image.Rect(0, 0, r.Width(), r.Height()))
	if err := r.texture.ReadRows(img.Pix); err != nil {
		return nil, err
	}
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+2] = img.Pix[i+2], img.Pix[i]
	}
	return img, nil
}

func (r *Readable) Release() error {
	return r.texture.Destroy()
}
