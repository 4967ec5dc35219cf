package gpu

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/pkg/errors"
)

// RowPitchAlignment is the byte alignment of texture rows.
const RowPitchAlignment = 256

// BytesPerPixel returns the texel size of the formats surfaces use.
func BytesPerPixel(f gputypes.TextureFormat) int {
	switch f {
	case gputypes.TextureFormatR8Unorm:
		return 1
	case gputypes.TextureFormatRGBA16Float:
		return 8
	default:
		return 4
	}
}

// AlignedRowPitch rounds a row of width texels up to RowPitchAlignment.
func AlignedRowPitch(width int, f gputypes.TextureFormat) int {
	row := width * BytesPerPixel(f)
	return (row + RowPitchAlignment - 1) / RowPitchAlignment * RowPitchAlignment
}

// Texture2D builds the descriptor of a single-level 2D texture.
func Texture2D(label string, width, height int, format gputypes.TextureFormat, usage gputypes.TextureUsage) gputypes.TextureDescriptor {
	return gputypes.TextureDescriptor{
		Label:         label,
		Size:          gputypes.NewExtent2D(uint32(width), uint32(height)),
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	}
}

// Texture is a 2D texture whose texels live in an allocation. Shared
// textures come from a SharedNamespace; staging textures are private and
// CPU mappable.
type Texture struct {
	device    *Device
	desc      gputypes.TextureDescriptor
	alloc     Allocation
	name      string
	staging   bool
	mapped    sync.Mutex
	destroyed atomic.Bool
}

func (t *Texture) Descriptor() gputypes.TextureDescriptor { return t.desc }

func (t *Texture) Width() int { return int(t.desc.Size.Width) }

func (t *Texture) Height() int { return int(t.desc.Size.Height) }

func (t *Texture) Format() gputypes.TextureFormat { return t.desc.Format }

func (t *Texture) RowPitch() int { return t.alloc.Info().RowPitch }

// SharedName returns the namespace name of a shared texture, or "".
func (t *Texture) SharedName() string { return t.name }

// Stale reports whether a shared texture's allocation has been released or
// replaced by its publisher.
func (t *Texture) Stale() bool {
	return t.destroyed.Load() || t.alloc.Stale()
}

func (t *Texture) IsDestroyed() bool { return t.destroyed.Load() }

// Destroy releases the texture. Destroying a published texture withdraws
// it from the namespace.
func (t *Texture) Destroy() error {
	if t.destroyed.Swap(true) {
		return nil
	}
	return t.alloc.Release()
}

func (t *Texture) check(op string) error {
	if t.destroyed.Load() {
		return resourceError(op, ErrTextureDestroyed)
	}
	return t.device.check(op)
}

// Mapping is CPU access to a staging texture. Rows start every RowPitch
// bytes; only the first Width*4 bytes of a row are texels.
type Mapping struct {
	Data     []byte
	RowPitch int
	tex      *Texture
}

// Map gives the CPU exclusive access to a staging texture until Unmap.
func (t *Texture) Map() (*Mapping, error) {
	if !t.staging {
		return nil, resourceError("map", ErrNotStaging)
	}
	if err := t.check("map"); err != nil {
		return nil, err
	}
	t.mapped.Lock()
	return &Mapping{Data: t.alloc.Bytes(), RowPitch: t.RowPitch(), tex: t}, nil
}

func (m *Mapping) Unmap() {
	if m.tex == nil {
		return
	}
	m.tex.mapped.Unlock()
	m.tex = nil
}

// ReadRows copies the texel rows of t into dst, packed at width*bpp per row.
func (t *Texture) ReadRows(dst []byte) error {
	if err := t.check("read"); err != nil {
		return err
	}
	row := t.Width() * BytesPerPixel(t.Format())
	if len(dst) < row*t.Height() {
		return errors.Errorf("destination holds %d bytes, need %d", len(dst), row*t.Height())
	}
	src := t.alloc.Bytes()
	pitch := t.RowPitch()
	for y := 0; y < t.Height(); y++ {
		copy(dst[y*row:(y+1)*row], src[y*pitch:y*pitch+row])
	}
	return nil
}
