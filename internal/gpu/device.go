package gpu

import (
	"sync/atomic"

	"github.com/babelcloud/holocast/internal/util"
	"github.com/gogpu/gputypes"
	"github.com/pkg/errors"
)

// Capabilities are the device properties the compositor chooses paths from.
type Capabilities struct {
	// ArrayIndexFromVertexShader means the vertex stage can select the
	// render-target array slice, allowing single-pass instanced stereo.
	ArrayIndexFromVertexShader bool
	Limits                     gputypes.Limits
}

func DefaultCapabilities() Capabilities {
	return Capabilities{ArrayIndexFromVertexShader: true, Limits: gputypes.DefaultLimits()}
}

// Device creates textures and buffers and executes copies. It is a
// CPU-side device: textures are plain memory laid out the way a GPU would
// lay them out, and shared textures live in a SharedNamespace.
type Device struct {
	name string
	caps Capabilities
	ns   SharedNamespace
	lost atomic.Bool
}

func NewDevice(name string, ns SharedNamespace, caps Capabilities) *Device {
	return &Device{name: name, caps: caps, ns: ns}
}

func (d *Device) Name() string { return d.name }

func (d *Device) Capabilities() Capabilities { return d.caps }

// Lose marks the device removed. Every later operation fails with a
// DeviceResourceError wrapping ErrDeviceLost.
func (d *Device) Lose() {
	if !d.lost.Swap(true) {
		util.GetLogger().Warn("device lost", "device", d.name)
	}
}

func (d *Device) check(op string) error {
	if d.lost.Load() {
		return resourceError(op, ErrDeviceLost)
	}
	return nil
}

func (d *Device) validate(op string, desc gputypes.TextureDescriptor) error {
	if err := d.check(op); err != nil {
		return err
	}
	if desc.Dimension != gputypes.TextureDimension2D || desc.Size.DepthOrArrayLayers > 1 {
		return resourceError(op, errors.New("only single-layer 2D textures are supported"))
	}
	limit := d.caps.Limits.MaxTextureDimension2D
	if desc.Size.Width == 0 || desc.Size.Height == 0 || desc.Size.Width > limit || desc.Size.Height > limit {
		return resourceError(op, errors.Errorf("texture size %dx%d outside 1..%d", desc.Size.Width, desc.Size.Height, limit))
	}
	return nil
}

func infoFor(desc gputypes.TextureDescriptor) AllocationInfo {
	return AllocationInfo{
		Width:    int(desc.Size.Width),
		Height:   int(desc.Size.Height),
		Format:   desc.Format,
		RowPitch: AlignedRowPitch(int(desc.Size.Width), desc.Format),
	}
}

// CreateSharedTexture allocates a texture and publishes it under name.
func (d *Device) CreateSharedTexture(name string, desc gputypes.TextureDescriptor) (*Texture, error) {
	if err := d.validate("create shared texture", desc); err != nil {
		return nil, err
	}
	alloc, err := d.ns.Create(name, infoFor(desc))
	if err != nil {
		return nil, resourceError("create shared texture", err)
	}
	return &Texture{device: d, desc: desc, alloc: alloc, name: name}, nil
}

// OpenSharedTexture maps a texture another device published under name.
// The allocation must match desc in size and format.
func (d *Device) OpenSharedTexture(name string, desc gputypes.TextureDescriptor) (*Texture, error) {
	if err := d.check("open shared texture"); err != nil {
		return nil, err
	}
	alloc, err := d.ns.Open(name)
	if err != nil {
		return nil, err
	}
	info := alloc.Info()
	if info.Width != int(desc.Size.Width) || info.Height != int(desc.Size.Height) || info.Format != desc.Format {
		alloc.Release()
		return nil, errors.Wrapf(ErrDescriptorMismatch, "%q is %dx%d %s, requested %dx%d %s",
			name, info.Width, info.Height, info.Format, desc.Size.Width, desc.Size.Height, desc.Format)
	}
	return &Texture{device: d, desc: desc, alloc: alloc, name: name}, nil
}

// CreateStagingTexture allocates a private CPU-mappable texture.
func (d *Device) CreateStagingTexture(desc gputypes.TextureDescriptor) (*Texture, error) {
	if err := d.validate("create staging texture", desc); err != nil {
		return nil, err
	}
	info := infoFor(desc)
	return &Texture{
		device:  d,
		desc:    desc,
		alloc:   &privateAllocation{info: info, buf: make([]byte, info.Size())},
		staging: true,
	}, nil
}

// CopyTexture copies every texel of src into dst. Both textures must have
// the same size and format.
func (d *Device) CopyTexture(dst, src *Texture) error {
	const op = "copy texture"
	if err := dst.check(op); err != nil {
		return err
	}
	if err := src.check(op); err != nil {
		return err
	}
	if dst.desc.Size != src.desc.Size || dst.desc.Format != src.desc.Format {
		return resourceError(op, errors.Errorf("source %dx%d %s does not match destination %dx%d %s",
			src.Width(), src.Height(), src.Format(), dst.Width(), dst.Height(), dst.Format()))
	}
	if !src.desc.Usage.Contains(gputypes.TextureUsageCopySrc) || !dst.desc.Usage.Contains(gputypes.TextureUsageCopyDst) {
		return resourceError(op, errors.New("textures lack copy usage"))
	}
	if dst.Stale() {
		return resourceError(op, errors.New("destination allocation was withdrawn"))
	}

	row := src.Width() * BytesPerPixel(src.Format())
	sp, dp := src.RowPitch(), dst.RowPitch()
	sb, db := src.alloc.Bytes(), dst.alloc.Bytes()
	for y := 0; y < src.Height(); y++ {
		copy(db[y*dp:y*dp+row], sb[y*sp:y*sp+row])
	}
	return nil
}

type privateAllocation struct {
	info AllocationInfo
	buf  []byte
}

func (a *privateAllocation) Info() AllocationInfo { return a.info }
func (a *privateAllocation) Bytes() []byte        { return a.buf }
func (a *privateAllocation) Stale() bool          { return a.buf == nil }

func (a *privateAllocation) Release() error {
	a.buf = nil
	return nil
}
