package gpu

import (
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/pkg/errors"
)

// Buffer is an immutable device buffer.
type Buffer struct {
	desc gputypes.BufferDescriptor
	data []byte
}

func (b *Buffer) Descriptor() gputypes.BufferDescriptor { return b.desc }

func (b *Buffer) Bytes() []byte { return b.data }

// CreateBuffer allocates a buffer initialized with data.
func (d *Device) CreateBuffer(label string, usage gputypes.BufferUsage, data []byte) (*Buffer, error) {
	if err := d.check("create buffer"); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, resourceError("create buffer", errors.Errorf("buffer %q is empty", label))
	}
	return &Buffer{
		desc: gputypes.BufferDescriptor{Label: label, Size: uint64(len(data)), Usage: usage},
		data: append([]byte(nil), data...),
	}, nil
}

// ShaderSet names the programs bound for a draw. Geometry is empty when the
// pipeline has no geometry stage.
type ShaderSet struct {
	Vertex   string
	Geometry string
	Pixel    string
}

// DrawCall is one recorded indexed draw and the state bound for it.
type DrawCall struct {
	Shaders       ShaderSet
	Topology      gputypes.PrimitiveTopology
	VertexBuffer  *Buffer
	IndexBuffer   *Buffer
	IndexFormat   gputypes.IndexFormat
	Constants     any
	Texture       *Texture
	IndexCount    int
	InstanceCount int
}

// CommandList records draws for later submission.
type CommandList struct {
	device *Device
	state  DrawCall
	draws  []DrawCall
}

func (d *Device) NewCommandList() *CommandList {
	return &CommandList{device: d}
}

func (c *CommandList) SetShaders(s ShaderSet) { c.state.Shaders = s }

func (c *CommandList) SetTopology(t gputypes.PrimitiveTopology) { c.state.Topology = t }

func (c *CommandList) SetVertexBuffer(b *Buffer) { c.state.VertexBuffer = b }

func (c *CommandList) SetIndexBuffer(b *Buffer, f gputypes.IndexFormat) {
	c.state.IndexBuffer = b
	c.state.IndexFormat = f
}

// SetConstants binds the per-draw constant block. The value is copied into
// the recorded draw.
func (c *CommandList) SetConstants(v any) { c.state.Constants = v }

func (c *CommandList) SetTexture(t *Texture) { c.state.Texture = t }

// DrawIndexedInstanced records a draw of indexCount indices for each of
// instanceCount instances.
func (c *CommandList) DrawIndexedInstanced(indexCount, instanceCount int) error {
	const op = "draw"
	if err := c.device.check(op); err != nil {
		return err
	}
	s := c.state
	switch {
	case s.Shaders.Vertex == "" || s.Shaders.Pixel == "":
		return resourceError(op, errors.New("no shaders bound"))
	case s.VertexBuffer == nil || s.IndexBuffer == nil:
		return resourceError(op, errors.New("no geometry bound"))
	case s.IndexFormat == gputypes.IndexFormatUndefined:
		return resourceError(op, errors.New("index format undefined"))
	case s.Texture == nil:
		return resourceError(op, errors.New("no texture bound"))
	}
	if s.Texture.Stale() {
		return resourceError(op, errors.Wrap(ErrTextureDestroyed, "bound texture"))
	}
	indexSize := 2
	if s.IndexFormat == gputypes.IndexFormatUint32 {
		indexSize = 4
	}
	if indexCount <= 0 || indexCount*indexSize > len(s.IndexBuffer.data) {
		return resourceError(op, errors.Errorf("index count %d exceeds index buffer", indexCount))
	}
	if instanceCount <= 0 {
		return resourceError(op, errors.Errorf("invalid instance count %d", instanceCount))
	}
	s.IndexCount = indexCount
	s.InstanceCount = instanceCount
	c.draws = append(c.draws, s)
	return nil
}

// Draws returns a copy of the recorded draws in order.
func (c *CommandList) Draws() []DrawCall { return slices.Clone(c.draws) }

// Reset clears recorded draws and bound state.
func (c *CommandList) Reset() {
	c.state = DrawCall{}
	c.draws = c.draws[:0]
}
