package compositor

import (
	"github.com/babelcloud/holocast/internal/gpu"
	"github.com/gogpu/gputypes"
	"github.com/pkg/errors"
)

// Instances is one per eye.
const Instances = 2

// Renderer records the quad draw for a fixed stereo path.
type Renderer struct {
	dev    *gpu.Device
	path   StereoPath
	aspect float32
	vb     *gpu.Buffer
	ib     *gpu.Buffer
	count  int
}

func NewRenderer(dev *gpu.Device, path StereoPath) *Renderer {
	return &Renderer{dev: dev, path: path}
}

func (r *Renderer) Path() StereoPath { return r.path }

// SetAspect rebuilds the mesh buffers when the aspect ratio changes.
func (r *Renderer) SetAspect(aspect float32) error {
	if r.vb != nil && aspect == r.aspect {
		return nil
	}
	verts, idx, err := QuadMesh(aspect)
	if err != nil {
		return err
	}
	vdata, err := vertexBytes(verts)
	if err != nil {
		return err
	}
	idata, err := indexBytes(idx)
	if err != nil {
		return err
	}
	vb, err := r.dev.CreateBuffer("quad vertices", gputypes.BufferUsageVertex, vdata)
	if err != nil {
		return errors.Wrap(err, "failed to create vertex buffer")
	}
	ib, err := r.dev.CreateBuffer("quad indices", gputypes.BufferUsageIndex, idata)
	if err != nil {
		return errors.Wrap(err, "failed to create index buffer")
	}
	r.vb, r.ib, r.count, r.aspect = vb, ib, len(idx), aspect
	return nil
}

// Render binds the quad state and records a two-instance draw.
func (r *Renderer) Render(cl *gpu.CommandList, tex *gpu.Texture, consts ModelConstants) error {
	if r.vb == nil {
		return errors.New("renderer has no mesh")
	}
	cl.SetShaders(r.path.Shaders())
	cl.SetTopology(gputypes.PrimitiveTopologyTriangleList)
	cl.SetVertexBuffer(r.vb)
	cl.SetIndexBuffer(r.ib, gputypes.IndexFormatUint16)
	cl.SetConstants(consts)
	cl.SetTexture(tex)
	return cl.DrawIndexedInstanced(r.count, Instances)
}
