package compositor

import "github.com/babelcloud/holocast/internal/gpu"

// StereoPath is how each eye's render target slice is selected.
type StereoPath int

const (
	// StereoVPRT picks the array slice from the vertex stage in a single
	// two-instance pass.
	StereoVPRT StereoPath = iota
	// StereoGeometry routes each instance through a pass-through geometry
	// stage that sets the slice.
	StereoGeometry
)

func (p StereoPath) String() string {
	switch p {
	case StereoVPRT:
		return "vprt"
	case StereoGeometry:
		return "geometry"
	}
	return "unknown"
}

// SelectStereoPath decides the path once for a device. allowVPRT lets the
// single-pass path be disabled even when the device supports it.
func SelectStereoPath(caps gpu.Capabilities, allowVPRT bool) StereoPath {
	if allowVPRT && caps.ArrayIndexFromVertexShader {
		return StereoVPRT
	}
	return StereoGeometry
}

// Shaders returns the programs bound for the path.
func (p StereoPath) Shaders() gpu.ShaderSet {
	if p == StereoVPRT {
		return gpu.ShaderSet{Vertex: "VprtVertexShader", Pixel: "PixelShader"}
	}
	return gpu.ShaderSet{Vertex: "VertexShader", Geometry: "GeometryShader", Pixel: "PixelShader"}
}
