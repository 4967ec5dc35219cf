package compositor

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// QuadWidth is the quad's width in meters. Height follows the surface
// aspect ratio.
const QuadWidth = 0.999

// Vertex is a mesh vertex as laid out in the vertex buffer.
type Vertex struct {
	Position [3]float32
	TexCoord [2]float32
}

// quadIndices draws both faces so the quad is visible from behind.
var quadIndices = []uint16{
	0, 2, 3,
	0, 1, 2,
	2, 0, 3,
	1, 0, 2,
}

// QuadMesh returns the vertices and indices of a quad centered on the
// origin for a surface of the given aspect ratio (width over height).
func QuadMesh(aspect float32) ([]Vertex, []uint16, error) {
	if aspect <= 0 {
		return nil, nil, errors.Errorf("invalid aspect ratio %v", aspect)
	}
	hw := float32(QuadWidth) / 2
	hh := hw / aspect
	// texture v runs top to bottom
	verts := []Vertex{
		{Position: [3]float32{-hw, -hh, 0}, TexCoord: [2]float32{0, 1}},
		{Position: [3]float32{hw, -hh, 0}, TexCoord: [2]float32{1, 1}},
		{Position: [3]float32{hw, hh, 0}, TexCoord: [2]float32{1, 0}},
		{Position: [3]float32{-hw, hh, 0}, TexCoord: [2]float32{0, 0}},
	}
	return verts, append([]uint16(nil), quadIndices...), nil
}

func vertexBytes(verts []Vertex) ([]byte, error) {
	b, err := binary.Append(nil, binary.LittleEndian, verts)
	return b, errors.Wrap(err, "failed to encode vertices")
}

func indexBytes(idx []uint16) ([]byte, error) {
	b, err := binary.Append(nil, binary.LittleEndian, idx)
	return b, errors.Wrap(err, "failed to encode indices")
}
