package capture

import (
	"image"

	"github.com/babelcloud/holocast/internal/surface"
	"golang.org/x/image/draw"
)

// boxKernel averages every source texel under a destination texel when
// downscaling.
var boxKernel = &draw.Kernel{Support: 0.5, At: func(float64) float64 { return 1 }}

// Scaler resizes captured images into BGRA straight-alpha frames. It
// reuses its buffers between calls and is not safe for concurrent use.
type Scaler struct {
	rgba *image.RGBA
	out  []byte
}

// Scale resizes src to width x height and returns it as a BGRA frame. The
// returned Pix is reused by the next call.
func (s *Scaler) Scale(src image.Image, width, height int) surface.Frame {
	dr := image.Rect(0, 0, width, height)
	if s.rgba == nil || s.rgba.Rect != dr {
		s.rgba = image.NewRGBA(dr)
		s.out = make([]byte, width*height*4)
	}

	sb := src.Bounds()
	if sb.Dx() == width && sb.Dy() == height {
		draw.Draw(s.rgba, dr, src, sb.Min, draw.Src)
	} else {
		boxKernel.Scale(s.rgba, dr, src, sb, draw.Src, nil)
	}

	// RGBA premultiplied to BGRA straight alpha
	pix := s.rgba.Pix
	for i := 0; i < len(pix); i += 4 {
		r, g, b, a := pix[i], pix[i+1], pix[i+2], pix[i+3]
		if a != 0 && a != 0xff {
			r = unpremultiply(r, a)
			g = unpremultiply(g, a)
			b = unpremultiply(b, a)
		}
		s.out[i], s.out[i+1], s.out[i+2], s.out[i+3] = b, g, r, a
	}
	return surface.Frame{Pix: s.out, Width: width, Height: height, Stride: width * 4}
}

func unpremultiply(c, a uint8) uint8 {
	v := (uint32(c)*0xff + uint32(a)/2) / uint32(a)
	if v > 0xff {
		v = 0xff
	}
	return uint8(v)
}
