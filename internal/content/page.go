// Package content is a small synthetic document renderer. It stands in for
// a browser engine: it lays out blocks and editable fields for a source,
// scrolls, focuses on click and accepts typed text.
package content

import (
	"hash/fnv"
	"image"
	"math/rand/v2"

	"github.com/gogpu/gg"
	"github.com/pkg/errors"
)

const (
	margin     = 16
	fieldH     = 40
	glyphW     = 10
	glyphPad   = 3
	pageHeight = 3 // document height in viewports
)

// Element is a laid-out box in document coordinates.
type Element struct {
	Bounds   image.Rectangle
	Color    gg.RGBA
	Editable bool
	Text     []rune
}

// Page holds the state of one loaded document. It is not safe for
// concurrent use; a Host serializes access through its dispatch loop.
type Page struct {
	source   string
	width    int
	height   int
	docW     int
	docH     int
	scroll   image.Point
	elements []*Element
	focus    int
	loaded   bool
	bg       gg.RGBA
}

func NewPage(width, height int) *Page {
	return &Page{width: width, height: height, focus: -1}
}

func (p *Page) Source() string { return p.source }

func (p *Page) Loaded() bool { return p.loaded }

func (p *Page) Size() (int, int) { return p.width, p.height }

// Scroll returns the document offset of the viewport's top-left corner.
func (p *Page) Scroll() image.Point { return p.scroll }

func (p *Page) Elements() []*Element { return p.elements }

// Focused returns the editable element with focus, or nil.
func (p *Page) Focused() *Element {
	if p.focus < 0 {
		return nil
	}
	return p.elements[p.focus]
}

// Load lays out the document for source. The same source always yields the
// same layout.
func (p *Page) Load(source string) {
	h := fnv.New64a()
	h.Write([]byte(source))
	rng := rand.New(rand.NewPCG(h.Sum64(), uint64(len(source))))

	p.source = source
	p.scroll = image.Point{}
	p.focus = -1
	p.loaded = true
	p.bg = gg.RGB(0.92+0.08*rng.Float64(), 0.92+0.08*rng.Float64(), 0.92+0.08*rng.Float64())
	p.layout(rng)
}

func (p *Page) layout(rng *rand.Rand) {
	p.docW = p.width
	p.docH = p.height * pageHeight
	p.elements = p.elements[:0]

	inner := p.width - 2*margin
	if inner < 1 {
		inner = 1
	}
	y := margin
	for y < p.docH-margin {
		if rng.IntN(4) == 0 {
			p.elements = append(p.elements, &Element{
				Bounds:   image.Rect(margin, y, margin+inner, y+fieldH),
				Color:    gg.RGB(1, 1, 1),
				Editable: true,
			})
			y += fieldH + margin
			continue
		}
		bh := 24 + rng.IntN(p.height/3+1)
		bw := inner/2 + rng.IntN(inner/2+1)
		p.elements = append(p.elements, &Element{
			Bounds: image.Rect(margin, y, margin+bw, y+bh),
			Color:  gg.RGB(0.2+0.6*rng.Float64(), 0.2+0.6*rng.Float64(), 0.2+0.6*rng.Float64()),
		})
		y += bh + margin
	}
	if y > p.docH {
		p.docH = y
	}
}

// Render draws the viewport.
func (p *Page) Render() (image.Image, error) {
	if !p.loaded {
		return nil, errors.New("no document loaded")
	}
	dc := gg.NewContext(p.width, p.height)
	defer dc.Close()

	dc.ClearWithColor(p.bg)
	view := image.Rect(0, 0, p.width, p.height).Add(p.scroll)
	for i, el := range p.elements {
		if !el.Bounds.Overlaps(view) {
			continue
		}
		r := el.Bounds.Sub(p.scroll)
		dc.SetRGBA(el.Color.R, el.Color.G, el.Color.B, el.Color.A)
		dc.DrawRoundedRectangle(float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()), 4)
		if err := dc.Fill(); err != nil {
			return nil, errors.Wrap(err, "failed to fill element")
		}
		if el.Editable {
			if err := p.renderField(dc, r, el, i == p.focus); err != nil {
				return nil, err
			}
		}
	}
	return dc.Image(), nil
}

func (p *Page) renderField(dc *gg.Context, r image.Rectangle, el *Element, focused bool) error {
	dc.SetLineWidth(1)
	if focused {
		dc.SetLineWidth(3)
		dc.SetRGB(0.1, 0.4, 0.9)
	} else {
		dc.SetRGB(0.6, 0.6, 0.6)
	}
	dc.DrawRoundedRectangle(float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()), 4)
	if err := dc.Stroke(); err != nil {
		return errors.Wrap(err, "failed to stroke field")
	}

	// each character is drawn as a cell shaded by its code point
	x := float64(r.Min.X + 8)
	for _, ch := range el.Text {
		if x+glyphW > float64(r.Max.X-8) {
			break
		}
		shade := 0.15 + 0.5*float64(ch%32)/32
		dc.SetRGB(shade, shade, shade)
		dc.DrawRectangle(x, float64(r.Min.Y+8), glyphW, float64(r.Dy()-16))
		if err := dc.Fill(); err != nil {
			return errors.Wrap(err, "failed to draw text")
		}
		x += glyphW + glyphPad
	}
	if focused {
		dc.SetRGB(0, 0, 0)
		dc.DrawRectangle(x, float64(r.Min.Y+6), 2, float64(r.Dy()-12))
		if err := dc.Fill(); err != nil {
			return errors.Wrap(err, "failed to draw caret")
		}
	}
	return nil
}

// Click focuses the editable element under the viewport point, or clears
// focus when there is none.
func (p *Page) Click(x, y int) {
	pt := image.Pt(x, y).Add(p.scroll)
	p.focus = -1
	for i, el := range p.elements {
		if el.Editable && pt.In(el.Bounds) {
			p.focus = i
			return
		}
	}
}

// ScrollBy pans the viewport, clamped to the document.
func (p *Page) ScrollBy(dx, dy int) {
	p.scroll.X = clamp(p.scroll.X+dx, 0, p.docW-p.width)
	p.scroll.Y = clamp(p.scroll.Y+dy, 0, p.docH-p.height)
}

func (p *Page) AppendText(r rune) {
	if el := p.Focused(); el != nil {
		el.Text = append(el.Text, r)
	}
}

func (p *Page) DeleteBackward() {
	if el := p.Focused(); el != nil && len(el.Text) > 0 {
		el.Text = el.Text[:len(el.Text)-1]
	}
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
