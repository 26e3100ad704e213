// draw.go - Drawing helpers: gradients, shadowed layers and fitted text.
package template

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"golang.org/x/image/font"
)

// gradientStop is one alpha stop of a black vertical gradient.
type gradientStop struct {
	offset float64
	alpha  float64
}

// drawGradient fills the band [y0, y1) with a top-to-bottom black gradient.
func drawGradient(dc *gg.Context, y0, y1 float64, stops []gradientStop) {
	g := gg.NewLinearGradient(0, y0, 0, y1)
	for _, s := range stops {
		g.AddColorStop(s.offset, color.NRGBA{A: uint8(math.Round(s.alpha * 255))})
	}
	dc.SetFillStyle(g)
	dc.DrawRectangle(0, y0, float64(dc.Width()), y1-y0)
	dc.Fill()
}

// shadow describes a blurred drop shadow under a layer.
type shadow struct {
	color color.NRGBA
	sigma float64 // gaussian blur sigma in pixels
	dx    int
	dy    int
}

// pad is how far the blurred shadow can spread beyond the content.
func (s shadow) pad() int {
	return int(math.Ceil(3*s.sigma)) + max(abs(s.dx), abs(s.dy))
}

// layer is a transparent scratch image positioned on the canvas. Content is
// drawn with canvas coordinates and composited with an optional shadow.
type layer struct {
	dc     *gg.Context
	origin image.Point
}

func newLayer(r image.Rectangle) *layer {
	return &layer{dc: gg.NewContext(max(r.Dx(), 1), max(r.Dy(), 1)), origin: r.Min}
}

// text draws s anchored at canvas point (x, y); ax/ay follow gg's anchor
// convention (0,0 = left/baseline, 1,0.5 = right/vertical center).
func (l *layer) text(face font.Face, c color.Color, s string, x, y, ax, ay float64) {
	l.dc.SetFontFace(face)
	l.dc.SetColor(c)
	l.dc.DrawStringAnchored(s, x-float64(l.origin.X), y-float64(l.origin.Y), ax, ay)
}

// image draws src with its top-left corner at canvas point p.
func (l *layer) image(src image.Image, p image.Point) {
	dst := l.dc.Image().(*image.RGBA)
	r := src.Bounds().Sub(src.Bounds().Min).Add(p.Sub(l.origin))
	draw.Draw(dst, r, src, src.Bounds().Min, draw.Over)
}

// composite draws the layer onto dst, preceded by its shadow.
func (l *layer) composite(dst draw.Image, s shadow) {
	img := l.dc.Image()
	r := img.Bounds().Add(l.origin)
	if s.color.A > 0 {
		sh := silhouette(img, s.color)
		if s.sigma > 0 {
			sh = imaging.Blur(sh, s.sigma)
		}
		draw.Draw(dst, r.Add(image.Pt(s.dx, s.dy)), sh, image.Point{}, draw.Over)
	}
	draw.Draw(dst, r, img, image.Point{}, draw.Over)
}

// silhouette returns an image of c whose alpha follows the alpha of src.
func silhouette(src image.Image, c color.NRGBA) *image.NRGBA {
	out := imaging.Clone(src)
	for i := 0; i < len(out.Pix); i += 4 {
		a := uint32(out.Pix[i+3]) * uint32(c.A) / 255
		out.Pix[i], out.Pix[i+1], out.Pix[i+2], out.Pix[i+3] = c.R, c.G, c.B, uint8(a)
	}
	return out
}

// fitFace returns the largest face no bigger than size whose rendering of s
// fits within maxWidth, shrinking in 5% steps down to minFitScale of size.
func fitFace(faces *faceCache, style FontStyle, size float64, s string, maxWidth float64) (font.Face, bool, error) {
	shrunk := false
	for scale := 1.0; ; scale -= 0.05 {
		face, err := faces.get(style, size*scale, s)
		if err != nil {
			return nil, false, err
		}
		if scale-0.05 < minFitScale || float64(font.MeasureString(face, s).Ceil()) <= maxWidth {
			return face, shrunk, nil
		}
		shrunk = true
	}
}

// minFitScale is the smallest text scale fitFace will use.
const minFitScale = 0.6

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// rect returns the integer rectangle covering the float bounds, grown by pad.
func rect(x0, y0, x1, y1 float64, pad int) image.Rectangle {
	return image.Rect(
		int(math.Floor(x0))-pad, int(math.Floor(y0))-pad,
		int(math.Ceil(x1))+pad, int(math.Ceil(y1))+pad,
	)
}
