// color.go - Matte color parsing and alpha flattening.
package generator

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/xob0t/calposter/pkg/logo"
)

// ParseColor parses a "#rrggbb" matte color. The empty string is white.
func ParseColor(s string) (color.RGBA, error) {
	if s == "" {
		return color.RGBA{255, 255, 255, 255}, nil
	}

	c, err := logo.ParseHex(s)
	if err != nil {
		return color.RGBA{}, err
	}
	return color.RGBA{c.R, c.G, c.B, 255}, nil
}

// NewSolidImage creates a uniform solid-color image using draw.Draw (O(1) fill).
func NewSolidImage(r image.Rectangle, c color.Color) *image.RGBA {
	img := image.NewRGBA(r)
	draw.Draw(img, img.Bounds(), &image.Uniform{c}, image.Point{}, draw.Src)
	return img
}

// Flatten composites img over a solid matte. Opaque images are returned as is.
func Flatten(img image.Image, matte color.Color) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	dst := NewSolidImage(img.Bounds(), matte)
	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Over)
	return dst
}
