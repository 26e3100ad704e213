// Package logo turns a brand mark drawn on a white field into a transparent,
// single-color asset.
package logo

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// DefaultThreshold is the channel value above which a pixel counts as
// background.
const DefaultThreshold = 230

// Named target colors.
var (
	White = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	Gold  = color.NRGBA{R: 197, G: 160, B: 101, A: 255}
)

// Key removes the near-white background of src and recolors everything else.
//
// A pixel whose R, G and B all exceed threshold becomes fully transparent.
// Every other pixel keeps its alpha and takes the RGB of target; a nil target
// keeps the original RGB. The result has the bounds of src rebased to the
// origin and is never aliased with src.
func Key(src image.Image, threshold uint8, target color.Color) *image.NRGBA {
	// Clone converts to straight-alpha NRGBA, so the threshold is compared
	// against un-premultiplied channels.
	dst := imaging.Clone(src)

	recolor := target != nil
	var tc color.NRGBA
	if recolor {
		tc = color.NRGBAModel.Convert(target).(color.NRGBA)
	}

	b := dst.Bounds()
	for y := 0; y < b.Dy(); y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+b.Dx()*4]
		for i := 0; i < len(row); i += 4 {
			r, g, bl := row[i], row[i+1], row[i+2]
			if r > threshold && g > threshold && bl > threshold {
				row[i+3] = 0
				continue
			}
			if recolor {
				row[i], row[i+1], row[i+2] = tc.R, tc.G, tc.B
			}
		}
	}
	return dst
}

// KeyBytes decodes an encoded logo and keys it.
func KeyBytes(data []byte, threshold uint8, target color.Color) (*image.NRGBA, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode logo: %w", err)
	}
	return Key(img, threshold, target), nil
}

// ParseColor parses a target color: "white", "gold", "#rrggbb", or
// "original"/"" which returns nil (keep the source colors).
func ParseColor(s string) (color.Color, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "original", "none":
		return nil, nil
	case "white":
		return White, nil
	case "gold":
		return Gold, nil
	}

	c, err := ParseHex(s)
	if err != nil {
		return nil, fmt.Errorf("%w: expected white, gold, original or #rrggbb", err)
	}
	return c, nil
}

// ParseHex parses an opaque "#rrggbb" color; the leading '#' is optional.
func ParseHex(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}
