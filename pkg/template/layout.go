package template

import (
	"image"
	"math"
)

// Strategy is how the photo is placed on the canvas.
type Strategy int

const (
	// Cover scales the photo to fill the whole canvas and crops the overflow.
	Cover Strategy = iota
	// Fit scales the photo to the canvas width and fills the margins with a
	// blurred, darkened copy of itself.
	Fit
)

func (s Strategy) String() string {
	switch s {
	case Cover:
		return "cover"
	case Fit:
		return "fit"
	}
	return "unknown"
}

// FitBias moves a fitted photo down by this fraction of the canvas height to
// leave headroom for the logo.
const FitBias = 0.04

// Placement is where the photo is drawn. Rect may extend past the canvas
// (cover) or sit inside it with margins (fit).
type Placement struct {
	Strategy      Strategy
	Rect          image.Rectangle
	NeedsBackdrop bool
}

// SelectLayout chooses the placement for a photo of the given size.
// Landscape and square photos are fitted over a blurred backdrop; portrait
// photos are cover-cropped. An empty photo or canvas yields a zero Placement.
func SelectLayout(photoW, photoH, canvasW, canvasH int) Placement {
	if photoW <= 0 || photoH <= 0 || canvasW <= 0 || canvasH <= 0 {
		return Placement{}
	}
	pw, ph := float64(photoW), float64(photoH)
	cw, ch := float64(canvasW), float64(canvasH)

	if photoW >= photoH {
		h := int(math.Round(ph * cw / pw))
		y := (canvasH-h)/2 + int(math.Round(ch*FitBias))
		if y+h > canvasH {
			y = canvasH - h
		}
		if y < 0 {
			y = 0
		}
		return Placement{
			Strategy:      Fit,
			Rect:          image.Rect(0, y, canvasW, y+h),
			NeedsBackdrop: true,
		}
	}

	scale := math.Max(cw/pw, ch/ph)
	w := max(int(math.Round(pw*scale)), canvasW)
	h := max(int(math.Round(ph*scale)), canvasH)
	x := (canvasW - w) / 2
	y := (canvasH - h) / 2
	return Placement{
		Strategy: Cover,
		Rect:     image.Rect(x, y, x+w, y+h),
	}
}
