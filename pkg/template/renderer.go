// renderer.go - Poster rendering engine.
// Draws in a fixed order, later layers occluding earlier ones:
// background -> backdrop -> photo -> gradients -> header (watermark, logo,
// date, lunar date) -> keyword block -> calendar.
package template

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"go.uber.org/zap"

	"github.com/xob0t/calposter/pkg/calendar"
	"github.com/xob0t/calposter/pkg/logo"
)

// Template geometry, as fractions of the canvas width (W) or height (H).
const (
	marginX = 0.049 // W, left/right text margin

	bottomGradientH = 0.33 // H
	topGradientH    = 0.11 // H

	logoWidth = 0.25  // W
	logoTop   = 0.044 // H
	logoBlur  = 0.005 // W, shadow sigma

	watermarkSize    = 0.35 // W
	watermarkY       = 0.07 // H, vertical center
	watermarkAlpha   = 0.08
	watermarkStretch = 1.2

	dateSize   = 0.035 // W
	dateGap    = 0.02  // W, clearance between header text and logo
	textBlur   = 0.004 // W, shadow sigma
	textOffset = 0.005 // W, shadow drop

	labelY       = 0.147 // H above bottom, baseline
	labelSize    = 0.02  // W
	labelAlpha   = 0.9
	keywordY     = 0.095 // H above bottom, baseline
	keywordSize  = 0.06  // W
	attitudeY    = 0.059 // H above bottom, baseline
	attitudeSize = 0.025 // W

	calendarX      = 0.55  // W
	calendarY      = 0.234 // H above bottom, header baseline
	calendarWidth  = 0.4   // W
	cellAspect     = 0.9   // cell height / cell width
	calHeaderSize  = 0.018 // W
	calHeaderAlpha = 0.7
	calDaySize     = 0.02  // W
	calendarBlur   = 0.001 // W, shadow sigma

	backdropDownscale = 8
	backdropSigma     = 2.5
	backdropDarken    = -35 // percent
)

var (
	bottomStops = []gradientStop{{0, 0}, {0.3, 0.1}, {0.7, 0.6}, {1, 0.9}}
	topStops    = []gradientStop{{0, 0.25}, {0.2, 0.17}, {0.4, 0.08}, {0.7, 0.02}, {1, 0}}

	logoShadowColor = color.NRGBA{A: 128}
	textShadowColor = color.NRGBA{A: 204}
)

// Renderer composes posters for one brand preset. It is immutable after
// construction and safe for concurrent use; every render allocates its own
// canvas, faces and keyed logo.
type Renderer struct {
	preset *Preset
	fonts  *FontManager
	logo   []byte // encoded brand logo, nil when none
	log    *zap.Logger

	background color.NRGBA
	textColor  color.NRGBA
	accent     color.NRGBA
	logoColor  color.Color // nil keeps the logo's own colors
	threshold  uint8
}

// Option configures a Renderer.
type Option func(*rendererOptions)

type rendererOptions struct {
	log     *zap.Logger
	logo    []byte
	hasLogo bool
	cjk     []byte
}

// WithLogger sets the logger used for degradation warnings.
func WithLogger(log *zap.Logger) Option {
	return func(o *rendererOptions) {
		o.log = log
	}
}

// WithLogo overrides the preset logo with an encoded image. A nil slice
// renders posters without a logo.
func WithLogo(data []byte) Option {
	return func(o *rendererOptions) {
		o.logo = data
		o.hasLogo = true
	}
}

// WithCJKFont uses an encoded TTF, OTF or TTC font for Han text instead of
// the preset's CJK setting.
func WithCJKFont(data []byte) Option {
	return func(o *rendererOptions) {
		o.cjk = data
	}
}

// NewRenderer creates a renderer for the preset; nil means DefaultPreset.
// Unset preset fields get their defaults; invalid colors or an out of range
// threshold are an error.
func NewRenderer(preset *Preset, opts ...Option) (*Renderer, error) {
	if preset == nil {
		preset = DefaultPreset()
	} else {
		p := *preset
		applyDefaults(&p)
		preset = &p
	}
	if err := ValidatePreset(preset); err != nil {
		return nil, fmt.Errorf("preset: %w", err)
	}
	o := rendererOptions{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}

	fm, err := NewFontManager(preset.Font, o.cjk, o.log)
	if err != nil {
		return nil, err
	}

	logoData := o.logo
	if !o.hasLogo {
		logoData, err = readAsset(preset.Logo.Path)
		if err != nil {
			o.log.Warn("could not read logo, posters will have no header", zap.String("path", preset.Logo.Path), zap.Error(err))
			logoData = nil
		}
	}

	// validated above
	logoColor, _ := logo.ParseColor(preset.Logo.Color)
	background, _ := logo.ParseHex(preset.Background)
	textColor, _ := logo.ParseHex(preset.Text.Color)
	accent, _ := logo.ParseHex(preset.Text.Accent)

	return &Renderer{
		preset:     preset,
		fonts:      fm,
		logo:       logoData,
		log:        o.log,
		background: background,
		textColor:  textColor,
		accent:     accent,
		logoColor:  logoColor,
		threshold:  uint8(*preset.Logo.Threshold),
	}, nil
}

// Preset returns the renderer's preset.
func (r *Renderer) Preset() *Preset {
	return r.preset
}

// Render decodes the photo and logo buffers and composes the poster. A nil
// logo uses the renderer's brand logo. A photo that fails to decode aborts
// the render with ErrPhotoDecode; a logo that fails to decode only drops the
// header.
func (r *Renderer) Render(photoData, logoData []byte, meta Metadata) (*image.RGBA, error) {
	photo, err := DecodePhoto(photoData, r.preset.MaxPhotoEdge)
	if err != nil {
		return nil, err
	}

	if logoData == nil {
		logoData = r.logo
	}
	var mark image.Image
	if logoData != nil {
		mark, err = DecodeLogo(logoData)
		if err != nil {
			r.log.Warn("rendering without logo", zap.Error(err))
			mark = nil
		}
	}

	return r.Compose(photo, mark, meta)
}

// Compose renders the poster from decoded images. logo is the raw brand mark
// on a white field; it is keyed here. A nil logo omits the header block.
func (r *Renderer) Compose(photo, mark image.Image, meta Metadata) (*image.RGBA, error) {
	if photo == nil || photo.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrPhotoDecode)
	}

	warnings, err := ValidateMetadata(meta, r.preset.StrictMonth)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		r.log.Warn(w, zap.String("month", meta.Month), zap.Int("year", meta.Year))
	}
	month, _ := calendar.ResolveMonth(meta.Month, false)

	w, h := r.preset.Canvas.Size()
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))

	// 1. safety backdrop
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{r.background}, image.Point{}, draw.Src)

	// 2-3. photo
	place := SelectLayout(photo.Bounds().Dx(), photo.Bounds().Dy(), w, h)
	if place.NeedsBackdrop {
		drawBackdrop(canvas, photo)
	}
	scaled := imaging.Resize(photo, place.Rect.Dx(), place.Rect.Dy(), imaging.Lanczos)
	draw.Draw(canvas, place.Rect, scaled, image.Point{}, draw.Over)

	// 4-5. legibility gradients
	dc := gg.NewContextForRGBA(canvas)
	fh := float64(h)
	drawGradient(dc, fh*(1-bottomGradientH), fh, bottomStops)
	drawGradient(dc, 0, fh*topGradientH, topStops)

	faces := newFaceCache(r.fonts, r.log)
	defer faces.Close()

	// 6-7. header
	if mark != nil && !mark.Bounds().Empty() {
		if err := r.drawHeader(canvas, dc, faces, mark, month, meta.Year); err != nil {
			return nil, err
		}
	}

	// 8. keyword block
	if err := r.drawKeywords(canvas, faces, meta); err != nil {
		return nil, err
	}

	// 9. calendar
	if err := r.drawCalendar(canvas, faces, calendar.For(month, meta.Year)); err != nil {
		return nil, err
	}

	return canvas, nil
}

// drawBackdrop fills the canvas with a blurred, darkened cover-crop of the
// photo. The blur runs on a downscaled copy.
func drawBackdrop(canvas *image.RGBA, photo image.Image) {
	w, h := canvas.Bounds().Dx(), canvas.Bounds().Dy()
	small := imaging.Fill(photo, max(w/backdropDownscale, 1), max(h/backdropDownscale, 1), imaging.Center, imaging.Linear)
	small = imaging.Blur(small, backdropSigma)
	small = imaging.AdjustBrightness(small, backdropDarken)
	full := imaging.Resize(small, w, h, imaging.Linear)
	draw.Draw(canvas, canvas.Bounds(), full, image.Point{}, draw.Over)
}

// drawHeader draws the watermark, the keyed logo and the date/lunar line
// centered on the logo's vertical midline.
func (r *Renderer) drawHeader(canvas *image.RGBA, dc *gg.Context, faces *faceCache, mark image.Image, month time.Month, year int) error {
	w, h := canvas.Bounds().Dx(), canvas.Bounds().Dy()
	fw, fh := float64(w), float64(h)
	textColor := r.textColor

	if wm := r.preset.Text.Watermark; wm != "" {
		face, err := faces.get(Bold, fw*watermarkSize, wm)
		if err != nil {
			return err
		}
		cx, cy := fw/2, fh*watermarkY
		dc.Push()
		dc.ScaleAbout(1, watermarkStretch, cx, cy)
		dc.SetFontFace(face)
		dc.SetColor(withAlpha(textColor, watermarkAlpha))
		dc.DrawStringAnchored(wm, cx, cy, 0.5, 0.5)
		dc.Pop()
	}

	keyed := logo.Key(mark, r.threshold, r.logoColor)
	lw := int(math.Round(fw * logoWidth))
	lh := max(int(math.Round(float64(keyed.Bounds().Dy())*float64(lw)/float64(keyed.Bounds().Dx()))), 1)
	scaledLogo := imaging.Resize(keyed, lw, lh, imaging.Lanczos)
	lx, ly := (w-lw)/2, int(math.Round(fh*logoTop))

	ls := shadow{color: logoShadowColor, sigma: fw * logoBlur}
	logoLayer := newLayer(image.Rect(lx, ly, lx+lw, ly+lh).Inset(-ls.pad()))
	logoLayer.image(scaledLogo, image.Pt(lx, ly))
	logoLayer.composite(canvas, ls)

	centerY := float64(ly) + float64(lh)/2
	maxText := float64(lx) - fw*marginX - fw*dateGap

	dateText := strings.ToUpper(month.String()) + " " + strconv.Itoa(year)
	dateFace, shrunk, err := fitFace(faces, Regular, fw*dateSize, dateText, maxText)
	if err != nil {
		return err
	}
	if shrunk {
		r.log.Warn("shrinking date text to fit", zap.String("text", dateText))
	}

	lunar, err := calendar.LunarLabelOr(month, year, r.preset.Text.LunarPlaceholder)
	if err != nil {
		r.log.Warn("lunar conversion failed, using placeholder", zap.Int("year", year), zap.Stringer("month", month), zap.Error(err))
	}
	lunarFace, _, err := fitFace(faces, Regular, fw*dateSize, lunar, maxText)
	if err != nil {
		return err
	}

	ts := textShadow(fw)
	band := fw * dateSize * 1.5
	l := newLayer(rect(0, centerY-band, fw, centerY+band, ts.pad()))
	l.text(dateFace, textColor, dateText, fw*marginX, centerY, 0, 0.5)
	l.text(lunarFace, textColor, lunar, fw*(1-marginX), centerY, 1, 0.5)
	l.composite(canvas, ts)
	return nil
}

// drawKeywords draws the keyword caption, keyword and attitude, left-aligned
// above the bottom edge.
func (r *Renderer) drawKeywords(canvas *image.RGBA, faces *faceCache, meta Metadata) error {
	w, h := canvas.Bounds().Dx(), canvas.Bounds().Dy()
	fw, fh := float64(w), float64(h)
	textColor, accent := r.textColor, r.accent
	x := fw * marginX
	maxText := fw*calendarX - x - fw*dateGap

	type line struct {
		text  string
		style FontStyle
		size  float64
		y     float64
		color color.Color
	}
	var lines []line
	if kw := strings.TrimSpace(meta.Keyword); kw != "" {
		lines = append(lines,
			line{r.preset.Text.KeywordLabel, Regular, labelSize, labelY, withAlpha(textColor, labelAlpha)},
			line{kw, Bold, keywordSize, keywordY, textColor},
		)
	}
	if at := strings.TrimSpace(meta.Attitude); at != "" {
		lines = append(lines, line{"“" + at + "”", Italic, attitudeSize, attitudeY, accent})
	}
	if len(lines) == 0 {
		return nil
	}

	ts := textShadow(fw)
	top := fh * (1 - labelY - 2*keywordSize*fw/fh)
	l := newLayer(rect(0, top, fw*calendarX, fh, ts.pad()))
	for _, ln := range lines {
		if ln.text == "" {
			continue
		}
		face, shrunk, err := fitFace(faces, ln.style, fw*ln.size, ln.text, maxText)
		if err != nil {
			return err
		}
		if shrunk {
			r.log.Warn("shrinking text to fit", zap.String("text", ln.text))
		}
		l.text(face, ln.color, ln.text, x, fh*(1-ln.y), 0, 0)
	}
	l.composite(canvas, ts)
	return nil
}

// drawCalendar draws the weekday header and the day grid in the lower right.
func (r *Renderer) drawCalendar(canvas *image.RGBA, faces *faceCache, g calendar.Geometry) error {
	w, h := canvas.Bounds().Dx(), canvas.Bounds().Dy()
	fw, fh := float64(w), float64(h)
	textColor := r.textColor

	x0, y0 := fw*calendarX, fh*(1-calendarY)
	cellW := fw * calendarWidth / calendar.Columns
	cellH := cellW * cellAspect

	headerFace, err := faces.get(Bold, fw*calHeaderSize, "")
	if err != nil {
		return err
	}
	dayFace, err := faces.get(Regular, fw*calDaySize, "")
	if err != nil {
		return err
	}

	cs := shadow{color: textShadowColor, sigma: fw * calendarBlur, dy: int(math.Round(fw * textOffset))}
	l := newLayer(rect(x0, y0-fw*calHeaderSize*1.5, x0+fw*calendarWidth, fh, cs.pad()))
	header := withAlpha(textColor, calHeaderAlpha)
	for i, d := range calendar.Weekdays {
		l.text(headerFace, header, d, x0+float64(i)*cellW+cellW/2, y0, 0.5, 0)
	}
	for _, c := range g.Cells() {
		cx := x0 + float64(c.Col)*cellW + cellW/2
		cy := y0 + float64(c.Row+1)*cellH
		l.text(dayFace, textColor, strconv.Itoa(c.Day), cx, cy, 0.5, 0)
	}
	l.composite(canvas, cs)
	return nil
}

func textShadow(fw float64) shadow {
	return shadow{color: textShadowColor, sigma: fw * textBlur, dy: int(math.Round(fw * textOffset))}
}

// withAlpha returns c with its alpha scaled by a.
func withAlpha(c color.NRGBA, a float64) color.NRGBA {
	c.A = uint8(math.Round(float64(c.A) * a))
	return c
}
