package template

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/tdewolff/test"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/xob0t/calposter/pkg/calendar"
)

var testMeta = Metadata{Month: "MARCH", Year: 2026, Keyword: "松弛感", Attitude: "做自己的光"}

// testLogo is a black bar on a white field.
func testLogo(t *testing.T) []byte {
	img := solid(400, 200, color.White)
	draw.Draw(img, image.Rect(100, 50, 300), &image.Uniform{color.Black}, image.Point{}, draw.Src)
	return encodePNG(t, img)
}

func newTestRenderer(t *testing.T, logo []byte, opts ...Option) *Renderer {
	t.Helper()
	r, err := NewRenderer(nil, append([]Option{WithLogo(logo)}, opts...)...)
	test.Error(t, err)
	return r
}

func near(a, b uint8, tol int) bool {
	d := int(a) - int(b)
	return d >= -tol && d <= tol
}

func TestRenderCanvasSize(t *testing.T) {
	r := newTestRenderer(t, testLogo(t))
	for _, size := range []image.Point{{1024, 1024}, {768, 1024}, {1600, 900}} {
		photo := encodePNG(t, solid(size.X, size.Y, color.NRGBA{120, 140, 160, 255}))
		out, err := r.Render(photo, nil, testMeta)
		test.Error(t, err)
		test.T(t, out.Bounds(), image.Rect(0, 0, 1024, 1365))
	}
}

func TestRenderCustomWidth(t *testing.T) {
	p := DefaultPreset()
	p.Canvas.Width = 512
	r, err := NewRenderer(p, WithLogo(testLogo(t)))
	test.Error(t, err)
	out, err := r.Render(encodePNG(t, solid(300, 400, color.Gray{90})), nil, testMeta)
	test.Error(t, err)
	test.T(t, out.Bounds(), image.Rect(0, 0, 512, 683))
}

func TestRenderIdempotent(t *testing.T) {
	r := newTestRenderer(t, testLogo(t))
	photo := encodePNG(t, solid(1024, 1024, color.NRGBA{220, 180, 140, 255}))

	a, err := r.Render(photo, nil, testMeta)
	test.Error(t, err)
	b, err := r.Render(photo, nil, testMeta)
	test.Error(t, err)
	test.That(t, bytes.Equal(a.Pix, b.Pix), "two renders of the same input differ")
}

func TestRenderConcurrent(t *testing.T) {
	r := newTestRenderer(t, testLogo(t))
	photo := encodePNG(t, solid(768, 1024, color.NRGBA{60, 90, 120, 255}))
	want, err := r.Render(photo, nil, testMeta)
	test.Error(t, err)

	var wg sync.WaitGroup
	results := make([]*image.RGBA, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = r.Render(photo, nil, testMeta)
		}(i)
	}
	wg.Wait()
	for _, got := range results {
		test.That(t, got != nil && bytes.Equal(got.Pix, want.Pix), "concurrent render differs")
	}
}

func TestRenderCorruptLogo(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	withLogo := newTestRenderer(t, testLogo(t))
	noLogo := newTestRenderer(t, nil, WithLogger(zap.New(core)))
	photo := encodePNG(t, solid(768, 1024, color.NRGBA{128, 128, 128, 255}))

	corrupt, err := noLogo.Render(photo, []byte("definitely not a png"), testMeta)
	test.Error(t, err)
	test.That(t, logs.FilterMessage("rendering without logo").Len() == 1, "logo failure not logged")

	bare, err := noLogo.Render(photo, nil, testMeta)
	test.Error(t, err)
	test.That(t, bytes.Equal(corrupt.Pix, bare.Pix), "corrupt logo must render like no logo")

	branded, err := withLogo.Render(photo, nil, testMeta)
	test.Error(t, err)

	// the keyed logo is white, centered at the top
	c := branded.RGBAAt(512, 124)
	test.That(t, c.R > 240 && c.G > 240 && c.B > 240, "logo missing from header:", c)
	c = corrupt.RGBAAt(512, 124)
	test.That(t, c.R < 160, "header drawn without a logo:", c)

	// the calendar and keyword block survive
	bottom := image.Rect(0, 1100, 1024, 1365)
	test.That(t, bytes.Equal(branded.SubImage(bottom).(*image.RGBA).Pix, corrupt.SubImage(bottom).(*image.RGBA).Pix),
		"bottom block should not depend on the logo")
}

func TestRenderCorruptPhoto(t *testing.T) {
	r := newTestRenderer(t, testLogo(t))
	out, err := r.Render([]byte("garbage"), nil, testMeta)
	test.That(t, errors.Is(err, ErrPhotoDecode), "expected ErrPhotoDecode, got", err)
	test.That(t, out == nil, "no partial poster on photo failure")

	_, err = r.Compose(nil, nil, testMeta)
	test.That(t, errors.Is(err, ErrPhotoDecode), "expected ErrPhotoDecode, got", err)
}

func TestRenderUnknownMonth(t *testing.T) {
	photo := encodePNG(t, solid(768, 1024, color.Gray{100}))
	meta := testMeta
	meta.Month = "SMARCH"

	core, logs := observer.New(zap.WarnLevel)
	r := newTestRenderer(t, testLogo(t), WithLogger(zap.New(core)))
	_, err := r.Render(photo, nil, meta)
	test.Error(t, err)
	test.That(t, logs.Len() > 0, "unknown month should be logged")

	p := DefaultPreset()
	p.StrictMonth = true
	strict, err := NewRenderer(p, WithLogo(testLogo(t)))
	test.Error(t, err)
	_, err = strict.Render(photo, nil, meta)
	test.That(t, errors.Is(err, calendar.ErrUnknownMonth), "expected ErrUnknownMonth, got", err)
}

func TestRenderLunarFallback(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := newTestRenderer(t, testLogo(t), WithLogger(zap.New(core)))
	meta := testMeta
	meta.Year = 2300
	_, err := r.Render(encodePNG(t, solid(768, 1024, color.Gray{100})), nil, meta)
	test.Error(t, err)
	test.T(t, logs.FilterMessage("lunar conversion failed, using placeholder").Len(), 1)
}

func TestRenderInvalidYear(t *testing.T) {
	r := newTestRenderer(t, nil)
	meta := testMeta
	meta.Year = 0
	_, err := r.Render(encodePNG(t, solid(10, 10, color.White)), nil, meta)
	test.That(t, errors.Is(err, ErrInvalidYear), "expected ErrInvalidYear, got", err)
}

func TestComposeFitBackdrop(t *testing.T) {
	r := newTestRenderer(t, nil)
	photo := solid(1024, 1024, color.NRGBA{230, 230, 230, 255})
	out, err := r.Compose(photo, nil, testMeta)
	test.Error(t, err)

	// margins above the fitted photo show the darkened backdrop, not the flat fill
	c := out.RGBAAt(10, 180)
	test.That(t, c.R > 60 && c.R < 230, "expected darkened backdrop, got", c)
	// the photo itself is untouched between the gradients
	c = out.RGBAAt(10, 600)
	test.That(t, near(c.R, 230, 2), "expected photo, got", c)
}

func TestComposeCover(t *testing.T) {
	r := newTestRenderer(t, nil)
	photo := solid(768, 1024, color.NRGBA{40, 160, 90, 255})
	out, err := r.Compose(photo, nil, testMeta)
	test.Error(t, err)
	c := out.RGBAAt(10, 600)
	test.That(t, near(c.R, 40, 2) && near(c.G, 160, 2) && near(c.B, 90, 2), "expected photo, got", c)

	// bottom gradient darkens the last row
	c = out.RGBAAt(10, 1364)
	test.That(t, c.G < 40, "expected dark gradient at the bottom, got", c)
}

func TestComposeDoesNotMutateInputs(t *testing.T) {
	r := newTestRenderer(t, nil)
	photo := solid(300, 400, color.NRGBA{1, 2, 3, 255})
	mark, err := DecodeLogo(testLogo(t))
	test.Error(t, err)
	before := imaging.Clone(mark)

	_, err = r.Compose(photo, mark, testMeta)
	test.Error(t, err)
	test.T(t, photo.NRGBAAt(0, 0), color.NRGBA{1, 2, 3, 255})
	test.That(t, bytes.Equal(imaging.Clone(mark).Pix, before.Pix), "logo was modified")
}

func TestRenderEmptyPhrases(t *testing.T) {
	r := newTestRenderer(t, testLogo(t))
	meta := Metadata{Month: "JUNE", Year: 2026}
	out, err := r.Render(encodePNG(t, solid(768, 1024, color.Gray{100})), nil, meta)
	test.Error(t, err)
	test.T(t, out.Bounds().Dx(), 1024)
}

// latinRenderer renders without a CJK font so that glyph output does not
// depend on the fonts installed on the host.
func latinRenderer(t *testing.T, logo []byte, opts ...Option) *Renderer {
	t.Helper()
	p := DefaultPreset()
	p.Font.CJK = CJKNone
	r, err := NewRenderer(p, append([]Option{WithLogo(logo)}, opts...)...)
	test.Error(t, err)
	return r
}

// textFloor separates white and gold text from the dark test photo.
const textFloor = 120

// brightPixels counts pixels in rect whose red and green channels are both at
// least textFloor.
func brightPixels(img *image.RGBA, rect image.Rectangle) int {
	n := 0
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			if c := img.RGBAAt(x, y); c.R >= textFloor && c.G >= textFloor {
				n++
			}
		}
	}
	return n
}

func sameRegion(a, b *image.RGBA, rect image.Rectangle) bool {
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			if a.RGBAAt(x, y) != b.RGBAAt(x, y) {
				return false
			}
		}
	}
	return true
}

var (
	darkPhoto    = solid(768, 1024, color.Gray{40})
	keywordRect  = image.Rect(40, 1140, 560, 1245)
	attitudeRect = image.Rect(40, 1255, 560, 1300)
	calendarRect = image.Rect(563, 1020, 973, 1365)
	dateRect     = image.Rect(40, 100, 330)
)

func TestRenderKeywordBlock(t *testing.T) {
	r := latinRenderer(t, nil)
	base := Metadata{Month: "MARCH", Year: 2026}
	render := func(keyword, attitude string) *image.RGBA {
		meta := base
		meta.Keyword, meta.Attitude = keyword, attitude
		out, err := r.Compose(darkPhoto, nil, meta)
		test.Error(t, err)
		return out
	}

	plain := render("", "")
	test.T(t, brightPixels(plain, keywordRect), 0)
	test.T(t, brightPixels(plain, attitudeRect), 0)

	kw := render("Calm", "")
	test.That(t, brightPixels(kw, keywordRect) > 0, "keyword not drawn")
	test.That(t, !sameRegion(kw, plain, keywordRect), "keyword block unchanged by the keyword")
	test.T(t, brightPixels(kw, attitudeRect), 0)

	at := render("", "Stay gold")
	test.That(t, brightPixels(at, attitudeRect) > 0, "attitude not drawn")
	test.That(t, !sameRegion(at, plain, attitudeRect), "attitude line unchanged by the attitude")
	test.T(t, brightPixels(at, keywordRect), 0)
}

func TestRenderCalendarGrid(t *testing.T) {
	r := latinRenderer(t, nil)
	march, err := r.Compose(darkPhoto, nil, Metadata{Month: "MARCH", Year: 2026})
	test.Error(t, err)
	june, err := r.Compose(darkPhoto, nil, Metadata{Month: "JUNE", Year: 2026})
	test.Error(t, err)

	test.That(t, brightPixels(march, calendarRect) > 0, "calendar not drawn")
	test.That(t, !sameRegion(march, june, calendarRect), "calendar does not depend on the month")
}

func TestRenderHeaderDate(t *testing.T) {
	branded := latinRenderer(t, testLogo(t))
	bare := latinRenderer(t, nil)
	photo := encodePNG(t, darkPhoto)

	withHeader, err := branded.Render(photo, nil, testMeta)
	test.Error(t, err)
	corrupt, err := bare.Render(photo, []byte("definitely not a png"), testMeta)
	test.Error(t, err)

	test.That(t, brightPixels(withHeader, dateRect) > 0, "date text not drawn beside the logo")
	test.T(t, brightPixels(corrupt, dateRect), 0)
}

func TestRenderWarnsMissingCJKFont(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := latinRenderer(t, testLogo(t), WithLogger(zap.New(core)))
	_, err := r.Compose(darkPhoto, nil, testMeta)
	test.Error(t, err)
	test.T(t, logs.FilterMessage(missingHanMsg).Len(), 1)

	core, logs = observer.New(zap.WarnLevel)
	r, err = NewRenderer(nil, WithCJKFont(goregular.TTF), WithLogger(zap.New(core)))
	test.Error(t, err)
	test.That(t, r.fonts.HasCJK(), "CJK font option ignored")
	_, err = r.Compose(darkPhoto, nil, testMeta)
	test.Error(t, err)
	test.T(t, logs.FilterMessage(missingHanMsg).Len(), 0)

	_, err = NewRenderer(nil, WithCJKFont([]byte("not a font")))
	test.That(t, err != nil, "invalid CJK font should fail")
}

func TestNewRendererValidatesPreset(t *testing.T) {
	threshold := func(v int) *int { return &v }
	var tests = []struct {
		name string
		edit func(*Preset)
	}{
		{"logo color", func(p *Preset) { p.Logo.Color = "purple" }},
		{"background", func(p *Preset) { p.Background = "navy" }},
		{"text color", func(p *Preset) { p.Text.Color = "#12345" }},
		{"accent color", func(p *Preset) { p.Text.Accent = "gold" }},
		{"threshold above", func(p *Preset) { p.Logo.Threshold = threshold(300) }},
		{"threshold below", func(p *Preset) { p.Logo.Threshold = threshold(-1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPreset()
			tt.edit(p)
			_, err := NewRenderer(p)
			test.That(t, err != nil, "expected error")
		})
	}
}

func TestNewRendererThreshold(t *testing.T) {
	zero := 0
	p := DefaultPreset()
	p.Logo.Threshold = &zero
	r, err := NewRenderer(p)
	test.Error(t, err)
	test.T(t, r.threshold, uint8(0))

	r, err = NewRenderer(&Preset{Font: FontConfig{CJK: CJKNone}})
	test.Error(t, err)
	test.T(t, r.threshold, uint8(230))
	test.T(t, r.Preset().Background, DefaultBackground)
}
