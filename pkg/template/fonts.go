// fonts.go - Font management with custom TTF/OTF support and embedded Go fonts
// as fallback. Parsed fonts are shared; faces are created per render because
// an opentype face is not safe for concurrent use.
package template

import (
	"fmt"
	"os"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// FontStyle selects one of the loaded font files.
type FontStyle int

const (
	Regular FontStyle = iota
	Bold
	Italic
)

// FontConfig.CJK keywords.
const (
	CJKAuto = "auto" // search cjkCandidates
	CJKNone = "none" // Han text uses the Latin fonts
)

// cjkCandidates are tried in order when FontConfig.CJK is CJKAuto.
var cjkCandidates = []string{
	"assets/fonts/NotoSerifSC-Regular.otf",
	"assets/fonts/SourceHanSansSC-Regular.otf",
	"/usr/share/fonts/opentype/noto/NotoSerifCJK-Regular.ttc",
	"/usr/share/fonts/opentype/noto/NotoSansCJK-Regular.ttc",
	"/usr/share/fonts/noto-cjk/NotoSansCJK-Regular.ttc",
	"/usr/share/fonts/truetype/wqy/wqy-microhei.ttc",
	"/usr/share/fonts/truetype/droid/DroidSansFallbackFull.ttf",
	"/System/Library/Fonts/PingFang.ttc",
	"/System/Library/Fonts/STHeiti Light.ttc",
	"C:\\Windows\\Fonts\\msyh.ttc",
	"C:\\Windows\\Fonts\\simsun.ttc",
}

// FontManager holds parsed fonts with fallback.
type FontManager struct {
	styles [3]*opentype.Font
	cjk    *opentype.Font // nil when no CJK font is available
}

// NewFontManager loads the configured fonts. Missing or unreadable custom
// fonts fall back to the embedded Go fonts with a warning. A non-nil cjkData
// is parsed as the CJK font and takes precedence over cfg.CJK; unlike a font
// path it must be valid.
func NewFontManager(cfg FontConfig, cjkData []byte, log *zap.Logger) (*FontManager, error) {
	if log == nil {
		log = zap.NewNop()
	}

	fm := &FontManager{}
	embedded := [3][]byte{goregular.TTF, gobold.TTF, goitalic.TTF}
	custom := [3]string{cfg.Regular, cfg.Bold, cfg.Italic}
	for i := range fm.styles {
		if custom[i] != "" {
			f, err := loadFontFile(custom[i])
			if err == nil {
				fm.styles[i] = f
				continue
			}
			log.Warn("could not load custom font, using default", zap.String("path", custom[i]), zap.Error(err))
		}

		f, err := opentype.Parse(embedded[i])
		if err != nil {
			return nil, fmt.Errorf("failed to parse font: %w", err)
		}
		fm.styles[i] = f
	}

	if cjkData != nil {
		f, err := parseFont(cjkData)
		if err != nil {
			return nil, fmt.Errorf("CJK font: %w", err)
		}
		fm.cjk = f
		return fm, nil
	}

	switch cfg.CJK {
	case "", CJKNone:
	case CJKAuto:
		for _, path := range cjkCandidates {
			if f, err := loadFontFile(path); err == nil {
				log.Info("loaded CJK font", zap.String("path", path))
				fm.cjk = f
				break
			}
		}
		if fm.cjk == nil {
			log.Warn("no CJK font found, Chinese text will render as missing glyphs")
		}
	default:
		f, err := loadFontFile(cfg.CJK)
		if err != nil {
			log.Warn("could not load CJK font", zap.String("path", cfg.CJK), zap.Error(err))
		} else {
			fm.cjk = f
		}
	}
	return fm, nil
}

// HasCJK reports whether a CJK font was loaded.
func (fm *FontManager) HasCJK() bool {
	return fm.cjk != nil
}

// GetFace returns a face at the given pixel size (72 DPI). Text containing Han
// characters uses the CJK font when one is loaded.
func (fm *FontManager) GetFace(style FontStyle, size float64, text string) (font.Face, error) {
	f := fm.styles[style]
	if fm.cjk != nil && hasHan(text) {
		f = fm.cjk
	}

	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	return face, nil
}

// loadFontFile parses a single font or the first font of a collection.
func loadFontFile(path string) (*opentype.Font, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := parseFont(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return f, nil
}

func parseFont(data []byte) (*opentype.Font, error) {
	if f, err := opentype.Parse(data); err == nil {
		return f, nil
	}
	coll, err := opentype.ParseCollection(data)
	if err != nil {
		return nil, err
	}
	return coll.Font(0)
}

func hasHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// faceCache memoizes faces for the duration of one render.
type faceCache struct {
	fm    *FontManager
	faces map[faceKey]font.Face
	log   *zap.Logger
	noHan bool // missing CJK font already reported
}

type faceKey struct {
	style FontStyle
	size  float64
	cjk   bool
}

func newFaceCache(fm *FontManager, log *zap.Logger) *faceCache {
	return &faceCache{fm: fm, faces: make(map[faceKey]font.Face), log: log}
}

func (c *faceCache) get(style FontStyle, size float64, text string) (font.Face, error) {
	han := hasHan(text)
	if han && c.fm.cjk == nil && !c.noHan {
		c.noHan = true
		c.log.Warn("no CJK font for Han text, glyphs will be missing", zap.String("text", text))
	}
	key := faceKey{style: style, size: size, cjk: c.fm.cjk != nil && han}
	if face, ok := c.faces[key]; ok {
		return face, nil
	}
	face, err := c.fm.GetFace(style, size, text)
	if err != nil {
		return nil, err
	}
	c.faces[key] = face
	return face, nil
}

func (c *faceCache) Close() {
	for _, face := range c.faces {
		face.Close()
	}
}
