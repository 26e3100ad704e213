// Package template renders the branded calendar poster: a photo placed on a
// fixed 3:4 canvas with gradients, a recolored logo, the date and lunar date,
// a keyword block and a month grid.
package template

import (
	"math"
	"strings"
	"time"
)

// ── Preset types ──

// Preset is the brand configuration read from preset.yaml. There is exactly
// one poster template; the preset only supplies assets, colors and wording.
type Preset struct {
	Name         string     `yaml:"name"`
	Canvas       Canvas     `yaml:"canvas"`
	Background   string     `yaml:"background"` // hex fill behind the photo
	Logo         LogoConfig `yaml:"logo"`
	Font         FontConfig `yaml:"font"`
	Text         TextConfig `yaml:"text"`
	StrictMonth  bool       `yaml:"strictMonth"`  // fail on unknown month names instead of using January
	MaxPhotoEdge int        `yaml:"maxPhotoEdge"` // long-edge cap applied when decoding photos
}

// Canvas defines the output width. Height always follows the 3:4 ratio.
type Canvas struct {
	Width int `yaml:"width"`
}

// Size returns the canvas dimensions in pixels.
func (c Canvas) Size() (w, h int) {
	return c.Width, int(math.Round(float64(c.Width) * 4 / 3))
}

// LogoConfig selects the brand mark and how it is keyed.
type LogoConfig struct {
	Path      string `yaml:"path"`      // resolved relative to the preset file
	Threshold *int   `yaml:"threshold"` // 0..255, channels above it are background; nil is DefaultThreshold
	Color     string `yaml:"color"`     // "white", "gold", "#rrggbb" or "original"
}

// FontConfig specifies font files. Empty paths use the embedded Go fonts. CJK
// is a path, "auto" to search common system locations, or "none".
type FontConfig struct {
	Regular string `yaml:"regular"`
	Bold    string `yaml:"bold"`
	Italic  string `yaml:"italic"`
	CJK     string `yaml:"cjk"`
}

// TextConfig holds poster colors and fixed wording.
type TextConfig struct {
	Color            string `yaml:"color"`            // primary text
	Accent           string `yaml:"accent"`           // attitude line
	KeywordLabel     string `yaml:"keywordLabel"`     // caption above the keyword
	LunarPlaceholder string `yaml:"lunarPlaceholder"` // used when lunar conversion fails
	Watermark        string `yaml:"watermark"`        // faint word behind the logo, empty for none
}

// ── Metadata ──

// Metadata is the per-poster record supplied by the caller.
type Metadata struct {
	Month    string `json:"month" yaml:"month"` // English month name, e.g. "MARCH"
	Year     int    `json:"year" yaml:"year"`
	Keyword  string `json:"keyword" yaml:"keyword"`
	Attitude string `json:"attitude" yaml:"attitude"`
}

// MetadataFor builds metadata for the month containing t, with the month name
// upper-cased the way the phrase picker upstream produces it.
func MetadataFor(t time.Time, keyword, attitude string) Metadata {
	return Metadata{
		Month:    strings.ToUpper(t.Month().String()),
		Year:     t.Year(),
		Keyword:  keyword,
		Attitude: attitude,
	}
}

// ── Defaults ──

const (
	DefaultCanvasWidth  = 1024
	MinCanvasWidth      = 256
	MaxCanvasWidth      = 4096
	DefaultMaxPhotoEdge = 1024
	DefaultBackground   = "#1a1a1a"
	DefaultLogoColor    = "white"
	DefaultTextColor    = "#ffffff"
	DefaultAccentColor  = "#c5a065"
	DefaultKeywordLabel = "你的摩登关键词是"
)

// MaxPhraseRunes is the keyword/attitude length beyond which text starts to
// shrink and a validation warning is produced.
const MaxPhraseRunes = 24
