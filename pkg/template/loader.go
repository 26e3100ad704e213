// loader.go - Load preset.yaml and decode photo/logo buffers.
package template

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"gopkg.in/yaml.v2"

	"github.com/xob0t/calposter/pkg/calendar"
	"github.com/xob0t/calposter/pkg/logo"
)

// DefaultPreset returns a preset that needs no files: embedded Latin fonts, a
// system CJK font found by search and no logo.
func DefaultPreset() *Preset {
	p := &Preset{Name: "default"}
	applyDefaults(p)
	return p
}

// LoadPreset reads a preset.yaml file, resolves asset paths relative to its
// directory and applies defaults. Unknown keys are rejected.
func LoadPreset(path string) (*Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preset: %w", err)
	}
	p, err := ParsePreset(data)
	if err != nil {
		return nil, err
	}
	resolveAssetPaths(p, filepath.Dir(path))
	return p, nil
}

// ParsePreset parses preset YAML and applies defaults. Asset paths are left
// as written.
func ParsePreset(data []byte) (*Preset, error) {
	var p Preset
	if err := yaml.UnmarshalStrict(data, &p); err != nil {
		return nil, fmt.Errorf("parse preset: %w", err)
	}
	applyDefaults(&p)
	if err := ValidatePreset(&p); err != nil {
		return nil, fmt.Errorf("parse preset: %w", err)
	}
	return &p, nil
}

// resolveAssetPaths makes all relative asset paths absolute using baseDir.
func resolveAssetPaths(p *Preset, baseDir string) {
	resolve := func(path string) string {
		if path == "" || path == CJKAuto || path == CJKNone || filepath.IsAbs(path) {
			return path
		}
		return filepath.Join(baseDir, path)
	}

	p.Logo.Path = resolve(p.Logo.Path)
	p.Font.Regular = resolve(p.Font.Regular)
	p.Font.Bold = resolve(p.Font.Bold)
	p.Font.Italic = resolve(p.Font.Italic)
	p.Font.CJK = resolve(p.Font.CJK)
}

// applyDefaults sets sane fallbacks for unset fields.
func applyDefaults(p *Preset) {
	if p.Canvas.Width == 0 {
		p.Canvas.Width = DefaultCanvasWidth
	}
	p.Canvas.Width = min(max(p.Canvas.Width, MinCanvasWidth), MaxCanvasWidth)

	if p.Background == "" {
		p.Background = DefaultBackground
	}
	if p.Logo.Threshold == nil {
		t := logo.DefaultThreshold
		p.Logo.Threshold = &t
	}
	if p.Logo.Color == "" {
		p.Logo.Color = DefaultLogoColor
	}
	if p.Font.CJK == "" {
		p.Font.CJK = CJKAuto
	}
	if p.Text.Color == "" {
		p.Text.Color = DefaultTextColor
	}
	if p.Text.Accent == "" {
		p.Text.Accent = DefaultAccentColor
	}
	if p.Text.KeywordLabel == "" {
		p.Text.KeywordLabel = DefaultKeywordLabel
	}
	if p.Text.LunarPlaceholder == "" {
		p.Text.LunarPlaceholder = calendar.Placeholder
	}
	if p.MaxPhotoEdge <= 0 {
		p.MaxPhotoEdge = DefaultMaxPhotoEdge
	}
}

// DecodePhoto decodes an in-memory photo, applies its EXIF orientation and
// caps the long edge at maxEdge (0 disables the cap). Failures wrap
// ErrPhotoDecode.
func DecodePhoto(data []byte, maxEdge int) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrPhotoDecode)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPhotoDecode, err)
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrPhotoDecode)
	}
	if maxEdge > 0 && max(b.Dx(), b.Dy()) > maxEdge {
		img = imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos)
	}
	return img, nil
}

// DecodeLogo decodes an in-memory logo. Failures wrap ErrLogoDecode.
func DecodeLogo(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrLogoDecode)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLogoDecode, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrLogoDecode)
	}
	return img, nil
}

// readAsset reads an optional asset file; an empty path is not an error.
func readAsset(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("asset %s does not exist", path)
	}
	return data, err
}

// ExamplePreset returns a sample preset.yaml for calposter init.
func ExamplePreset() string {
	return `# calposter brand preset
name: Modern Vive
canvas:
  width: 1024        # height is always width * 4/3
background: "#1a1a1a"
logo:
  path: logo.jpg     # brand mark on a white field
  threshold: 230     # channels above this are treated as background
  color: white       # white, gold, #rrggbb or original
font:
  regular: ""        # empty = embedded Go fonts
  bold: ""
  italic: ""
  cjk: auto          # path, auto to search system fonts, or none
text:
  color: "#ffffff"
  accent: "#c5a065"
  keywordLabel: 你的摩登关键词是
  lunarPlaceholder: 乙巳年腊月
  watermark: VIVE
strictMonth: false
maxPhotoEdge: 1024
`
}
