// validator.go - Validate poster metadata and describe presets.
package template

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xob0t/calposter/pkg/calendar"
	"github.com/xob0t/calposter/pkg/logo"
)

// ValidateMetadata checks metadata before rendering. Problems that still
// allow a poster are returned as warnings; an error means the render cannot
// proceed. Unknown month names are an error only in strict mode.
func ValidateMetadata(m Metadata, strict bool) ([]string, error) {
	var warnings []string

	if m.Year < 1 || m.Year > 9999 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidYear, m.Year)
	}

	if _, err := calendar.ParseMonth(m.Month); err != nil {
		if strict {
			return nil, err
		}
		warnings = append(warnings, fmt.Sprintf("unknown month %q, calendar falls back to JANUARY", m.Month))
	}

	if strings.TrimSpace(m.Keyword) == "" {
		warnings = append(warnings, "keyword is empty, keyword block omitted")
	}
	for _, f := range []struct{ name, value string }{{"keyword", m.Keyword}, {"attitude", m.Attitude}} {
		if n := utf8.RuneCountInString(f.value); n > MaxPhraseRunes {
			warnings = append(warnings, fmt.Sprintf("%s has %d characters (max %d), text will be shrunk", f.name, n, MaxPhraseRunes))
		}
	}

	return warnings, nil
}

// ValidatePreset checks the preset colors and the logo threshold.
func ValidatePreset(p *Preset) error {
	if t := p.Logo.Threshold; t != nil && (*t < 0 || *t > 255) {
		return fmt.Errorf("logo threshold %d outside 0-255", *t)
	}
	if _, err := logo.ParseColor(p.Logo.Color); err != nil {
		return fmt.Errorf("logo %w", err)
	}
	for _, f := range []struct{ name, value string }{
		{"background", p.Background},
		{"text color", p.Text.Color},
		{"accent color", p.Text.Accent},
	} {
		if _, err := logo.ParseHex(f.value); err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
	}
	return nil
}

// FormatPreset returns a human-readable description of the effective preset.
func FormatPreset(p *Preset) string {
	w, h := p.Canvas.Size()
	orNone := func(s string) string {
		if s == "" {
			return "(none)"
		}
		return s
	}
	orEmbedded := func(s string) string {
		if s == "" {
			return "(embedded)"
		}
		return s
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Preset: %s\n\n", orNone(p.Name))
	fmt.Fprintf(&sb, "  %-14s %dx%d\n", "canvas:", w, h)
	fmt.Fprintf(&sb, "  %-14s %s\n", "background:", p.Background)
	threshold := logo.DefaultThreshold
	if p.Logo.Threshold != nil {
		threshold = *p.Logo.Threshold
	}
	fmt.Fprintf(&sb, "  %-14s %s (threshold %d, color %s)\n", "logo:", orNone(p.Logo.Path), threshold, p.Logo.Color)
	fmt.Fprintf(&sb, "  %-14s regular=%s bold=%s italic=%s cjk=%s\n", "fonts:",
		orEmbedded(p.Font.Regular), orEmbedded(p.Font.Bold), orEmbedded(p.Font.Italic), orNone(p.Font.CJK))
	fmt.Fprintf(&sb, "  %-14s text %s, accent %s\n", "colors:", p.Text.Color, p.Text.Accent)
	fmt.Fprintf(&sb, "  %-14s %s\n", "keyword label:", p.Text.KeywordLabel)
	fmt.Fprintf(&sb, "  %-14s %s\n", "lunar fallback:", p.Text.LunarPlaceholder)
	fmt.Fprintf(&sb, "  %-14s %s\n", "watermark:", orNone(p.Text.Watermark))
	fmt.Fprintf(&sb, "  %-14s %v\n", "strict month:", p.StrictMonth)
	fmt.Fprintf(&sb, "  %-14s %d px\n", "photo cap:", p.MaxPhotoEdge)
	return sb.String()
}
