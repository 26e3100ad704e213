// Package generator writes finished posters to disk or to a stream.
//
// All output follows a unified pipeline: the poster is an image.Image, encoded
// as a still image (PNG, JPEG, GIF, TIFF, BMP) or containerized as an MJPEG AVI.
package generator

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// ErrUnsupportedFormat is returned for output extensions that have no encoder.
var ErrUnsupportedFormat = errors.New("unsupported format")

// DefaultQuality is the JPEG quality used for .jpg output and AVI frames.
const DefaultQuality = 95

// Config holds parameters for output generation.
type Config struct {
	Image    image.Image // finished poster
	Duration int         // seconds, AVI only (default: 1)
	Quality  int         // JPEG quality 1-100 (default: DefaultQuality)
	Matte    string      // "#rrggbb" behind transparent pixels for formats without alpha (default: white)
}

// Extensions lists the supported output extensions.
var Extensions = []string{".png", ".jpg", ".jpeg", ".gif", ".tif", ".tiff", ".bmp", ".avi"}

// ContentType returns the MIME type for an output extension.
func ContentType(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".bmp":
		return "image/bmp"
	case ".avi":
		return "video/x-msvideo"
	}
	return "application/octet-stream"
}

// Generate creates an output file. The format is inferred from the file
// extension. The file is removed again if encoding fails.
func Generate(output string, cfg Config) error {
	ext := filepath.Ext(output)
	if !supported(ext) {
		return fmt.Errorf("%w %q: use one of %s", ErrUnsupportedFormat, ext, strings.Join(Extensions, ", "))
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create %s: %w", output, err)
	}
	if err := GenerateToWriter(f, ext, cfg); err != nil {
		f.Close()
		os.Remove(output)
		return err
	}
	return f.Close()
}

// GenerateToWriter writes the poster to w. The format is specified by ext
// (".png", ".jpg", ".avi", ...). This is useful for in-memory generation
// (HTTP responses, WASM).
func GenerateToWriter(w io.Writer, ext string, cfg Config) error {
	if cfg.Image == nil || cfg.Image.Bounds().Empty() {
		return errors.New("generate: no image")
	}
	ext = strings.ToLower(ext)
	if !supported(ext) {
		return fmt.Errorf("%w %q: use one of %s", ErrUnsupportedFormat, ext, strings.Join(Extensions, ", "))
	}

	quality := cfg.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	img := cfg.Image
	if !hasAlpha(ext) {
		matte, err := ParseColor(cfg.Matte)
		if err != nil {
			return err
		}
		img = Flatten(img, matte)
	}

	if ext == ".avi" {
		return writeAVI(w, img, max(cfg.Duration, 1), quality)
	}

	format, err := imaging.FormatFromExtension(ext)
	if err != nil {
		return fmt.Errorf("%w %q", ErrUnsupportedFormat, ext)
	}
	if err := imaging.Encode(w, img, format, imaging.JPEGQuality(quality)); err != nil {
		return fmt.Errorf("encode %s: %w", format, err)
	}
	return nil
}

func supported(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// hasAlpha reports whether the format can carry transparency.
func hasAlpha(ext string) bool {
	switch ext {
	case ".png", ".gif", ".tif", ".tiff":
		return true
	}
	return false
}
