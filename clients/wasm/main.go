//go:build js && wasm

// calposter WASM - Client-side poster renderer.
// Compiled with: GOOS=js GOARCH=wasm go build -o calposter.wasm ./clients/wasm/
package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"syscall/js"

	"github.com/xob0t/calposter/pkg/calendar"
	"github.com/xob0t/calposter/pkg/generator"
	"github.com/xob0t/calposter/pkg/template"
)

// In-memory brand state (replaces the preset file and logo path).
var (
	stateMu sync.RWMutex
	preset  = browserPreset(template.DefaultPreset())
	logo    []byte
	cjkFont []byte
)

func main() {
	fmt.Println("calposter WASM loaded")

	// Register JS-callable functions.
	js.Global().Set("goRegisterLogo", js.FuncOf(registerLogo))
	js.Global().Set("goRegisterFont", js.FuncOf(registerFont))
	js.Global().Set("goSetPreset", js.FuncOf(setPreset))
	js.Global().Set("goRenderPoster", js.FuncOf(renderPoster))
	js.Global().Set("goExportAVI", js.FuncOf(exportAVI))
	js.Global().Set("goLunarLabel", js.FuncOf(lunarLabel))
	js.Global().Set("goReady", js.ValueOf(true))

	// Block forever (WASM must not exit).
	select {}
}

func errorValue(format string, args ...any) js.Value {
	return js.ValueOf("error: " + fmt.Sprintf(format, args...))
}

// goRegisterLogo(base64Data) - store the brand logo in Go memory. An empty
// string clears it.
func registerLogo(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return errorValue("need base64Data")
	}
	b64 := args[0].String()
	if b64 == "" {
		stateMu.Lock()
		logo = nil
		stateMu.Unlock()
		return js.ValueOf("ok")
	}

	data, err := base64.StdEncoding.DecodeString(stripDataURL(b64))
	if err != nil {
		return errorValue("invalid base64: %v", err)
	}
	if _, err := template.DecodeLogo(data); err != nil {
		return errorValue("%v", err)
	}

	stateMu.Lock()
	logo = data
	stateMu.Unlock()
	return js.ValueOf("ok")
}

// goRegisterFont(base64Data) - store a TTF/OTF/TTC font for Chinese text.
// Without one, Han characters render as missing glyphs. An empty string
// clears it.
func registerFont(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return errorValue("need base64Data")
	}
	b64 := args[0].String()
	var data []byte
	if b64 != "" {
		var err error
		data, err = base64.StdEncoding.DecodeString(stripDataURL(b64))
		if err != nil {
			return errorValue("invalid base64: %v", err)
		}
		if _, err := template.NewFontManager(template.FontConfig{}, data, nil); err != nil {
			return errorValue("%v", err)
		}
	}

	stateMu.Lock()
	cjkFont = data
	stateMu.Unlock()
	return js.ValueOf("ok")
}

// browserPreset clears the preset's font and logo paths.
func browserPreset(p *template.Preset) *template.Preset {
	p.Font = template.FontConfig{CJK: template.CJKNone}
	p.Logo.Path = ""
	return p
}

// goSetPreset(presetYAML) - replace the brand preset. Font and logo paths are
// ignored; see goRegisterFont and goRegisterLogo.
func setPreset(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return errorValue("need presetYAML")
	}
	p, err := template.ParsePreset([]byte(args[0].String()))
	if err != nil {
		return errorValue("%v", err)
	}
	stateMu.Lock()
	preset = browserPreset(p)
	stateMu.Unlock()
	return js.ValueOf("ok")
}

// render decodes the JS arguments (photoBase64, metadataJSON) and renders.
func render(args []js.Value) (*generator.Config, js.Value) {
	if len(args) < 2 {
		return nil, errorValue("need photoBase64, metadataJSON")
	}
	photo, err := base64.StdEncoding.DecodeString(stripDataURL(args[0].String()))
	if err != nil {
		return nil, errorValue("invalid base64: %v", err)
	}
	var meta template.Metadata
	if err := json.Unmarshal([]byte(args[1].String()), &meta); err != nil {
		return nil, errorValue("parse metadata: %v", err)
	}

	stateMu.RLock()
	p, logoData, fontData := preset, logo, cjkFont
	stateMu.RUnlock()

	renderer, err := template.NewRenderer(p, template.WithLogo(logoData), template.WithCJKFont(fontData))
	if err != nil {
		return nil, errorValue("renderer: %v", err)
	}
	img, err := renderer.Render(photo, nil, meta)
	if err != nil {
		return nil, errorValue("render: %v", err)
	}
	return &generator.Config{Image: img}, js.Null()
}

// goRenderPoster(photoBase64, metadataJSON) - render and return base64 PNG.
func renderPoster(this js.Value, args []js.Value) any {
	cfg, errVal := render(args)
	if cfg == nil {
		return errVal
	}
	return encode(".png", *cfg)
}

// goExportAVI(photoBase64, metadataJSON, duration) - render and return base64 AVI.
func exportAVI(this js.Value, args []js.Value) any {
	if len(args) < 3 {
		return errorValue("need photoBase64, metadataJSON, duration")
	}
	cfg, errVal := render(args[:2])
	if cfg == nil {
		return errVal
	}
	cfg.Duration = max(args[2].Int(), 1)
	return encode(".avi", *cfg)
}

func encode(ext string, cfg generator.Config) js.Value {
	var buf bytes.Buffer
	if err := generator.GenerateToWriter(&buf, ext, cfg); err != nil {
		return errorValue("encode: %v", err)
	}
	return js.ValueOf(base64.StdEncoding.EncodeToString(buf.Bytes()))
}

// goLunarLabel(monthName, year) - the lunar label printed on the poster.
func lunarLabel(this js.Value, args []js.Value) any {
	if len(args) < 2 {
		return errorValue("need monthName, year")
	}
	return js.ValueOf(calendar.Label(args[0].String(), args[1].Int()))
}

// stripDataURL removes a "data:image/png;base64," prefix if present.
func stripDataURL(s string) string {
	if strings.HasPrefix(s, "data:") {
		if i := strings.IndexByte(s, ','); i >= 0 {
			return s[i+1:]
		}
	}
	return s
}
