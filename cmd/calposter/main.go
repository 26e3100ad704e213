// calposter - Branded calendar poster generation.
//
// Usage:
//
//	calposter <photo> -o <file> [--preset <path>] [--logo <path>] [options]
//	calposter calendar [--month MARCH] [--year 2026]
//	calposter keylogo <logo> -o <file> [--threshold 230] [--color white]
//	calposter preset [<preset.yaml>]
//	calposter init [-o preset.yaml]
//	calposter serve [--addr :8080]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tdewolff/argp"
	"go.uber.org/zap"

	"github.com/xob0t/calposter/clients/server"
	"github.com/xob0t/calposter/pkg/calendar"
	"github.com/xob0t/calposter/pkg/generator"
	"github.com/xob0t/calposter/pkg/logo"
	"github.com/xob0t/calposter/pkg/template"
)

type Render struct {
	Output   string `short:"o" default:"poster.png" desc:"Output file (.png, .jpg, .gif, .tiff, .bmp or .avi)"`
	Preset   string `short:"p" desc:"Brand preset (preset.yaml)"`
	Logo     string `short:"l" desc:"Logo image, overrides the preset logo"`
	Month    string `short:"m" desc:"English month name (default: current month)"`
	Year     int    `short:"y" desc:"Four-digit year (default: current year)"`
	Keyword  string `short:"k" desc:"Keyword line"`
	Attitude string `short:"a" desc:"Attitude line"`
	Strict   bool   `desc:"Fail on unknown month names instead of using January"`
	Duration int    `default:"3" desc:"Clip length in seconds (.avi only)"`
	Quality  int    `default:"95" desc:"JPEG quality (.jpg and .avi)"`
	Debug    bool   `desc:"Verbose logging"`
	Photo    string `index:"0" desc:"Photo file"`
}

type Calendar struct {
	Month string `short:"m" desc:"English month name (default: current month)"`
	Year  int    `short:"y" desc:"Year (default: current year)"`
}

type KeyLogo struct {
	Output    string `short:"o" default:"logo-keyed.png" desc:"Output file"`
	Threshold int    `short:"t" default:"230" desc:"Channels above this are background (0-255)"`
	Color     string `short:"c" default:"white" desc:"Target color: white, gold, #rrggbb or original"`
	Input     string `index:"0" desc:"Logo file"`
}

type Preset struct {
	Path string `index:"0" desc:"Preset file (default: built-in preset)"`
}

type Init struct {
	Output string `short:"o" default:"preset.yaml" desc:"Output path for the sample preset"`
	Force  bool   `short:"f" desc:"Overwrite an existing file"`
}

type Serve struct {
	Addr    string `desc:"Listen address (default: $CALPOSTER_ADDR or :8080)"`
	Public  string `desc:"Public base URL used in QR codes (default: $CALPOSTER_PUBLIC_URL)"`
	Workers int    `short:"w" desc:"Concurrent renders (default: $CALPOSTER_WORKERS or CPU count)"`
	Queue   int    `desc:"Async tasks accepted before 503 (default: $CALPOSTER_MAX_QUEUE or workers*8)"`
	Timeout string `desc:"Synchronous render timeout, e.g. 30s (default: $CALPOSTER_RENDER_TIMEOUT)"`
	Preset  string `short:"p" desc:"Brand preset (preset.yaml)"`
	Logo    string `short:"l" desc:"Logo image, overrides the preset logo"`
	Debug   bool   `desc:"Verbose logging"`
}

func main() {
	root := argp.NewCmd(&Render{}, "Branded calendar poster generator")
	root.AddCmd(&Calendar{}, "calendar", "Print a month grid and its lunar label")
	root.AddCmd(&KeyLogo{}, "keylogo", "Key a logo's white field to transparency and recolor it")
	root.AddCmd(&Preset{}, "preset", "Print the effective preset")
	root.AddCmd(&Init{}, "init", "Write a sample preset.yaml")
	root.AddCmd(&Serve{}, "serve", "Start the HTTP render service")
	root.Parse()
	root.PrintHelp()
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// loadPreset loads the preset file, or the built-in preset when path is empty.
func loadPreset(path string) (*template.Preset, error) {
	if path == "" {
		return template.DefaultPreset(), nil
	}
	return template.LoadPreset(path)
}

// newRenderer builds a renderer; logoPath overrides the preset logo.
func newRenderer(presetPath, logoPath string, strict bool, log *zap.Logger) (*template.Renderer, error) {
	preset, err := loadPreset(presetPath)
	if err != nil {
		return nil, err
	}
	if strict {
		preset.StrictMonth = true
	}
	if logoPath != "" {
		preset.Logo.Path = logoPath
	}
	return template.NewRenderer(preset, template.WithLogger(log))
}

func (cmd *Render) Run() error {
	if cmd.Photo == "" {
		return argp.ShowUsage
	}

	log, err := newLogger(cmd.Debug)
	if err != nil {
		return err
	}
	defer log.Sync()

	renderer, err := newRenderer(cmd.Preset, cmd.Logo, cmd.Strict, log)
	if err != nil {
		return err
	}

	photo, err := os.ReadFile(cmd.Photo)
	if err != nil {
		return fmt.Errorf("read photo: %w", err)
	}

	meta := template.MetadataFor(time.Now(), cmd.Keyword, cmd.Attitude)
	if cmd.Month != "" {
		meta.Month = cmd.Month
	}
	if cmd.Year != 0 {
		meta.Year = cmd.Year
	}

	img, err := renderer.Render(photo, nil, meta)
	if err != nil {
		return err
	}

	cfg := generator.Config{
		Image:    img,
		Duration: cmd.Duration,
		Quality:  cmd.Quality,
		Matte:    renderer.Preset().Background,
	}
	if err := generator.Generate(cmd.Output, cfg); err != nil {
		return err
	}
	fmt.Printf("Done: %s\n", cmd.Output)
	return nil
}

func (cmd *Calendar) Run() error {
	now := time.Now()
	month := now.Month()
	if cmd.Month != "" {
		m, err := calendar.ParseMonth(cmd.Month)
		if err != nil {
			return err
		}
		month = m
	}
	year := now.Year()
	if cmd.Year != 0 {
		year = cmd.Year
	}

	lunar, err := calendar.LunarLabelOr(month, year, calendar.Placeholder)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	fmt.Printf("%s %d  %s\n\n", strings.ToUpper(month.String()), year, lunar)
	fmt.Print(calendar.For(month, year).String())
	return nil
}

func (cmd *KeyLogo) Run() error {
	if cmd.Input == "" {
		return argp.ShowUsage
	}
	if cmd.Threshold < 0 || cmd.Threshold > 255 {
		return fmt.Errorf("threshold %d outside 0-255", cmd.Threshold)
	}
	target, err := logo.ParseColor(cmd.Color)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(cmd.Input)
	if err != nil {
		return fmt.Errorf("read logo: %w", err)
	}
	keyed, err := logo.KeyBytes(data, uint8(cmd.Threshold), target)
	if err != nil {
		return err
	}

	if err := generator.Generate(cmd.Output, generator.Config{Image: keyed, Matte: template.DefaultBackground}); err != nil {
		return err
	}
	fmt.Printf("Done: %s\n", cmd.Output)
	return nil
}

func (cmd *Preset) Run() error {
	preset, err := loadPreset(cmd.Path)
	if err != nil {
		return err
	}
	fmt.Print(template.FormatPreset(preset))
	return nil
}

func (cmd *Init) Run() error {
	if !cmd.Force {
		if _, err := os.Stat(cmd.Output); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", cmd.Output)
		}
	}
	if err := os.WriteFile(cmd.Output, []byte(template.ExamplePreset()), 0644); err != nil {
		return fmt.Errorf("write preset: %w", err)
	}

	fmt.Printf("Created: %s\n", cmd.Output)
	fmt.Println("Run: calposter photo.jpg -o poster.png --preset " + cmd.Output)
	return nil
}

func (cmd *Serve) Run() error {
	log, err := newLogger(cmd.Debug)
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg := server.LoadConfigFromEnv()
	if cmd.Addr != "" {
		cfg.Addr = cmd.Addr
		if os.Getenv("CALPOSTER_PUBLIC_URL") == "" {
			cfg.PublicURL = ""
		}
	}
	if cmd.Public != "" {
		cfg.PublicURL = cmd.Public
	}
	if cmd.Workers > 0 {
		cfg.Workers = cmd.Workers
		if os.Getenv("CALPOSTER_MAX_QUEUE") == "" {
			cfg.MaxQueue = 0
		}
	}
	if cmd.Queue > 0 {
		cfg.MaxQueue = cmd.Queue
	}
	if cmd.Timeout != "" {
		d, err := time.ParseDuration(cmd.Timeout)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		cfg.RenderTimeout = d
	}

	renderer, err := newRenderer(cmd.Preset, cmd.Logo, false, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.New(cfg, renderer, log).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
