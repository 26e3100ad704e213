package server

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Config holds the render service settings.
type Config struct {
	Addr          string        // listen address (default ":8080")
	PublicURL     string        // base URL embedded in QR codes (default "http://localhost" + Addr)
	Workers       int           // concurrent renders (default runtime.NumCPU())
	RenderTimeout time.Duration // synchronous render budget (default 30s)
	TaskTTL       time.Duration // how long finished tasks are kept (default 30min)
	MaxUploadMB   int           // request body limit (default 10)
	MaxQueue      int           // async tasks queued or rendering before 503 (default Workers*8)
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.PublicURL == "" {
		host := c.Addr
		if strings.HasPrefix(host, ":") {
			host = "localhost" + host
		}
		c.PublicURL = "http://" + host
	}
	c.PublicURL = strings.TrimRight(c.PublicURL, "/")
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.RenderTimeout <= 0 {
		c.RenderTimeout = 30 * time.Second
	}
	if c.TaskTTL <= 0 {
		c.TaskTTL = 30 * time.Minute
	}
	if c.MaxUploadMB <= 0 {
		c.MaxUploadMB = 10
	}
	if c.MaxQueue <= 0 {
		c.MaxQueue = c.Workers * 8
	}
}

// LoadConfigFromEnv reads CALPOSTER_* environment variables. Unset or
// malformed values are left zero and later replaced by defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		Addr:      os.Getenv("CALPOSTER_ADDR"),
		PublicURL: os.Getenv("CALPOSTER_PUBLIC_URL"),
	}
	if n, err := strconv.Atoi(os.Getenv("CALPOSTER_WORKERS")); err == nil {
		cfg.Workers = n
	}
	if d, err := time.ParseDuration(os.Getenv("CALPOSTER_RENDER_TIMEOUT")); err == nil {
		cfg.RenderTimeout = d
	}
	if d, err := time.ParseDuration(os.Getenv("CALPOSTER_TASK_TTL")); err == nil {
		cfg.TaskTTL = d
	}
	if n, err := strconv.Atoi(os.Getenv("CALPOSTER_MAX_UPLOAD_MB")); err == nil {
		cfg.MaxUploadMB = n
	}
	if n, err := strconv.Atoi(os.Getenv("CALPOSTER_MAX_QUEUE")); err == nil {
		cfg.MaxQueue = n
	}
	cfg.setDefaults()
	return cfg
}
