// Package server provides the calposter HTTP render service.
//
// Posters are rendered either synchronously (POST /api/posters) or as
// in-memory tasks that clients poll (POST /api/tasks). A worker semaphore
// bounds how many renders run at once.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/xob0t/calposter/pkg/calendar"
	"github.com/xob0t/calposter/pkg/generator"
	"github.com/xob0t/calposter/pkg/template"
)

// qrSize is the edge length of generated QR codes in pixels.
const qrSize = 256

// Server renders posters over HTTP.
type Server struct {
	cfg      Config
	renderer *template.Renderer
	tasks    *taskStore
	workers  chan struct{}
	queue    chan struct{} // pending and running async tasks
	log      *zap.Logger
	engine   *gin.Engine
	now      func() time.Time
}

// New creates a server around a renderer. Zero Config fields take defaults.
func New(cfg Config, renderer *template.Renderer, log *zap.Logger) *Server {
	cfg.setDefaults()
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		cfg:      cfg,
		renderer: renderer,
		tasks:    newTaskStore(cfg.TaskTTL),
		workers:  make(chan struct{}, cfg.Workers),
		queue:    make(chan struct{}, cfg.MaxQueue),
		log:      log,
		now:      time.Now,
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests())
	r.MaxMultipartMemory = int64(cfg.MaxUploadMB) << 20

	r.GET("/health", s.handleHealth)
	api := r.Group("/api")
	api.POST("/posters", s.handleRender)
	api.POST("/tasks", s.handleCreateTask)
	api.GET("/tasks/:id", s.handleGetTask)
	api.GET("/tasks/:id/poster", s.handleGetPoster)
	api.GET("/tasks/:id/qr", s.handleGetQR)

	s.engine = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens on cfg.Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.sweepTasks(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("calposter listening", zap.String("addr", s.cfg.Addr), zap.String("public_url", s.cfg.PublicURL), zap.Int("workers", s.cfg.Workers))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) sweepTasks(ctx context.Context) {
	ticker := time.NewTicker(max(s.cfg.TaskTTL/2, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.tasks.sweep(); n > 0 {
				s.log.Debug("expired tasks", zap.Int("count", n))
			}
		}
	}
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// ── Requests ──

type renderRequest struct {
	photo []byte
	logo  []byte // nil means the preset logo
	meta  template.Metadata
}

// requestError carries the HTTP status for a rejected request.
type requestError struct {
	status int
	err    error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, err: fmt.Errorf(format, args...)}
}

// parseRequest reads the multipart form. Month and year default to the
// current month.
func (s *Server) parseRequest(c *gin.Context) (*renderRequest, error) {
	limit := int64(s.cfg.MaxUploadMB) << 20
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	photo, err := formFile(c, "photo")
	if err != nil {
		return nil, err
	}
	if photo == nil {
		return nil, badRequest("missing photo")
	}
	logo, err := formFile(c, "logo")
	if err != nil {
		return nil, err
	}

	meta := template.MetadataFor(s.now(), c.PostForm("keyword"), c.PostForm("attitude"))
	if m := strings.TrimSpace(c.PostForm("month")); m != "" {
		meta.Month = m
	}
	if y := strings.TrimSpace(c.PostForm("year")); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil {
			return nil, badRequest("invalid year %q", y)
		}
		meta.Year = year
	}
	return &renderRequest{photo: photo, logo: logo, meta: meta}, nil
}

// formFile returns the named upload, or nil when the field is absent.
func formFile(c *gin.Context, name string) ([]byte, error) {
	fh, err := c.FormFile(name)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, &requestError{status: http.StatusRequestEntityTooLarge, err: fmt.Errorf("upload exceeds %d bytes", maxErr.Limit)}
		}
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, multipart.ErrMessageTooLarge) {
			return nil, badRequest("%v", err)
		}
		return nil, badRequest("read %s: %v", name, err)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// render runs one render on a worker slot.
func (s *Server) render(req *renderRequest) (*image.RGBA, error) {
	s.workers <- struct{}{}
	defer func() { <-s.workers }()
	return s.renderer.Render(req.photo, req.logo, req.meta)
}

// errorStatus maps render errors to HTTP status codes.
func errorStatus(err error) int {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		return reqErr.status
	case errors.Is(err, template.ErrPhotoDecode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, calendar.ErrUnknownMonth), errors.Is(err, template.ErrInvalidYear):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("render failed", zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// ── Handlers ──

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"tasks":   s.tasks.count(),
		"workers": s.cfg.Workers,
		"busy":    len(s.workers),
		"queued":  len(s.queue),
	})
}

// handleRender renders synchronously and streams the poster back. The output
// format follows ?format= (png by default).
func (s *Server) handleRender(c *gin.Context) {
	ext := "." + strings.ToLower(c.DefaultQuery("format", "png"))
	if generator.ContentType(ext) == "application/octet-stream" {
		s.fail(c, badRequest("unsupported format %q", ext[1:]))
		return
	}

	req, err := s.parseRequest(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RenderTimeout)
	defer cancel()

	type result struct {
		img *image.RGBA
		err error
	}
	done := make(chan result, 1)
	go func() {
		select {
		case s.workers <- struct{}{}:
		case <-ctx.Done():
			done <- result{err: ctx.Err()}
			return
		}
		defer func() { <-s.workers }()
		img, err := s.renderer.Render(req.photo, req.logo, req.meta)
		done <- result{img, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}
	if res.err != nil {
		if errors.Is(res.err, context.DeadlineExceeded) {
			s.log.Warn("render timed out", zap.Duration("timeout", s.cfg.RenderTimeout))
		}
		s.fail(c, res.err)
		return
	}

	var buf bytes.Buffer
	if err := generator.GenerateToWriter(&buf, ext, generator.Config{Image: res.img}); err != nil {
		s.fail(c, err)
		return
	}
	c.Data(http.StatusOK, generator.ContentType(ext), buf.Bytes())
}

// handleCreateTask queues an asynchronous render and returns its id. A full
// queue is rejected with 503.
func (s *Server) handleCreateTask(c *gin.Context) {
	req, err := s.parseRequest(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	select {
	case s.queue <- struct{}{}:
	default:
		s.log.Warn("render queue full", zap.Int("max_queue", s.cfg.MaxQueue))
		c.Header("Retry-After", "5")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "render queue full"})
		return
	}

	id := s.tasks.create()
	s.log.Info("task created", zap.String("task", id))
	go s.runTask(id, req)

	c.JSON(http.StatusAccepted, s.taskView(task{ID: id, Status: StatusProcessing}))
}

func (s *Server) runTask(id string, req *renderRequest) {
	defer func() { <-s.queue }()

	img, err := s.render(req)
	if err == nil {
		var buf bytes.Buffer
		if err = generator.GenerateToWriter(&buf, ".png", generator.Config{Image: img}); err == nil {
			s.tasks.complete(id, buf.Bytes())
			s.log.Info("task completed", zap.String("task", id))
			return
		}
	}
	s.tasks.fail(id, err)
	s.log.Warn("task failed", zap.String("task", id), zap.Error(err))
}

// TaskView is the JSON shape of a task.
type TaskView struct {
	ID        string     `json:"id"`
	Status    TaskStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
	PosterURL string     `json:"posterUrl,omitempty"`
	QRURL     string     `json:"qrUrl,omitempty"`
}

func (s *Server) taskView(t task) TaskView {
	v := TaskView{ID: t.ID, Status: t.Status, Error: t.Err}
	if t.Status == StatusCompleted {
		v.PosterURL = s.posterURL(t.ID)
		v.QRURL = s.cfg.PublicURL + "/api/tasks/" + t.ID + "/qr"
	}
	return v
}

func (s *Server) posterURL(id string) string {
	return s.cfg.PublicURL + "/api/tasks/" + id + "/poster"
}

func (s *Server) handleGetTask(c *gin.Context) {
	t, ok := s.tasks.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, s.taskView(t))
}

// completedTask writes an error response and returns false unless the task
// exists and has finished successfully.
func (s *Server) completedTask(c *gin.Context) (task, bool) {
	t, ok := s.tasks.get(c.Param("id"))
	switch {
	case !ok:
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return task{}, false
	case t.Status == StatusProcessing:
		c.JSON(http.StatusConflict, gin.H{"error": "task still processing", "status": t.Status})
		return task{}, false
	case t.Status == StatusFailed:
		c.JSON(http.StatusConflict, gin.H{"error": t.Err, "status": t.Status})
		return task{}, false
	}
	return t, true
}

func (s *Server) handleGetPoster(c *gin.Context) {
	t, ok := s.completedTask(c)
	if !ok {
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="poster-%s.png"`, t.ID))
	c.Data(http.StatusOK, "image/png", t.Poster)
}

// handleGetQR returns a QR code linking to the finished poster.
func (s *Server) handleGetQR(c *gin.Context) {
	t, ok := s.completedTask(c)
	if !ok {
		return
	}
	png, err := qrcode.Encode(s.posterURL(t.ID), qrcode.Medium, qrSize)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
