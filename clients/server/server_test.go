package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/tdewolff/test"

	"github.com/xob0t/calposter/pkg/template"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	var buf bytes.Buffer
	test.Error(t, imaging.Encode(&buf, imaging.New(w, h, c), imaging.PNG))
	return buf.Bytes()
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	p := template.DefaultPreset()
	p.Canvas.Width = 256
	r, err := template.NewRenderer(p, template.WithLogo(pngBytes(t, 40, 20, color.Black)))
	test.Error(t, err)
	if cfg.PublicURL == "" {
		cfg.PublicURL = "https://posters.example.com/"
	}
	s := New(cfg, r, nil)
	s.now = func() time.Time { return time.Date(2026, time.March, 14, 0, 0, 0, 0, time.UTC) }
	return s
}

func multipartBody(t *testing.T, files map[string][]byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for name, data := range files {
		fw, err := mw.CreateFormFile(name, name+".png")
		test.Error(t, err)
		_, err = fw.Write(data)
		test.Error(t, err)
	}
	for k, v := range fields {
		test.Error(t, mw.WriteField(k, v))
	}
	test.Error(t, mw.Close())
	return body, mw.FormDataContentType()
}

func do(s *Server, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, Config{Workers: 3})
	w := do(s, http.MethodGet, "/health", nil, "")
	test.T(t, w.Code, http.StatusOK)

	var resp map[string]any
	test.Error(t, json.Unmarshal(w.Body.Bytes(), &resp))
	test.T(t, resp["status"], any("ok"))
	test.T(t, resp["workers"], any(float64(3)))
}

func TestRenderSync(t *testing.T) {
	s := newTestServer(t, Config{})
	body, ct := multipartBody(t,
		map[string][]byte{"photo": pngBytes(t, 60, 80, color.Gray{120})},
		map[string]string{"month": "MARCH", "year": "2026", "keyword": "Calm", "attitude": "Stay gold"})

	w := do(s, http.MethodPost, "/api/posters", body, ct)
	test.T(t, w.Code, http.StatusOK)
	test.T(t, w.Header().Get("Content-Type"), "image/png")

	img, err := imaging.Decode(w.Body)
	test.Error(t, err)
	test.T(t, img.Bounds(), image.Rect(0, 0, 256, 341))
}

func TestRenderSyncJPEG(t *testing.T) {
	s := newTestServer(t, Config{})
	body, ct := multipartBody(t, map[string][]byte{"photo": pngBytes(t, 80, 60, color.Gray{120})}, nil)
	w := do(s, http.MethodPost, "/api/posters?format=jpg", body, ct)
	test.T(t, w.Code, http.StatusOK)
	test.T(t, w.Header().Get("Content-Type"), "image/jpeg")
}

func TestRenderSyncErrors(t *testing.T) {
	photo := pngBytes(t, 60, 80, color.Gray{120})
	var tests = []struct {
		name   string
		path   string
		files  map[string][]byte
		fields map[string]string
		status int
	}{
		{"missing photo", "/api/posters", nil, map[string]string{"month": "MARCH"}, http.StatusBadRequest},
		{"corrupt photo", "/api/posters", map[string][]byte{"photo": []byte("nope")}, nil, http.StatusUnprocessableEntity},
		{"bad year", "/api/posters", map[string][]byte{"photo": photo}, map[string]string{"year": "MMXXVI"}, http.StatusBadRequest},
		{"year out of range", "/api/posters", map[string][]byte{"photo": photo}, map[string]string{"year": "0"}, http.StatusBadRequest},
		{"bad format", "/api/posters?format=webp", map[string][]byte{"photo": photo}, nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, Config{})
			body, ct := multipartBody(t, tt.files, tt.fields)
			w := do(s, http.MethodPost, tt.path, body, ct)
			test.T(t, w.Code, tt.status)
		})
	}
}

func TestRenderSyncCorruptLogo(t *testing.T) {
	s := newTestServer(t, Config{})
	body, ct := multipartBody(t, map[string][]byte{
		"photo": pngBytes(t, 60, 80, color.Gray{120}),
		"logo":  []byte("not a logo"),
	}, nil)
	w := do(s, http.MethodPost, "/api/posters", body, ct)
	test.T(t, w.Code, http.StatusOK)
}

func TestRenderSyncNotMultipart(t *testing.T) {
	s := newTestServer(t, Config{})
	w := do(s, http.MethodPost, "/api/posters", bytes.NewBufferString(`{"photo":""}`), "application/json")
	test.T(t, w.Code, http.StatusBadRequest)
}

func TestRenderSyncTimeout(t *testing.T) {
	s := newTestServer(t, Config{RenderTimeout: time.Nanosecond})
	body, ct := multipartBody(t, map[string][]byte{"photo": pngBytes(t, 60, 80, color.Gray{120})}, nil)
	w := do(s, http.MethodPost, "/api/posters", body, ct)
	test.T(t, w.Code, http.StatusGatewayTimeout)
}

func waitTask(t *testing.T, s *Server, id string) TaskView {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		w := do(s, http.MethodGet, "/api/tasks/"+id, nil, "")
		test.T(t, w.Code, http.StatusOK)
		var v TaskView
		test.Error(t, json.Unmarshal(w.Body.Bytes(), &v))
		if v.Status != StatusProcessing {
			return v
		}
		if time.Now().After(deadline) {
			t.Fatalf("task %s still processing", id)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestTaskLifecycle(t *testing.T) {
	s := newTestServer(t, Config{})
	body, ct := multipartBody(t,
		map[string][]byte{"photo": pngBytes(t, 80, 80, color.Gray{200})},
		map[string]string{"keyword": "松弛感", "attitude": "做自己的光"})

	w := do(s, http.MethodPost, "/api/tasks", body, ct)
	test.T(t, w.Code, http.StatusAccepted)
	var created TaskView
	test.Error(t, json.Unmarshal(w.Body.Bytes(), &created))
	test.T(t, created.Status, StatusProcessing)
	test.That(t, created.ID != "", "task id missing")

	v := waitTask(t, s, created.ID)
	test.T(t, v.Status, StatusCompleted)
	test.T(t, v.PosterURL, "https://posters.example.com/api/tasks/"+created.ID+"/poster")
	test.T(t, v.QRURL, "https://posters.example.com/api/tasks/"+created.ID+"/qr")

	w = do(s, http.MethodGet, "/api/tasks/"+created.ID+"/poster", nil, "")
	test.T(t, w.Code, http.StatusOK)
	img, err := imaging.Decode(w.Body)
	test.Error(t, err)
	test.T(t, img.Bounds().Size(), image.Pt(256, 341))

	w = do(s, http.MethodGet, "/api/tasks/"+created.ID+"/qr", nil, "")
	test.T(t, w.Code, http.StatusOK)
	qr, err := imaging.Decode(w.Body)
	test.Error(t, err)
	test.T(t, qr.Bounds().Size(), image.Pt(qrSize, qrSize))
}

func TestTaskFailed(t *testing.T) {
	s := newTestServer(t, Config{})
	body, ct := multipartBody(t, map[string][]byte{"photo": []byte("corrupt")}, nil)
	w := do(s, http.MethodPost, "/api/tasks", body, ct)
	test.T(t, w.Code, http.StatusAccepted)
	var created TaskView
	test.Error(t, json.Unmarshal(w.Body.Bytes(), &created))

	v := waitTask(t, s, created.ID)
	test.T(t, v.Status, StatusFailed)
	test.That(t, v.Error != "", "failure reason missing")
	test.T(t, v.PosterURL, "")

	w = do(s, http.MethodGet, "/api/tasks/"+created.ID+"/poster", nil, "")
	test.T(t, w.Code, http.StatusConflict)
	w = do(s, http.MethodGet, "/api/tasks/"+created.ID+"/qr", nil, "")
	test.T(t, w.Code, http.StatusConflict)
}

func TestTaskNotFound(t *testing.T) {
	s := newTestServer(t, Config{})
	for _, path := range []string{"/api/tasks/nope", "/api/tasks/nope/poster", "/api/tasks/nope/qr"} {
		w := do(s, http.MethodGet, path, nil, "")
		test.T(t, w.Code, http.StatusNotFound)
	}
}

func TestTaskCreateRejectsMissingPhoto(t *testing.T) {
	s := newTestServer(t, Config{})
	body, ct := multipartBody(t, nil, map[string]string{"keyword": "x"})
	w := do(s, http.MethodPost, "/api/tasks", body, ct)
	test.T(t, w.Code, http.StatusBadRequest)
	test.T(t, s.tasks.count(), 0)
}

func TestTaskQueueFull(t *testing.T) {
	s := newTestServer(t, Config{Workers: 1, MaxQueue: 1})
	post := func() *httptest.ResponseRecorder {
		body, ct := multipartBody(t, map[string][]byte{"photo": pngBytes(t, 60, 80, color.Gray{120})}, nil)
		return do(s, http.MethodPost, "/api/tasks", body, ct)
	}

	// hold the only worker so the first task stays queued
	s.workers <- struct{}{}
	w := post()
	test.T(t, w.Code, http.StatusAccepted)
	var queued TaskView
	test.Error(t, json.Unmarshal(w.Body.Bytes(), &queued))

	w = post()
	test.T(t, w.Code, http.StatusServiceUnavailable)
	test.T(t, w.Header().Get("Retry-After"), "5")
	test.T(t, s.tasks.count(), 1)

	<-s.workers
	test.T(t, waitTask(t, s, queued.ID).Status, StatusCompleted)

	deadline := time.Now().Add(5 * time.Second)
	for len(s.queue) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("queue slot not released")
		}
		time.Sleep(10 * time.Millisecond)
	}
	test.T(t, post().Code, http.StatusAccepted)
}
