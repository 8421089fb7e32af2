package logging

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
)

func captureDefault(t *testing.T) *bytes.Buffer {
	old := slog.Default()
	t.Cleanup(func() { slog.SetDefault(old) })

	var buf bytes.Buffer
	slog.SetDefault(New(&buf, true))
	return &buf
}

func TestNew_DevModeShowsDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, true)
	logger.Debug("test debug")
	assert.Contains(t, buf.String(), "test debug")
}

func TestNew_ProdModeIsJSONAndHidesDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, false)
	logger.Debug("hidden")
	logger.Info("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}

func TestRequestLogger(t *testing.T) {
	buf := captureDefault(t)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	handler := middleware.RequestID(RequestLogger(inner))

	req := httptest.NewRequest(http.MethodGet, "/api/comments/missing", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	assert.Contains(t, out, "GET")
	assert.Contains(t, out, "/api/comments/missing")
	assert.Contains(t, out, "404")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "request_id=")
}

func TestRequestLogger_SkipsNoisyPaths(t *testing.T) {
	buf := captureDefault(t)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequestLogger(inner)

	for _, path := range []string{"/api/health", "/media/attachments/x.png"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	assert.Zero(t, buf.Len())
}
