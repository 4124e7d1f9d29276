package api

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/iconidentify/clipgif/internal/api/handler"
	"github.com/iconidentify/clipgif/internal/encoder"
	"github.com/iconidentify/clipgif/internal/extract"
	"github.com/iconidentify/clipgif/internal/repository"
	"github.com/iconidentify/clipgif/internal/service"
	"github.com/iconidentify/clipgif/internal/worker"
)

const testKey = "secret"

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	hub, err := service.NewHub(service.HubConfig{RingBufferSize: 10}, logger)
	if err != nil {
		t.Fatalf("NewHub: %v", err)
	}
	sel := encoder.NewSelector(logger, encoder.NewWebSafeEncoder())
	ex := extract.NewExtractor(extract.Config{}, nil, logger)
	pipeline := service.NewPipeline(service.PipelineConfig{TempDir: t.TempDir()}, ex, nil, nil, sel, logger)
	queue := worker.NewQueue(repository.NewInMemoryJobRepository(), pipeline, nil, logger)
	orch := service.NewOrchestrator(service.DefaultOrchestratorConfig(), queue, hub, nil, logger)
	t.Cleanup(func() {
		orch.Close()
		queue.Stop(time.Second)
		hub.Close()
	})

	return NewRouter(Handlers{
		Health:  handler.NewHealthHandler(orch, t.TempDir()),
		GIF:     handler.NewGIFHandler(orch, sel, logger),
		Event:   handler.NewEventHandler(hub, logger),
		WS:      handler.NewWSHandler(hub, extract.NewChannelBridge(1), logger),
		History: handler.NewHistoryHandler(nil, logger),
	}, Config{APIKey: testKey, AllowedOrigins: []string{"https://www.youtube.com"}}, logger)
}

func TestRouter_Routes(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		key    string
		want   int
	}{
		{"liveness without key", http.MethodGet, "/health", "", http.StatusOK},
		{"readiness without key", http.MethodGet, "/ready", "", http.StatusOK},
		{"api requires key", http.MethodGet, "/api/v1/queue", "", http.StatusUnauthorized},
		{"api rejects wrong key", http.MethodGet, "/api/v1/queue", "nope", http.StatusUnauthorized},
		{"queue", http.MethodGet, "/api/v1/queue", testKey, http.StatusOK},
		{"jobs", http.MethodGet, "/api/v1/jobs", testKey, http.StatusOK},
		{"unknown job", http.MethodGet, "/api/v1/jobs/job_x", testKey, http.StatusNotFound},
		{"encoders", http.MethodGet, "/api/v1/encoders", testKey, http.StatusOK},
		{"presets", http.MethodGet, "/api/v1/presets", testKey, http.StatusOK},
		{"events", http.MethodGet, "/api/v1/events", testKey, http.StatusOK},
		{"event stats", http.MethodGet, "/api/v1/events/stats", testKey, http.StatusOK},
		{"stats", http.MethodGet, "/api/v1/stats", testKey, http.StatusOK},
		{"history disabled", http.MethodGet, "/api/v1/history", testKey, http.StatusNotImplemented},
		{"double slash is cleaned", http.MethodGet, "//health", "", http.StatusOK},
		{"unknown route", http.MethodGet, "/api/v1/nope", testKey, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("%s %s = %d, want %d (%s)", tt.method, tt.path, w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestRouter_PreflightSkipsAuth(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/gifs", nil)
	req.Header.Set("Origin", "chrome-extension://abcdef")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "chrome-extension://abcdef" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestRouter_DelegatedGIFWithoutBridgeIsSynthetic(t *testing.T) {
	router := newTestRouter(t)

	body := `{"extraction":{"start_time":0,"end_time":0.5,"frame_rate":4,"max_width":64,"max_height":36},"gif":{"encoder":"websafe"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/gifs?wait=true", strings.NewReader(body))
	req.Header.Set("X-API-Key", testKey)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"synthetic":true`) || !strings.Contains(w.Body.String(), `data:image/gif;base64,`) {
		t.Errorf("body = %.300s", w.Body.String())
	}
}
