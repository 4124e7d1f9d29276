package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/clipgif/internal/domain"
	"github.com/iconidentify/clipgif/internal/encoder"
	"github.com/iconidentify/clipgif/internal/repository"
	"github.com/iconidentify/clipgif/internal/service"
	"github.com/iconidentify/clipgif/internal/worker"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubWorker is a worker.Handler returning canned output.
type stubWorker struct {
	block      chan struct{}
	extractErr error
}

func (s *stubWorker) wait(ctx context.Context) error {
	if s.block == nil {
		return nil
	}
	select {
	case <-s.block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *stubWorker) Extract(ctx context.Context, req domain.ExtractionRequest, progress worker.ProgressFunc) (*domain.ExtractionOutput, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	if s.extractErr != nil {
		return nil, s.extractErr
	}
	frames := make([]domain.Frame, 3)
	for i := range frames {
		frames[i] = testFrame(i)
	}
	return &domain.ExtractionOutput{Frames: frames, Dimensions: domain.Dimensions{Width: 4, Height: 4}, FrameRate: req.FrameRate}, nil
}

func (s *stubWorker) Encode(ctx context.Context, req domain.EncodingRequest, progress worker.ProgressFunc) (*domain.EncodingResult, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return &domain.EncodingResult{
		Data:     []byte("GIF89a-test"),
		Metadata: domain.EncodingMetadata{Width: req.Options.Width, Height: req.Options.Height, FrameCount: len(req.Frames), EncoderName: "websafe"},
	}, nil
}

func testFrame(i int) domain.Frame {
	pix := make([]byte, 4*4*4)
	for j := range pix {
		pix[j] = byte(i * 50)
	}
	return domain.Frame{Width: 4, Height: 4, Pixels: pix, Timestamp: float64(i) / 10, Index: i}
}

type testEnv struct {
	orch *service.Orchestrator
	hub  *service.Hub
	gif  *GIFHandler
}

func newTestEnv(t *testing.T, w worker.Handler, maxJobs int) *testEnv {
	t.Helper()

	hub, err := service.NewHub(service.HubConfig{RingBufferSize: 100}, testLogger())
	if err != nil {
		t.Fatalf("failed to create hub: %v", err)
	}
	queue := worker.NewQueue(repository.NewInMemoryJobRepository(), w, nil, testLogger())
	orch := service.NewOrchestrator(service.OrchestratorConfig{
		MaxConcurrentJobs: maxJobs,
		FirstPoll:         5 * time.Millisecond,
		PollInterval:      10 * time.Millisecond,
		JobTimeout:        5 * time.Second,
		ProgressInterval:  10 * time.Millisecond,
	}, queue, hub, nil, testLogger())
	t.Cleanup(func() {
		orch.Close()
		queue.Stop(time.Second)
		hub.Close()
	})

	sel := encoder.NewSelector(testLogger(), encoder.NewWebSafeEncoder())
	return &testEnv{orch: orch, hub: hub, gif: NewGIFHandler(orch, sel, testLogger())}
}

// router mounts the GIF handler the way the api package does.
func (e *testEnv) router() http.Handler {
	r := chi.NewRouter()
	r.Post("/extract", e.gif.Extract)
	r.Post("/encode", e.gif.Encode)
	r.Post("/gifs", e.gif.Create)
	r.Get("/jobs", e.gif.ListJobs)
	r.Get("/jobs/{jobID}", e.gif.GetJob)
	r.Get("/jobs/{jobID}/gif", e.gif.GetGIF)
	r.Delete("/jobs/{jobID}", e.gif.CancelJob)
	r.Get("/queue", e.gif.Queue)
	r.Get("/encoders", e.gif.Encoders)
	r.Get("/presets", e.gif.Presets)
	return r
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	e.router().ServeHTTP(w, req)
	return w
}

var errTest = errors.New("test failure")
