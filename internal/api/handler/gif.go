package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/clipgif/internal/canvas"
	"github.com/iconidentify/clipgif/internal/domain"
	"github.com/iconidentify/clipgif/internal/encoder"
	"github.com/iconidentify/clipgif/internal/service"
	"github.com/iconidentify/clipgif/internal/worker"
)

// maxBodyBytes bounds request bodies; encode requests carry raw RGBA frames.
const maxBodyBytes = 512 << 20

// GIFHandler serves extraction, encoding and job endpoints.
type GIFHandler struct {
	orch     *service.Orchestrator
	selector *encoder.Selector
	logger   *slog.Logger
}

// NewGIFHandler creates a new GIF handler.
func NewGIFHandler(orch *service.Orchestrator, selector *encoder.Selector, logger *slog.Logger) *GIFHandler {
	return &GIFHandler{orch: orch, selector: selector, logger: logger}
}

// ExtractRequest is the body of POST /api/v1/extract.
type ExtractRequest struct {
	service.Requester
	domain.ExtractionRequest
}

// EncodeRequest is the body of POST /api/v1/encode.
type EncodeRequest struct {
	service.Requester
	domain.EncodingRequest
}

// SubmitResponse is returned for requests that do not wait.
type SubmitResponse struct {
	JobID     domain.JobID     `json:"job_id"`
	RequestID string           `json:"request_id,omitempty"`
	Status    domain.JobStatus `json:"status"`
}

type submitFunc func(ctx context.Context, done service.DoneFunc) (domain.JobID, error)

// Extract handles POST /api/v1/extract.
func (h *GIFHandler) Extract(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.run(w, r, req.Requester, func(ctx context.Context, done service.DoneFunc) (domain.JobID, error) {
		return h.orch.ExtractFrames(ctx, req.Requester, req.ExtractionRequest, done)
	})
}

// Encode handles POST /api/v1/encode.
func (h *GIFHandler) Encode(w http.ResponseWriter, r *http.Request) {
	var req EncodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.run(w, r, req.Requester, func(ctx context.Context, done service.DoneFunc) (domain.JobID, error) {
		return h.orch.EncodeGIF(ctx, req.Requester, req.EncodingRequest, done)
	})
}

// Create handles POST /api/v1/gifs.
func (h *GIFHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateGIFRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.run(w, r, req.Requester, func(ctx context.Context, done service.DoneFunc) (domain.JobID, error) {
		return h.orch.CreateGIF(ctx, req, done)
	})
}

func (h *GIFHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// run submits a job. With ?wait=true it blocks until the result is ready;
// otherwise it answers 202 and the result is pushed through the hub.
func (h *GIFHandler) run(w http.ResponseWriter, r *http.Request, who service.Requester, submit submitFunc) {
	wait := r.URL.Query().Get("wait") == "true"

	var results chan service.Result
	var done service.DoneFunc
	if wait {
		results = make(chan service.Result, 1)
		done = func(res service.Result) { results <- res }
	}

	id, err := submit(r.Context(), done)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if !wait {
		writeJSON(w, http.StatusAccepted, SubmitResponse{JobID: id, RequestID: who.RequestID, Status: domain.JobStatusPending})
		return
	}

	select {
	case res := <-results:
		writeJSON(w, resultStatus(res), res)
	case <-r.Context().Done():
		h.logger.Info("client stopped waiting for job", "job_id", id)
	}
}

func resultStatus(res service.Result) int {
	switch {
	case res.Success:
		return http.StatusOK
	case service.IsTimeout(res):
		return http.StatusGatewayTimeout
	}
	return http.StatusUnprocessableEntity
}

// JobView is the API shape of a job. Frame pixels are only included when
// asked for; GIF bytes are served by /jobs/{id}/gif.
type JobView struct {
	ID          domain.JobID               `json:"id"`
	Kind        domain.JobKind             `json:"kind"`
	Status      domain.JobStatus           `json:"status"`
	Progress    int                        `json:"progress"`
	Stage       string                     `json:"stage,omitempty"`
	Message     string                     `json:"message,omitempty"`
	Error       string                     `json:"error,omitempty"`
	CreatedAt   time.Time                  `json:"created_at"`
	UpdatedAt   time.Time                  `json:"updated_at"`
	CompletedAt *time.Time                 `json:"completed_at,omitempty"`
	Extraction  *service.ExtractionSummary `json:"extraction,omitempty"`
	GIF         *GIFView                   `json:"gif,omitempty"`
}

// GIFView summarizes a finished encode.
type GIFView struct {
	URL         string                     `json:"url"`
	Metadata    domain.EncodingMetadata    `json:"metadata"`
	Performance domain.EncodingPerformance `json:"performance"`
	Output      domain.OutputMetadata      `json:"output,omitempty"`
}

// NewJobView converts a job snapshot.
func NewJobView(job *domain.Job, withFrames bool) JobView {
	v := JobView{
		ID:          job.ID,
		Kind:        job.Kind,
		Status:      job.Status,
		Progress:    job.Progress,
		Stage:       job.Stage,
		Message:     job.Message,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
		CompletedAt: job.CompletedAt,
	}
	if job.Extraction != nil && job.Extraction.Output != nil {
		out := job.Extraction.Output
		v.Extraction = &service.ExtractionSummary{
			FrameCount: len(out.Frames),
			Dimensions: out.Dimensions,
			FrameRate:  out.FrameRate,
			Synthetic:  out.Synthetic,
			SourceInfo: out.SourceInfo,
		}
		if withFrames {
			v.Extraction.Frames = out.Frames
		}
	}
	if job.Encoding != nil && job.Encoding.Output != nil {
		v.GIF = &GIFView{
			URL:         "/api/v1/jobs/" + string(job.ID) + "/gif",
			Metadata:    job.Encoding.Output.Metadata,
			Performance: job.Encoding.Output.Performance,
			Output:      job.Encoding.Input.Metadata,
		}
	}
	return v
}

// ListJobs handles GET /api/v1/jobs. Query parameters:
//   - status: only jobs in this state
//   - kind: extract_frames or encode_gif
func (h *GIFHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.orch.Jobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	status := domain.JobStatus(r.URL.Query().Get("status"))
	kind := domain.JobKind(r.URL.Query().Get("kind"))

	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		if status != "" && job.Status != status {
			continue
		}
		if kind != "" && job.Kind != kind {
			continue
		}
		views = append(views, NewJobView(job, false))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": views, "count": len(views)})
}

// GetJob handles GET /api/v1/jobs/{jobID}. ?frames=true includes extracted
// frame data.
func (h *GIFHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.orch.JobStatus(r.Context(), domain.JobID(chi.URLParam(r, "jobID")))
	if !ok {
		writeError(w, http.StatusNotFound, domain.ErrJobNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, NewJobView(job, r.URL.Query().Get("frames") == "true"))
}

// GetGIF handles GET /api/v1/jobs/{jobID}/gif.
func (h *GIFHandler) GetGIF(w http.ResponseWriter, r *http.Request) {
	job, ok := h.orch.JobStatus(r.Context(), domain.JobID(chi.URLParam(r, "jobID")))
	if !ok {
		writeError(w, http.StatusNotFound, domain.ErrJobNotFound.Error())
		return
	}
	if job.Encoding == nil || job.Encoding.Output == nil {
		writeError(w, http.StatusConflict, "job has no gif output")
		return
	}

	data := job.Encoding.Output.Data
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Content-Disposition", "inline; filename=\""+string(job.ID)+".gif\"")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// CancelJob handles DELETE /api/v1/jobs/{jobID}.
func (h *GIFHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := domain.JobID(chi.URLParam(r, "jobID"))
	cancelled, err := h.orch.CancelJob(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": id, "cancelled": cancelled})
}

// QueueResponse is the body of GET /api/v1/queue.
type QueueResponse struct {
	worker.Status
	ActiveJobs []service.TrackedJob `json:"active_jobs"`
}

// Queue handles GET /api/v1/queue.
func (h *GIFHandler) Queue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, QueueResponse{
		Status:     h.orch.QueueStatus(r.Context()),
		ActiveJobs: h.orch.ActiveJobs(),
	})
}

// Encoders handles GET /api/v1/encoders. ?probe=true checks every backend
// before answering.
func (h *GIFHandler) Encoders(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("probe") == "true" {
		for _, name := range h.selector.Names() {
			h.selector.Probe(r.Context(), name)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"encoders": h.selector.Describe()})
}

// Presets handles GET /api/v1/presets.
func (h *GIFHandler) Presets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"presets": canvas.Presets(),
		"modes":   []canvas.Mode{canvas.ModeFit, canvas.ModeFill, canvas.ModeCrop, canvas.ModeStretch},
	})
}
