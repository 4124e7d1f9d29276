package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/iconidentify/clipgif/internal/canvas"
	"github.com/iconidentify/clipgif/internal/domain"
	"github.com/iconidentify/clipgif/internal/storage"
	"github.com/iconidentify/clipgif/internal/worker"
)

// JobQueue is the part of worker.Queue the orchestrator drives.
type JobQueue interface {
	EnqueueExtraction(ctx context.Context, req domain.ExtractionRequest) (domain.JobID, error)
	EnqueueEncoding(ctx context.Context, req domain.EncodingRequest) (domain.JobID, error)
	Status(ctx context.Context, id domain.JobID) (*domain.Job, bool)
	Jobs(ctx context.Context) ([]*domain.Job, error)
	Cancel(ctx context.Context, id domain.JobID) (bool, error)
	ForceFail(ctx context.Context, id domain.JobID, reason string) (bool, error)
	QueueStatus(ctx context.Context) worker.Status
}

// OrchestratorConfig controls tracking and polling.
type OrchestratorConfig struct {
	MaxConcurrentJobs int
	FirstPoll         time.Duration
	PollInterval      time.Duration
	JobTimeout        time.Duration
	ProgressInterval  time.Duration
	MaxGIFWidth       int
	MaxGIFHeight      int
}

// DefaultOrchestratorConfig returns the defaults used by the browser extension.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MaxConcurrentJobs: 5,
		FirstPoll:         100 * time.Millisecond,
		PollInterval:      time.Second,
		JobTimeout:        5 * time.Minute,
		ProgressInterval:  500 * time.Millisecond,
		MaxGIFWidth:       480,
		MaxGIFHeight:      360,
	}
}

// Requester identifies who asked for a job so results can be routed back.
type Requester struct {
	RequestID string `json:"request_id,omitempty"`
	Context   string `json:"context,omitempty"`
}

// GIFSettings are the encoding choices of a CreateGIF request. Zero values
// are derived from the extraction.
type GIFSettings struct {
	Width           int            `json:"width,omitempty"`
	Height          int            `json:"height,omitempty"`
	Quality         domain.Quality `json:"quality,omitempty"`
	Loop            *bool          `json:"loop,omitempty"`
	Dithering       bool           `json:"dithering,omitempty"`
	OptimizeColors  bool           `json:"optimize_colors,omitempty"`
	BackgroundColor string         `json:"background_color,omitempty"`
	Encoder         string         `json:"encoder,omitempty"`
	Fallback        string         `json:"fallback,omitempty"`
}

// CreateGIFRequest asks for extraction followed by encoding.
type CreateGIFRequest struct {
	Requester
	Extraction domain.ExtractionRequest `json:"extraction"`
	GIF        GIFSettings              `json:"gif"`
	Metadata   domain.OutputMetadata    `json:"metadata,omitempty"`
}

// ExtractionSummary is the payload of a finished extraction.
type ExtractionSummary struct {
	FrameCount int               `json:"frame_count"`
	Dimensions domain.Dimensions `json:"dimensions"`
	FrameRate  float64           `json:"frame_rate"`
	Synthetic  bool              `json:"synthetic,omitempty"`
	SourceInfo string            `json:"source_info,omitempty"`
	Frames     []domain.Frame    `json:"frames,omitempty"`
}

// GIFOutput is the payload of a finished encode.
type GIFOutput struct {
	DataURL      string                     `json:"data_url"`
	ThumbnailURL string                     `json:"thumbnail_url,omitempty"`
	ArtifactURL  string                     `json:"artifact_url,omitempty"`
	Metadata     domain.EncodingMetadata    `json:"metadata"`
	Performance  domain.EncodingPerformance `json:"performance"`
	Output       domain.OutputMetadata      `json:"output,omitempty"`
	Synthetic    bool                       `json:"synthetic,omitempty"`
}

// Result is delivered exactly once per request.
type Result struct {
	Success    bool               `json:"success"`
	JobID      domain.JobID       `json:"job_id"`
	RequestID  string             `json:"request_id,omitempty"`
	Error      string             `json:"error,omitempty"`
	Extraction *ExtractionSummary `json:"extraction,omitempty"`
	GIF        *GIFOutput         `json:"gif,omitempty"`
}

// DoneFunc receives the final result of a request.
type DoneFunc func(Result)

// TrackedJob is a job the orchestrator is polling.
type TrackedJob struct {
	JobID     domain.JobID   `json:"job_id"`
	Kind      domain.JobKind `json:"kind"`
	RequestID string         `json:"request_id,omitempty"`
	Context   string         `json:"context,omitempty"`
	StartedAt time.Time      `json:"started_at"`
}

// Orchestrator submits jobs on behalf of API callers, polls them to
// completion, and pushes progress and results through the hub.
type Orchestrator struct {
	cfg       OrchestratorConfig
	queue     JobQueue
	hub       *Hub
	artifacts storage.ArtifactStore
	logger    *slog.Logger

	mu      sync.Mutex
	tracked map[domain.JobID]*TrackedJob

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewOrchestrator creates an orchestrator. artifacts may be nil.
func NewOrchestrator(cfg OrchestratorConfig, queue JobQueue, hub *Hub, artifacts storage.ArtifactStore, logger *slog.Logger) *Orchestrator {
	def := DefaultOrchestratorConfig()
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = def.MaxConcurrentJobs
	}
	if cfg.FirstPoll <= 0 {
		cfg.FirstPoll = def.FirstPoll
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = def.ProgressInterval
	}
	if cfg.MaxGIFWidth <= 0 {
		cfg.MaxGIFWidth = def.MaxGIFWidth
	}
	if cfg.MaxGIFHeight <= 0 {
		cfg.MaxGIFHeight = def.MaxGIFHeight
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:       cfg,
		queue:     queue,
		hub:       hub,
		artifacts: artifacts,
		logger:    logger,
		tracked:   make(map[domain.JobID]*TrackedJob),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start runs the progress broadcaster until Close.
func (o *Orchestrator) Start() {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()

		ticker := time.NewTicker(o.cfg.ProgressInterval)
		defer ticker.Stop()

		for {
			select {
			case <-o.ctx.Done():
				return
			case <-ticker.C:
				o.broadcastProgress()
			}
		}
	}()
}

// Close stops polling and the broadcaster. Outstanding callbacks fire with
// a cancelled result.
func (o *Orchestrator) Close() {
	o.cancel()
	o.wg.Wait()
}

// ExtractFrames submits an extraction job and calls done when it finishes.
func (o *Orchestrator) ExtractFrames(ctx context.Context, who Requester, req domain.ExtractionRequest, done DoneFunc) (domain.JobID, error) {
	return o.extractFrames(ctx, who, req, false, done)
}

// extractFrames submits an extraction job. With keep set the job stays
// tracked after it finishes and done must hand the slot off or untrack it.
func (o *Orchestrator) extractFrames(ctx context.Context, who Requester, req domain.ExtractionRequest, keep bool, done DoneFunc) (domain.JobID, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if req.Processing != nil {
		if _, err := canvas.OptionsFromProcessing(req.Processing, req.Quality); err != nil {
			return "", err
		}
	}

	id, err := o.submit(ctx, who, domain.JobKindExtractFrames, "", func() (domain.JobID, error) {
		return o.queue.EnqueueExtraction(ctx, req)
	})
	if err != nil {
		return "", err
	}

	finish := once(done)
	o.watch(id, keep, func(job *domain.Job, err error) {
		res := o.extractionResult(id, who, job, err)
		o.publishResult(who, res)
		finish(res)
	})
	return id, nil
}

// EncodeGIF submits an encoding job and calls done when it finishes.
func (o *Orchestrator) EncodeGIF(ctx context.Context, who Requester, req domain.EncodingRequest, done DoneFunc) (domain.JobID, error) {
	return o.encodeGIF(ctx, who, req, "", done)
}

// encodeGIF submits an encoding job. A non-empty replace names a tracked job
// whose slot the new job takes over without a capacity check.
func (o *Orchestrator) encodeGIF(ctx context.Context, who Requester, req domain.EncodingRequest, replace domain.JobID, done DoneFunc) (domain.JobID, error) {
	if len(req.Frames) == 0 {
		return "", domain.ErrNoFrames
	}
	if err := req.Options.Validate(); err != nil {
		return "", err
	}

	id, err := o.submit(ctx, who, domain.JobKindEncodeGIF, replace, func() (domain.JobID, error) {
		return o.queue.EnqueueEncoding(ctx, req)
	})
	if err != nil {
		return "", err
	}

	finish := once(done)
	o.watch(id, false, func(job *domain.Job, err error) {
		res := o.encodingResult(id, who, job, err)
		o.publishResult(who, res)
		finish(res)
	})
	return id, nil
}

// CreateGIF extracts frames and then encodes them. It returns the id of the
// extraction job; done receives the encoding result, or the extraction
// failure if extraction did not succeed. The encoding job inherits the
// extraction job's slot.
func (o *Orchestrator) CreateGIF(ctx context.Context, req CreateGIFRequest, done DoneFunc) (domain.JobID, error) {
	finish := once(done)

	return o.extractFrames(ctx, req.Requester, req.Extraction, true, func(res Result) {
		fail := func(r Result) {
			o.untrack(res.JobID)
			finish(r)
		}
		if !res.Success {
			fail(res)
			return
		}

		job, ok := o.queue.Status(o.ctx, res.JobID)
		if !ok || job.Extraction == nil || job.Extraction.Output == nil {
			fail(failure(res.JobID, req.Requester, "extraction output expired before encoding"))
			return
		}
		out := job.Extraction.Output
		enc := o.encodingRequest(req, out)

		_, err := o.encodeGIF(o.ctx, req.Requester, enc, res.JobID, func(r Result) {
			if r.GIF != nil {
				r.GIF.Synthetic = out.Synthetic
			}
			finish(r)
		})
		if err != nil {
			fail(failure(res.JobID, req.Requester, err.Error()))
		}
	})
}

// encodingRequest builds the encode step of CreateGIF from the extracted
// frames, capping the output size.
func (o *Orchestrator) encodingRequest(req CreateGIFRequest, out *domain.ExtractionOutput) domain.EncodingRequest {
	w, h := req.GIF.Width, req.GIF.Height
	if w <= 0 && h <= 0 {
		w, h = out.Dimensions.Width, out.Dimensions.Height
	} else {
		size := canvas.TargetSize(out.Dimensions.Width, out.Dimensions.Height, w, h, canvas.ModeFit)
		w, h = size.Width, size.Height
	}
	if w > o.cfg.MaxGIFWidth || h > o.cfg.MaxGIFHeight {
		size := canvas.TargetSize(w, h, o.cfg.MaxGIFWidth, o.cfg.MaxGIFHeight, canvas.ModeFit)
		w, h = size.Width, size.Height
	}

	quality := req.GIF.Quality
	if quality == "" {
		quality = req.Extraction.Quality
	}
	loop := true
	if req.GIF.Loop != nil {
		loop = *req.GIF.Loop
	}

	meta := req.Metadata
	if meta.StartTime == 0 && meta.EndTime == 0 {
		meta.StartTime, meta.EndTime = req.Extraction.StartTime, req.Extraction.EndTime
	}

	return domain.EncodingRequest{
		Frames: out.Frames,
		Options: domain.EncodingOptions{
			Width:           w,
			Height:          h,
			FrameRate:       out.FrameRate,
			Quality:         quality,
			Loop:            loop,
			Dithering:       req.GIF.Dithering,
			OptimizeColors:  req.GIF.OptimizeColors,
			BackgroundColor: req.GIF.BackgroundColor,
		},
		Encoder:  req.GIF.Encoder,
		Fallback: req.GIF.Fallback,
		Metadata: meta,
	}
}

// JobStatus returns a snapshot of a job.
func (o *Orchestrator) JobStatus(ctx context.Context, id domain.JobID) (*domain.Job, bool) {
	return o.queue.Status(ctx, id)
}

// Jobs lists every retained job, oldest first.
func (o *Orchestrator) Jobs(ctx context.Context) ([]*domain.Job, error) {
	return o.queue.Jobs(ctx)
}

// CancelJob cancels a pending or running job.
func (o *Orchestrator) CancelJob(ctx context.Context, id domain.JobID) (bool, error) {
	if _, ok := o.queue.Status(ctx, id); !ok {
		return false, domain.ErrJobNotFound
	}
	return o.queue.Cancel(ctx, id)
}

// QueueStatus reports queue state.
func (o *Orchestrator) QueueStatus(ctx context.Context) worker.Status {
	return o.queue.QueueStatus(ctx)
}

// ActiveJobs lists tracked jobs, oldest first.
func (o *Orchestrator) ActiveJobs() []TrackedJob {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]TrackedJob, 0, len(o.tracked))
	for _, t := range o.tracked {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func (o *Orchestrator) submit(ctx context.Context, who Requester, kind domain.JobKind, replace domain.JobID, enqueue func() (domain.JobID, error)) (domain.JobID, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	_, handoff := o.tracked[replace]
	if !handoff && len(o.tracked) >= o.cfg.MaxConcurrentJobs {
		return "", fmt.Errorf("%w: %d jobs in flight", domain.ErrCapacityExceeded, len(o.tracked))
	}

	id, err := enqueue()
	if err != nil {
		return "", err
	}
	if handoff {
		delete(o.tracked, replace)
	}
	o.tracked[id] = &TrackedJob{
		JobID:     id,
		Kind:      kind,
		RequestID: who.RequestID,
		Context:   who.Context,
		StartedAt: time.Now(),
	}
	o.logger.Info("job submitted", "job_id", id, "kind", kind, "request_id", who.RequestID)
	return id, nil
}

func (o *Orchestrator) untrack(id domain.JobID) {
	o.mu.Lock()
	delete(o.tracked, id)
	o.mu.Unlock()
}

// watch polls id until it is terminal or the job timeout elapses. finish is
// called exactly once, after the job is untracked unless keep is set.
func (o *Orchestrator) watch(id domain.JobID, keep bool, finish func(*domain.Job, error)) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()

		logger := o.logger.With("job_id", id)
		deadline := time.NewTimer(o.cfg.JobTimeout)
		defer deadline.Stop()
		poll := time.NewTimer(o.cfg.FirstPoll)
		defer poll.Stop()

		job, err := func() (*domain.Job, error) {
			for {
				select {
				case <-o.ctx.Done():
					return nil, fmt.Errorf("%w: orchestrator shutting down", domain.ErrCancelled)
				case <-deadline.C:
					changed, err := o.queue.ForceFail(o.ctx, id, domain.ErrJobTimeout.Error())
					if err != nil {
						logger.Error("failed to mark job timed out", "error", err)
					}
					if !changed {
						// Finished after the last poll.
						if job, ok := o.queue.Status(o.ctx, id); ok && job.Status.IsTerminal() {
							return job, nil
						}
					}
					logger.Warn("job timed out", "timeout", o.cfg.JobTimeout)
					return nil, domain.ErrJobTimeout
				case <-poll.C:
					job, ok := o.queue.Status(o.ctx, id)
					if !ok {
						return nil, domain.ErrJobNotFound
					}
					if job.Status.IsTerminal() {
						return job, nil
					}
					poll.Reset(o.cfg.PollInterval)
				}
			}
		}()

		if !keep {
			o.untrack(id)
		}
		finish(job, err)
	}()
}

func (o *Orchestrator) broadcastProgress() {
	for _, t := range o.ActiveJobs() {
		job, ok := o.queue.Status(o.ctx, t.JobID)
		if !ok || job.Status != domain.JobStatusProcessing {
			continue
		}
		o.hub.PublishProgress(domain.ProgressUpdate{
			JobID:    job.ID,
			Progress: job.Progress,
			Status:   job.Status,
			Stage:    job.Stage,
			Message:  job.Message,
			Details:  map[string]any{"kind": job.Kind},
		}, t.RequestID, t.Context)
	}
}

func (o *Orchestrator) extractionResult(id domain.JobID, who Requester, job *domain.Job, err error) Result {
	if err != nil {
		return failure(id, who, err.Error())
	}
	if job.Status != domain.JobStatusCompleted {
		return failure(id, who, job.Error)
	}
	out := job.Extraction.Output
	return Result{
		Success:   true,
		JobID:     id,
		RequestID: who.RequestID,
		Extraction: &ExtractionSummary{
			FrameCount: len(out.Frames),
			Dimensions: out.Dimensions,
			FrameRate:  out.FrameRate,
			Synthetic:  out.Synthetic,
			SourceInfo: out.SourceInfo,
			Frames:     out.Frames,
		},
	}
}

func (o *Orchestrator) encodingResult(id domain.JobID, who Requester, job *domain.Job, err error) Result {
	if err != nil {
		return failure(id, who, err.Error())
	}
	if job.Status != domain.JobStatusCompleted {
		return failure(id, who, job.Error)
	}

	enc := job.Encoding.Output
	gif := &GIFOutput{
		DataURL:     DataURL("image/gif", enc.Data),
		Metadata:    enc.Metadata,
		Performance: enc.Performance,
		Output:      job.Encoding.Input.Metadata,
	}
	if len(enc.Thumbnail) > 0 {
		gif.ThumbnailURL = DataURL("image/png", enc.Thumbnail)
	}

	if o.artifacts != nil {
		key := storage.ObjectKey(id, time.Now(), "gif")
		art, err := o.artifacts.Put(o.ctx, key, enc.Data, "image/gif")
		if err != nil {
			o.logger.Warn("failed to store gif artifact", "job_id", id, "error", err)
		} else {
			gif.ArtifactURL = art.URL
		}
	}

	return Result{Success: true, JobID: id, RequestID: who.RequestID, GIF: gif}
}

// publishResult pushes a result message without frame or GIF bytes.
func (o *Orchestrator) publishResult(who Requester, res Result) {
	severity := domain.SeveritySuccess
	text := "Job completed"
	switch {
	case !res.Success:
		severity = domain.SeverityError
		text = res.Error
	case res.Extraction != nil && res.Extraction.Synthetic:
		severity = domain.SeverityWarning
		text = "Extraction fell back to synthetic frames"
	}

	summary := res
	if res.Extraction != nil {
		ex := *res.Extraction
		ex.Frames = nil
		summary.Extraction = &ex
	}
	if res.GIF != nil {
		g := *res.GIF
		g.DataURL = ""
		g.ThumbnailURL = ""
		summary.GIF = &g
	}
	o.hub.PublishResult(res.JobID, who.RequestID, who.Context, severity, text, summary)
}

func failure(id domain.JobID, who Requester, msg string) Result {
	return Result{Success: false, JobID: id, RequestID: who.RequestID, Error: msg}
}

// once wraps done so only the first call goes through.
func once(done DoneFunc) DoneFunc {
	var o sync.Once
	return func(r Result) {
		o.Do(func() {
			if done != nil {
				done(r)
			}
		})
	}
}

// DataURL encodes data as a base64 data URL.
func DataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// IsTimeout reports whether a result failed because the job timed out.
func IsTimeout(res Result) bool {
	return !res.Success && res.Error == domain.ErrJobTimeout.Error()
}

var _ JobQueue = (*worker.Queue)(nil)
