package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/iconidentify/clipgif/internal/domain"
	"github.com/iconidentify/clipgif/internal/repository"
)

// ErrShutdownTimeout is returned when the in-flight job doesn't stop within timeout.
var ErrShutdownTimeout = errors.New("job queue shutdown timed out")

// DefaultRetention is how long finished jobs stay readable.
const DefaultRetention = 5 * time.Minute

// ProgressFunc reports best-effort progress for the running job.
type ProgressFunc func(pct int, stage, message string)

// Handler runs the actual work for each job kind.
type Handler interface {
	Extract(ctx context.Context, req domain.ExtractionRequest, progress ProgressFunc) (*domain.ExtractionOutput, error)
	Encode(ctx context.Context, req domain.EncodingRequest, progress ProgressFunc) (*domain.EncodingResult, error)
}

// Status summarizes the queue.
type Status struct {
	IsProcessing   bool                     `json:"is_processing"`
	QueueLength    int                      `json:"queue_length"`
	TotalJobs      int                      `json:"total_jobs"`
	CountsByStatus map[domain.JobStatus]int `json:"counts_by_status"`
}

// Queue runs jobs one at a time in submission order. A single drain
// goroutine exists only while there is work; enqueueing restarts it.
type Queue struct {
	repo    repository.JobRepository
	handler Handler
	history repository.HistoryStore
	logger  *slog.Logger

	mu       sync.Mutex
	draining bool
	stopped  bool
	cancels  map[domain.JobID]context.CancelFunc

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewQueue creates a job queue. history may be nil.
func NewQueue(
	repo repository.JobRepository,
	handler Handler,
	history repository.HistoryStore,
	logger *slog.Logger,
) *Queue {
	ctx, cancel := context.WithCancel(context.Background())

	return &Queue{
		repo:    repo,
		handler: handler,
		history: history,
		logger:  logger,
		cancels: make(map[domain.JobID]context.CancelFunc),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// EnqueueExtraction adds an extraction job. Requests are validated when the
// job runs, not here.
func (q *Queue) EnqueueExtraction(ctx context.Context, req domain.ExtractionRequest) (domain.JobID, error) {
	return q.enqueue(ctx, domain.NewExtractionJob(domain.NewJobID(), req))
}

// EnqueueEncoding adds an encoding job.
func (q *Queue) EnqueueEncoding(ctx context.Context, req domain.EncodingRequest) (domain.JobID, error) {
	return q.enqueue(ctx, domain.NewEncodingJob(domain.NewJobID(), req))
}

func (q *Queue) enqueue(ctx context.Context, job *domain.Job) (domain.JobID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.repo.Enqueue(ctx, job); err != nil {
		return "", err
	}

	q.logger.Debug("job enqueued", "job_id", job.ID, "kind", job.Kind)

	if !q.draining && !q.stopped {
		q.draining = true
		q.wg.Add(1)
		go q.drain()
	}
	return job.ID, nil
}

// Status returns a snapshot of a job.
func (q *Queue) Status(ctx context.Context, id domain.JobID) (*domain.Job, bool) {
	job, err := q.repo.Get(ctx, id)
	if err != nil {
		return nil, false
	}
	return job, true
}

// Jobs returns snapshots of every retained job, oldest first.
func (q *Queue) Jobs(ctx context.Context) ([]*domain.Job, error) {
	return q.repo.List(ctx)
}

// CleanupOldJobs removes finished jobs older than maxAge and returns how many
// were removed.
func (q *Queue) CleanupOldJobs(ctx context.Context, maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = DefaultRetention
	}
	removed, err := q.repo.DeleteTerminalBefore(ctx, time.Now().Add(-maxAge))
	if err != nil {
		q.logger.Error("cleanup old jobs", "error", err)
		return 0
	}
	if removed > 0 {
		q.logger.Info("cleaned up old jobs", "removed", removed)
	}
	return removed
}

// QueueStatus reports whether a job is running and how many are retained.
func (q *Queue) QueueStatus(ctx context.Context) Status {
	status := Status{CountsByStatus: make(map[domain.JobStatus]int)}

	stats, err := q.repo.Stats(ctx)
	if err != nil {
		q.logger.Error("queue stats", "error", err)
		return status
	}

	status.IsProcessing = stats.Processing > 0
	status.QueueLength = stats.Pending
	status.TotalJobs = stats.Total
	status.CountsByStatus[domain.JobStatusPending] = stats.Pending
	status.CountsByStatus[domain.JobStatusProcessing] = stats.Processing
	status.CountsByStatus[domain.JobStatusCompleted] = stats.Completed
	status.CountsByStatus[domain.JobStatusFailed] = stats.Failed
	return status
}

// Cancel fails a pending or processing job with ErrCancelled and stops its
// work. It returns false if the job had already finished.
func (q *Queue) Cancel(ctx context.Context, id domain.JobID) (bool, error) {
	return q.fail(ctx, id, domain.ErrCancelled.Error())
}

// ForceFail fails a job with reason regardless of what the handler is doing.
// A completion arriving later is discarded.
func (q *Queue) ForceFail(ctx context.Context, id domain.JobID, reason string) (bool, error) {
	return q.fail(ctx, id, reason)
}

func (q *Queue) fail(ctx context.Context, id domain.JobID, reason string) (bool, error) {
	var changed bool
	job, err := q.repo.Update(ctx, id, func(j *domain.Job) {
		changed = j.MarkFailed(reason)
	})
	if err != nil {
		return false, err
	}

	q.mu.Lock()
	if cancel, ok := q.cancels[id]; ok {
		cancel()
	}
	q.mu.Unlock()

	if changed {
		q.logger.Warn("job failed externally", "job_id", id, "reason", reason)
		q.record(job)
	}
	return changed, nil
}

// StartSweeper removes old finished jobs every interval until ctx is done.
func (q *Queue) StartSweeper(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-q.ctx.Done():
				return
			case <-ticker.C:
				q.CleanupOldJobs(ctx, maxAge)
			}
		}
	}()
}

// Stop cancels the running job and waits for the drain loop to exit.
func (q *Queue) Stop(timeout time.Duration) error {
	q.logger.Info("stopping job queue")

	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("job queue stopped gracefully")
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

func (q *Queue) drain() {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		if q.ctx.Err() != nil {
			q.draining = false
			q.mu.Unlock()
			return
		}
		job, err := q.repo.Dequeue(q.ctx)
		if errors.Is(err, domain.ErrNoJobs) {
			q.draining = false
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()

		if err != nil {
			q.logger.Error("failed to dequeue job", "error", err)
			continue
		}

		q.process(job)
	}
}

func (q *Queue) process(job *domain.Job) {
	logger := q.logger.With("job_id", job.ID, "kind", job.Kind)

	jobCtx, cancel := context.WithCancel(q.ctx)
	q.mu.Lock()
	q.cancels[job.ID] = cancel
	q.mu.Unlock()

	defer func() {
		cancel()
		q.mu.Lock()
		delete(q.cancels, job.ID)
		q.mu.Unlock()
	}()

	var started bool
	if _, err := q.repo.Update(jobCtx, job.ID, func(j *domain.Job) {
		started = j.MarkProcessing()
	}); err != nil {
		logger.Error("failed to update job status", "error", err)
		return
	}
	if !started {
		return
	}

	logger.Info("processing job")
	start := time.Now()

	progress := func(pct int, stage, message string) {
		q.repo.Update(q.ctx, job.ID, func(j *domain.Job) {
			j.SetProgress(pct, stage, message)
		})
	}

	var store func(*domain.Job)
	var err error

	switch job.Kind {
	case domain.JobKindExtractFrames:
		var out *domain.ExtractionOutput
		out, err = q.handler.Extract(jobCtx, job.Extraction.Input, progress)
		store = func(j *domain.Job) { j.Extraction.Output = out }
	case domain.JobKindEncodeGIF:
		var out *domain.EncodingResult
		out, err = q.handler.Encode(jobCtx, job.Encoding.Input, progress)
		store = func(j *domain.Job) { j.Encoding.Output = out }
	default:
		err = domain.NewJobError(job.ID, "process", errors.New("unknown job kind "+string(job.Kind)))
	}

	var final *domain.Job
	if err != nil {
		final = q.handleJobFailure(logger, job.ID, err)
	} else {
		final, err = q.repo.Update(q.ctx, job.ID, func(j *domain.Job) {
			if j.Status.IsTerminal() {
				return
			}
			store(j)
			j.MarkCompleted()
		})
		if err != nil {
			logger.Error("failed to mark job completed", "error", err)
			return
		}
		if final.Status == domain.JobStatusCompleted {
			logger.Info("job completed successfully", "duration_ms", time.Since(start).Milliseconds())
		}
	}

	q.record(final)
}

func (q *Queue) handleJobFailure(logger *slog.Logger, id domain.JobID, err error) *domain.Job {
	msg := err.Error()
	if errors.Is(err, context.Canceled) {
		msg = domain.ErrCancelled.Error()
	}

	var changed bool
	job, updateErr := q.repo.Update(q.ctx, id, func(j *domain.Job) {
		changed = j.MarkFailed(msg)
	})
	if updateErr != nil {
		logger.Error("failed to update job after failure", "error", updateErr)
		return nil
	}
	if changed {
		logger.Error("job failed", "error", err)
	}
	return job
}

func (q *Queue) record(job *domain.Job) {
	if q.history == nil || job == nil || !job.Status.IsTerminal() {
		return
	}
	if err := q.history.Record(context.Background(), job); err != nil {
		q.logger.Warn("failed to record job history", "job_id", job.ID, "error", err)
	}
}
