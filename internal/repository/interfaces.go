package repository

import (
	"context"
	"time"

	"github.com/iconidentify/clipgif/internal/domain"
)

// JobRepository manages the job table and the FIFO queue of pending ids.
type JobRepository interface {
	// Enqueue adds a job to the table and appends it to the queue.
	Enqueue(ctx context.Context, job *domain.Job) error

	// Dequeue pops the next queued job id (FIFO) and returns its record.
	Dequeue(ctx context.Context) (*domain.Job, error)

	// Update mutates a job under the repository lock.
	Update(ctx context.Context, id domain.JobID, fn func(*domain.Job)) (*domain.Job, error)

	// Get returns a snapshot of a job.
	Get(ctx context.Context, id domain.JobID) (*domain.Job, error)

	// List returns snapshots of every job, oldest first.
	List(ctx context.Context) ([]*domain.Job, error)

	// DeleteTerminalBefore removes completed/failed jobs finished before cutoff.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)

	// Stats returns queue statistics.
	Stats(ctx context.Context) (*QueueStats, error)
}

// HistoryStore records finished jobs beyond the in-memory retention window.
type HistoryStore interface {
	Record(ctx context.Context, job *domain.Job) error
	Recent(ctx context.Context, limit int) ([]HistoryEntry, error)
	Close() error
}

// QueueStats contains job queue statistics.
type QueueStats struct {
	Pending    int
	Processing int
	Completed  int
	Failed     int
	Queued     int // ids still waiting in the FIFO list
	Total      int
}
