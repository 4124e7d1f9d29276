package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/iconidentify/clipgif/internal/domain"
)

func newTestJob(id domain.JobID) *domain.Job {
	return domain.NewExtractionJob(id, domain.ExtractionRequest{StartTime: 0, EndTime: 1, FrameRate: 10})
}

func TestNewInMemoryJobRepository(t *testing.T) {
	repo := NewInMemoryJobRepository()

	if repo == nil {
		t.Fatal("repo should not be nil")
	}
	if repo.jobs == nil {
		t.Error("jobs map should be initialized")
	}
	if repo.queue == nil {
		t.Error("queue should be initialized")
	}
}

func TestInMemoryJobRepository_Enqueue(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	err := repo.Enqueue(ctx, newTestJob("job-1"))
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	retrieved, err := repo.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if retrieved.ID != "job-1" {
		t.Errorf("ID = %q, want %q", retrieved.ID, "job-1")
	}
	if repo.Len() != 1 {
		t.Errorf("Len() = %d, want 1", repo.Len())
	}
}

func TestInMemoryJobRepository_Dequeue(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	// Empty queue
	_, err := repo.Dequeue(ctx)
	if err != domain.ErrNoJobs {
		t.Errorf("expected ErrNoJobs, got %v", err)
	}

	repo.Enqueue(ctx, newTestJob("job-1"))
	repo.Enqueue(ctx, newTestJob("job-2"))

	// Dequeue should return first job (FIFO)
	dequeued, err := repo.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if dequeued.ID != "job-1" {
		t.Errorf("expected job-1, got %s", dequeued.ID)
	}

	dequeued, err = repo.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if dequeued.ID != "job-2" {
		t.Errorf("expected job-2, got %s", dequeued.ID)
	}

	_, err = repo.Dequeue(ctx)
	if err != domain.ErrNoJobs {
		t.Errorf("expected ErrNoJobs, got %v", err)
	}
}

func TestInMemoryJobRepository_Dequeue_SkipsNonPending(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	job1 := newTestJob("job-1")
	job1.MarkFailed("cancelled")
	repo.Enqueue(ctx, job1)
	repo.Enqueue(ctx, newTestJob("job-2"))

	dequeued, err := repo.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if dequeued.ID != "job-2" {
		t.Errorf("expected job-2, got %s", dequeued.ID)
	}
}

func TestInMemoryJobRepository_Dequeue_MissingRecord(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	repo.Enqueue(ctx, newTestJob("job-1"))
	repo.Enqueue(ctx, newTestJob("job-2"))

	// Simulate a record vanishing while its id is still queued
	repo.mu.Lock()
	delete(repo.jobs, "job-1")
	repo.mu.Unlock()

	_, err := repo.Dequeue(ctx)
	if !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}

	dequeued, err := repo.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if dequeued.ID != "job-2" {
		t.Errorf("expected job-2, got %s", dequeued.ID)
	}
}

func TestInMemoryJobRepository_Update(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	repo.Enqueue(ctx, newTestJob("job-1"))

	updated, err := repo.Update(ctx, "job-1", func(j *domain.Job) {
		j.MarkProcessing()
		j.SetProgress(25, "extracting", "")
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Status != domain.JobStatusProcessing {
		t.Errorf("Status = %v, want %v", updated.Status, domain.JobStatusProcessing)
	}

	retrieved, _ := repo.Get(ctx, "job-1")
	if retrieved.Progress != 25 {
		t.Errorf("Progress = %d, want 25", retrieved.Progress)
	}
}

func TestInMemoryJobRepository_Update_NotFound(t *testing.T) {
	repo := NewInMemoryJobRepository()

	_, err := repo.Update(context.Background(), "nonexistent", func(*domain.Job) {})
	if err != domain.ErrJobNotFound {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestInMemoryJobRepository_Get_ReturnsSnapshot(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	repo.Enqueue(ctx, newTestJob("job-1"))

	snap, _ := repo.Get(ctx, "job-1")
	snap.Status = domain.JobStatusCompleted

	again, _ := repo.Get(ctx, "job-1")
	if again.Status != domain.JobStatusPending {
		t.Errorf("snapshot mutation leaked: status = %s", again.Status)
	}
}

func TestInMemoryJobRepository_Get_NotFound(t *testing.T) {
	repo := NewInMemoryJobRepository()

	_, err := repo.Get(context.Background(), "nonexistent")
	if err != domain.ErrJobNotFound {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestInMemoryJobRepository_List_Ordered(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	for _, id := range []domain.JobID{"job-a", "job-b", "job-c"} {
		repo.Enqueue(ctx, newTestJob(id))
		time.Sleep(time.Millisecond)
	}

	jobs, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("len = %d, want 3", len(jobs))
	}
	if jobs[0].ID != "job-a" || jobs[2].ID != "job-c" {
		t.Errorf("unexpected order: %s, %s, %s", jobs[0].ID, jobs[1].ID, jobs[2].ID)
	}
}

func TestInMemoryJobRepository_DeleteTerminalBefore(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	old := newTestJob("old-completed")
	old.MarkProcessing()
	old.MarkCompleted()
	past := time.Now().Add(-10 * time.Minute)
	old.CompletedAt = &past
	repo.Enqueue(ctx, old)

	oldFailed := newTestJob("old-failed")
	oldFailed.MarkFailed("boom")
	oldFailed.CompletedAt = &past
	repo.Enqueue(ctx, oldFailed)

	fresh := newTestJob("fresh-completed")
	fresh.MarkProcessing()
	fresh.MarkCompleted()
	repo.Enqueue(ctx, fresh)

	processing := newTestJob("processing")
	processing.MarkProcessing()
	processing.CreatedAt = past
	repo.Enqueue(ctx, processing)

	repo.Enqueue(ctx, newTestJob("pending"))

	removed, err := repo.DeleteTerminalBefore(ctx, time.Now().Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("DeleteTerminalBefore failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	for _, id := range []domain.JobID{"fresh-completed", "processing", "pending"} {
		if _, err := repo.Get(ctx, id); err != nil {
			t.Errorf("%s should survive cleanup: %v", id, err)
		}
	}
	if _, err := repo.Get(ctx, "old-completed"); err != domain.ErrJobNotFound {
		t.Error("old-completed should be removed")
	}
}

func TestInMemoryJobRepository_Stats(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	repo.Enqueue(ctx, newTestJob("job-1"))

	processing := newTestJob("job-2")
	processing.MarkProcessing()
	repo.Enqueue(ctx, processing)

	completed := newTestJob("job-3")
	completed.MarkProcessing()
	completed.MarkCompleted()
	repo.Enqueue(ctx, completed)

	failed := newTestJob("job-4")
	failed.MarkFailed("boom")
	repo.Enqueue(ctx, failed)

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}

	if stats.Pending != 1 {
		t.Errorf("Pending = %d, want 1", stats.Pending)
	}
	if stats.Processing != 1 {
		t.Errorf("Processing = %d, want 1", stats.Processing)
	}
	if stats.Completed != 1 {
		t.Errorf("Completed = %d, want 1", stats.Completed)
	}
	if stats.Failed != 1 {
		t.Errorf("Failed = %d, want 1", stats.Failed)
	}
	if stats.Total != 4 {
		t.Errorf("Total = %d, want 4", stats.Total)
	}
}

func TestInMemoryJobRepository_Clear(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	repo.Enqueue(ctx, newTestJob("job-1"))
	repo.Clear()

	if _, err := repo.Get(ctx, "job-1"); err != domain.ErrJobNotFound {
		t.Error("job should be cleared")
	}
	if repo.Len() != 0 {
		t.Error("queue should be empty")
	}
}

func TestInMemoryJobRepository_Concurrent(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := domain.NewJobID()
			repo.Enqueue(ctx, newTestJob(id))
			repo.Get(ctx, id)
			repo.Stats(ctx)
		}()
	}
	wg.Wait()

	stats, _ := repo.Stats(ctx)
	if stats.Total != 50 {
		t.Errorf("Total = %d, want 50", stats.Total)
	}
}

func TestSQLiteHistoryStore_RecordAndRecent(t *testing.T) {
	store, err := NewSQLiteHistoryStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewSQLiteHistoryStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	pending := newTestJob("job-pending")
	if err := store.Record(ctx, pending); err != nil {
		t.Fatalf("Record pending failed: %v", err)
	}

	enc := domain.NewEncodingJob("job-enc", domain.EncodingRequest{})
	enc.MarkProcessing()
	enc.Encoding.Output = &domain.EncodingResult{Metadata: domain.EncodingMetadata{
		FrameCount:    10,
		FileSizeBytes: 2048,
		EncoderName:   "websafe",
	}}
	enc.MarkCompleted()
	if err := store.Record(ctx, enc); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	entries, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len = %d, want 1 (pending jobs are not recorded)", len(entries))
	}
	e := entries[0]
	if e.JobID != "job-enc" || e.EncoderName != "websafe" || e.FrameCount != 10 || e.OutputBytes != 2048 {
		t.Errorf("unexpected entry: %+v", e)
	}
}
