package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iconidentify/clipgif/internal/domain"
)

// HistoryEntry is one finished job as stored in SQLite.
type HistoryEntry struct {
	JobID       domain.JobID     `json:"job_id"`
	Kind        domain.JobKind   `json:"kind"`
	Status      domain.JobStatus `json:"status"`
	Error       string           `json:"error,omitempty"`
	FrameCount  int              `json:"frame_count"`
	OutputBytes int              `json:"output_bytes"`
	EncoderName string           `json:"encoder_name,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	CompletedAt time.Time        `json:"completed_at"`
}

// SQLiteHistoryStore persists job history with the pure-Go SQLite driver.
type SQLiteHistoryStore struct {
	db *sql.DB
}

// NewSQLiteHistoryStore opens (or creates) the history database at path.
func NewSQLiteHistoryStore(path string) (*SQLiteHistoryStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS job_history (
			job_id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			frame_count INTEGER NOT NULL DEFAULT 0,
			output_bytes INTEGER NOT NULL DEFAULT 0,
			encoder_name TEXT,
			created_at DATETIME NOT NULL,
			completed_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_job_history_completed ON job_history(completed_at);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteHistoryStore{db: db}, nil
}

// Record stores a terminal job. Non-terminal jobs are ignored.
func (s *SQLiteHistoryStore) Record(ctx context.Context, job *domain.Job) error {
	if !job.Status.IsTerminal() {
		return nil
	}

	entry := historyFromJob(job)
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO job_history
			(job_id, kind, status, error, frame_count, output_bytes, encoder_name, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.JobID, entry.Kind, entry.Status, entry.Error, entry.FrameCount, entry.OutputBytes,
		entry.EncoderName, entry.CreatedAt, entry.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// Recent returns the most recently finished jobs, newest first.
func (s *SQLiteHistoryStore) Recent(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, kind, status, error, frame_count, output_bytes, encoder_name, created_at, completed_at
		FROM job_history
		ORDER BY completed_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var e HistoryEntry
		var errMsg, encoderName sql.NullString
		if err := rows.Scan(&e.JobID, &e.Kind, &e.Status, &errMsg, &e.FrameCount, &e.OutputBytes,
			&encoderName, &e.CreatedAt, &e.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.Error = errMsg.String
		e.EncoderName = encoderName.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database.
func (s *SQLiteHistoryStore) Close() error {
	return s.db.Close()
}

func historyFromJob(job *domain.Job) HistoryEntry {
	e := HistoryEntry{
		JobID:     job.ID,
		Kind:      job.Kind,
		Status:    job.Status,
		Error:     job.Error,
		CreatedAt: job.CreatedAt,
	}
	if job.CompletedAt != nil {
		e.CompletedAt = *job.CompletedAt
	} else {
		e.CompletedAt = job.UpdatedAt
	}

	switch {
	case job.Extraction != nil && job.Extraction.Output != nil:
		e.FrameCount = len(job.Extraction.Output.Frames)
	case job.Encoding != nil && job.Encoding.Output != nil:
		e.FrameCount = job.Encoding.Output.Metadata.FrameCount
		e.OutputBytes = job.Encoding.Output.Metadata.FileSizeBytes
		e.EncoderName = job.Encoding.Output.Metadata.EncoderName
	}
	return e
}
