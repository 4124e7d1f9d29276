package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobID is a unique identifier for a job.
type JobID string

// String returns the string representation of the JobID.
func (id JobID) String() string {
	return string(id)
}

// NewJobID returns a time-prefixed id with a random suffix.
func NewJobID() JobID {
	return JobID(fmt.Sprintf("job_%d_%s", time.Now().UnixMilli(), uuid.New().String()[:8]))
}

// JobKind identifies which pipeline stage a job runs.
type JobKind string

const (
	JobKindExtractFrames JobKind = "extract_frames"
	JobKindEncodeGIF     JobKind = "encode_gif"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is a unit of asynchronous extraction or encoding work.
// Exactly one of Extraction or Encoding is set, matching Kind.
type Job struct {
	ID          JobID
	Kind        JobKind
	Status      JobStatus
	Progress    int
	Stage       string
	Message     string
	Error       string
	Extraction  *ExtractionPayload
	Encoding    *EncodingPayload
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// ExtractionPayload holds the input of an extraction job and, once the job
// completes, its output.
type ExtractionPayload struct {
	Input  ExtractionRequest
	Output *ExtractionOutput
}

// EncodingPayload holds the input of an encoding job and, once the job
// completes, its output.
type EncodingPayload struct {
	Input  EncodingRequest
	Output *EncodingResult
}

// NewExtractionJob creates a pending extraction job.
func NewExtractionJob(id JobID, req ExtractionRequest) *Job {
	job := newJob(id, JobKindExtractFrames)
	job.Extraction = &ExtractionPayload{Input: req}
	return job
}

// NewEncodingJob creates a pending encoding job.
func NewEncodingJob(id JobID, req EncodingRequest) *Job {
	job := newJob(id, JobKindEncodeGIF)
	job.Encoding = &EncodingPayload{Input: req}
	return job
}

func newJob(id JobID, kind JobKind) *Job {
	now := time.Now()
	return &Job{
		ID:        id,
		Kind:      kind,
		Status:    JobStatusPending,
		Stage:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkProcessing moves a pending job to processing.
// It returns false if the job was not pending.
func (j *Job) MarkProcessing() bool {
	if j.Status != JobStatusPending {
		return false
	}
	j.Status = JobStatusProcessing
	j.Stage = "processing"
	j.UpdatedAt = time.Now()
	return true
}

// SetProgress records best-effort progress. Progress never decreases and stays
// below 100 until the job completes.
func (j *Job) SetProgress(pct int, stage, message string) {
	if j.Status.IsTerminal() {
		return
	}
	if pct > 99 {
		pct = 99
	}
	if pct > j.Progress {
		j.Progress = pct
	}
	if stage != "" {
		j.Stage = stage
	}
	if message != "" {
		j.Message = message
	}
	j.UpdatedAt = time.Now()
}

// MarkCompleted finishes the job. Terminal jobs are left untouched.
func (j *Job) MarkCompleted() bool {
	if j.Status.IsTerminal() {
		return false
	}
	now := time.Now()
	j.Status = JobStatusCompleted
	j.Progress = 100
	j.Stage = "completed"
	j.Error = ""
	j.UpdatedAt = now
	j.CompletedAt = &now
	return true
}

// MarkFailed fails the job with an error message. Terminal jobs are left untouched.
func (j *Job) MarkFailed(err string) bool {
	if j.Status.IsTerminal() {
		return false
	}
	now := time.Now()
	j.Status = JobStatusFailed
	j.Stage = "failed"
	j.Error = err
	if j.Progress >= 100 {
		j.Progress = 99
	}
	j.UpdatedAt = now
	j.CompletedAt = &now
	return true
}

// Clone returns a copy that shares no mutable state with j except frame
// pixel buffers, which are never written after a job completes.
func (j *Job) Clone() *Job {
	c := *j
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	if j.Extraction != nil {
		e := *j.Extraction
		if e.Output != nil {
			out := *e.Output
			out.Frames = append([]Frame(nil), e.Output.Frames...)
			e.Output = &out
		}
		c.Extraction = &e
	}
	if j.Encoding != nil {
		e := *j.Encoding
		e.Input.Frames = append([]Frame(nil), j.Encoding.Input.Frames...)
		if e.Output != nil {
			out := *e.Output
			e.Output = &out
		}
		c.Encoding = &e
	}
	return &c
}
