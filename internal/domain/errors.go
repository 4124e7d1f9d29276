package domain

import "errors"

// Domain errors.
var (
	// ErrJobNotFound is returned when a job cannot be found.
	ErrJobNotFound = errors.New("job not found")

	// ErrNoJobs is returned when there are no jobs to process.
	ErrNoJobs = errors.New("no jobs available")

	// ErrCapacityExceeded is returned when too many jobs are already in flight.
	ErrCapacityExceeded = errors.New("too many concurrent jobs")

	// ErrInvalidInput is the parent of every request validation error.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTimeRange is returned for an empty or negative time window.
	ErrInvalidTimeRange = wrapInvalid("invalid time range")

	// ErrInvalidFrameRate is returned for a frame rate outside (0, 60].
	ErrInvalidFrameRate = wrapInvalid("invalid frame rate")

	// ErrInvalidCrop is returned when a crop rectangle has no area inside the frame.
	ErrInvalidCrop = wrapInvalid("invalid crop rectangle")

	// ErrInvalidDimensions is returned for non-positive output dimensions.
	ErrInvalidDimensions = wrapInvalid("invalid dimensions")

	// ErrUnsupportedEnvironment is returned when a required host facility is absent.
	ErrUnsupportedEnvironment = errors.New("unsupported in this environment")

	// ErrTimeout is the parent of every timeout error.
	ErrTimeout = errors.New("timeout")

	// ErrSeekTimeout is returned when a seek never settles.
	ErrSeekTimeout = wrapTimeout("seek timeout")

	// ErrJobTimeout is the error recorded when polling gives up on a job.
	ErrJobTimeout = wrapTimeout("Job timeout")

	// ErrDelegationTimeout is returned when a cross-context round trip expires.
	ErrDelegationTimeout = wrapTimeout("extraction delegation timed out")

	// ErrCancelled is returned when the caller cancels a job.
	ErrCancelled = errors.New("cancelled")

	// ErrBackendFailure is returned when an encoder library fails.
	ErrBackendFailure = errors.New("encoder backend failure")

	// ErrNoEncoderAvailable is returned when every encoder candidate is exhausted.
	ErrNoEncoderAvailable = errors.New("no encoder available")

	// ErrFormatUnsupported is returned for output formats other than GIF.
	ErrFormatUnsupported = errors.New("output format not implemented")

	// ErrNoFrames is returned when an encode is requested with no frames.
	ErrNoFrames = wrapInvalid("no frames to encode")

	// ErrSourceUnavailable is returned when a remote video source refuses access.
	ErrSourceUnavailable = errors.New("video source unavailable")

	// ErrRateLimited is returned when a remote video source throttles downloads.
	ErrRateLimited = errors.New("rate limited by video source")

	// ErrSourceTooLarge is returned when a remote video exceeds the size limit.
	ErrSourceTooLarge = wrapInvalid("video source too large")
)

// kindError attaches a message to a parent kind so errors.Is matches both.
type kindError struct {
	msg    string
	parent error
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.parent }

func wrapInvalid(msg string) error { return &kindError{msg: msg, parent: ErrInvalidInput} }

func wrapTimeout(msg string) error { return &kindError{msg: msg, parent: ErrTimeout} }

// JobError wraps an error with job context.
type JobError struct {
	JobID JobID
	Op    string
	Err   error
}

func (e *JobError) Error() string {
	if e.JobID != "" {
		return e.Op + " [" + e.JobID.String() + "]: " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// NewJobError creates a new JobError.
func NewJobError(jobID JobID, op string, err error) *JobError {
	return &JobError{
		JobID: jobID,
		Op:    op,
		Err:   err,
	}
}
