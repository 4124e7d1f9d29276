package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Quality is a coarse tier (low, medium, high) or a numeric level 1..100.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// Level maps the quality to 1..100. Unknown values map to medium.
func (q Quality) Level() int {
	switch q {
	case QualityLow:
		return 30
	case QualityMedium, "":
		return 60
	case QualityHigh:
		return 90
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(q)))
	if err != nil {
		return 60
	}
	if n < 1 {
		return 1
	}
	if n > 100 {
		return 100
	}
	return n
}

// Tier collapses the quality to low, medium or high.
func (q Quality) Tier() Quality {
	switch l := q.Level(); {
	case l < 45:
		return QualityLow
	case l < 75:
		return QualityMedium
	default:
		return QualityHigh
	}
}

// Validate rejects values that are neither a tier nor a number.
func (q Quality) Validate() error {
	switch q {
	case "", QualityLow, QualityMedium, QualityHigh:
		return nil
	}
	if _, err := strconv.Atoi(string(q)); err != nil {
		return fmt.Errorf("%w: unknown quality %q", ErrInvalidInput, string(q))
	}
	return nil
}

// UnmarshalJSON accepts both "high" and 85.
func (q *Quality) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*q = Quality(strings.ToLower(s))
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("quality must be a string or number: %w", err)
	}
	*q = Quality(strconv.Itoa(n))
	return nil
}

// EncodingOptions fully specifies one encode call.
type EncodingOptions struct {
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	FrameRate       float64 `json:"frame_rate"`
	Quality         Quality `json:"quality"`
	Loop            bool    `json:"loop"`
	Dithering       bool    `json:"dithering,omitempty"`
	OptimizeColors  bool    `json:"optimize_colors,omitempty"`
	BackgroundColor string  `json:"background_color,omitempty"`
}

// Validate checks that the options can drive an encoder.
func (o EncodingOptions) Validate() error {
	if o.Width <= 0 || o.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, o.Width, o.Height)
	}
	if o.FrameRate <= 0 || o.FrameRate > 60 {
		return fmt.Errorf("%w: %v", ErrInvalidFrameRate, o.FrameRate)
	}
	return o.Quality.Validate()
}

// EncodingMetadata describes a finished GIF.
type EncodingMetadata struct {
	Width              int     `json:"width"`
	Height             int     `json:"height"`
	FrameCount         int     `json:"frame_count"`
	FileSizeBytes      int     `json:"file_size_bytes"`
	EncodingTimeMs     int64   `json:"encoding_time_ms"`
	AverageFrameTimeMs float64 `json:"average_frame_time_ms"`
	EncoderName        string  `json:"encoder_name"`
}

// EncodingPerformance summarizes how well an encode went.
type EncodingPerformance struct {
	EfficiencyScore int      `json:"efficiency_score"`
	Recommendations []string `json:"recommendations,omitempty"`
	PeakMemoryBytes int64    `json:"peak_memory_bytes"`
}

// EncodingResult is produced once per successful encode.
type EncodingResult struct {
	Data        []byte              `json:"-"`
	Thumbnail   []byte              `json:"-"`
	Metadata    EncodingMetadata    `json:"metadata"`
	Performance EncodingPerformance `json:"performance"`
}

// Characteristics ranks a backend for auto-selection.
type Characteristics struct {
	Speed          string `json:"speed"`
	Quality        string `json:"quality"`
	MemoryUsage    string `json:"memory_usage"`
	BrowserSupport string `json:"browser_support"`
}

// EncodingRequest is the input of an encoding job.
type EncodingRequest struct {
	Frames   []Frame         `json:"frames"`
	Options  EncodingOptions `json:"options"`
	Encoder  string          `json:"encoder,omitempty"`  // auto or a backend name
	Fallback string          `json:"fallback,omitempty"` // backend tried when Encoder fails
	Metadata OutputMetadata  `json:"metadata,omitempty"`
}

// OutputMetadata is caller-supplied context carried through to the result.
type OutputMetadata struct {
	Title     string  `json:"title,omitempty"`
	VideoID   string  `json:"video_id,omitempty"`
	StartTime float64 `json:"start_time,omitempty"`
	EndTime   float64 `json:"end_time,omitempty"`
}
