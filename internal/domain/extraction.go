package domain

import "fmt"

// MaxFrameRate is the highest frame rate accepted for extraction or encoding.
const MaxFrameRate = 60

// ExtractionRequest is the input of an extraction job.
type ExtractionRequest struct {
	// Source is a local path or an http(s) URL. Empty means the frames are
	// pulled from the browser context that owns the video element.
	Source    string  `json:"source,omitempty"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	FrameRate float64 `json:"frame_rate"`
	Quality   Quality `json:"quality"`
	MaxWidth  int     `json:"max_width,omitempty"`
	MaxHeight int     `json:"max_height,omitempty"`

	// Processing, when set, runs every extracted frame through the canvas
	// pipeline before the job completes.
	Processing *Processing `json:"processing,omitempty"`
}

// Duration returns the length of the requested window in seconds.
func (r ExtractionRequest) Duration() float64 {
	return r.EndTime - r.StartTime
}

// Validate checks the time window and frame rate.
func (r ExtractionRequest) Validate() error {
	if r.StartTime < 0 || r.EndTime <= r.StartTime {
		return fmt.Errorf("%w: start=%v end=%v", ErrInvalidTimeRange, r.StartTime, r.EndTime)
	}
	if r.FrameRate <= 0 || r.FrameRate > MaxFrameRate {
		return fmt.Errorf("%w: %v", ErrInvalidFrameRate, r.FrameRate)
	}
	if r.MaxWidth < 0 || r.MaxHeight < 0 {
		return fmt.Errorf("%w: max %dx%d", ErrInvalidDimensions, r.MaxWidth, r.MaxHeight)
	}
	return r.Quality.Validate()
}

// Processing configures the crop/resize/filter pass.
type Processing struct {
	Crop           *Rect  `json:"crop,omitempty"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
	Preset         string `json:"preset,omitempty"`
	Mode           string `json:"mode,omitempty"` // fit, fill, crop, stretch
	Brightness     int    `json:"brightness,omitempty"`
	Contrast       int    `json:"contrast,omitempty"`
	Saturation     int    `json:"saturation,omitempty"`
	DisableFilters bool   `json:"disable_filters,omitempty"`
	Sharpen        bool   `json:"sharpen,omitempty"`
}

// ExtractionOutput is populated when an extraction job completes.
type ExtractionOutput struct {
	Frames     []Frame    `json:"frames"`
	Dimensions Dimensions `json:"dimensions"`
	FrameRate  float64    `json:"frame_rate"`
	Synthetic  bool       `json:"synthetic"` // placeholder frames after a delegation failure
	SourceInfo string     `json:"source_info,omitempty"`
}

// DelegatedRequest asks the context that owns the video element to extract
// frames on the server's behalf.
type DelegatedRequest struct {
	ID           string  `json:"id"`
	StartTime    float64 `json:"start_time"`
	EndTime      float64 `json:"end_time"`
	FrameRate    float64 `json:"frame_rate"`
	TargetWidth  int     `json:"target_width"`
	TargetHeight int     `json:"target_height"`
	Quality      Quality `json:"quality"`
}

// DelegatedResponse is the reply to a DelegatedRequest.
type DelegatedResponse struct {
	ID     string  `json:"id"`
	Frames []Frame `json:"frames,omitempty"`
	Error  string  `json:"error,omitempty"`
}
