// Package encoder turns frame sequences into animated GIFs through one of
// several interchangeable backends.
package encoder

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"

	"golang.org/x/image/draw"

	"github.com/iconidentify/clipgif/internal/domain"
)

// Stage is a coarse step of an encode.
type Stage string

const (
	StagePreparing  Stage = "preparing"
	StageEncoding   Stage = "encoding"
	StageFinalizing Stage = "finalizing"
	StageCompleted  Stage = "completed"
)

// Progress is reported through ProgressFunc during an encode.
type Progress struct {
	Stage       Stage
	Percent     int
	Frame       int
	TotalFrames int
}

// ProgressFunc receives encode progress. It may be nil.
type ProgressFunc func(Progress)

// Encoder is a GIF encoding backend.
type Encoder interface {
	// Name is the identifier used in preferences and results.
	Name() string

	// Characteristics is the static ranking used for selection.
	Characteristics() domain.Characteristics

	// IsAvailable is a cheap environment probe.
	IsAvailable() bool

	// Initialize performs lazy setup. It returns an error wrapping
	// domain.ErrUnsupportedEnvironment when the host lacks what the backend needs.
	Initialize(ctx context.Context) error

	// Encode produces a GIF. ctx is checked at every frame boundary.
	Encode(ctx context.Context, frames []domain.Frame, opts domain.EncodingOptions, onProgress ProgressFunc) (*domain.EncodingResult, error)
}

func report(fn ProgressFunc, stage Stage, pct, frame, total int) {
	if fn == nil {
		return
	}
	fn(Progress{Stage: stage, Percent: pct, Frame: frame, TotalFrames: total})
}

// encodingPercent maps frame i of n onto the 30..90 band.
func encodingPercent(i, n int) int {
	if n == 0 {
		return 90
	}
	return 30 + 60*i/n
}

func validateInput(frames []domain.Frame, opts domain.EncodingOptions) error {
	if len(frames) == 0 {
		return domain.ErrNoFrames
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	for i, f := range frames {
		if !f.Valid() {
			return fmt.Errorf("%w: frame %d has %d bytes for %dx%d",
				domain.ErrInvalidInput, i, len(f.Pixels), f.Width, f.Height)
		}
	}
	return nil
}

func checkCancelled(ctx context.Context, frame int) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w at frame %d: %v", domain.ErrCancelled, frame, err)
	}
	return nil
}

// frameDelay converts a frame rate into GIF delay units (1/100 s). Browsers
// treat delays below 2 as 10, so 2 is the floor.
func frameDelay(fps float64) int {
	d := int(math.Round(100 / fps))
	if d < 2 {
		return 2
	}
	return d
}

// loopCount maps the loop flag to image/gif semantics: 0 repeats forever,
// -1 plays once.
func loopCount(loop bool) int {
	if loop {
		return 0
	}
	return -1
}

// prepareFrame returns the frame as an RGBA image of exactly width x height,
// flattened onto bg when bg is non-nil.
func prepareFrame(f domain.Frame, width, height int, bg color.Color) *image.RGBA {
	src := f.RGBA()
	if f.Width == width && f.Height == height && bg == nil {
		return src
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	op := draw.Src
	if bg != nil {
		draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
		op = draw.Over
	}
	if f.Width == width && f.Height == height {
		draw.Draw(dst, dst.Bounds(), src, image.Point{}, op)
	} else {
		draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), op, nil)
	}
	return dst
}

// parseBackground parses "#rgb" or "#rrggbb". Empty or malformed values
// return nil.
func parseBackground(s string) color.Color {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return nil
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return nil
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}

// colorsForQuality maps a quality to a palette size.
func colorsForQuality(q domain.Quality) int {
	switch q.Tier() {
	case domain.QualityLow:
		return 64
	case domain.QualityMedium:
		return 128
	default:
		return 256
	}
}
