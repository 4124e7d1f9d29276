package encoder

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/iconidentify/clipgif/internal/domain"
	"github.com/iconidentify/clipgif/pkg/ffmpeg"
)

// FFmpegName identifies the ffmpeg palettegen backend.
const FFmpegName = "ffmpeg"

// gifRunner is the part of ffmpeg.VideoProcessor the backend needs.
type gifRunner interface {
	EncodeGIF(ctx context.Context, cfg ffmpeg.EncodeGIFConfig, frames [][]byte) ([]byte, error)
	GetVersion(ctx context.Context) (string, error)
}

// FFmpegEncoder pipes frames through ffmpeg's two-pass palette filters. It
// gives the best quality and is only available when ffmpeg is installed.
type FFmpegEncoder struct {
	newRunner func() (gifRunner, error)

	once   sync.Once
	runner gifRunner
	err    error
}

// NewFFmpegEncoder returns a backend that resolves the given binaries lazily.
func NewFFmpegEncoder(ffmpegBin, ffprobeBin string) *FFmpegEncoder {
	return &FFmpegEncoder{
		newRunner: func() (gifRunner, error) {
			return ffmpeg.NewVideoProcessorWithPaths(ffmpegBin, ffprobeBin)
		},
	}
}

func (e *FFmpegEncoder) Name() string { return FFmpegName }

func (e *FFmpegEncoder) Characteristics() domain.Characteristics {
	return domain.Characteristics{
		Speed:          "medium",
		Quality:        "high",
		MemoryUsage:    "high",
		BrowserSupport: "limited",
	}
}

func (e *FFmpegEncoder) resolve() (gifRunner, error) {
	e.once.Do(func() {
		e.runner, e.err = e.newRunner()
	})
	return e.runner, e.err
}

// IsAvailable reports whether the ffmpeg binary was found.
func (e *FFmpegEncoder) IsAvailable() bool {
	_, err := e.resolve()
	return err == nil
}

// Initialize runs ffmpeg -version to confirm the binary executes.
func (e *FFmpegEncoder) Initialize(ctx context.Context) error {
	runner, err := e.resolve()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnsupportedEnvironment, err)
	}
	if _, err := runner.GetVersion(ctx); err != nil {
		return fmt.Errorf("%w: ffmpeg -version: %v", domain.ErrUnsupportedEnvironment, err)
	}
	return nil
}

func (e *FFmpegEncoder) Encode(ctx context.Context, frames []domain.Frame, opts domain.EncodingOptions, onProgress ProgressFunc) (*domain.EncodingResult, error) {
	runner, err := e.resolve()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnsupportedEnvironment, err)
	}
	if err := validateInput(frames, opts); err != nil {
		return nil, err
	}

	start := time.Now()
	total := len(frames)
	report(onProgress, StagePreparing, 10, 0, total)

	bg := parseBackground(opts.BackgroundColor)
	raw := make([][]byte, total)
	var first *image.RGBA
	for i, f := range frames {
		if err := checkCancelled(ctx, i); err != nil {
			return nil, err
		}
		img := prepareFrame(f, opts.Width, opts.Height, bg)
		if i == 0 {
			first = img
		}
		raw[i] = img.Pix
	}

	dither := "none"
	if opts.Dithering {
		dither = "floyd_steinberg"
	}

	data, err := runner.EncodeGIF(ctx, ffmpeg.EncodeGIFConfig{
		Width:     opts.Width,
		Height:    opts.Height,
		FrameRate: opts.FrameRate,
		MaxColors: colorsForQuality(opts.Quality),
		Dither:    dither,
		Loop:      opts.Loop,
		OnFrame: func(written int) {
			report(onProgress, StageEncoding, encodingPercent(written, total), written, total)
		},
	}, raw)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: %v", domain.ErrCancelled, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrBackendFailure, FFmpegName, err)
	}

	report(onProgress, StageFinalizing, 95, total, total)
	result := buildResult(FFmpegName, data, first, opts, total, time.Since(start))
	report(onProgress, StageCompleted, 100, total, total)
	return result, nil
}
