package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/iconidentify/clipgif/internal/canvas"
	"github.com/iconidentify/clipgif/internal/domain"
)

// Defaults for Config.
const (
	DefaultSeekTimeout       = 2 * time.Second
	DefaultFrameBudget       = 100 * time.Millisecond
	DefaultDelegationTimeout = 60 * time.Second
	DefaultDelegatedWidth    = 640
	DefaultDelegatedHeight   = 360
)

// Config holds extractor timing settings.
type Config struct {
	SeekTimeout       time.Duration
	FrameBudget       time.Duration
	DelegationTimeout time.Duration
}

// ProgressFunc is called after every extracted frame.
type ProgressFunc func(done, total int)

// Extractor pulls frames from a Source, or through a Bridge when the video
// lives in another context.
type Extractor struct {
	cfg    Config
	bridge Bridge
	logger *slog.Logger
}

// NewExtractor creates an extractor. bridge may be nil, in which case every
// delegated extraction produces synthetic frames.
func NewExtractor(cfg Config, bridge Bridge, logger *slog.Logger) *Extractor {
	if cfg.SeekTimeout <= 0 {
		cfg.SeekTimeout = DefaultSeekTimeout
	}
	if cfg.FrameBudget <= 0 {
		cfg.FrameBudget = DefaultFrameBudget
	}
	if cfg.DelegationTimeout <= 0 {
		cfg.DelegationTimeout = DefaultDelegationTimeout
	}
	return &Extractor{cfg: cfg, bridge: bridge, logger: logger}
}

// Extract seeks through [StartTime, EndTime) at FrameRate and returns the
// frames in timestamp order. The source's playback state is restored on
// every return path. Cancellation discards all frames.
func (e *Extractor) Extract(ctx context.Context, src Source, req domain.ExtractionRequest, onProgress ProgressFunc) (out *domain.ExtractionOutput, err error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	native := src.Size()
	if native.Width <= 0 || native.Height <= 0 {
		return nil, fmt.Errorf("%w: source is %dx%d", domain.ErrInvalidDimensions, native.Width, native.Height)
	}
	dims := Dimensions(native.Width, native.Height, req.Quality, req.MaxWidth, req.MaxHeight)
	total := FrameCount(req.Duration(), req.FrameRate)

	saved := src.State()
	src.Pause()
	defer e.restore(src, saved)

	logger := e.logger.With("frames", total, "width", dims.Width, "height", dims.Height)
	logger.Debug("extracting frames", "start", req.StartTime, "end", req.EndTime, "fps", req.FrameRate)

	duration := src.Duration()
	frames := make([]domain.Frame, 0, total)
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w at frame %d: %v", domain.ErrCancelled, i, err)
		}

		ts := req.StartTime + float64(i)/req.FrameRate
		if duration > 0 && ts > duration {
			ts = duration
		}

		began := time.Now()
		if err := e.awaitSeek(ctx, src, ts); err != nil {
			return nil, err
		}

		img, err := src.CurrentFrame()
		if err != nil {
			return nil, fmt.Errorf("read frame %d at %.3fs: %w", i, ts, err)
		}
		rgba := canvas.Draw(img, dims.Width, dims.Height, req.Quality)
		frames = append(frames, domain.Frame{
			Width:     dims.Width,
			Height:    dims.Height,
			Pixels:    rgba.Pix,
			Timestamp: ts,
			Index:     i,
		})

		if took := time.Since(began); took > e.cfg.FrameBudget {
			logger.Warn("slow frame extraction", "index", i, "duration_ms", took.Milliseconds())
		}
		if onProgress != nil {
			onProgress(i+1, total)
		}
	}

	return &domain.ExtractionOutput{
		Frames:     frames,
		Dimensions: dims,
		FrameRate:  req.FrameRate,
	}, nil
}

// awaitSeek waits for the seek to settle. A seek that never settles is
// logged and the current frame is used anyway.
func (e *Extractor) awaitSeek(ctx context.Context, src Source, ts float64) error {
	timer := time.NewTimer(e.cfg.SeekTimeout)
	defer timer.Stop()

	select {
	case <-src.Seek(ctx, ts):
		return nil
	case <-timer.C:
		e.logger.Warn("seek did not settle, using current frame",
			"timestamp", ts, "error", domain.ErrSeekTimeout)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w during seek to %.3fs: %v", domain.ErrCancelled, ts, ctx.Err())
	}
}

func (e *Extractor) restore(src Source, saved PlaybackState) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.SeekTimeout)
	defer cancel()

	select {
	case <-src.Seek(ctx, saved.Time):
	case <-ctx.Done():
		e.logger.Warn("restore seek did not settle", "timestamp", saved.Time)
	}
	if !saved.Paused {
		src.Play()
	}
}

// DelegatedSize is the target size sent with a delegated request.
func DelegatedSize(req domain.ExtractionRequest) domain.Dimensions {
	w, h := req.MaxWidth, req.MaxHeight
	if w <= 0 {
		w = DefaultDelegatedWidth
	}
	if h <= 0 {
		h = DefaultDelegatedHeight
	}
	return domain.Dimensions{Width: floorEven(float64(w)), Height: floorEven(float64(h))}
}

// ExtractDelegated asks the bridge for frames. If the round trip fails or
// times out, deterministic synthetic frames are returned instead and the
// output is flagged Synthetic. Cancellation of ctx itself is never masked.
func (e *Extractor) ExtractDelegated(ctx context.Context, req domain.ExtractionRequest, onProgress ProgressFunc) (*domain.ExtractionOutput, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	size := DelegatedSize(req)
	total := FrameCount(req.Duration(), req.FrameRate)
	dreq := domain.DelegatedRequest{
		ID:           uuid.New().String(),
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		FrameRate:    req.FrameRate,
		TargetWidth:  size.Width,
		TargetHeight: size.Height,
		Quality:      req.Quality,
	}
	logger := e.logger.With("request_id", dreq.ID)

	var reason error
	if e.bridge == nil {
		reason = errors.New("no extraction bridge configured")
	} else {
		dctx, cancel := context.WithTimeout(ctx, e.cfg.DelegationTimeout)
		frames, err := e.bridge.RoundTrip(dctx, dreq)
		cancel()

		switch {
		case ctx.Err() != nil:
			return nil, fmt.Errorf("%w: delegated extraction: %v", domain.ErrCancelled, ctx.Err())
		case err == nil:
			out, verr := delegatedOutput(frames, req.FrameRate)
			if verr != nil {
				reason = verr
				break
			}
			if onProgress != nil {
				onProgress(len(out.Frames), len(out.Frames))
			}
			return out, nil
		case errors.Is(err, context.DeadlineExceeded):
			reason = fmt.Errorf("%w after %s", domain.ErrDelegationTimeout, e.cfg.DelegationTimeout)
		default:
			reason = err
		}
	}

	logger.Warn("delegated extraction failed, using synthetic frames", "error", reason, "frames", total)

	frames := Synthesize(total, size.Width, size.Height, req.StartTime, req.FrameRate)
	if onProgress != nil {
		onProgress(total, total)
	}
	return &domain.ExtractionOutput{
		Frames:     frames,
		Dimensions: size,
		FrameRate:  req.FrameRate,
		Synthetic:  true,
		SourceInfo: "synthetic: " + reason.Error(),
	}, nil
}

// delegatedOutput validates frames returned across the bridge and orders
// them by timestamp.
func delegatedOutput(frames []domain.Frame, fps float64) (*domain.ExtractionOutput, error) {
	if len(frames) == 0 {
		return nil, errors.New("bridge returned no frames")
	}
	for i, f := range frames {
		if !f.Valid() {
			return nil, fmt.Errorf("bridge frame %d is malformed (%dx%d, %d bytes)", i, f.Width, f.Height, len(f.Pixels))
		}
		if f.Width != frames[0].Width || f.Height != frames[0].Height {
			return nil, fmt.Errorf("bridge frame %d is %dx%d, want %dx%d", i, f.Width, f.Height, frames[0].Width, frames[0].Height)
		}
	}

	sorted := append([]domain.Frame(nil), frames...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })
	for i := range sorted {
		sorted[i].Index = i
	}

	return &domain.ExtractionOutput{
		Frames:     sorted,
		Dimensions: sorted[0].Size(),
		FrameRate:  fps,
		SourceInfo: "delegated",
	}, nil
}
