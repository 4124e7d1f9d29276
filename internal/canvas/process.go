// Package canvas crops, resizes and color-adjusts RGBA frames into
// encoder-ready buffers.
package canvas

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"time"

	"golang.org/x/image/draw"

	"github.com/iconidentify/clipgif/internal/domain"
)

// yieldEvery is how many frames ProcessBatch handles between scheduler yields.
const yieldEvery = 10

// Options configures Process.
type Options struct {
	Crop    *domain.Rect
	Width   int
	Height  int
	Mode    Mode
	Quality domain.Quality

	Filters        Filters
	DisableFilters bool

	// Sharpen, when set, runs an unsharp mask after resizing.
	Sharpen *Unsharp
}

// OptionsFromProcessing converts a request processing block into Options. A preset
// overrides Height and clears Width so the aspect ratio is preserved.
func OptionsFromProcessing(p *domain.Processing, quality domain.Quality) (Options, error) {
	opts := Options{Mode: ModeFit, Quality: quality}
	if p == nil {
		return opts, nil
	}

	mode, err := ParseMode(p.Mode)
	if err != nil {
		return Options{}, err
	}

	opts.Crop = p.Crop
	opts.Width = p.Width
	opts.Height = p.Height
	opts.Mode = mode
	opts.Filters = Filters{
		Brightness: p.Brightness,
		Contrast:   p.Contrast,
		Saturation: p.Saturation,
	}
	opts.DisableFilters = p.DisableFilters

	if p.Preset != "" {
		preset, ok := LookupPreset(p.Preset)
		if !ok {
			return Options{}, fmt.Errorf("%w: unknown preset %q", domain.ErrInvalidInput, p.Preset)
		}
		opts.Width = 0
		opts.Height = preset.Height
	}
	if p.Sharpen {
		u := DefaultUnsharp
		opts.Sharpen = &u
	}
	return opts, nil
}

// Process crops, resizes and filters one frame, in that order.
func Process(f domain.Frame, opts Options) (domain.ProcessedFrame, error) {
	start := time.Now()

	if !f.Valid() {
		return domain.ProcessedFrame{}, fmt.Errorf("%w: frame %d is %dx%d with %d bytes",
			domain.ErrInvalidDimensions, f.Index, f.Width, f.Height, len(f.Pixels))
	}
	if opts.Width < 0 || opts.Height < 0 {
		return domain.ProcessedFrame{}, fmt.Errorf("%w: target %dx%d",
			domain.ErrInvalidDimensions, opts.Width, opts.Height)
	}

	src := f.RGBA()
	if opts.Crop != nil {
		r, err := clampCrop(*opts.Crop, f.Width, f.Height)
		if err != nil {
			return domain.ProcessedFrame{}, err
		}
		src = src.SubImage(r).(*image.RGBA)
	}

	sb := src.Bounds()
	mode := opts.Mode
	if mode == "" {
		mode = ModeFit
	}
	size := TargetSize(sb.Dx(), sb.Dy(), opts.Width, opts.Height, mode)

	if mode == ModeFill || mode == ModeCrop {
		x, y, w, h := coverRect(sb.Dx(), sb.Dy(), size.Width, size.Height)
		r := image.Rect(sb.Min.X+x, sb.Min.Y+y, sb.Min.X+x+w, sb.Min.Y+y+h)
		src = src.SubImage(r).(*image.RGBA)
	}

	out := Resample(src, size.Width, size.Height, Scaler(opts.Quality))

	if opts.Sharpen != nil {
		opts.Sharpen.Apply(out)
	}
	if !opts.DisableFilters && !opts.Filters.IsZero() {
		opts.Filters.Apply(out.Pix)
	}

	return domain.ProcessedFrame{
		Frame:          frameFrom(out, f.Timestamp, f.Index),
		Original:       f.Size(),
		Processed:      size,
		ProcessingTime: time.Since(start),
	}, nil
}

// BatchProgress is reported after every processed frame.
type BatchProgress func(done, total int)

// ProcessBatch processes frames in order. Cancellation is checked before
// every frame and discards all results.
func ProcessBatch(ctx context.Context, frames []domain.Frame, opts Options, onProgress BatchProgress) ([]domain.ProcessedFrame, error) {
	out := make([]domain.ProcessedFrame, 0, len(frames))
	for i, f := range frames {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w at frame %d: %v", domain.ErrCancelled, i, err)
		}

		pf, err := Process(f, opts)
		if err != nil {
			return nil, fmt.Errorf("process frame %d: %w", i, err)
		}
		out = append(out, pf)

		if onProgress != nil {
			onProgress(i+1, len(frames))
		}
		if (i+1)%yieldEvery == 0 {
			runtime.Gosched()
		}
	}
	return out, nil
}

// Frames strips processing details from a batch result.
func Frames(processed []domain.ProcessedFrame) []domain.Frame {
	out := make([]domain.Frame, len(processed))
	for i, p := range processed {
		out[i] = p.Frame
	}
	return out
}

// Crop copies the clamped rectangle r out of f.
func Crop(f domain.Frame, r domain.Rect) (domain.Frame, error) {
	rect, err := clampCrop(r, f.Width, f.Height)
	if err != nil {
		return domain.Frame{}, err
	}
	sub := f.RGBA().SubImage(rect).(*image.RGBA)
	return domain.FrameFromImage(sub, f.Timestamp, f.Index), nil
}

// clampCrop intersects r with the frame bounds and rejects empty results.
func clampCrop(r domain.Rect, w, h int) (image.Rectangle, error) {
	if r.Width <= 0 || r.Height <= 0 {
		return image.Rectangle{}, fmt.Errorf("%w: %dx%d", domain.ErrInvalidCrop, r.Width, r.Height)
	}
	rect := image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height).Intersect(image.Rect(0, 0, w, h))
	if rect.Empty() {
		return image.Rectangle{}, fmt.Errorf("%w: (%d,%d %dx%d) outside %dx%d frame",
			domain.ErrInvalidCrop, r.X, r.Y, r.Width, r.Height, w, h)
	}
	return rect, nil
}

// frameFrom wraps a freshly allocated image without copying.
func frameFrom(img *image.RGBA, timestamp float64, index int) domain.Frame {
	b := img.Bounds()
	if b.Min != (image.Point{}) || img.Stride != b.Dx()*4 {
		return domain.FrameFromImage(img, timestamp, index)
	}
	return domain.Frame{
		Width:     b.Dx(),
		Height:    b.Dy(),
		Pixels:    img.Pix[:b.Dx()*b.Dy()*4],
		Timestamp: timestamp,
		Index:     index,
	}
}

// Draw scales src onto a new w x h image with the quality-tier scaler.
// It is the single-step path used by frame extraction.
func Draw(src image.Image, w, h int, q domain.Quality) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	Scaler(q).Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}
