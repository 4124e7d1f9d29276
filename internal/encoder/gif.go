package encoder

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"time"

	"golang.org/x/image/draw"

	"github.com/iconidentify/clipgif/internal/domain"
)

const thumbnailMaxWidth = 160

// palettizer chooses the palette and drawer for each prepared frame.
type palettizer interface {
	palette(i int, img *image.RGBA) color.Palette
	drawer() draw.Drawer
}

// encodePaletted runs the in-process encode shared by the quantize and
// websafe backends.
func encodePaletted(
	ctx context.Context,
	name string,
	frames []domain.Frame,
	opts domain.EncodingOptions,
	p palettizer,
	onProgress ProgressFunc,
) (*domain.EncodingResult, error) {
	if err := validateInput(frames, opts); err != nil {
		return nil, err
	}

	start := time.Now()
	total := len(frames)
	report(onProgress, StagePreparing, 10, 0, total)

	bg := parseBackground(opts.BackgroundColor)
	bounds := image.Rect(0, 0, opts.Width, opts.Height)
	delay := frameDelay(opts.FrameRate)

	anim := &gif.GIF{
		Image:     make([]*image.Paletted, 0, total),
		Delay:     make([]int, 0, total),
		LoopCount: loopCount(opts.Loop),
		Config:    image.Config{Width: opts.Width, Height: opts.Height},
	}

	var first *image.RGBA
	for i, f := range frames {
		if err := checkCancelled(ctx, i); err != nil {
			return nil, err
		}

		img := prepareFrame(f, opts.Width, opts.Height, bg)
		if i == 0 {
			first = img
		}

		paletted := image.NewPaletted(bounds, p.palette(i, img))
		p.drawer().Draw(paletted, bounds, img, image.Point{})

		anim.Image = append(anim.Image, paletted)
		anim.Delay = append(anim.Delay, delay)

		report(onProgress, StageEncoding, encodingPercent(i+1, total), i+1, total)
	}

	if err := checkCancelled(ctx, total); err != nil {
		return nil, err
	}
	report(onProgress, StageFinalizing, 95, total, total)

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrBackendFailure, name, err)
	}

	result := buildResult(name, buf.Bytes(), first, opts, total, time.Since(start))
	report(onProgress, StageCompleted, 100, total, total)
	return result, nil
}

// buildResult fills in metadata, performance and the thumbnail.
func buildResult(name string, data []byte, first *image.RGBA, opts domain.EncodingOptions, frameCount int, elapsed time.Duration) *domain.EncodingResult {
	ms := elapsed.Milliseconds()
	avg := 0.0
	if frameCount > 0 {
		avg = float64(elapsed.Microseconds()) / 1000 / float64(frameCount)
	}

	pixels := int64(opts.Width) * int64(opts.Height)
	// RGBA working frames, paletted copies and the output buffer.
	peak := pixels*4*int64(frameCount) + pixels*int64(frameCount) + int64(len(data))

	result := &domain.EncodingResult{
		Data: data,
		Metadata: domain.EncodingMetadata{
			Width:              opts.Width,
			Height:             opts.Height,
			FrameCount:         frameCount,
			FileSizeBytes:      len(data),
			EncodingTimeMs:     ms,
			AverageFrameTimeMs: avg,
			EncoderName:        name,
		},
		Performance: domain.EncodingPerformance{
			PeakMemoryBytes: peak,
		},
	}
	result.Performance.EfficiencyScore = efficiencyScore(len(data), pixels*int64(frameCount), avg)
	result.Performance.Recommendations = recommendations(result.Metadata, opts)

	if first != nil {
		result.Thumbnail = thumbnail(first)
	}
	return result
}

// efficiencyScore rates an encode 0..100: half for compression (bytes per
// pixel, 0 at one byte per pixel) and half for speed (0 at 100ms per frame).
func efficiencyScore(size int, totalPixels int64, avgFrameMs float64) int {
	if totalPixels == 0 {
		return 0
	}
	compression := 1 - float64(size)/float64(totalPixels)
	speed := 1 - avgFrameMs/100
	score := 50*clamp01(compression) + 50*clamp01(speed)
	return int(score + 0.5)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func recommendations(md domain.EncodingMetadata, opts domain.EncodingOptions) []string {
	var recs []string
	if md.AverageFrameTimeMs > 100 {
		recs = append(recs, "encoding is slow: lower the resolution or frame rate")
	}
	if md.FileSizeBytes > 5<<20 {
		recs = append(recs, "output exceeds 5MB: shorten the clip or lower the quality")
	}
	if opts.FrameRate > 20 {
		recs = append(recs, "frame rates above 20fps rarely improve GIF playback")
	}
	if opts.Width*opts.Height > 640*480 {
		recs = append(recs, "dimensions above 640x480 produce large GIFs")
	}
	return recs
}

// thumbnail encodes a PNG of img no wider than thumbnailMaxWidth.
func thumbnail(img *image.RGBA) []byte {
	b := img.Bounds()
	var src image.Image = img
	if b.Dx() > thumbnailMaxWidth {
		h := b.Dy() * thumbnailMaxWidth / b.Dx()
		if h < 1 {
			h = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, thumbnailMaxWidth, h))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		return nil
	}
	return buf.Bytes()
}
