package encoder

import (
	"context"
	"image"
	"image/color"

	"github.com/ericpauley/go-quantize/quantize"
	"golang.org/x/image/draw"

	"github.com/iconidentify/clipgif/internal/domain"
)

// QuantizeName identifies the median-cut backend.
const QuantizeName = "quantize"

const (
	paletteSampleFrames = 8
	paletteSampleWidth  = 128
)

// QuantizeEncoder builds adaptive palettes with median-cut quantization.
type QuantizeEncoder struct{}

// NewQuantizeEncoder returns the median-cut backend.
func NewQuantizeEncoder() *QuantizeEncoder {
	return &QuantizeEncoder{}
}

func (e *QuantizeEncoder) Name() string { return QuantizeName }

func (e *QuantizeEncoder) Characteristics() domain.Characteristics {
	return domain.Characteristics{
		Speed:          "fast",
		Quality:        "medium",
		MemoryUsage:    "medium",
		BrowserSupport: "wide",
	}
}

func (e *QuantizeEncoder) IsAvailable() bool { return true }

func (e *QuantizeEncoder) Initialize(ctx context.Context) error { return nil }

// Encode quantizes a shared palette from a sample of frames, or one palette
// per frame when OptimizeColors is set.
func (e *QuantizeEncoder) Encode(ctx context.Context, frames []domain.Frame, opts domain.EncodingOptions, onProgress ProgressFunc) (*domain.EncodingResult, error) {
	p := &medianCut{
		colors:   colorsForQuality(opts.Quality),
		perFrame: opts.OptimizeColors,
		dither:   opts.Dithering,
	}
	if !p.perFrame && len(frames) > 0 {
		if err := validateInput(frames, opts); err != nil {
			return nil, err
		}
		p.global = p.quantize(sampleMosaic(frames))
	}
	return encodePaletted(ctx, QuantizeName, frames, opts, p, onProgress)
}

type medianCut struct {
	colors   int
	perFrame bool
	dither   bool
	global   color.Palette
}

func (m *medianCut) palette(i int, img *image.RGBA) color.Palette {
	if m.perFrame {
		return m.quantize(img)
	}
	return m.global
}

func (m *medianCut) drawer() draw.Drawer {
	if m.dither {
		return draw.FloydSteinberg
	}
	return draw.Src
}

func (m *medianCut) quantize(img image.Image) color.Palette {
	q := quantize.MedianCutQuantizer{Aggregation: quantize.Mean}
	pal := q.Quantize(make(color.Palette, 0, m.colors), img)
	if len(pal) == 0 {
		pal = color.Palette{color.Black}
	}
	return pal
}

// sampleMosaic stacks evenly spaced, downscaled frames into one image so a
// single quantization sees colors from the whole clip.
func sampleMosaic(frames []domain.Frame) image.Image {
	n := len(frames)
	samples := paletteSampleFrames
	if n < samples {
		samples = n
	}

	w := frames[0].Width
	if w > paletteSampleWidth {
		w = paletteSampleWidth
	}
	h := frames[0].Height * w / frames[0].Width
	if h < 1 {
		h = 1
	}

	mosaic := image.NewRGBA(image.Rect(0, 0, w, h*samples))
	for s := 0; s < samples; s++ {
		f := frames[s*n/samples]
		dr := image.Rect(0, s*h, w, (s+1)*h)
		src := f.RGBA()
		draw.ApproxBiLinear.Scale(mosaic, dr, src, src.Bounds(), draw.Src, nil)
	}
	return mosaic
}
