package encoder

import (
	"context"
	"image"
	"image/color"
	"image/color/palette"

	"golang.org/x/image/draw"

	"github.com/iconidentify/clipgif/internal/domain"
)

// WebSafeName identifies the fixed-palette backend.
const WebSafeName = "websafe"

// WebSafeEncoder maps every frame onto the 216-color web-safe palette. It
// never fails to initialize and is the last resort of the selector.
type WebSafeEncoder struct{}

// NewWebSafeEncoder returns the fixed-palette backend.
func NewWebSafeEncoder() *WebSafeEncoder {
	return &WebSafeEncoder{}
}

func (e *WebSafeEncoder) Name() string { return WebSafeName }

func (e *WebSafeEncoder) Characteristics() domain.Characteristics {
	return domain.Characteristics{
		Speed:          "fast",
		Quality:        "low",
		MemoryUsage:    "low",
		BrowserSupport: "universal",
	}
}

func (e *WebSafeEncoder) IsAvailable() bool { return true }

func (e *WebSafeEncoder) Initialize(ctx context.Context) error { return nil }

func (e *WebSafeEncoder) Encode(ctx context.Context, frames []domain.Frame, opts domain.EncodingOptions, onProgress ProgressFunc) (*domain.EncodingResult, error) {
	return encodePaletted(ctx, WebSafeName, frames, opts, webSafe{dither: opts.Dithering}, onProgress)
}

type webSafe struct {
	dither bool
}

func (w webSafe) palette(int, *image.RGBA) color.Palette { return palette.WebSafe }

func (w webSafe) drawer() draw.Drawer {
	if w.dither {
		return draw.FloydSteinberg
	}
	return draw.Src
}
