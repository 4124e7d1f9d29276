package domain

import (
	"image"
	"time"
)

// Dimensions is a width and height in pixels.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Frame is one RGBA frame pulled from a video source.
type Frame struct {
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Pixels    []byte  `json:"data"` // RGBA, Width*Height*4 bytes
	Timestamp float64 `json:"timestamp"`
	Index     int     `json:"index"`
}

// FrameFromImage copies img into a new RGBA frame.
func FrameFromImage(img *image.RGBA, timestamp float64, index int) Frame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		copy(pix[y*w*4:], img.Pix[off:off+w*4])
	}
	return Frame{Width: w, Height: h, Pixels: pix, Timestamp: timestamp, Index: index}
}

// RGBA returns an image view over the frame pixels. The view shares memory
// with the frame.
func (f Frame) RGBA() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Pixels,
		Stride: f.Width * 4,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// Valid reports whether the pixel buffer matches the declared dimensions.
func (f Frame) Valid() bool {
	return f.Width > 0 && f.Height > 0 && len(f.Pixels) == f.Width*f.Height*4
}

// Size returns the frame dimensions.
func (f Frame) Size() Dimensions {
	return Dimensions{Width: f.Width, Height: f.Height}
}

// ProcessedFrame is a frame after crop, resize and filter passes.
type ProcessedFrame struct {
	Frame
	Original       Dimensions
	Processed      Dimensions
	ProcessingTime time.Duration
}

// Rect is a crop rectangle in source pixel coordinates.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}
