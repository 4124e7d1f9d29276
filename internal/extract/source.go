// Package extract pulls ordered RGBA frames out of a video source over a
// time window, either directly or by delegating to the context that owns
// the video.
package extract

import (
	"context"
	"image"

	"github.com/iconidentify/clipgif/internal/domain"
)

// PlaybackState is what the extractor saves before it takes over a source
// and restores afterwards.
type PlaybackState struct {
	Time   float64
	Paused bool
}

// Source is a seekable video.
type Source interface {
	// Size is the native frame size.
	Size() domain.Dimensions

	// Duration is the length in seconds, or 0 if unknown.
	Duration() float64

	State() PlaybackState
	Pause()
	Play()

	// Seek moves to t seconds. The returned channel is closed once the
	// frame at t is ready.
	Seek(ctx context.Context, t float64) <-chan struct{}

	// CurrentFrame returns the frame at the current position.
	CurrentFrame() (image.Image, error)
}
