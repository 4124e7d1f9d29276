package extract

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/iconidentify/clipgif/internal/domain"
	"github.com/iconidentify/clipgif/pkg/ffmpeg"
)

// FrameDecoder is the part of ffmpeg.VideoProcessor a FFmpegSource needs.
type FrameDecoder interface {
	GetVideoInfo(ctx context.Context, videoPath string) (*ffmpeg.VideoInfo, error)
	DecodeFrameAt(ctx context.Context, videoPath string, timestamp float64, width, height int) (*image.RGBA, error)
}

// FFmpegSource is a Source over a local video file. Every seek decodes one
// frame with ffmpeg.
type FFmpegSource struct {
	dec  FrameDecoder
	path string
	info *ffmpeg.VideoInfo

	// DecodeSize, when set, asks ffmpeg to scale while decoding.
	DecodeSize domain.Dimensions

	mu      sync.Mutex
	seq     int
	applied int // seq of the decode current came from
	pending <-chan struct{}
	time    float64
	paused  bool
	current *image.RGBA
	err     error
}

// OpenFFmpegSource probes path and returns a paused source at t=0.
func OpenFFmpegSource(ctx context.Context, dec FrameDecoder, path string) (*FFmpegSource, error) {
	info, err := dec.GetVideoInfo(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}
	return &FFmpegSource{dec: dec, path: path, info: info, paused: true}, nil
}

func (s *FFmpegSource) Size() domain.Dimensions {
	return domain.Dimensions{Width: s.info.Width, Height: s.info.Height}
}

func (s *FFmpegSource) Duration() float64 { return s.info.Duration }

// Description summarizes the probed stream.
func (s *FFmpegSource) Description() string {
	return fmt.Sprintf("%s %dx%d %.2ffps %.1fs", s.info.VideoCodec, s.info.Width, s.info.Height, s.info.FrameRate, s.info.Duration)
}

func (s *FFmpegSource) State() PlaybackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return PlaybackState{Time: s.time, Paused: s.paused}
}

func (s *FFmpegSource) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// Play only records the flag; a file source has no clock.
func (s *FFmpegSource) Play() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
}

// Seek decodes the frame at t in the background. A decode that finishes
// after a newer one has already landed is dropped; a late one with no newer
// result replaces the current frame.
func (s *FFmpegSource) Seek(ctx context.Context, t float64) <-chan struct{} {
	done := make(chan struct{})

	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.time = t
	s.pending = done
	s.mu.Unlock()

	w, h := s.info.Width, s.info.Height
	if s.DecodeSize.Width > 0 && s.DecodeSize.Height > 0 {
		w, h = s.DecodeSize.Width, s.DecodeSize.Height
	}

	go func() {
		defer close(done)
		img, err := s.dec.DecodeFrameAt(ctx, s.path, t, w, h)

		s.mu.Lock()
		defer s.mu.Unlock()
		if seq < s.applied {
			return
		}
		s.applied = seq
		s.current, s.err = img, err
	}()
	return done
}

// CurrentFrame returns the last decoded frame. Before any decode has landed
// it waits for the newest in-flight one.
func (s *FFmpegSource) CurrentFrame() (image.Image, error) {
	s.mu.Lock()
	if s.current == nil && s.err == nil && s.pending != nil {
		pending := s.pending
		s.mu.Unlock()
		<-pending
		s.mu.Lock()
	}
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	if s.current == nil {
		return nil, errors.New("no frame decoded yet")
	}
	return s.current, nil
}
