package extract

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/iconidentify/clipgif/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSource implements Source. The red channel of every frame encodes the
// seek position in tenths of a second.
type fakeSource struct {
	mu       sync.Mutex
	w, h     int
	duration float64
	time     float64
	paused   bool

	stuck    bool // seeks never settle
	frameErr error
	seeks    []float64
	plays    int
	onSeek   func(n int)
}

func newFakeSource(w, h int) *fakeSource {
	return &fakeSource{w: w, h: h, duration: 120}
}

func (s *fakeSource) Size() domain.Dimensions { return domain.Dimensions{Width: s.w, Height: s.h} }
func (s *fakeSource) Duration() float64       { return s.duration }

func (s *fakeSource) State() PlaybackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return PlaybackState{Time: s.time, Paused: s.paused}
}

func (s *fakeSource) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

func (s *fakeSource) Play() {
	s.mu.Lock()
	s.paused = false
	s.plays++
	s.mu.Unlock()
}

func (s *fakeSource) Seek(ctx context.Context, t float64) <-chan struct{} {
	s.mu.Lock()
	s.time = t
	s.seeks = append(s.seeks, t)
	n := len(s.seeks)
	stuck := s.stuck
	s.mu.Unlock()

	if s.onSeek != nil {
		s.onSeek(n)
	}

	ch := make(chan struct{})
	if !stuck {
		close(ch)
	}
	return ch
}

func (s *fakeSource) CurrentFrame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frameErr != nil {
		return nil, s.frameErr
	}
	img := image.NewRGBA(image.Rect(0, 0, s.w, s.h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{R: uint8(s.time * 10), A: 0xff}), image.Point{}, draw.Src)
	return img, nil
}

func TestDimensions(t *testing.T) {
	tests := []struct {
		name       string
		srcW, srcH int
		q          domain.Quality
		maxW, maxH int
		want       domain.Dimensions
	}{
		{"high keeps source", 1920, 1080, domain.QualityHigh, 0, 0, domain.Dimensions{Width: 1920, Height: 1080}},
		{"medium scales 0.75", 1920, 1080, domain.QualityMedium, 0, 0, domain.Dimensions{Width: 1440, Height: 810}},
		{"low scales 0.5", 1920, 1080, domain.QualityLow, 0, 0, domain.Dimensions{Width: 960, Height: 540}},
		{"max width clamps", 1920, 1080, domain.QualityHigh, 640, 0, domain.Dimensions{Width: 640, Height: 360}},
		{"max height clamps and floors", 1920, 1080, domain.QualityHigh, 0, 200, domain.Dimensions{Width: 354, Height: 200}},
		{"both clamps", 1920, 1080, domain.QualityHigh, 480, 360, domain.Dimensions{Width: 480, Height: 270}},
		{"odd floors to even", 321, 181, domain.QualityHigh, 0, 0, domain.Dimensions{Width: 320, Height: 180}},
		{"minimum 2x2", 3, 3, domain.QualityLow, 0, 0, domain.Dimensions{Width: 2, Height: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Dimensions(tt.srcW, tt.srcH, tt.q, tt.maxW, tt.maxH)
			if got != tt.want {
				t.Errorf("Dimensions = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFrameCount(t *testing.T) {
	tests := []struct {
		duration, fps float64
		want          int
	}{
		{1, 10, 10},
		{0.3, 10, 3},
		{1.05, 10, 11},
		{2.5, 15, 38},
		{0.01, 10, 1},
	}
	for _, tt := range tests {
		if got := FrameCount(tt.duration, tt.fps); got != tt.want {
			t.Errorf("FrameCount(%v, %v) = %d, want %d", tt.duration, tt.fps, got, tt.want)
		}
	}
}

func TestExtractor_Extract(t *testing.T) {
	src := newFakeSource(320, 180)
	src.time = 42
	e := NewExtractor(Config{}, nil, testLogger())

	var progress []int
	out, err := e.Extract(context.Background(), src, domain.ExtractionRequest{
		StartTime: 2,
		EndTime:   3,
		FrameRate: 10,
		Quality:   domain.QualityMedium,
	}, func(done, total int) {
		if total != 10 {
			t.Errorf("total = %d, want 10", total)
		}
		progress = append(progress, done)
	})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if len(out.Frames) != 10 || len(progress) != 10 {
		t.Fatalf("frames = %d, progress calls = %d", len(out.Frames), len(progress))
	}
	if out.Dimensions != (domain.Dimensions{Width: 240, Height: 134}) {
		t.Errorf("dimensions = %+v, want 240x134", out.Dimensions)
	}
	for i, f := range out.Frames {
		if f.Index != i {
			t.Errorf("frame %d index = %d", i, f.Index)
		}
		if i > 0 && f.Timestamp <= out.Frames[i-1].Timestamp {
			t.Errorf("frame %d is out of order", i)
		}
		if !f.Valid() || f.Width != 240 {
			t.Errorf("frame %d is malformed", i)
		}
		// Red channel encodes where the source was when the frame was drawn.
		want := int(uint8((2 + float64(i)/10) * 10))
		if got := int(f.Pixels[0]); got < want-1 || got > want+1 {
			t.Errorf("frame %d red = %d, want %d", i, got, want)
		}
	}

	// Playing at 42s before; playing at 42s after.
	state := src.State()
	if state.Time != 42 || state.Paused {
		t.Errorf("state after extract = %+v, want playing at 42", state)
	}
}

func TestExtractor_RestoresPausedState(t *testing.T) {
	src := newFakeSource(64, 36)
	src.paused = true
	src.time = 7
	e := NewExtractor(Config{}, nil, testLogger())

	if _, err := e.Extract(context.Background(), src, domain.ExtractionRequest{EndTime: 0.5, FrameRate: 10}, nil); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if src.plays != 0 {
		t.Error("a paused source must not be resumed")
	}
	if state := src.State(); state.Time != 7 || !state.Paused {
		t.Errorf("state = %+v, want paused at 7", state)
	}
}

func TestExtractor_RestoresStateOnError(t *testing.T) {
	src := newFakeSource(64, 36)
	src.time = 3
	src.frameErr = errors.New("decoder gone")
	e := NewExtractor(Config{}, nil, testLogger())

	_, err := e.Extract(context.Background(), src, domain.ExtractionRequest{EndTime: 1, FrameRate: 10}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if state := src.State(); state.Time != 3 || state.Paused {
		t.Errorf("state = %+v, want playing at 3", state)
	}
}

func TestExtractor_Cancelled(t *testing.T) {
	src := newFakeSource(64, 36)
	ctx, cancel := context.WithCancel(context.Background())
	src.onSeek = func(n int) {
		if n == 3 {
			cancel()
		}
	}
	e := NewExtractor(Config{}, nil, testLogger())

	out, err := e.Extract(ctx, src, domain.ExtractionRequest{EndTime: 2, FrameRate: 10}, nil)
	if !errors.Is(err, domain.ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
	if out != nil {
		t.Error("cancelled extraction must not return frames")
	}
	if state := src.State(); state.Time != 0 || state.Paused {
		t.Errorf("state = %+v, want restored", state)
	}
}

func TestExtractor_SeekTimeoutUsesCurrentFrame(t *testing.T) {
	src := newFakeSource(64, 36)
	src.stuck = true
	e := NewExtractor(Config{SeekTimeout: 5 * time.Millisecond}, nil, testLogger())

	out, err := e.Extract(context.Background(), src, domain.ExtractionRequest{EndTime: 0.3, FrameRate: 10}, nil)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(out.Frames) != 3 {
		t.Errorf("frames = %d, want 3", len(out.Frames))
	}
}

func TestExtractor_InvalidRequest(t *testing.T) {
	e := NewExtractor(Config{}, nil, testLogger())
	src := newFakeSource(64, 36)

	tests := []struct {
		name string
		req  domain.ExtractionRequest
		want error
	}{
		{"empty window", domain.ExtractionRequest{StartTime: 5, EndTime: 5, FrameRate: 10}, domain.ErrInvalidTimeRange},
		{"zero fps", domain.ExtractionRequest{EndTime: 1}, domain.ErrInvalidFrameRate},
		{"fps too high", domain.ExtractionRequest{EndTime: 1, FrameRate: 61}, domain.ErrInvalidFrameRate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Extract(context.Background(), src, tt.req, nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("%v should be an invalid-input error", err)
			}
		})
	}
	if len(src.seeks) != 0 {
		t.Error("invalid requests must not touch the source")
	}
}

func TestExtractor_ClampsToDuration(t *testing.T) {
	src := newFakeSource(64, 36)
	src.duration = 1
	e := NewExtractor(Config{}, nil, testLogger())

	out, err := e.Extract(context.Background(), src, domain.ExtractionRequest{StartTime: 0.5, EndTime: 1.5, FrameRate: 4}, nil)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	last := out.Frames[len(out.Frames)-1]
	if last.Timestamp != 1 {
		t.Errorf("last timestamp = %v, want clamped to 1", last.Timestamp)
	}
}

func TestSynthesize(t *testing.T) {
	a := Synthesize(5, 32, 18, 1, 10)
	b := Synthesize(5, 32, 18, 1, 10)

	if len(a) != 5 {
		t.Fatalf("frames = %d, want 5", len(a))
	}
	for i := range a {
		if !a[i].Valid() {
			t.Fatalf("frame %d invalid", i)
		}
		if string(a[i].Pixels) != string(b[i].Pixels) {
			t.Errorf("frame %d is not deterministic", i)
		}
		if a[i].Timestamp != 1+float64(i)/10 || a[i].Index != i {
			t.Errorf("frame %d timestamp/index = %v/%d", i, a[i].Timestamp, a[i].Index)
		}
	}

	if string(a[0].Pixels) == string(a[4].Pixels) {
		t.Error("frames should animate")
	}

	distinct := map[[3]byte]bool{}
	for p := 0; p < len(a[0].Pixels); p += 4 {
		distinct[[3]byte{a[0].Pixels[p], a[0].Pixels[p+1], a[0].Pixels[p+2]}] = true
	}
	if len(distinct) < 10 {
		t.Errorf("frame has %d distinct colors, want a pattern", len(distinct))
	}

	if Synthesize(0, 10, 10, 0, 10) != nil {
		t.Error("zero count should return nil")
	}
}
