package encoder

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/iconidentify/clipgif/internal/domain"
)

// stubEncoder implements Encoder for testing.
type stubEncoder struct {
	name       string
	available  bool
	initErr    error
	encodeErr  error
	initCalls  int
	encodeRuns int
}

func (s *stubEncoder) Name() string { return s.name }

func (s *stubEncoder) Characteristics() domain.Characteristics {
	return domain.Characteristics{Speed: "fast"}
}

func (s *stubEncoder) IsAvailable() bool { return s.available }

func (s *stubEncoder) Initialize(ctx context.Context) error {
	s.initCalls++
	return s.initErr
}

func (s *stubEncoder) Encode(ctx context.Context, frames []domain.Frame, opts domain.EncodingOptions, onProgress ProgressFunc) (*domain.EncodingResult, error) {
	s.encodeRuns++
	if s.encodeErr != nil {
		return nil, s.encodeErr
	}
	return &domain.EncodingResult{Metadata: domain.EncodingMetadata{EncoderName: s.name, FrameCount: len(frames)}}, nil
}

func stubs() (*stubEncoder, *stubEncoder, *stubEncoder) {
	return &stubEncoder{name: "alpha", available: true},
		&stubEncoder{name: "beta", available: true},
		&stubEncoder{name: "gamma", available: true}
}

func TestSelector_AutoPicksHighestPriority(t *testing.T) {
	a, b, c := stubs()
	s := NewSelector(testLogger(), a, b, c)

	enc, err := s.Select(context.Background(), Preference{Primary: Auto})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if enc.Name() != "alpha" {
		t.Errorf("selected %s, want alpha", enc.Name())
	}
}

func TestSelector_AutoSkipsUnavailable(t *testing.T) {
	a, b, c := stubs()
	a.available = false
	b.initErr = errors.New("wasm failed to load")
	s := NewSelector(testLogger(), a, b, c)

	enc, err := s.Select(context.Background(), Preference{})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if enc.Name() != "gamma" {
		t.Errorf("selected %s, want gamma", enc.Name())
	}
	if a.initCalls != 0 {
		t.Error("unavailable backend should not be initialized")
	}
}

func TestSelector_ExplicitPrimary(t *testing.T) {
	a, b, c := stubs()
	s := NewSelector(testLogger(), a, b, c)

	enc, err := s.Select(context.Background(), Preference{Primary: "GAMMA"})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if enc.Name() != "gamma" {
		t.Errorf("selected %s, want gamma", enc.Name())
	}
}

func TestSelector_FallbackThenEmergency(t *testing.T) {
	a, b, c := stubs()
	a.available = false
	b.available = false
	s := NewSelector(testLogger(), a, b, c)

	// Explicit primary unusable, fallback unusable, emergency walk finds gamma.
	enc, err := s.Select(context.Background(), Preference{Primary: "alpha", Fallback: "beta"})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if enc.Name() != "gamma" {
		t.Errorf("selected %s, want gamma", enc.Name())
	}
}

func TestSelector_UnknownPrimaryUsesFallback(t *testing.T) {
	a, b, c := stubs()
	s := NewSelector(testLogger(), a, b, c)

	enc, err := s.Select(context.Background(), Preference{Primary: "gifenc", Fallback: "beta"})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if enc.Name() != "beta" {
		t.Errorf("selected %s, want beta", enc.Name())
	}
}

func TestSelector_NoneAvailable(t *testing.T) {
	a, b, c := stubs()
	a.available = false
	b.available = false
	c.initErr = errors.New("broken")
	s := NewSelector(testLogger(), a, b, c)

	enc, err := s.Select(context.Background(), Preference{Primary: Auto})
	if enc != nil {
		t.Error("Select must not return an encoder on failure")
	}
	if !errors.Is(err, domain.ErrNoEncoderAvailable) {
		t.Errorf("expected ErrNoEncoderAvailable, got %v", err)
	}
}

func TestSelector_FormatUnsupported(t *testing.T) {
	a, b, c := stubs()
	s := NewSelector(testLogger(), a, b, c)

	_, err := s.Select(context.Background(), Preference{Format: "mp4"})
	if !errors.Is(err, domain.ErrFormatUnsupported) {
		t.Errorf("expected ErrFormatUnsupported, got %v", err)
	}

	if _, err := s.Select(context.Background(), Preference{Format: "GIF"}); err != nil {
		t.Errorf("gif should be accepted: %v", err)
	}
}

func TestSelector_CachesUntilReset(t *testing.T) {
	a, b, c := stubs()
	a.initErr = errors.New("not yet")
	s := NewSelector(testLogger(), a, b, c)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.Select(ctx, Preference{}); err != nil {
			t.Fatalf("Select failed: %v", err)
		}
	}
	if a.initCalls != 1 || b.initCalls != 1 {
		t.Errorf("init calls = %d/%d, want 1/1", a.initCalls, b.initCalls)
	}

	a.initErr = nil
	s.ResetCache()

	enc, _ := s.Select(ctx, Preference{})
	if enc.Name() != "alpha" {
		t.Errorf("selected %s after reset, want alpha", enc.Name())
	}
	if a.initCalls != 2 {
		t.Errorf("alpha init calls = %d, want 2", a.initCalls)
	}
}

func TestSelector_Describe(t *testing.T) {
	a, b, c := stubs()
	b.available = false
	s := NewSelector(testLogger(), a, b, c)

	infos := s.Describe()
	if len(infos) != 3 || infos[0].Checked {
		t.Fatalf("unexpected infos before probing: %+v", infos)
	}

	s.Select(context.Background(), Preference{Primary: "beta", Fallback: "alpha"})

	infos = s.Describe()
	if !infos[0].Checked || !infos[0].Usable {
		t.Errorf("alpha = %+v", infos[0])
	}
	if !infos[1].Checked || infos[1].Usable || infos[1].Error == "" {
		t.Errorf("beta = %+v", infos[1])
	}
	if infos[2].Checked {
		t.Errorf("gamma should not be probed: %+v", infos[2])
	}
}

func TestSelector_Probe(t *testing.T) {
	a, b, c := stubs()
	b.available = false
	var logs bytes.Buffer
	s := NewSelector(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn})), a, b, c)
	ctx := context.Background()

	if err := s.Probe(ctx, "beta"); !errors.Is(err, domain.ErrUnsupportedEnvironment) {
		t.Errorf("Probe(beta) = %v, want ErrUnsupportedEnvironment", err)
	}
	if err := s.Probe(ctx, "gamma"); err != nil {
		t.Errorf("Probe(gamma) = %v", err)
	}
	if err := s.Probe(ctx, "delta"); !errors.Is(err, domain.ErrNoEncoderAvailable) {
		t.Errorf("Probe(delta) = %v, want ErrNoEncoderAvailable", err)
	}

	if a.initCalls != 0 {
		t.Errorf("probing beta walked on to alpha (%d init calls)", a.initCalls)
	}
	if logs.Len() != 0 {
		t.Errorf("probe logged warnings: %s", logs.String())
	}

	infos := s.Describe()
	if infos[0].Checked || !infos[1].Checked || infos[1].Usable || !infos[2].Usable {
		t.Errorf("infos = %+v", infos)
	}
}

func TestSelector_EncodeFallsBackOnBackendFailure(t *testing.T) {
	a, b, c := stubs()
	a.encodeErr = domain.ErrBackendFailure
	s := NewSelector(testLogger(), a, b, c)

	result, err := s.Encode(context.Background(), make([]domain.Frame, 2), testOptions(10, 10), Preference{}, nil)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if result.Metadata.EncoderName != "beta" {
		t.Errorf("encoder = %s, want beta", result.Metadata.EncoderName)
	}
}

func TestSelector_EncodeStopsOnInvalidInput(t *testing.T) {
	a, b, c := stubs()
	a.encodeErr = domain.ErrNoFrames
	s := NewSelector(testLogger(), a, b, c)

	_, err := s.Encode(context.Background(), nil, testOptions(10, 10), Preference{}, nil)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if b.encodeRuns != 0 {
		t.Error("invalid input must not be retried on another backend")
	}
}

func TestSelector_EncodeAllFail(t *testing.T) {
	a, b, c := stubs()
	a.encodeErr = domain.ErrBackendFailure
	b.encodeErr = domain.ErrBackendFailure
	c.encodeErr = domain.ErrBackendFailure
	s := NewSelector(testLogger(), a, b, c)

	_, err := s.Encode(context.Background(), make([]domain.Frame, 1), testOptions(10, 10), Preference{}, nil)
	if !errors.Is(err, domain.ErrNoEncoderAvailable) {
		t.Errorf("expected ErrNoEncoderAvailable, got %v", err)
	}
}

func TestDefaultSelector_AutoEncodesTenFrames(t *testing.T) {
	s := NewDefaultSelector(testLogger(), "ffmpeg-binary-that-does-not-exist", "ffprobe-binary-that-does-not-exist")

	result, err := s.Encode(context.Background(), testFrames(10, 100, 100), domain.EncodingOptions{
		Width:     100,
		Height:    100,
		FrameRate: 10,
		Quality:   domain.QualityMedium,
		Loop:      true,
	}, Preference{Primary: Auto}, nil)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	md := result.Metadata
	if md.FrameCount != 10 {
		t.Errorf("FrameCount = %d, want 10", md.FrameCount)
	}
	if md.FileSizeBytes <= 0 {
		t.Error("FileSizeBytes should be positive")
	}
	switch md.EncoderName {
	case FFmpegName, QuantizeName, WebSafeName:
	default:
		t.Errorf("unexpected encoder %q", md.EncoderName)
	}
	if md.EncoderName != QuantizeName {
		t.Errorf("without ffmpeg auto should pick quantize, got %s", md.EncoderName)
	}
}
