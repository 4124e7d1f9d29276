package encoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/iconidentify/clipgif/internal/domain"
)

// Auto selects the best usable backend by priority.
const Auto = "auto"

// Preference is the caller's backend choice.
type Preference struct {
	Primary  string `json:"primary"`  // backend name or "auto"
	Fallback string `json:"fallback"` // tried when Primary yields nothing
	Format   string `json:"format"`   // only "gif" is implemented
}

// Info describes a registered backend.
type Info struct {
	Name            string                 `json:"name"`
	Characteristics domain.Characteristics `json:"characteristics"`
	Checked         bool                   `json:"checked"`
	Usable          bool                   `json:"usable"`
	Error           string                 `json:"error,omitempty"`
}

// Selector picks a usable backend following a preference and fallback chain.
// Usability is probed once per backend and cached until ResetCache.
type Selector struct {
	logger   *slog.Logger
	encoders map[string]Encoder
	priority []string

	mu    sync.Mutex
	cache map[string]error
}

// NewSelector registers encoders in priority order, best first.
func NewSelector(logger *slog.Logger, encoders ...Encoder) *Selector {
	s := &Selector{
		logger:   logger,
		encoders: make(map[string]Encoder, len(encoders)),
		cache:    make(map[string]error),
	}
	for _, e := range encoders {
		s.encoders[e.Name()] = e
		s.priority = append(s.priority, e.Name())
	}
	return s
}

// NewDefaultSelector registers ffmpeg, quantize and websafe in that order.
func NewDefaultSelector(logger *slog.Logger, ffmpegBin, ffprobeBin string) *Selector {
	return NewSelector(logger,
		NewFFmpegEncoder(ffmpegBin, ffprobeBin),
		NewQuantizeEncoder(),
		NewWebSafeEncoder(),
	)
}

// Get returns a registered backend by name.
func (s *Selector) Get(name string) (Encoder, bool) {
	e, ok := s.encoders[name]
	return e, ok
}

// Names returns backend names in priority order.
func (s *Selector) Names() []string {
	return append([]string(nil), s.priority...)
}

// Probe checks whether the named backend can encode here. The answer is
// cached like any other selection probe.
func (s *Selector) Probe(ctx context.Context, name string) error {
	if _, ok := s.encoders[name]; !ok {
		return fmt.Errorf("%w: unknown encoder %q", domain.ErrNoEncoderAvailable, name)
	}
	return s.usable(ctx, name)
}

// Select returns the first usable backend for pref.
func (s *Selector) Select(ctx context.Context, pref Preference) (Encoder, error) {
	candidates, err := s.candidates(pref)
	if err != nil {
		return nil, err
	}

	var reasons []string
	for i, c := range candidates {
		if c.emergency && i > 0 && !candidates[i-1].emergency {
			s.logger.Warn("preferred encoders unusable, trying every backend",
				"primary", pref.Primary, "fallback", pref.Fallback)
		}
		err := s.usable(ctx, c.name)
		if err == nil {
			if c.emergency {
				s.logger.Warn("using emergency encoder", "encoder", c.name)
			}
			return s.encoders[c.name], nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCancelled, ctx.Err())
		}
		reasons = append(reasons, c.name+": "+err.Error())
	}

	return nil, noEncoder(reasons)
}

// Encode selects a backend and encodes. When the chosen backend fails for a
// reason other than bad input or cancellation, the next usable candidate in
// the chain is tried.
func (s *Selector) Encode(ctx context.Context, frames []domain.Frame, opts domain.EncodingOptions, pref Preference, onProgress ProgressFunc) (*domain.EncodingResult, error) {
	candidates, err := s.candidates(pref)
	if err != nil {
		return nil, err
	}

	var reasons []string
	for _, c := range candidates {
		if err := s.usable(ctx, c.name); err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrCancelled, ctx.Err())
			}
			reasons = append(reasons, c.name+": "+err.Error())
			continue
		}
		if c.emergency {
			s.logger.Warn("using emergency encoder", "encoder", c.name)
		}

		result, err := s.encoders[c.name].Encode(ctx, frames, opts, onProgress)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrCancelled) || ctx.Err() != nil {
			return nil, err
		}

		s.logger.Warn("encoder failed, trying next backend", "encoder", c.name, "error", err)
		reasons = append(reasons, c.name+": "+err.Error())
	}

	return nil, noEncoder(reasons)
}

// Describe lists every backend with its cached usability.
func (s *Selector) Describe() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]Info, 0, len(s.priority))
	for _, name := range s.priority {
		info := Info{Name: name, Characteristics: s.encoders[name].Characteristics()}
		if err, ok := s.cache[name]; ok {
			info.Checked = true
			info.Usable = err == nil
			if err != nil {
				info.Error = err.Error()
			}
		}
		infos = append(infos, info)
	}
	return infos
}

// ResetCache forgets every usability probe.
func (s *Selector) ResetCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]error)
}

type candidate struct {
	name      string
	emergency bool
}

// candidates expands pref into the ordered list of backends to try.
func (s *Selector) candidates(pref Preference) ([]candidate, error) {
	switch strings.ToLower(pref.Format) {
	case "", "gif":
	case "mp4":
		return nil, fmt.Errorf("%w: mp4", domain.ErrFormatUnsupported)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrFormatUnsupported, pref.Format)
	}

	seen := make(map[string]bool, len(s.priority))
	var out []candidate
	add := func(name string, emergency bool) {
		if _, ok := s.encoders[name]; !ok || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, candidate{name: name, emergency: emergency})
	}
	expand := func(name string) {
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case "":
		case Auto:
			for _, n := range s.priority {
				add(n, false)
			}
		default:
			if _, ok := s.encoders[name]; !ok {
				s.logger.Warn("unknown encoder requested", "encoder", name)
			}
			add(name, false)
		}
	}

	primary := pref.Primary
	if primary == "" {
		primary = Auto
	}
	expand(primary)
	expand(pref.Fallback)
	for _, n := range s.priority {
		add(n, true)
	}
	return out, nil
}

// usable probes a backend once and caches the outcome.
func (s *Selector) usable(ctx context.Context, name string) error {
	s.mu.Lock()
	if err, ok := s.cache[name]; ok {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	e := s.encoders[name]
	var err error
	if !e.IsAvailable() {
		err = fmt.Errorf("%w: %s", domain.ErrUnsupportedEnvironment, name)
	} else {
		err = e.Initialize(ctx)
	}

	if ctx.Err() != nil {
		return err
	}

	s.mu.Lock()
	s.cache[name] = err
	s.mu.Unlock()

	if err != nil {
		s.logger.Info("encoder unusable", "encoder", name, "error", err)
	}
	return err
}

func noEncoder(reasons []string) error {
	if len(reasons) == 0 {
		return domain.ErrNoEncoderAvailable
	}
	return fmt.Errorf("%w: %s", domain.ErrNoEncoderAvailable, strings.Join(reasons, "; "))
}
