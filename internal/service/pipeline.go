package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/iconidentify/clipgif/internal/canvas"
	"github.com/iconidentify/clipgif/internal/domain"
	"github.com/iconidentify/clipgif/internal/encoder"
	"github.com/iconidentify/clipgif/internal/extract"
	"github.com/iconidentify/clipgif/internal/worker"
)

// Fetcher downloads a remote source into a local file.
type Fetcher interface {
	Fetch(ctx context.Context, url, dir string) (string, error)
}

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	TempDir string
	// DefaultEncoder and DefaultFallback apply when a request names none.
	DefaultEncoder  string
	DefaultFallback string
}

// Pipeline runs extraction and encoding jobs for the queue.
type Pipeline struct {
	cfg       PipelineConfig
	extractor *extract.Extractor
	decoder   extract.FrameDecoder
	fetcher   Fetcher
	selector  *encoder.Selector
	logger    *slog.Logger
}

var _ worker.Handler = (*Pipeline)(nil)

// NewPipeline creates a pipeline. decoder and fetcher may be nil, in which
// case only delegated extraction (empty Source) is possible; fetcher is only
// needed for http(s) sources.
func NewPipeline(cfg PipelineConfig, extractor *extract.Extractor, decoder extract.FrameDecoder, fetcher Fetcher, selector *encoder.Selector, logger *slog.Logger) *Pipeline {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.DefaultEncoder == "" {
		cfg.DefaultEncoder = encoder.Auto
	}
	return &Pipeline{
		cfg:       cfg,
		extractor: extractor,
		decoder:   decoder,
		fetcher:   fetcher,
		selector:  selector,
		logger:    logger,
	}
}

// Extract pulls frames for req. Progress: 5 preparing, 10..90 extracting,
// 90..99 processing.
func (p *Pipeline) Extract(ctx context.Context, req domain.ExtractionRequest, progress worker.ProgressFunc) (*domain.ExtractionOutput, error) {
	progress(5, "preparing", "Preparing frame extraction")

	onFrame := func(done, total int) {
		progress(10+80*done/total, "extracting", fmt.Sprintf("Extracted %d/%d frames", done, total))
	}

	var (
		out *domain.ExtractionOutput
		err error
	)
	if req.Source == "" {
		out, err = p.extractor.ExtractDelegated(ctx, req, onFrame)
	} else {
		out, err = p.extractLocal(ctx, req, onFrame)
	}
	if err != nil {
		return nil, err
	}

	if req.Processing != nil {
		if err := p.process(ctx, out, req, progress); err != nil {
			return nil, err
		}
	}

	progress(99, "finalizing", fmt.Sprintf("Extracted %d frames", len(out.Frames)))
	return out, nil
}

func (p *Pipeline) extractLocal(ctx context.Context, req domain.ExtractionRequest, onFrame extract.ProgressFunc) (*domain.ExtractionOutput, error) {
	if p.decoder == nil {
		return nil, fmt.Errorf("%w: no video decoder available for %s", domain.ErrUnsupportedEnvironment, req.Source)
	}

	path := req.Source
	if isRemote(path) {
		if p.fetcher == nil {
			return nil, fmt.Errorf("%w: remote sources are disabled", domain.ErrUnsupportedEnvironment)
		}
		local, err := p.fetcher.Fetch(ctx, path, p.cfg.TempDir)
		if err != nil {
			return nil, fmt.Errorf("fetch source: %w", err)
		}
		defer os.Remove(local)
		path = local
	}

	src, err := extract.OpenFFmpegSource(ctx, p.decoder, path)
	if err != nil {
		return nil, err
	}
	native := src.Size()
	src.DecodeSize = extract.Dimensions(native.Width, native.Height, req.Quality, req.MaxWidth, req.MaxHeight)

	out, err := p.extractor.Extract(ctx, src, req, onFrame)
	if err != nil {
		return nil, err
	}
	out.SourceInfo = src.Description()
	return out, nil
}

func (p *Pipeline) process(ctx context.Context, out *domain.ExtractionOutput, req domain.ExtractionRequest, progress worker.ProgressFunc) error {
	opts, err := canvas.OptionsFromProcessing(req.Processing, req.Quality)
	if err != nil {
		return err
	}

	processed, err := canvas.ProcessBatch(ctx, out.Frames, opts, func(done, total int) {
		progress(90+9*done/total, "processing", fmt.Sprintf("Processed %d/%d frames", done, total))
	})
	if err != nil {
		return err
	}
	if len(processed) > 0 {
		out.Dimensions = processed[0].Processed
	}
	out.Frames = canvas.Frames(processed)
	return nil
}

// Encode turns req.Frames into a GIF through the encoder selector.
func (p *Pipeline) Encode(ctx context.Context, req domain.EncodingRequest, progress worker.ProgressFunc) (*domain.EncodingResult, error) {
	pref := encoder.Preference{
		Primary:  req.Encoder,
		Fallback: req.Fallback,
		Format:   "gif",
	}
	if pref.Primary == "" {
		pref.Primary = p.cfg.DefaultEncoder
	}
	if pref.Fallback == "" {
		pref.Fallback = p.cfg.DefaultFallback
	}

	return p.selector.Encode(ctx, req.Frames, req.Options, pref, func(pr encoder.Progress) {
		msg := string(pr.Stage)
		if pr.Stage == encoder.StageEncoding && pr.TotalFrames > 0 {
			msg = fmt.Sprintf("Encoded %d/%d frames", pr.Frame, pr.TotalFrames)
		}
		progress(pr.Percent, string(pr.Stage), msg)
	})
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}
