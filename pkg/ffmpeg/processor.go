package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// ErrNotInstalled is returned when ffmpeg or ffprobe cannot be found.
var ErrNotInstalled = errors.New("ffmpeg not installed")

// VideoProcessor drives the ffmpeg and ffprobe binaries.
type VideoProcessor struct {
	ffmpegPath  string
	ffprobePath string
}

// NewVideoProcessor creates a new video processor.
// It will attempt to find ffmpeg and ffprobe in PATH.
func NewVideoProcessor() (*VideoProcessor, error) {
	return NewVideoProcessorWithPaths("ffmpeg", "ffprobe")
}

// NewVideoProcessorWithPaths resolves explicit binary names or paths.
func NewVideoProcessorWithPaths(ffmpegBin, ffprobeBin string) (*VideoProcessor, error) {
	ffmpegPath, err := exec.LookPath(ffmpegBin)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotInstalled, ffmpegBin, err)
	}

	ffprobePath, err := exec.LookPath(ffprobeBin)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotInstalled, ffprobeBin, err)
	}

	return &VideoProcessor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}, nil
}

// VideoInfo contains metadata about a video file.
type VideoInfo struct {
	Duration   float64 // Duration in seconds
	Width      int
	Height     int
	VideoCodec string
	Bitrate    int64
	FrameRate  float64
	FileSize   int64
}

// GetVideoInfo extracts metadata from a video file.
func (p *VideoProcessor) GetVideoInfo(ctx context.Context, videoPath string) (*VideoInfo, error) {
	stat, err := os.Stat(videoPath)
	if err != nil {
		return nil, fmt.Errorf("stat video: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		videoPath,
	)

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}

	info, err := parseProbeOutput(output)
	if err != nil {
		return nil, err
	}
	info.FileSize = stat.Size()

	if info.Width == 0 || info.Height == 0 {
		return nil, fmt.Errorf("no video stream in %s", videoPath)
	}
	return info, nil
}

func parseProbeOutput(output []byte) (*VideoInfo, error) {
	type ffprobeFormat struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	}
	type ffprobeStream struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
	}
	type ffprobeOutput struct {
		Format  ffprobeFormat   `json:"format"`
		Streams []ffprobeStream `json:"streams"`
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &VideoInfo{}
	if parsed.Format.Duration != "" {
		if dur, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
			info.Duration = dur
		}
	}
	if parsed.Format.BitRate != "" {
		if br, err := strconv.ParseInt(parsed.Format.BitRate, 10, 64); err == nil {
			info.Bitrate = br
		}
	}

	for _, s := range parsed.Streams {
		if s.CodecType != "video" || info.VideoCodec != "" {
			continue
		}
		info.VideoCodec = s.CodecName
		info.Width = s.Width
		info.Height = s.Height
		info.FrameRate = parseRate(s.AvgFrameRate)
	}

	return info, nil
}

// parseRate turns "30000/1001" into 29.97.
func parseRate(rate string) float64 {
	if rate == "" || rate == "0/0" {
		return 0
	}
	parts := strings.SplitN(rate, "/", 2)
	num, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0
	}
	if len(parts) == 1 {
		return num
	}
	den, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || den == 0 {
		return 0
	}
	return num / den
}

// DecodeFrameAt decodes the frame at timestamp (seconds) scaled to width x height.
func (p *VideoProcessor) DecodeFrameAt(ctx context.Context, videoPath string, timestamp float64, width, height int) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("decode frame: invalid size %dx%d", width, height)
	}

	cmd := exec.CommandContext(ctx, p.ffmpegPath,
		"-hide_banner",
		"-loglevel", "error",
		// Input seeking is keyframe-accurate and much faster for single frames.
		"-ss", fmt.Sprintf("%.3f", timestamp),
		"-i", videoPath,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:%d", width, height),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("decode frame at %.3fs: %w: %s", timestamp, err, strings.TrimSpace(stderr.String()))
	}

	want := width * height * 4
	if len(output) < want {
		return nil, fmt.Errorf("decode frame at %.3fs: short read %d of %d bytes", timestamp, len(output), want)
	}

	return &image.RGBA{
		Pix:    output[:want],
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}, nil
}

// EncodeGIFConfig configures palette-based GIF encoding.
type EncodeGIFConfig struct {
	Width     int
	Height    int
	FrameRate float64
	MaxColors int    // 2..256 (default: 256)
	Dither    string // paletteuse dither mode (default: sierra2_4a)
	Loop      bool
	// OnFrame is called after each frame has been written to ffmpeg.
	OnFrame func(written int)
}

// EncodeGIF pipes raw RGBA frames through palettegen/paletteuse and returns
// the GIF bytes. Every frame must be Width*Height*4 bytes.
func (p *VideoProcessor) EncodeGIF(ctx context.Context, cfg EncodeGIFConfig, frames [][]byte) ([]byte, error) {
	if cfg.MaxColors < 2 || cfg.MaxColors > 256 {
		cfg.MaxColors = 256
	}
	if cfg.Dither == "" {
		cfg.Dither = "sierra2_4a"
	}
	loop := "-1"
	if cfg.Loop {
		loop = "0"
	}

	filter := fmt.Sprintf(
		"split[a][b];[a]palettegen=max_colors=%d:stats_mode=diff[p];[b][p]paletteuse=dither=%s",
		cfg.MaxColors, cfg.Dither,
	)

	cmd := exec.CommandContext(ctx, p.ffmpegPath,
		"-hide_banner",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"-framerate", strconv.FormatFloat(cfg.FrameRate, 'f', -1, 64),
		"-i", "pipe:0",
		"-filter_complex", filter,
		"-loop", loop,
		"-f", "gif",
		"pipe:1",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	writeErr := writeFrames(ctx, stdin, cfg, frames)
	stdin.Close()
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if writeErr != nil {
		return nil, writeErr
	}
	if waitErr != nil {
		return nil, fmt.Errorf("ffmpeg encode: %w: %s", waitErr, strings.TrimSpace(stderr.String()))
	}

	return stdout.Bytes(), nil
}

func writeFrames(ctx context.Context, w io.Writer, cfg EncodeGIFConfig, frames [][]byte) error {
	want := cfg.Width * cfg.Height * 4
	for i, frame := range frames {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(frame) != want {
			return fmt.Errorf("frame %d: got %d bytes, want %d", i, len(frame), want)
		}
		if _, err := w.Write(frame); err != nil {
			return fmt.Errorf("write frame %d: %w", i, err)
		}
		if cfg.OnFrame != nil {
			cfg.OnFrame(i + 1)
		}
	}
	return nil
}

// GetVersion returns the ffmpeg version string.
func (p *VideoProcessor) GetVersion(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, p.ffmpegPath, "-version")
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 {
		return strings.TrimSpace(lines[0]), nil
	}
	return "unknown", nil
}
