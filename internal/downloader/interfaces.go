package downloader

import (
	"context"
	"io"
)

// Downloader fetches remote video sources.
type Downloader interface {
	// Download fetches the URL, returning a content reader and its size.
	// Caller is responsible for closing the reader.
	Download(ctx context.Context, url string) (io.ReadCloser, int64, error)

	// Probe checks URL accessibility without downloading full content.
	Probe(ctx context.Context, url string) (*ProbeResult, error)

	// Fetch downloads the URL into a new file under dir and returns its path.
	Fetch(ctx context.Context, url, dir string) (string, error)
}

// ProbeResult contains information about a video URL.
type ProbeResult struct {
	ContentType   string
	ContentLength int64
	Accessible    bool
	Error         string
}
