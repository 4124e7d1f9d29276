// Package storage uploads finished GIFs to object storage.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iconidentify/clipgif/internal/domain"
)

// Artifact describes a stored object.
type Artifact struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	Size      int64     `json:"size"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ArtifactStore persists encoded output and hands out download URLs.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (*Artifact, error)
	URL(ctx context.Context, key string) (string, error)
}

// ObjectKey builds the key a job's GIF is stored under, grouped by day:
// gifs/2026/10/14/<job id>.gif
func ObjectKey(id domain.JobID, at time.Time, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "gif"
	}
	return fmt.Sprintf("gifs/%s/%s.%s", at.UTC().Format("2006/01/02"), id, ext)
}
