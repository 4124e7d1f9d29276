package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/iconidentify/clipgif/internal/config"
)

// MinioStore stores artifacts in an S3-compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
	region string
	expiry time.Duration
	logger *slog.Logger
}

// NewMinioStore connects to the configured endpoint. It does not touch the
// network; call EnsureBucket before first use.
func NewMinioStore(cfg config.ArtifactsConfig, logger *slog.Logger) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio connection: %w", err)
	}

	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	// Presigned URLs cannot outlive a week.
	if expiry > 7*24*time.Hour {
		expiry = 7 * 24 * time.Hour
	}

	return &MinioStore{
		client: client,
		bucket: cfg.Bucket,
		region: cfg.Region,
		expiry: expiry,
		logger: logger,
	}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	s.logger.Info("artifact bucket created", "bucket", s.bucket)
	return nil
}

// Put uploads data and returns a presigned download URL for it.
func (s *MinioStore) Put(ctx context.Context, key string, data []byte, contentType string) (*Artifact, error) {
	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", key, err)
	}

	url, err := s.URL(ctx, key)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("artifact stored", "key", key, "bytes", info.Size)
	return &Artifact{
		Key:       key,
		URL:       url,
		Size:      info.Size,
		ExpiresAt: time.Now().Add(s.expiry),
	}, nil
}

// URL returns a presigned GET URL for key.
func (s *MinioStore) URL(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}
