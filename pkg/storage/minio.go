package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"
)

const defaultPresignExpiry = 7 * 24 * time.Hour

// VideoStore uploads generated videos to an S3 compatible bucket.
type VideoStore struct {
	client        *minio.Client
	bucket        string
	publicURL     string
	presignExpiry time.Duration
}

// NewVideoStore returns a store writing into bucket. When publicURL is set,
// returned links are publicURL/bucket/key; otherwise they are presigned GET URLs.
func NewVideoStore(client *minio.Client, bucket, publicURL string) *VideoStore {
	return &VideoStore{
		client:        client,
		bucket:        bucket,
		publicURL:     publicURL,
		presignExpiry: defaultPresignExpiry,
	}
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *VideoStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	zerolog.Ctx(ctx).Info().Str("bucket", s.bucket).Msg("created video bucket")
	return nil
}

func (s *VideoStore) PutVideo(ctx context.Context, key string, data []byte) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "video/mp4",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	zerolog.Ctx(ctx).Info().Str("bucket", s.bucket).Str("object", key).Int("bytes", len(data)).Msg("uploaded video")

	if s.publicURL != "" {
		return publicObjectURL(s.publicURL, s.bucket, key), nil
	}

	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.presignExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return presigned.String(), nil
}

func publicObjectURL(base, bucket, key string) string {
	return strings.TrimRight(base, "/") + "/" + bucket + "/" + strings.TrimLeft(key, "/")
}
