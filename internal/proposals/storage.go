package proposals

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"outreach_backend/platform/config"
)

// downloadURLTTL bounds how long a generated proposal link stays valid.
const downloadURLTTL = 24 * time.Hour

// Storage persists generated proposal PDFs in a MinIO bucket.
type Storage struct {
	client *minio.Client
	bucket string
}

func NewStorage(cfg config.StorageConfig) (*Storage, error) {
	if !cfg.IsMinIOEnabled() {
		return nil, fmt.Errorf("MinIO is not configured")
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &Storage{
		client: client,
		bucket: cfg.GetMinioBucketProposals(),
	}, nil
}

// EnsureBucket creates the proposals bucket if it does not exist yet.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Store uploads a PDF under the given key and returns a presigned download URL.
func (s *Storage) Store(ctx context.Context, key string, pdf []byte) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(pdf), int64(len(pdf)), minio.PutObjectOptions{
		ContentType: "application/pdf",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, downloadURLTTL, make(url.Values))
	if err != nil {
		return "", fmt.Errorf("failed to generate download URL for %s: %w", key, err)
	}
	return presigned.String(), nil
}
