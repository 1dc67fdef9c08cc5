//go:build gcp

package gateways

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"

	"github.com/ochairo/tagship/internal/domain/entities"
)

// GCSReleaseStore publishes files to a Cloud Storage bucket under <prefix><tag>/<platform>/<filename>.
type GCSReleaseStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSStoreConfig holds configuration for GCSReleaseStore.
type GCSStoreConfig struct {
	Bucket string
	Prefix string // Optional object prefix
}

// NewGCSReleaseStore creates a new GCS-backed release store.
func NewGCSReleaseStore(ctx context.Context, cfg GCSStoreConfig) (*GCSReleaseStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}

	// Create GCS client (uses ADC by default)
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSReleaseStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Put overwrites the object for key
func (s *GCSReleaseStore) Put(ctx context.Context, key entities.ReleaseKey, body []byte) error {
	objectPath := s.prefix + key.String()

	w := s.client.Bucket(s.bucket).Object(objectPath).NewWriter(ctx)
	w.ContentType = contentType(key.Filename)

	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return fmt.Errorf("%w: gcs write %s failed: %w", entities.ErrTransientNetwork, objectPath, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: gcs close %s failed: %w", entities.ErrTransientNetwork, objectPath, err)
	}
	return nil
}

// Close closes the GCS client.
func (s *GCSReleaseStore) Close() error {
	return s.client.Close()
}
