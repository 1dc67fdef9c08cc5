//go:build !gcp

package gateways

import (
	"context"
	"fmt"

	"github.com/ochairo/tagship/internal/domain/interfaces/gateways"
)

// GCSStoreConfig holds configuration for the GCS release store.
type GCSStoreConfig struct {
	Bucket string
	Prefix string
}

func newGCSReleaseStore(_ context.Context, _ GCSStoreConfig) (gateways.ReleaseStore, error) {
	return nil, fmt.Errorf("GCS storage is not enabled in this build (use -tags gcp)")
}
