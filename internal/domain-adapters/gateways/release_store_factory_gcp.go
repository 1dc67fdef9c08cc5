//go:build gcp

package gateways

import (
	"context"

	"github.com/ochairo/tagship/internal/domain/interfaces/gateways"
)

func newGCSReleaseStore(ctx context.Context, cfg GCSStoreConfig) (gateways.ReleaseStore, error) {
	return NewGCSReleaseStore(ctx, cfg)
}
