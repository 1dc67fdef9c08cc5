package gateways

import (
	"context"

	"github.com/ochairo/tagship/internal/domain/entities"
)

// ReleaseStore is the transport that makes a published file visible.
// Put overwrites any existing object stored under the same key.
type ReleaseStore interface {
	Put(ctx context.Context, key entities.ReleaseKey, body []byte) error
}
