package gateways

import (
	"context"

	"github.com/ochairo/tagship/internal/domain/entities"
)

// Toolchain compiles the product for one target triple
type Toolchain interface {
	// Build returns the compiled binary or an error wrapping entities.ErrBuild
	Build(ctx context.Context, target string) (*entities.Binary, error)
}
