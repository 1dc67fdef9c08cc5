// Package repositories defines interfaces for data access layers.
package repositories

import (
	"context"

	"github.com/ochairo/tagship/internal/domain/entities"
)

// DefinitionRepository loads the release definition of the product
type DefinitionRepository interface {
	// GetDefinition returns the parsed release definition
	GetDefinition(ctx context.Context) (*entities.ReleaseDefinition, error)
}
