package repositories

import (
	"context"

	"github.com/ochairo/tagship/internal/domain/entities"
)

// RunRepository persists phase transitions and terminal outcomes of runs
type RunRepository interface {
	RecordPhase(ctx context.Context, record entities.PhaseRecord) error
	RecordResult(ctx context.Context, result *entities.PipelineResult) error

	// LatestRuns returns the most recent run per platform for tag
	LatestRuns(ctx context.Context, tag string) ([]entities.RunSummary, error)
}
