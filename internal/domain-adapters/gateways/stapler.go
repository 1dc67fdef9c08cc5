package gateways

import (
	"context"
	"fmt"
	"time"

	"github.com/ochairo/tagship/internal/domain/interfaces/gateways"
)

const stapleTimeout = 5 * time.Minute

// XcrunStapler attaches the notarization ticket with xcrun stapler
type XcrunStapler struct {
	runner gateways.CommandRunner
}

// NewXcrunStapler creates a stapler
func NewXcrunStapler(runner gateways.CommandRunner) *XcrunStapler {
	return &XcrunStapler{runner: runner}
}

// Staple embeds the ticket into the artifact and validates it. Retrying is
// left to the caller.
func (s *XcrunStapler) Staple(ctx context.Context, artifactPath string) error {
	for _, action := range []string{"staple", "validate"} {
		if _, err := s.runner.Run(ctx, gateways.Command{
			Name:        "xcrun",
			Args:        []string{"stapler", action, artifactPath},
			Timeout:     stapleTimeout,
			Description: "stapler " + action,
		}); err != nil {
			return fmt.Errorf("stapler %s failed: %w", action, err)
		}
	}
	return nil
}
