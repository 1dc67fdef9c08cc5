package orchestrators

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/ochairo/tagship/internal/domain/entities"
)

// For every tag that fails validation, no platform reaches the build phase.
func TestPipelineOrchestrator_InvalidTagsNeverBuild(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	h := newHarness()
	orch := h.orchestrator(t)

	tags := gen.OneGenOf(
		gen.AnyString(),
		gen.RegexMatch(`v?[0-9]{1,3}(\.[0-9]{1,3}){0,3}(-[a-z0-9.]{0,6})?(\+[a-z0-9]{1,3})?`),
	)

	properties.Property("invalid tags never reach build", prop.ForAll(
		func(raw string) bool {
			if _, err := entities.ParseReleaseTag(raw); err == nil {
				return true
			}
			before := h.toolchain.calls()
			result := orch.Run(context.Background(), raw, entities.PlatformWindows)
			return result.Status() == "failed:validate" && h.toolchain.calls() == before
		},
		tags,
	))

	properties.TestingRun(t)
}
