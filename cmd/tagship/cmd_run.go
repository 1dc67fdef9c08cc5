package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ochairo/tagship/internal/domain/entities"
	"github.com/ochairo/tagship/internal/domain/interfaces"
	"github.com/ochairo/tagship/internal/telemetry"
)

const telemetryShutdownTimeout = 10 * time.Second

func newRunCmd(a *app) *cobra.Command {
	var platforms []string

	cmd := &cobra.Command{
		Use:   "run <tag>",
		Short: "Run the release pipeline for a tag",
		Long: `Run builds, packages, signs and publishes the release for <tag>.

Without --platform every platform in the release definition runs. Exit status
is 0 when every platform succeeded, 1 when any failed and 2 for an invalid tag
or usage error.`,
		Example: `  tagship run v0.4.0
  tagship run refs/tags/v0.4.0 --platform macos`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRelease(cmd.Context(), cmd.OutOrStdout(), normalizeTag(args[0]), platforms)
		},
	}

	cmd.Flags().StringSliceVarP(&platforms, "platform", "p", nil, "platforms to release (macos, windows); default all")
	return cmd
}

func (a *app) runRelease(ctx context.Context, out io.Writer, tag string, platformNames []string) error {
	// Reject bad tags before any tool or credential is touched
	if _, err := entities.ParseReleaseTag(tag); err != nil {
		return withExitCode(exitInvalid, err)
	}

	shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		OTLPEndpoint: a.cfg.Telemetry.OTLPEndpoint,
		Insecure:     a.cfg.Telemetry.Insecure,
		Version:      version,
	}, a.logger)
	if err != nil {
		return withExitCode(exitFailed, err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telemetryShutdownTimeout)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			a.logger.Warn("telemetry shutdown failed", interfaces.F("error", err))
		}
	}()

	p, err := wirePipeline(ctx, a.cfg, a.logger)
	if err != nil {
		return withExitCode(exitFailed, err)
	}
	defer func() {
		if err := p.Close(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("cleanup failed", interfaces.F("error", err))
		}
	}()

	results, err := p.orchestrator.RunAll(ctx, tag, toPlatforms(platformNames))
	if err != nil {
		if errors.Is(err, entities.ErrInvalidTag) || errors.Is(err, entities.ErrInvalidPlan) {
			return withExitCode(exitInvalid, err)
		}
		return withExitCode(exitFailed, err)
	}

	printResults(out, results)

	for _, r := range results {
		if !r.Success() {
			return withExitCode(exitFailed, nil)
		}
	}
	return nil
}

func toPlatforms(names []string) []entities.Platform {
	platforms := make([]entities.Platform, 0, len(names))
	for _, name := range names {
		if name = strings.TrimSpace(strings.ToLower(name)); name != "" {
			platforms = append(platforms, entities.Platform(name))
		}
	}
	return platforms
}

func printResults(out io.Writer, results []*entities.PipelineResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PLATFORM\tSTATUS\tARTIFACT\tDURATION")
	for _, r := range results {
		artifact := "-"
		if r.Published != nil {
			artifact = r.Published.Key.String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Platform, r.Status(), artifact, r.TotalDuration.Round(time.Second))
	}
	_ = w.Flush()

	for _, r := range results {
		if r.Err != nil {
			_, _ = fmt.Fprintf(out, "%s: %v\n", r.Platform, r.Err)
		}
	}
}
