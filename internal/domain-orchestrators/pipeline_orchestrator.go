// Package orchestrators coordinates complex workflows across multiple domain services.
package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ochairo/tagship/internal/domain/entities"
	"github.com/ochairo/tagship/internal/domain/interfaces"
	"github.com/ochairo/tagship/internal/domain/interfaces/gateways"
	"github.com/ochairo/tagship/internal/domain/interfaces/repositories"
	"github.com/ochairo/tagship/internal/domain/services"
)

const instrumentationName = "github.com/ochairo/tagship/orchestrators"

// Notarizer submits, awaits and staples a signed artifact. It consumes the credential.
type Notarizer interface {
	Notarize(ctx context.Context, artifact *entities.Artifact, cred *entities.Credential) (*entities.NotarizationTicket, error)
}

// Publisher uploads a finished artifact
type Publisher interface {
	Publish(ctx context.Context, job *entities.PlatformJob, artifact *entities.Artifact, tag entities.ReleaseTag) (*entities.PublishResult, error)
}

// PipelineOrchestrator runs the release phases for each platform
type PipelineOrchestrator struct {
	defRepo   repositories.DefinitionRepository
	runs      repositories.RunRepository
	toolchain gateways.Toolchain
	creds     gateways.CredentialStore
	checksums gateways.ChecksumCalculator
	notarizer Notarizer
	publisher Publisher
	pipelines map[entities.Platform]PlatformPipeline
	release   *services.ReleaseService
	logger    interfaces.Logger
	workDir   string

	tracer    trace.Tracer
	durations metric.Float64Histogram
	newRunID  func() string
}

// PipelineOrchestratorConfig holds configuration for the orchestrator
type PipelineOrchestratorConfig struct {
	WorkDir string
	Logger  interfaces.Logger

	// Runs is optional; without it no ledger is kept
	Runs repositories.RunRepository
}

// NewPipelineOrchestrator creates a new pipeline orchestrator
func NewPipelineOrchestrator(
	defRepo repositories.DefinitionRepository,
	toolchain gateways.Toolchain,
	creds gateways.CredentialStore,
	checksums gateways.ChecksumCalculator,
	notarizer Notarizer,
	publisher Publisher,
	pipelines []PlatformPipeline,
	config PipelineOrchestratorConfig,
) *PipelineOrchestrator {
	workDir := config.WorkDir
	if workDir == "" {
		workDir = "dist"
	}
	logger := config.Logger
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}

	byPlatform := make(map[entities.Platform]PlatformPipeline, len(pipelines))
	for _, p := range pipelines {
		byPlatform[p.Platform()] = p
	}

	durations, err := otel.Meter(instrumentationName).Float64Histogram(
		"tagship.phase.duration",
		metric.WithDescription("Duration of pipeline phases"),
		metric.WithUnit("s"),
	)
	if err != nil {
		logger.Warn("phase duration histogram unavailable", interfaces.F("error", err))
	}

	return &PipelineOrchestrator{
		defRepo:   defRepo,
		runs:      config.Runs,
		toolchain: toolchain,
		creds:     creds,
		checksums: checksums,
		notarizer: notarizer,
		publisher: publisher,
		pipelines: byPlatform,
		release:   services.NewReleaseService(),
		logger:    logger,
		workDir:   workDir,
		tracer:    otel.Tracer(instrumentationName),
		durations: durations,
		newRunID:  uuid.NewString,
	}
}

// RunAll validates rawTag and runs every requested platform concurrently.
// An empty request runs every platform in the release definition. The
// returned error is only set when nothing could start (invalid tag or plan);
// per-platform failures are reported in the results.
func (o *PipelineOrchestrator) RunAll(ctx context.Context, rawTag string, platforms []entities.Platform) ([]*entities.PipelineResult, error) {
	if _, err := entities.ParseReleaseTag(rawTag); err != nil {
		return nil, err
	}

	def, err := o.defRepo.GetDefinition(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load release definition: %w", err)
	}
	plan := o.release.ValidatePlan(def, platforms)
	if !plan.IsReady() {
		return nil, fmt.Errorf("%w: %s", entities.ErrInvalidPlan, plan.ErrorMessage())
	}

	runID := o.newRunID()
	results := make([]*entities.PipelineResult, len(plan.Requested))

	var g errgroup.Group
	for i, platform := range plan.Requested {
		g.Go(func() error {
			results[i] = o.run(ctx, runID, rawTag, platform)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Platform < results[j].Platform })
	return results, nil
}

// Run executes the release phases for one platform. Exactly one terminal
// status is produced: success or failed:<phase>.
func (o *PipelineOrchestrator) Run(ctx context.Context, rawTag string, platform entities.Platform) *entities.PipelineResult {
	return o.run(ctx, o.newRunID(), rawTag, platform)
}

// platformRun is the mutable state of one platform's run. It is never shared.
type platformRun struct {
	tag      entities.ReleaseTag
	def      *entities.ReleaseDefinition
	pipeline PlatformPipeline
	job      *entities.PlatformJob
	dir      string
	binaries []*entities.Binary
	artifact *entities.Artifact
	result   *entities.PipelineResult
}

type phaseStep struct {
	phase entities.Phase
	fn    func(ctx context.Context, r *platformRun) error
}

func (o *PipelineOrchestrator) run(ctx context.Context, runID, rawTag string, platform entities.Platform) *entities.PipelineResult {
	startTime := time.Now()
	result := &entities.PipelineResult{
		RunID:          runID,
		Tag:            rawTag,
		Platform:       platform,
		PhaseDurations: make(map[entities.Phase]time.Duration),
	}

	ctx, span := o.tracer.Start(ctx, "release "+string(platform), trace.WithAttributes(
		attribute.String("tagship.run_id", runID),
		attribute.String("tagship.tag", rawTag),
		attribute.String("tagship.platform", string(platform)),
	))
	defer span.End()

	logger := interfaces.WithFields(o.logger, interfaces.F("run_id", runID), interfaces.F("platform", string(platform)))

	r, err := o.prepare(ctx, rawTag, platform)
	if err != nil {
		result.FailedPhase = entities.PhaseValidate
		result.Err = &entities.PhaseError{Phase: entities.PhaseValidate, Err: err}
		result.TotalDuration = time.Since(startTime)
		span.SetStatus(codes.Error, result.Status())
		logger.Error("release rejected before pipeline start", interfaces.F("error", err))
		return result
	}
	r.result = result
	result.Job = r.job

	for _, step := range o.steps(r.pipeline) {
		if err := o.runPhase(ctx, logger, r, step); err != nil {
			r.job.Fail(step.phase)
			result.FailedPhase = step.phase
			result.Err = &entities.PhaseError{Phase: step.phase, Err: err}
			break
		}
	}

	result.Artifact = r.artifact
	result.TotalDuration = time.Since(startTime)
	o.recordResult(ctx, logger, result)

	if result.Success() {
		span.SetStatus(codes.Ok, "")
		logger.Info("release succeeded",
			interfaces.F("key", result.Published.Key.String()),
			interfaces.F("duration", result.TotalDuration.String()),
		)
	} else {
		span.SetStatus(codes.Error, result.Status())
		logger.Error("release failed",
			interfaces.F("status", result.Status()),
			interfaces.F("error", result.Err),
		)
	}
	return result
}

// prepare validates the tag and the platform plan. Nothing is executed
// before it succeeds.
func (o *PipelineOrchestrator) prepare(ctx context.Context, rawTag string, platform entities.Platform) (*platformRun, error) {
	tag, err := entities.ParseReleaseTag(rawTag)
	if err != nil {
		return nil, err
	}

	def, err := o.defRepo.GetDefinition(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load release definition: %w", err)
	}

	plan := o.release.ValidatePlan(def, []entities.Platform{platform})
	if !plan.IsReady() {
		return nil, fmt.Errorf("%w: %s", entities.ErrInvalidPlan, plan.ErrorMessage())
	}

	pipeline, ok := o.pipelines[platform]
	if !ok {
		return nil, fmt.Errorf("no pipeline registered for platform %s", platform)
	}

	platformDef := def.Platforms[platform]
	return &platformRun{
		tag:      tag,
		def:      def,
		pipeline: pipeline,
		job:      entities.NewPlatformJob(platform, platformDef.Targets, pipeline.RequiresNotarization()),
		dir:      filepath.Join(o.workDir, tag.String(), string(platform)),
	}, nil
}

func (o *PipelineOrchestrator) steps(pipeline PlatformPipeline) []phaseStep {
	steps := []phaseStep{
		{entities.PhaseBuild, o.build},
		{entities.PhasePackage, o.pack},
		{entities.PhaseSign, o.sign},
	}
	if pipeline.RequiresNotarization() {
		steps = append(steps, phaseStep{entities.PhaseNotarize, o.notarize})
	}
	return append(steps,
		phaseStep{entities.PhaseRename, o.rename},
		phaseStep{entities.PhasePublish, o.publish},
	)
}

// runPhase checks for cancellation, then runs the phase to completion on a
// context that ignores cancellation.
func (o *PipelineOrchestrator) runPhase(ctx context.Context, logger interfaces.Logger, r *platformRun, step phaseStep) error {
	if err := ctx.Err(); err != nil {
		logger.Warn("run cancelled before phase", interfaces.F("phase", string(step.phase)))
		return fmt.Errorf("cancelled before %s: %w", step.phase, err)
	}

	phaseCtx, span := o.tracer.Start(context.WithoutCancel(ctx), string(step.phase),
		trace.WithAttributes(attribute.String("tagship.phase", string(step.phase))))
	defer span.End()

	logger.Info("phase started", interfaces.F("phase", string(step.phase)))
	start := time.Now()
	err := step.fn(phaseCtx, r)
	elapsed := time.Since(start)
	r.result.PhaseDurations[step.phase] = elapsed

	if o.durations != nil {
		o.durations.Record(phaseCtx, elapsed.Seconds(), metric.WithAttributes(
			attribute.String("tagship.phase", string(step.phase)),
			attribute.String("tagship.platform", string(r.job.Platform)),
			attribute.Bool("tagship.failed", err != nil),
		))
	}

	record := entities.PhaseRecord{
		RunID:     r.result.RunID,
		Tag:       r.tag.String(),
		Platform:  r.job.Platform,
		Phase:     step.phase,
		Status:    r.job.Status,
		StartedAt: start,
		Duration:  elapsed,
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		record.Status = entities.JobFailed
		record.Error = err.Error()
	}
	if o.runs != nil {
		if recErr := o.runs.RecordPhase(phaseCtx, record); recErr != nil {
			logger.Warn("failed to record phase", interfaces.F("phase", string(step.phase)), interfaces.F("error", recErr))
		}
	}

	if err != nil {
		return err
	}
	logger.Info("phase completed",
		interfaces.F("phase", string(step.phase)),
		interfaces.F("status", string(r.job.Status)),
		interfaces.F("duration", elapsed.String()),
	)
	return nil
}

func (o *PipelineOrchestrator) build(ctx context.Context, r *platformRun) error {
	// A re-run starts from a clean work dir
	if err := os.RemoveAll(r.dir); err != nil {
		return fmt.Errorf("%w: failed to clear work dir: %w", entities.ErrBuild, err)
	}
	if err := os.MkdirAll(r.dir, 0750); err != nil {
		return fmt.Errorf("%w: failed to create work dir: %w", entities.ErrBuild, err)
	}

	r.binaries = r.binaries[:0]
	for _, target := range r.job.Targets {
		binary, err := o.toolchain.Build(ctx, target)
		if err != nil {
			if errors.Is(err, entities.ErrBuild) {
				return err
			}
			return fmt.Errorf("%w: %s: %w", entities.ErrBuild, target, err)
		}
		r.binaries = append(r.binaries, binary)
	}
	return r.job.Advance(entities.JobBuilt)
}

func (o *PipelineOrchestrator) pack(ctx context.Context, r *platformRun) error {
	artifact, err := r.pipeline.Package(ctx, gateways.PackageRequest{
		Product:    r.def.Product,
		BinaryName: r.def.Binary,
		Version:    r.tag.String(),
		Platform:   r.job.Platform,
		Definition: r.def.Platforms[r.job.Platform],
		Binaries:   r.binaries,
		WorkDir:    r.dir,
	})
	if err != nil {
		if errors.Is(err, entities.ErrPackagingFailed) {
			return err
		}
		return &entities.PackagingError{Reason: "packager error", Err: err}
	}

	if err := syncFile(artifact.Path); err != nil {
		return &entities.PackagingError{Reason: "artifact not durable", Err: err}
	}
	r.artifact = artifact
	r.job.ArtifactPath = artifact.Path
	return r.job.Advance(entities.JobPackaged)
}

func (o *PipelineOrchestrator) sign(ctx context.Context, r *platformRun) error {
	cred, err := o.creds.SigningCredential(ctx, r.job.Platform)
	if err != nil {
		return err
	}
	defer cred.Destroy()

	if err := r.pipeline.Sign(ctx, r.artifact, cred); err != nil {
		if errors.Is(err, entities.ErrSigningFailed) || errors.Is(err, entities.ErrCredentialUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %w", entities.ErrSigningFailed, err)
	}

	if err := syncFile(r.artifact.Path); err != nil {
		return fmt.Errorf("%w: artifact not durable: %w", entities.ErrSigningFailed, err)
	}
	return r.job.Advance(entities.JobSigned)
}

func (o *PipelineOrchestrator) notarize(ctx context.Context, r *platformRun) error {
	if err := r.job.Advance(entities.JobNotarizing); err != nil {
		return err
	}

	cred, err := o.creds.NotarizationCredential(ctx)
	if err != nil {
		return err
	}
	defer cred.Destroy()

	if _, err := o.notarizer.Notarize(ctx, r.artifact, cred); err != nil {
		return err
	}

	if err := syncFile(r.artifact.Path); err != nil {
		return fmt.Errorf("%w: artifact not durable: %w", entities.ErrStapleFailed, err)
	}
	return r.job.Advance(entities.JobNotarized)
}

// rename normalizes the artifact to <Product>-<platform>.<ext> and fixes
// its content hash
func (o *PipelineOrchestrator) rename(_ context.Context, r *platformRun) error {
	finalName := o.release.FinalFileName(r.def.Product, r.job.Platform)
	finalPath := filepath.Join(filepath.Dir(r.artifact.Path), finalName)

	if finalPath != r.artifact.Path {
		if err := os.Rename(r.artifact.Path, finalPath); err != nil {
			return fmt.Errorf("failed to rename %s to %s: %w", r.artifact.FileName(), finalName, err)
		}
		r.artifact.Path = finalPath
		r.job.ArtifactPath = finalPath
	}

	digest, err := o.checksums.CalculateChecksum(finalPath)
	if err != nil {
		return err
	}
	r.artifact.SHA256 = digest
	return nil
}

func (o *PipelineOrchestrator) publish(ctx context.Context, r *platformRun) error {
	if !r.job.EligibleForPublish() {
		return fmt.Errorf("%w: %s job is %s", entities.ErrNotEligibleForPublish, r.job.Platform, r.job.Status)
	}

	published, err := o.publisher.Publish(ctx, r.job, r.artifact, r.tag)
	if err != nil {
		return err
	}
	r.result.Published = published
	return r.job.Advance(entities.JobPublished)
}

func (o *PipelineOrchestrator) recordResult(ctx context.Context, logger interfaces.Logger, result *entities.PipelineResult) {
	if o.runs == nil {
		return
	}
	if err := o.runs.RecordResult(context.WithoutCancel(ctx), result); err != nil {
		logger.Warn("failed to record run result", interfaces.F("error", err))
	}
}

// syncFile flushes the artifact to durable storage before the next phase
func syncFile(path string) error {
	//nolint:gosec // G304: artifact path is produced by the pipeline work dir
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
