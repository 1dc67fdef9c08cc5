package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ochairo/tagship/internal/config"
	adapters "github.com/ochairo/tagship/internal/domain-adapters/gateways"
	orchestrators "github.com/ochairo/tagship/internal/domain-orchestrators"
	"github.com/ochairo/tagship/internal/domain/entities"
	"github.com/ochairo/tagship/internal/domain/interfaces"
	"github.com/ochairo/tagship/internal/domain/interfaces/gateways"
	"github.com/ochairo/tagship/internal/domain/services"
	"github.com/ochairo/tagship/internal/external-adapters/sqlite"
	"github.com/ochairo/tagship/internal/external-adapters/yaml"
)

// pollTokenSlack keeps the notary poll token valid past the polling deadline
const pollTokenSlack = 10 * time.Minute

// pipeline is a wired orchestrator plus the resources it holds open
type pipeline struct {
	orchestrator *orchestrators.PipelineOrchestrator
	closers      []func(context.Context) error
}

// Close releases keychains, stores and the ledger. It is safe to call once
// after the run even when the context was canceled.
func (p *pipeline) Close(ctx context.Context) error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		errs = append(errs, p.closers[i](ctx))
	}
	return errors.Join(errs...)
}

// wirePipeline builds the orchestrator from config. The release definition
// is read here too because the toolchain and the macOS signer need the
// binary, profile and bundle names.
func wirePipeline(ctx context.Context, cfg config.Config, logger interfaces.Logger) (*pipeline, error) {
	p := &pipeline{}
	fail := func(err error) (*pipeline, error) {
		_ = p.Close(context.WithoutCancel(ctx))
		return nil, err
	}

	workDir, err := filepath.Abs(cfg.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("resolve work dir: %w", err)
	}
	if err := os.MkdirAll(workDir, 0o750); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	defRepo := yaml.NewDefinitionRepository(filepath.Join(cfg.SourceDir, cfg.Definition))
	def, err := defRepo.GetDefinition(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load release definition: %w", err)
	}

	runner := adapters.NewExecRunner(logger)
	keychains := adapters.NewKeychains(runner, filepath.Join(workDir, "keychains"), logger)
	creds := adapters.NewEnvCredentialStore(cfg.Notarization.Backend)

	ledger, err := openLedger(cfg.Ledger.Path)
	if err != nil {
		return fail(err)
	}
	p.closers = append(p.closers, func(context.Context) error { return ledger.Close() })

	store, err := adapters.NewReleaseStore(ctx, storeConfig(cfg), logger)
	if err != nil {
		return fail(fmt.Errorf("failed to create release store: %w", err))
	}
	if closer, ok := store.(io.Closer); ok {
		p.closers = append(p.closers, func(context.Context) error { return closer.Close() })
	}

	notary, err := notaryService(cfg, runner, keychains, workDir, logger)
	if err != nil {
		return fail(err)
	}
	if closer, ok := notary.(interface{ Close(context.Context) error }); ok {
		p.closers = append(p.closers, closer.Close)
	}

	var bundleName, entitlements string
	if mac, ok := def.Platforms[entities.PlatformMacOS]; ok {
		bundleName = def.Product + ".app"
		entitlements = mac.DiskImage.Entitlements
	}

	pipelines := []orchestrators.PlatformPipeline{
		orchestrators.NewWindowsPipeline(
			adapters.NewWixPackager(runner, logger),
			adapters.NewSigntoolSigner(runner, cfg.Signing.TimestampURL, logger),
		),
		orchestrators.NewMacOSPipeline(
			adapters.NewDiskImagePackager(runner, logger),
			adapters.NewCodesignSigner(runner, keychains, adapters.CodesignConfig{
				BundleName:   bundleName,
				Entitlements: entitlements,
			}, logger),
		),
	}

	p.orchestrator = orchestrators.NewPipelineOrchestrator(
		defRepo,
		adapters.NewCargoToolchain(runner, cfg.SourceDir, def.Binary, def.Profile, logger),
		creds,
		adapters.NewArtifactChecksums(),
		services.NewNotarizer(notary, adapters.NewXcrunStapler(runner), notarizerConfig(cfg), logger),
		services.NewPublisher(store, creds, adapters.NewPGPSidecars(), publisherConfig(cfg), logger),
		pipelines,
		orchestrators.PipelineOrchestratorConfig{
			WorkDir: workDir,
			Logger:  logger,
			Runs:    ledger,
		},
	)
	return p, nil
}

func openLedger(path string) (*sqlite.Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	ledger, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	return ledger, nil
}

func notaryService(cfg config.Config, runner gateways.CommandRunner, keychains *adapters.Keychains, workDir string, logger interfaces.Logger) (gateways.NotaryService, error) {
	switch cfg.Notarization.Backend {
	case adapters.NotaryBackendNotarytool:
		return adapters.NewNotarytoolGateway(runner, keychains, filepath.Join(workDir, "notary-logs"), logger), nil
	case adapters.NotaryBackendAPI:
		return adapters.NewNotaryAPIGateway(adapters.NotaryAPIConfig{
			PollTokenTTL:      cfg.Notarization.Deadline.Duration + pollTokenSlack,
			RequestsPerSecond: cfg.Notarization.PollRequestsPerSecond,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unsupported notarization backend: %s", cfg.Notarization.Backend)
	}
}

func storeConfig(cfg config.Config) adapters.ReleaseStoreConfig {
	return adapters.ReleaseStoreConfig{
		Type:        adapters.StoreType(cfg.Publish.Store),
		GitHubOwner: cfg.GitHub.Owner,
		GitHubRepo:  cfg.GitHub.Repo,
		GitHubToken: os.Getenv("GITHUB_TOKEN"),
		GitHubAPI:   os.Getenv("GITHUB_API_URL"),
		S3: adapters.S3StoreConfig{
			Bucket:   cfg.S3.Bucket,
			Region:   cfg.S3.Region,
			Endpoint: cfg.S3.Endpoint,
			Prefix:   cfg.S3.Prefix,
		},
		GCS: adapters.GCSStoreConfig{
			Bucket: cfg.GCS.Bucket,
			Prefix: cfg.GCS.Prefix,
		},
		FSDir: cfg.FS.Dir,
	}
}

func notarizerConfig(cfg config.Config) services.NotarizerConfig {
	nc := services.DefaultNotarizerConfig()
	nc.Deadline = cfg.Notarization.Deadline.Duration
	nc.PollInitial = cfg.Notarization.PollInitial.Duration
	nc.PollMax = cfg.Notarization.PollMax.Duration
	return nc
}

func publisherConfig(cfg config.Config) services.PublisherConfig {
	pc := services.DefaultPublisherConfig()
	pc.MaxAttempts = cfg.Publish.MaxAttempts
	pc.InitialBackoff = cfg.Publish.InitialBackoff.Duration
	pc.Checksums = cfg.Publish.Checksums
	pc.Signatures = cfg.Publish.PGPSignature
	return pc
}
