package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ochairo/tagship/internal/domain/entities"
	"github.com/ochairo/tagship/internal/domain/interfaces"
	"github.com/ochairo/tagship/internal/domain/interfaces/gateways"
)

// PublisherConfig bounds upload retries and enables sidecar files
type PublisherConfig struct {
	MaxAttempts    uint
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Checksums uploads <file>.sha256 next to the artifact
	Checksums bool
	// Signatures uploads an armored detached OpenPGP signature <file>.asc
	Signatures bool
}

// DefaultPublisherConfig returns the retry schedule used in CI
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		MaxAttempts:    5,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// Publisher uploads finished artifacts to the release store.
type Publisher struct {
	store  gateways.ReleaseStore
	creds  gateways.CredentialStore
	signer gateways.DetachedSigner
	config PublisherConfig
	logger interfaces.Logger
}

// NewPublisher creates a publisher. creds and signer are only needed when
// config.Signatures is set.
func NewPublisher(store gateways.ReleaseStore, creds gateways.CredentialStore, signer gateways.DetachedSigner, config PublisherConfig, logger interfaces.Logger) *Publisher {
	defaults := DefaultPublisherConfig()
	if config.MaxAttempts == 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &Publisher{
		store:  store,
		creds:  creds,
		signer: signer,
		config: config,
		logger: logger,
	}
}

// Publish uploads artifact under (tag, platform, filename), overwriting any
// previous upload with the same key. The job must be eligible for publish.
func (p *Publisher) Publish(ctx context.Context, job *entities.PlatformJob, artifact *entities.Artifact, tag entities.ReleaseTag) (*entities.PublishResult, error) {
	if !job.EligibleForPublish() {
		return nil, fmt.Errorf("%w: %s job is %s", entities.ErrNotEligibleForPublish, job.Platform, job.Status)
	}

	//nolint:gosec // G304: artifact path is produced by the pipeline work dir
	body, err := os.ReadFile(artifact.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	sum := sha256.Sum256(body)
	digest := hex.EncodeToString(sum[:])
	if artifact.SHA256 != "" && artifact.SHA256 != digest {
		return nil, fmt.Errorf("artifact %s changed after it was finalized: expected %s, got %s", artifact.FileName(), artifact.SHA256, digest)
	}

	key := entities.ReleaseKey{
		Tag:      tag.String(),
		Platform: job.Platform,
		Filename: artifact.FileName(),
	}

	// Sidecars are uploaded before the artifact they describe
	var sidecars []entities.ReleaseKey
	if p.config.Checksums {
		sidecar := sidecarKey(key, ".sha256")
		line := fmt.Sprintf("%s  %s\n", digest, key.Filename)
		if _, err := p.put(ctx, sidecar, []byte(line)); err != nil {
			return nil, err
		}
		sidecars = append(sidecars, sidecar)
	}

	if p.config.Signatures {
		sidecar, err := p.publishSignature(ctx, key, body)
		if err != nil {
			return nil, err
		}
		sidecars = append(sidecars, sidecar)
	}

	attempts, err := p.put(ctx, key, body)
	if err != nil {
		return nil, err
	}

	result := &entities.PublishResult{
		Key:      key,
		SHA256:   digest,
		Size:     int64(len(body)),
		Attempts: attempts,
		Sidecars: sidecars,
	}

	p.logger.Info("artifact published",
		interfaces.F("key", key.String()),
		interfaces.F("sha256", digest),
		interfaces.F("size", result.Size),
		interfaces.F("attempts", attempts),
	)
	return result, nil
}

func (p *Publisher) publishSignature(ctx context.Context, key entities.ReleaseKey, body []byte) (entities.ReleaseKey, error) {
	if p.creds == nil || p.signer == nil {
		return entities.ReleaseKey{}, errors.New("signature sidecars enabled without a signing key source")
	}

	pgpKey, err := p.creds.ReleaseSigningKey(ctx)
	if err != nil {
		return entities.ReleaseKey{}, err
	}
	defer pgpKey.Destroy()

	signature, err := p.signer.SignDetached(pgpKey, body)
	if err != nil {
		return entities.ReleaseKey{}, fmt.Errorf("failed to sign %s: %w", key.Filename, err)
	}

	sidecar := sidecarKey(key, ".asc")
	if _, err := p.put(ctx, sidecar, signature); err != nil {
		return entities.ReleaseKey{}, err
	}
	return sidecar, nil
}

// put uploads with bounded exponential backoff and returns the attempts used
func (p *Publisher) put(ctx context.Context, key entities.ReleaseKey, body []byte) (int, error) {
	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = p.config.InitialBackoff
	schedule.MaxInterval = p.config.MaxBackoff

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := p.store.Put(ctx, key, body)
		if errors.Is(err, entities.ErrCredentialUnavailable) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(schedule),
		backoff.WithMaxTries(p.config.MaxAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			p.logger.Warn("upload failed, retrying",
				interfaces.F("key", key.String()),
				interfaces.F("retry_in", wait.String()),
				interfaces.F("error", err),
			)
		}),
	)
	if err != nil {
		return attempts, fmt.Errorf("%w: %s after %d attempts: %w", entities.ErrUpload, key, attempts, err)
	}
	return attempts, nil
}

func sidecarKey(key entities.ReleaseKey, suffix string) entities.ReleaseKey {
	key.Filename += suffix
	return key
}
