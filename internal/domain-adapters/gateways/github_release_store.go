package gateways

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ochairo/tagship/internal/domain/entities"
	"github.com/ochairo/tagship/internal/domain/interfaces"
	"github.com/ochairo/tagship/internal/domain/interfaces/gateways"
)

// GitHubReleaseStore publishes files as assets of the GitHub release for the
// tag. The platform is carried by the file name, so the key's platform part
// is not a separate path segment here.
type GitHubReleaseStore struct {
	gateway gateways.GitHubGateway
	owner   string
	repo    string
	logger  interfaces.Logger

	// Two platforms may publish to the same release concurrently
	mu       sync.Mutex
	releases map[string]*gateways.GitHubRelease
}

// NewGitHubReleaseStore creates a release store backed by GitHub Releases
func NewGitHubReleaseStore(gateway gateways.GitHubGateway, owner, repo string, logger interfaces.Logger) *GitHubReleaseStore {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &GitHubReleaseStore{
		gateway:  gateway,
		owner:    owner,
		repo:     repo,
		logger:   logger,
		releases: make(map[string]*gateways.GitHubRelease),
	}
}

// Put uploads body as an asset named key.Filename, replacing an existing
// asset of the same name
func (s *GitHubReleaseStore) Put(ctx context.Context, key entities.ReleaseKey, body []byte) error {
	release, err := s.ensureRelease(ctx, key.Tag)
	if err != nil {
		return err
	}

	assets, err := s.gateway.ListReleaseAssets(ctx, s.owner, s.repo, release.ID)
	if err != nil {
		return err
	}
	for _, asset := range assets {
		if asset.Name != key.Filename {
			continue
		}
		s.logger.Info("replacing existing release asset",
			interfaces.F("asset", asset.Name),
			interfaces.F("asset_id", asset.ID),
		)
		if err := s.gateway.DeleteAsset(ctx, s.owner, s.repo, asset.ID); err != nil {
			return err
		}
	}

	asset, err := s.gateway.UploadAsset(ctx, release.UploadURL, key.Filename, bytes.NewReader(body))
	if err != nil {
		return err
	}
	s.logger.Debug("release asset uploaded", interfaces.F("url", asset.BrowserDownloadURL))
	return nil
}

// ensureRelease returns the release for tag, creating a draft-free release
// when none exists yet
func (s *GitHubReleaseStore) ensureRelease(ctx context.Context, tag string) (*gateways.GitHubRelease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if release, ok := s.releases[tag]; ok {
		return release, nil
	}

	release, err := s.gateway.GetRelease(ctx, s.owner, s.repo, tag)
	if errors.Is(err, ErrReleaseNotFound) {
		parsed, parseErr := entities.ParseReleaseTag(tag)
		if parseErr != nil {
			return nil, parseErr
		}
		release, err = s.gateway.CreateRelease(ctx, s.owner, s.repo, &gateways.GitHubRelease{
			TagName:    tag,
			Name:       tag,
			Prerelease: parsed.Prerelease(),
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve release %s: %w", tag, err)
	}

	s.releases[tag] = release
	return release, nil
}
