package gateways

import (
	"context"
	"errors"
	"fmt"

	"github.com/ochairo/tagship/internal/domain/interfaces"
	"github.com/ochairo/tagship/internal/domain/interfaces/gateways"
)

// StoreType represents the type of release storage backend.
type StoreType string

// Supported release store backends
const (
	StoreTypeGitHub StoreType = "github"
	StoreTypeS3     StoreType = "s3"
	StoreTypeGCS    StoreType = "gcs"
	StoreTypeFS     StoreType = "fs"
)

// ReleaseStoreConfig selects and configures the release store backend
type ReleaseStoreConfig struct {
	Type StoreType

	GitHubOwner string
	GitHubRepo  string
	GitHubToken string
	GitHubAPI   string // Optional, for GitHub Enterprise

	S3    S3StoreConfig
	GCS   GCSStoreConfig
	FSDir string
}

// NewReleaseStore creates the configured release store. GitHub is the default.
func NewReleaseStore(ctx context.Context, cfg ReleaseStoreConfig, logger interfaces.Logger) (gateways.ReleaseStore, error) {
	storeType := cfg.Type
	if storeType == "" {
		storeType = StoreTypeGitHub
	}

	switch storeType {
	case StoreTypeGitHub:
		if cfg.GitHubOwner == "" || cfg.GitHubRepo == "" {
			return nil, errors.New("github owner and repo are required for the github store")
		}
		if cfg.GitHubToken == "" {
			return nil, errors.New("GITHUB_TOKEN is required for the github store")
		}
		gateway := NewHTTPGitHubGateway(cfg.GitHubToken, logger)
		if cfg.GitHubAPI != "" {
			gateway.WithBaseURL(cfg.GitHubAPI)
		}
		return NewGitHubReleaseStore(gateway, cfg.GitHubOwner, cfg.GitHubRepo, logger), nil
	case StoreTypeS3:
		return NewS3ReleaseStore(ctx, cfg.S3)
	case StoreTypeGCS:
		return newGCSReleaseStore(ctx, cfg.GCS)
	case StoreTypeFS:
		return NewFSReleaseStore(cfg.FSDir)
	default:
		return nil, fmt.Errorf("unsupported release store type: %s", storeType)
	}
}
