package gateways

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ochairo/tagship/internal/domain/entities"
)

// FSReleaseStore publishes files to a local directory tree
// <dir>/<tag>/<platform>/<filename>, e.g. a mounted share or a staging dir.
type FSReleaseStore struct {
	dir string
}

// NewFSReleaseStore creates a filesystem release store rooted at dir
func NewFSReleaseStore(dir string) (*FSReleaseStore, error) {
	if dir == "" {
		return nil, errors.New("release directory is required")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create release directory: %w", err)
	}
	return &FSReleaseStore{dir: dir}, nil
}

// Put writes body atomically, replacing any existing file for key
func (s *FSReleaseStore) Put(_ context.Context, key entities.ReleaseKey, body []byte) error {
	target := filepath.Join(s.dir, filepath.FromSlash(key.String()))
	if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
		return fmt.Errorf("failed to create release directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", key, err)
	}

	//nolint:gosec // G302: published release files are world-readable
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", key, err)
	}
	return os.Rename(tmpPath, target)
}
