package gateways

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ochairo/tagship/internal/domain/entities"
	"github.com/ochairo/tagship/internal/domain/interfaces"
	"github.com/ochairo/tagship/internal/domain/interfaces/gateways"
)

const keychainLockTimeout = 6 * time.Hour

// Keychains creates ephemeral macOS keychains with the security tool
type Keychains struct {
	runner gateways.CommandRunner
	dir    string
	logger interfaces.Logger
}

// NewKeychains creates keychains under dir (os.TempDir when empty)
func NewKeychains(runner gateways.CommandRunner, dir string, logger interfaces.Logger) *Keychains {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	if dir == "" {
		dir = os.TempDir()
	}
	return &Keychains{runner: runner, dir: dir, logger: logger}
}

// KeychainLease is one run-scoped keychain. Release must be called on every
// exit path once the lease is obtained.
type KeychainLease struct {
	Path string

	password string
	original []string
	tmpFiles []string
	runner   gateways.CommandRunner
	logger   interfaces.Logger
	released bool
}

// Create makes a new unlocked keychain and prepends it to the user search list
func (k *Keychains) Create(ctx context.Context) (*KeychainLease, error) {
	lease := &KeychainLease{
		Path:     filepath.Join(k.dir, fmt.Sprintf("tagship-%s.keychain-db", uuid.NewString())),
		password: uuid.NewString(),
		runner:   k.runner,
		logger:   k.logger,
	}
	secrets := []string{lease.password}

	result, err := k.runner.Run(ctx, gateways.Command{
		Name: "security", Args: []string{"list-keychains", "-d", "user"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read keychain search list: %w", err)
	}
	lease.original = parseKeychainList(result.Stdout)

	steps := []gateways.Command{
		{Name: "security", Args: []string{"create-keychain", "-p", lease.password, lease.Path}, Secrets: secrets},
		{Name: "security", Args: []string{"set-keychain-settings", "-lut", fmt.Sprint(int(keychainLockTimeout.Seconds())), lease.Path}},
		{Name: "security", Args: []string{"unlock-keychain", "-p", lease.password, lease.Path}, Secrets: secrets},
		{Name: "security", Args: append([]string{"list-keychains", "-d", "user", "-s", lease.Path}, lease.original...)},
	}
	for _, step := range steps {
		if _, err := k.runner.Run(ctx, step); err != nil {
			releaseErr := lease.Release(context.WithoutCancel(ctx))
			return nil, errors.Join(fmt.Errorf("failed to prepare keychain: %w", err), releaseErr)
		}
	}

	k.logger.Debug("ephemeral keychain created", interfaces.F("keychain", lease.Path))
	return lease, nil
}

// ImportCertificate imports the PKCS#12 bundle in cred and grants codesign access
func (l *KeychainLease) ImportCertificate(ctx context.Context, cred *entities.Credential) error {
	p12, err := os.CreateTemp("", "tagship-*.p12")
	if err != nil {
		return fmt.Errorf("failed to create certificate file: %w", err)
	}
	l.tmpFiles = append(l.tmpFiles, p12.Name())

	if _, err := p12.Write(cred.Material); err != nil {
		_ = p12.Close()
		return fmt.Errorf("failed to write certificate file: %w", err)
	}
	if err := p12.Close(); err != nil {
		return fmt.Errorf("failed to write certificate file: %w", err)
	}

	certPassword := cred.SecretString()
	steps := []gateways.Command{
		{
			Name:    "security",
			Args:    []string{"import", p12.Name(), "-k", l.Path, "-P", certPassword, "-T", "/usr/bin/codesign"},
			Secrets: []string{certPassword},
		},
		{
			Name:    "security",
			Args:    []string{"set-key-partition-list", "-S", "apple-tool:,apple:,codesign:", "-s", "-k", l.password, l.Path},
			Secrets: []string{l.password},
		},
	}
	for _, step := range steps {
		if _, err := l.runner.Run(ctx, step); err != nil {
			return fmt.Errorf("failed to import certificate: %w", err)
		}
	}

	// The bundle is only needed for the import
	l.removeTmpFiles()
	return nil
}

// Release restores the search list, deletes the keychain and removes temp
// files. Safe to call more than once.
func (l *KeychainLease) Release(ctx context.Context) error {
	if l == nil || l.released {
		return nil
	}
	l.released = true

	var errs []error
	args := append([]string{"list-keychains", "-d", "user", "-s"}, l.original...)
	if _, err := l.runner.Run(ctx, gateways.Command{Name: "security", Args: args}); err != nil {
		errs = append(errs, fmt.Errorf("failed to restore keychain search list: %w", err))
	}
	if _, err := l.runner.Run(ctx, gateways.Command{Name: "security", Args: []string{"delete-keychain", l.Path}}); err != nil {
		errs = append(errs, fmt.Errorf("failed to delete keychain: %w", err))
	}
	l.removeTmpFiles()

	if len(errs) == 0 {
		l.logger.Debug("ephemeral keychain released", interfaces.F("keychain", l.Path))
	}
	return errors.Join(errs...)
}

func (l *KeychainLease) removeTmpFiles() {
	for _, path := range l.tmpFiles {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			l.logger.Warn("failed to remove temporary certificate", interfaces.F("error", err))
		}
	}
	l.tmpFiles = nil
}

// parseKeychainList reads `security list-keychains` output: one quoted path per line
func parseKeychainList(out string) []string {
	var paths []string
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.Trim(strings.TrimSpace(scanner.Text()), `"`)
		if line != "" {
			paths = append(paths, line)
		}
	}
	return paths
}
