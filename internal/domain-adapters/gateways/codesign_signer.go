package gateways

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ochairo/tagship/internal/domain/entities"
	"github.com/ochairo/tagship/internal/domain/interfaces"
	"github.com/ochairo/tagship/internal/domain/interfaces/gateways"
)

const defaultSignTimeout = 20 * time.Minute

// CodesignConfig configures macOS code signing
type CodesignConfig struct {
	BundleName   string // "<Product>.app" inside the disk image
	Entitlements string
}

// CodesignSigner signs a disk image and the app bundle inside it with a
// Developer ID certificate held in an ephemeral keychain
type CodesignSigner struct {
	runner    gateways.CommandRunner
	keychains *Keychains
	config    CodesignConfig
	logger    interfaces.Logger
	now       func() time.Time
	inspect   func(bundle []byte, password string, now time.Time) (*CertificateInfo, error)
}

// NewCodesignSigner creates a macOS signer
func NewCodesignSigner(runner gateways.CommandRunner, keychains *Keychains, config CodesignConfig, logger interfaces.Logger) *CodesignSigner {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &CodesignSigner{
		runner:    runner,
		keychains: keychains,
		config:    config,
		logger:    logger,
		now:       time.Now,
		inspect:   InspectCertificateBundle,
	}
}

// Sign signs the bundle inside artifact, then the image itself, and verifies
// the result. The image is rewritten in place.
func (s *CodesignSigner) Sign(ctx context.Context, artifact *entities.Artifact, cred *entities.Credential) error {
	if cred == nil || cred.Destroyed() {
		return fmt.Errorf("%w: signing credential is not available", entities.ErrSigningFailed)
	}
	if cred.Identity == "" {
		return fmt.Errorf("%w: signing identity is empty", entities.ErrSigningFailed)
	}
	if _, err := s.inspect(cred.Material, cred.SecretString(), s.now()); err != nil {
		return err
	}

	lease, err := s.keychains.Create(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", entities.ErrSigningFailed, err)
	}
	defer func() {
		if releaseErr := lease.Release(context.WithoutCancel(ctx)); releaseErr != nil {
			s.logger.Warn("failed to release keychain", interfaces.F("error", releaseErr))
		}
	}()

	if err := lease.ImportCertificate(ctx, cred); err != nil {
		return fmt.Errorf("%w: %w", entities.ErrSigningFailed, err)
	}

	if err := s.signBundle(ctx, artifact.Path, lease, cred.Identity); err != nil {
		return fmt.Errorf("%w: %w", entities.ErrSigningFailed, err)
	}

	steps := []gateways.Command{
		s.codesign(lease, cred.Identity, artifact.Path),
		{
			Name:        "codesign",
			Args:        []string{"--verify", "--strict", "--verbose=2", artifact.Path},
			Timeout:     defaultSignTimeout,
			Description: "verify disk image signature",
		},
	}
	for _, step := range steps {
		if _, err := s.runner.Run(ctx, step); err != nil {
			return fmt.Errorf("%w: %w", entities.ErrSigningFailed, err)
		}
	}

	s.logger.Info("disk image signed", interfaces.F("artifact", artifact.FileName()))
	return nil
}

// signBundle converts the image to read-write, signs the mounted bundle and
// converts it back over the original path
func (s *CodesignSigner) signBundle(ctx context.Context, dmgPath string, lease *KeychainLease, identity string) error {
	rwPath := dmgPath + ".rw.dmg"
	defer func() { _ = os.Remove(rwPath) }()

	mountPoint, err := os.MkdirTemp("", "tagship-mnt-*")
	if err != nil {
		return fmt.Errorf("failed to create mount point: %w", err)
	}
	defer func() { _ = os.Remove(mountPoint) }()

	if _, err := s.runner.Run(ctx, gateways.Command{
		Name: "hdiutil",
		Args: []string{"convert", dmgPath, "-format", "UDRW", "-ov", "-o", rwPath},
	}); err != nil {
		return err
	}

	if _, err := s.runner.Run(ctx, gateways.Command{
		Name: "hdiutil",
		Args: []string{"attach", rwPath, "-nobrowse", "-noautoopen", "-mountpoint", mountPoint},
	}); err != nil {
		return err
	}

	bundle := mountPoint + "/" + s.config.BundleName
	cmd := s.codesign(lease, identity, bundle)
	cmd.Args = append([]string{"--deep"}, cmd.Args...)
	if s.config.Entitlements != "" {
		cmd.Args = append(cmd.Args[:len(cmd.Args)-1], "--entitlements", s.config.Entitlements, bundle)
	}
	_, signErr := s.runner.Run(ctx, cmd)

	_, detachErr := s.runner.Run(context.WithoutCancel(ctx), gateways.Command{
		Name: "hdiutil",
		Args: []string{"detach", mountPoint},
	})
	if err := errors.Join(signErr, detachErr); err != nil {
		return err
	}

	_, err = s.runner.Run(ctx, gateways.Command{
		Name: "hdiutil",
		Args: []string{"convert", rwPath, "-format", "UDZO", "-ov", "-o", dmgPath},
	})
	return err
}

func (s *CodesignSigner) codesign(lease *KeychainLease, identity, path string) gateways.Command {
	return gateways.Command{
		Name: "codesign",
		Args: []string{
			"--force",
			"--options", "runtime",
			"--timestamp",
			"--keychain", lease.Path,
			"--sign", identity,
			path,
		},
		Timeout:     defaultSignTimeout,
		Description: "codesign " + path,
	}
}
