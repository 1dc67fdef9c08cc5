package gateways

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ochairo/tagship/internal/domain/entities"
	"github.com/ochairo/tagship/internal/domain/interfaces"
	"github.com/ochairo/tagship/internal/domain/interfaces/gateways"
)

// DefaultTimestampURL is the RFC 3161 server used when none is configured
const DefaultTimestampURL = "http://timestamp.digicert.com"

// SigntoolSigner signs Windows installers with an Authenticode certificate
type SigntoolSigner struct {
	runner       gateways.CommandRunner
	timestampURL string
	logger       interfaces.Logger
	now          func() time.Time
	inspect      func(bundle []byte, password string, now time.Time) (*CertificateInfo, error)
}

// NewSigntoolSigner creates a Windows signer
func NewSigntoolSigner(runner gateways.CommandRunner, timestampURL string, logger interfaces.Logger) *SigntoolSigner {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	if timestampURL == "" {
		timestampURL = DefaultTimestampURL
	}
	return &SigntoolSigner{
		runner:       runner,
		timestampURL: timestampURL,
		logger:       logger,
		now:          time.Now,
		inspect:      InspectCertificateBundle,
	}
}

// Sign signs and verifies artifact in place
func (s *SigntoolSigner) Sign(ctx context.Context, artifact *entities.Artifact, cred *entities.Credential) error {
	if cred == nil || cred.Destroyed() {
		return fmt.Errorf("%w: signing credential is not available", entities.ErrSigningFailed)
	}
	if _, err := s.inspect(cred.Material, cred.SecretString(), s.now()); err != nil {
		return err
	}

	pfxPath, err := writePrivateFile("tagship-*.pfx", cred.Material)
	if err != nil {
		return fmt.Errorf("%w: %w", entities.ErrSigningFailed, err)
	}
	defer func() {
		if err := os.Remove(pfxPath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove temporary certificate", interfaces.F("error", err))
		}
	}()

	password := cred.SecretString()
	steps := []gateways.Command{
		{
			Name: "signtool",
			Args: []string{
				"sign",
				"/f", pfxPath,
				"/p", password,
				"/fd", "sha256",
				"/tr", s.timestampURL,
				"/td", "sha256",
				artifact.Path,
			},
			Secrets:     []string{password},
			Timeout:     defaultSignTimeout,
			Description: "sign installer",
		},
		{
			Name:        "signtool",
			Args:        []string{"verify", "/pa", artifact.Path},
			Timeout:     defaultSignTimeout,
			Description: "verify installer signature",
		},
	}
	for _, step := range steps {
		if _, err := s.runner.Run(ctx, step); err != nil {
			return fmt.Errorf("%w: %w", entities.ErrSigningFailed, err)
		}
	}

	s.logger.Info("installer signed", interfaces.F("artifact", artifact.FileName()))
	return nil
}

// writePrivateFile writes data to a new 0600 temp file and returns its path
func writePrivateFile(pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if err := f.Chmod(0600); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to restrict temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	return f.Name(), nil
}
