package gateways

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/ochairo/tagship/internal/domain/entities"
)

// Environment variables read by EnvCredentialStore
const (
	EnvMacOSCertificate         = "MACOS_CERTIFICATE"
	EnvMacOSCertificatePassword = "MACOS_CERTIFICATE_PWD"
	EnvMacOSCertificateName     = "MACOS_CERTIFICATE_NAME"

	EnvWindowsCertificate         = "WINDOWS_CERTIFICATE"
	EnvWindowsCertificatePassword = "WINDOWS_CERTIFICATE_PWD"

	EnvNotaryUser     = "MACOS_NOTARY_USER"
	EnvNotaryTeamID   = "MACOS_NOTARY_TEAM_ID"
	EnvNotaryPassword = "MACOS_NOTARY_PWD"

	EnvNotaryAPIKeyID    = "NOTARY_API_KEY_ID"
	EnvNotaryAPIIssuerID = "NOTARY_API_ISSUER_ID"
	EnvNotaryAPIKey      = "NOTARY_API_KEY"

	EnvReleasePGPKey        = "RELEASE_PGP_KEY"
	EnvReleasePGPPassphrase = "RELEASE_PGP_PASSPHRASE"
)

// Notary backends
const (
	NotaryBackendAPI        = "api"
	NotaryBackendNotarytool = "notarytool"
)

// EnvCredentialStore reads CI-provisioned secrets from the environment. Every
// call returns a fresh copy the caller owns.
type EnvCredentialStore struct {
	lookup        func(string) (string, bool)
	notaryBackend string
}

// NewEnvCredentialStore creates a credential store for the given notary backend
func NewEnvCredentialStore(notaryBackend string) *EnvCredentialStore {
	return newEnvCredentialStore(os.LookupEnv, notaryBackend)
}

func newEnvCredentialStore(lookup func(string) (string, bool), notaryBackend string) *EnvCredentialStore {
	if notaryBackend == "" {
		notaryBackend = NotaryBackendAPI
	}
	return &EnvCredentialStore{lookup: lookup, notaryBackend: notaryBackend}
}

// SigningCredential returns the code signing certificate for platform
func (s *EnvCredentialStore) SigningCredential(_ context.Context, platform entities.Platform) (*entities.Credential, error) {
	switch platform {
	case entities.PlatformMacOS:
		values, err := s.require(EnvMacOSCertificate, EnvMacOSCertificatePassword, EnvMacOSCertificateName)
		if err != nil {
			return nil, err
		}
		bundle, err := decodeBase64(EnvMacOSCertificate, values[0])
		if err != nil {
			return nil, err
		}
		return &entities.Credential{
			Kind:     entities.CredentialSigningCertificate,
			Identity: values[2],
			Material: bundle,
			Secret:   []byte(values[1]),
		}, nil
	case entities.PlatformWindows:
		values, err := s.require(EnvWindowsCertificate, EnvWindowsCertificatePassword)
		if err != nil {
			return nil, err
		}
		bundle, err := decodeBase64(EnvWindowsCertificate, values[0])
		if err != nil {
			return nil, err
		}
		return &entities.Credential{
			Kind:     entities.CredentialSigningCertificate,
			Material: bundle,
			Secret:   []byte(values[1]),
		}, nil
	default:
		return nil, fmt.Errorf("%w: no signing certificate for platform %s", entities.ErrCredentialUnavailable, platform)
	}
}

// NotarizationCredential returns the identity for the configured notary backend
func (s *EnvCredentialStore) NotarizationCredential(_ context.Context) (*entities.Credential, error) {
	switch s.notaryBackend {
	case NotaryBackendAPI:
		values, err := s.require(EnvNotaryAPIKeyID, EnvNotaryAPIIssuerID, EnvNotaryAPIKey)
		if err != nil {
			return nil, err
		}
		return &entities.Credential{
			Kind:     entities.CredentialNotaryAPIKey,
			Identity: values[0],
			Team:     values[1],
			Material: []byte(values[2]),
		}, nil
	case NotaryBackendNotarytool:
		values, err := s.require(EnvNotaryUser, EnvNotaryTeamID, EnvNotaryPassword)
		if err != nil {
			return nil, err
		}
		return &entities.Credential{
			Kind:     entities.CredentialNotaryPassword,
			Identity: values[0],
			Team:     values[1],
			Secret:   []byte(values[2]),
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown notary backend %q", entities.ErrCredentialUnavailable, s.notaryBackend)
	}
}

// ReleaseSigningKey returns the armored OpenPGP key for sidecar signatures
func (s *EnvCredentialStore) ReleaseSigningKey(_ context.Context) (*entities.Credential, error) {
	values, err := s.require(EnvReleasePGPKey)
	if err != nil {
		return nil, err
	}
	passphrase, _ := s.lookup(EnvReleasePGPPassphrase)
	return &entities.Credential{
		Kind:     entities.CredentialReleasePGPKey,
		Material: []byte(values[0]),
		Secret:   []byte(passphrase),
	}, nil
}

// require returns the values of names, or CredentialUnavailable listing the missing ones
func (s *EnvCredentialStore) require(names ...string) ([]string, error) {
	values := make([]string, len(names))
	var missing []string
	for i, name := range names {
		value, ok := s.lookup(name)
		if !ok || strings.TrimSpace(value) == "" {
			missing = append(missing, name)
			continue
		}
		values[i] = value
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s not set", entities.ErrCredentialUnavailable, strings.Join(missing, ", "))
	}
	return values, nil
}

func decodeBase64(name, value string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not valid base64", entities.ErrCredentialUnavailable, name)
	}
	return data, nil
}
