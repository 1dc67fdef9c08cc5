package gateways

import (
	"context"

	"github.com/ochairo/tagship/internal/domain/entities"
)

// CredentialStore hands out run-scoped copies of secret material. Callers
// own the returned credential and must Destroy it when their phase ends.
type CredentialStore interface {
	// SigningCredential returns the code signing certificate for platform
	SigningCredential(ctx context.Context, platform entities.Platform) (*entities.Credential, error)

	// NotarizationCredential returns the notary service identity
	NotarizationCredential(ctx context.Context) (*entities.Credential, error)

	// ReleaseSigningKey returns the OpenPGP key used for detached sidecar signatures
	ReleaseSigningKey(ctx context.Context) (*entities.Credential, error)
}
