package gateways

import (
	"fmt"

	"github.com/ochairo/tagship/internal/domain/entities"
	"github.com/ochairo/tagship/internal/external-adapters/gpg"
)

// PGPSidecars wraps the external OpenPGP adapter to implement the domain
// DetachedSigner and to check published .asc sidecars
type PGPSidecars struct {
	signer *gpg.Signer
}

// NewPGPSidecars creates the OpenPGP sidecar gateway
func NewPGPSidecars() *PGPSidecars {
	return &PGPSidecars{signer: gpg.NewSigner()}
}

// SignDetached returns an armored detached signature over body
func (p *PGPSidecars) SignDetached(key *entities.Credential, body []byte) ([]byte, error) {
	sig, err := p.signer.SignDetached(key, body)
	if err != nil {
		return nil, fmt.Errorf("PGP signing failed: %w", err)
	}
	return sig, nil
}

// VerifySidecar checks sigPath over filePath with the public key in keyPath
func (p *PGPSidecars) VerifySidecar(filePath, sigPath, keyPath string) error {
	verifier := gpg.NewVerifier()
	if err := verifier.ImportKeyFromFile(keyPath); err != nil {
		return fmt.Errorf("failed to import PGP key from file: %w", err)
	}
	if err := verifier.VerifySignatureFromFile(filePath, sigPath); err != nil {
		return fmt.Errorf("PGP signature verification failed: %w", err)
	}
	return nil
}
