package gpg

import (
	"bytes"
	"fmt"

	"github.com/ProtonMail/go-crypto/openpgp"

	"github.com/ochairo/tagship/internal/domain/entities"
)

// Signer produces armored detached signatures with a release key
type Signer struct{}

// NewSigner creates a detached signer
func NewSigner() *Signer {
	return &Signer{}
}

// SignDetached signs body with the armored private key in key.Material,
// unlocking it with key.Secret when the key is protected. The signature is
// checked against the key's own public half before it is returned.
func (s *Signer) SignDetached(key *entities.Credential, body []byte) ([]byte, error) {
	if key == nil || len(key.Material) == 0 {
		return nil, fmt.Errorf("%w: no release signing key", entities.ErrCredentialUnavailable)
	}

	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(key.Material))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read release signing key: %w", entities.ErrCredentialUnavailable, err)
	}
	if len(keyring) == 0 || keyring[0].PrivateKey == nil {
		return nil, fmt.Errorf("%w: release signing key has no private key", entities.ErrCredentialUnavailable)
	}
	signer := keyring[0]

	if signer.PrivateKey.Encrypted {
		if len(key.Secret) == 0 {
			return nil, fmt.Errorf("%w: release signing key is locked and no passphrase is set", entities.ErrCredentialUnavailable)
		}
		if err := signer.DecryptPrivateKeys(key.Secret); err != nil {
			return nil, fmt.Errorf("%w: failed to unlock release signing key: %w", entities.ErrCredentialUnavailable, err)
		}
	}

	var sig bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&sig, signer, bytes.NewReader(body), nil); err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	verifier := &Verifier{keyring: openpgp.EntityList{signer}}
	if err := verifier.VerifyDetached(body, sig.Bytes()); err != nil {
		return nil, err
	}
	return sig.Bytes(), nil
}
