// Package gpg signs and verifies detached OpenPGP signatures for release files.
package gpg

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// armoredSignaturePrefix marks an ASCII-armored signature
const armoredSignaturePrefix = "-----BEGIN PGP SIGNATURE---"

// maxSignatureSize bounds signature reads; detached signatures are well under 1KB
const maxSignatureSize = 10 * 1024

// Verifier checks detached signatures against an imported keyring.
// This is in external-adapters to isolate the external dependency
type Verifier struct {
	keyring openpgp.EntityList
}

// NewVerifier creates a verifier with an empty keyring
func NewVerifier() *Verifier {
	return &Verifier{keyring: make(openpgp.EntityList, 0)}
}

// ImportKeys adds armored or binary keys read from r
func (v *Verifier) ImportKeys(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read key: %w", err)
	}

	entities, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	if err != nil {
		entities, err = openpgp.ReadKeyRing(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to read key: %w", err)
		}
	}

	if len(entities) == 0 {
		return fmt.Errorf("no keys found")
	}

	v.keyring = append(v.keyring, entities...)
	return nil
}

// ImportKeyFromFile imports a public key file
func (v *Verifier) ImportKeyFromFile(keyPath string) error {
	//nolint:gosec // G304: keyPath is user-provided for key import
	f, err := os.Open(keyPath)
	if err != nil {
		return fmt.Errorf("failed to open key file: %w", err)
	}
	//nolint:errcheck // Defer close
	defer f.Close()

	return v.ImportKeys(f)
}

// VerifyDetached checks sig (armored or binary) over body
func (v *Verifier) VerifyDetached(body, sig []byte) error {
	if len(v.keyring) == 0 {
		return fmt.Errorf("no GPG keys imported")
	}
	if len(sig) > maxSignatureSize {
		return fmt.Errorf("signature too large: %d bytes", len(sig))
	}
	if len(sig) < 10 {
		return fmt.Errorf("signature too small to be a valid OpenPGP signature")
	}

	var err error
	if bytes.HasPrefix(sig, []byte(armoredSignaturePrefix)) {
		_, err = openpgp.CheckArmoredDetachedSignature(v.keyring, bytes.NewReader(body), bytes.NewReader(sig), nil)
	} else {
		_, err = openpgp.CheckDetachedSignature(v.keyring, bytes.NewReader(body), bytes.NewReader(sig), nil)
	}
	if err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}

// VerifySignatureFromFile verifies a detached signature file over a data file
func (v *Verifier) VerifySignatureFromFile(filePath, sigPath string) error {
	if len(v.keyring) == 0 {
		return fmt.Errorf("no GPG keys imported")
	}

	//nolint:gosec // G304: sigPath is user-provided for verification
	sig, err := os.ReadFile(sigPath)
	if err != nil {
		return fmt.Errorf("failed to open signature file: %w", err)
	}

	//nolint:gosec // G304: filePath is user-provided for verification
	body, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to open data file: %w", err)
	}

	return v.VerifyDetached(body, sig)
}

// KeyringSize returns the number of keys in the keyring
func (v *Verifier) KeyringSize() int {
	return len(v.keyring)
}
