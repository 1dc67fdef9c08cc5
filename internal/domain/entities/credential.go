package entities

import (
	"fmt"
	"log/slog"
)

// CredentialKind distinguishes signing material from notary service identities
type CredentialKind string

// Credential kinds
const (
	CredentialSigningCertificate CredentialKind = "signing-certificate"
	CredentialNotaryPassword     CredentialKind = "notary-password"
	CredentialNotaryAPIKey       CredentialKind = "notary-api-key"
	CredentialReleasePGPKey      CredentialKind = "release-pgp-key"
)

// Credential is secret material scoped to one pipeline run. It is never
// persisted and every textual representation is redacted.
type Credential struct {
	Kind     CredentialKind
	Identity string // signing identity, Apple ID or API key id
	Team     string // team id or API issuer id
	Material []byte // certificate bundle or private key
	Secret   []byte // password or passphrase

	destroyed bool
}

// SecretString returns the secret as a string for handing to a subprocess
func (c *Credential) SecretString() string {
	return string(c.Secret)
}

// Destroy zeroes the secret material. Safe to call more than once.
func (c *Credential) Destroy() {
	if c == nil {
		return
	}
	for i := range c.Material {
		c.Material[i] = 0
	}
	for i := range c.Secret {
		c.Secret[i] = 0
	}
	c.Material = nil
	c.Secret = nil
	c.destroyed = true
}

// Destroyed reports whether Destroy has run
func (c *Credential) Destroyed() bool {
	return c.destroyed
}

func (c *Credential) String() string {
	if c == nil {
		return "Credential(nil)"
	}
	return fmt.Sprintf("Credential(%s, %s, [redacted])", c.Kind, c.Identity)
}

// GoString keeps %#v from dumping the struct
func (c *Credential) GoString() string {
	return c.String()
}

// LogValue implements slog.LogValuer
func (c *Credential) LogValue() slog.Value {
	if c == nil {
		return slog.StringValue("nil")
	}
	return slog.GroupValue(
		slog.String("kind", string(c.Kind)),
		slog.String("identity", c.Identity),
		slog.String("secret", "[redacted]"),
	)
}
