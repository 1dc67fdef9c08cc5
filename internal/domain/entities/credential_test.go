package entities

import (
	"bytes"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCredential_NeverPrintsSecrets(t *testing.T) {
	cred := &Credential{
		Kind:     CredentialSigningCertificate,
		Identity: "Developer ID Application: Lapce",
		Material: []byte("p12-bytes-secret"),
		Secret:   []byte("hunter2"),
	}

	for _, out := range []string{
		fmt.Sprintf("%v", cred),
		fmt.Sprintf("%s", cred),
		fmt.Sprintf("%#v", cred),
		cred.String(),
	} {
		assert.NotContains(t, out, "hunter2")
		assert.NotContains(t, out, "p12-bytes-secret")
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logger.Info("checked out", "credential", cred)
	assert.NotContains(t, buf.String(), "hunter2")
	assert.Contains(t, buf.String(), "[redacted]")
}

func TestCredential_Destroy(t *testing.T) {
	material := []byte("material")
	secret := []byte("secret")
	cred := &Credential{Material: material, Secret: secret}

	cred.Destroy()

	assert.True(t, cred.Destroyed())
	assert.Nil(t, cred.Material)
	assert.Nil(t, cred.Secret)
	assert.Equal(t, make([]byte, len("material")), material, "backing array is zeroed")
	assert.Equal(t, make([]byte, len("secret")), secret)

	cred.Destroy()
	var nilCred *Credential
	nilCred.Destroy()
}
