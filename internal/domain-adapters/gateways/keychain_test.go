package gateways

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/ochairo/tagship/internal/domain/entities"
	"github.com/ochairo/tagship/internal/domain/interfaces/gateways"
)

const userKeychains = "    \"/Users/runner/Library/Keychains/login.keychain-db\"\n    \"/Library/Keychains/System.keychain\"\n"

// securityTool answers list-keychains with the user search list
func securityTool(cmd gateways.Command) (*gateways.CommandResult, error) {
	if cmd.Name == "security" && len(cmd.Args) == 3 && cmd.Args[0] == "list-keychains" {
		return &gateways.CommandResult{Stdout: userKeychains}, nil
	}
	return &gateways.CommandResult{}, nil
}

func TestParseKeychainList(t *testing.T) {
	got := parseKeychainList(userKeychains)
	if len(got) != 2 || got[0] != "/Users/runner/Library/Keychains/login.keychain-db" {
		t.Errorf("parseKeychainList() = %v", got)
	}
}

func TestKeychains_CreateImportRelease(t *testing.T) {
	runner := &recordingRunner{handler: securityTool}
	keychains := NewKeychains(runner, t.TempDir(), nil)

	lease, err := keychains.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !strings.HasSuffix(lease.Path, ".keychain-db") {
		t.Errorf("keychain path = %s", lease.Path)
	}

	cred := &entities.Credential{Kind: entities.CredentialSigningCertificate, Material: []byte("p12"), Secret: []byte("certpw")}
	if err := lease.ImportCertificate(context.Background(), cred); err != nil {
		t.Fatalf("ImportCertificate() error = %v", err)
	}

	importCmd, ok := runner.find("security", "import")
	if !ok {
		t.Fatal("security import not run")
	}
	p12Path := importCmd.Args[1]
	if _, err := os.Stat(p12Path); !os.IsNotExist(err) {
		t.Errorf("temporary p12 %s should be removed after import", p12Path)
	}
	if strings.Contains(importCmd.String(), "certpw") {
		t.Errorf("import command line leaks the certificate password: %s", importCmd.String())
	}

	if err := lease.Release(context.Background()); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := lease.Release(context.Background()); err != nil {
		t.Fatalf("second Release() error = %v", err)
	}

	lines := runner.lines()
	var deletes, restores int
	for _, line := range lines {
		if strings.HasPrefix(line, "security delete-keychain "+lease.Path) {
			deletes++
		}
		if line == "security list-keychains -d user -s /Users/runner/Library/Keychains/login.keychain-db /Library/Keychains/System.keychain" {
			restores++
		}
	}
	if deletes != 1 || restores != 1 {
		t.Errorf("expected one delete and one search-list restore, got %d/%d in %v", deletes, restores, lines)
	}
}

func TestKeychains_CreateFailureReleases(t *testing.T) {
	runner := &recordingRunner{handler: func(cmd gateways.Command) (*gateways.CommandResult, error) {
		if len(cmd.Args) > 0 && cmd.Args[0] == "unlock-keychain" {
			return nil, errors.New("unlock failed")
		}
		return securityTool(cmd)
	}}

	if _, err := NewKeychains(runner, t.TempDir(), nil).Create(context.Background()); err == nil {
		t.Fatal("Create() should fail")
	}
	if _, ok := runner.find("security", "delete-keychain"); !ok {
		t.Error("a half-created keychain must be deleted")
	}
}
