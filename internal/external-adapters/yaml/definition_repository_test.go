package yaml

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ochairo/tagship/internal/domain/entities"
)

func TestDefinitionRepository_GetDefinition_Success(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, DefaultDefinitionFile)
	if err := os.WriteFile(path, []byte(lapceDefinition), 0600); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	def, err := NewDefinitionRepository(path).GetDefinition(context.Background())
	if err != nil {
		t.Fatalf("GetDefinition() error = %v", err)
	}

	wantWxs := filepath.Join(tmpDir, "extra/windows/wix/lapce.wxs")
	if got := def.Platforms[entities.PlatformWindows].Installer.Source; got != wantWxs {
		t.Errorf("Installer.Source = %s, want %s", got, wantWxs)
	}
	mac := def.Platforms[entities.PlatformMacOS].DiskImage
	if mac.BundleTemplate != filepath.Join(tmpDir, "extra/macos/Lapce.app") {
		t.Errorf("BundleTemplate = %s", mac.BundleTemplate)
	}
	if mac.Entitlements != filepath.Join(tmpDir, "extra/entitlements.plist") {
		t.Errorf("Entitlements = %s", mac.Entitlements)
	}
}

func TestDefinitionRepository_GetDefinition_AbsolutePathsKept(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, DefaultDefinitionFile)
	content := `product: Lapce
binary: lapce
platforms:
  windows:
    targets: [x86_64-pc-windows-msvc]
    installer:
      source: /opt/wix/lapce.wxs
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	def, err := NewDefinitionRepository(path).GetDefinition(context.Background())
	if err != nil {
		t.Fatalf("GetDefinition() error = %v", err)
	}
	if got := def.Platforms[entities.PlatformWindows].Installer.Source; got != "/opt/wix/lapce.wxs" {
		t.Errorf("Installer.Source = %s, want absolute path unchanged", got)
	}
}

func TestDefinitionRepository_GetDefinition_NotFound(t *testing.T) {
	repo := NewDefinitionRepository(filepath.Join(t.TempDir(), "missing.yml"))

	_, err := repo.GetDefinition(context.Background())
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("GetDefinition() error = %v, want not found", err)
	}
}

func TestDefinitionRepository_GetDefinition_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewDefinitionRepository("release.yml").GetDefinition(ctx); err == nil {
		t.Error("GetDefinition() should fail on a canceled context")
	}
}
