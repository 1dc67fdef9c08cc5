package gateways

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ochairo/tagship/internal/domain/entities"
	"github.com/ochairo/tagship/internal/domain/interfaces/gateways"
)

func windowsRequest(workDir string) gateways.PackageRequest {
	return gateways.PackageRequest{
		Product:    "Lapce",
		BinaryName: "lapce",
		Version:    "v1.2.3",
		Platform:   entities.PlatformWindows,
		Definition: entities.PlatformDefinition{
			Targets: []string{"x86_64-pc-windows-msvc"},
			Installer: entities.InstallerDefinition{
				Source:  "extra/windows/wix/lapce.wxs",
				Defines: map[string]string{"Manufacturer": "Lapce"},
			},
		},
		Binaries: []*entities.Binary{{Target: "x86_64-pc-windows-msvc", Path: "/src/target/lapce.exe"}},
		WorkDir:  workDir,
	}
}

// lightWritesOutput fakes the linker by creating the -out file
func lightWritesOutput(cmd gateways.Command) (*gateways.CommandResult, error) {
	if cmd.Name != "light" {
		return &gateways.CommandResult{}, nil
	}
	for i, arg := range cmd.Args {
		if arg == "-out" && i+1 < len(cmd.Args) {
			return &gateways.CommandResult{}, os.WriteFile(cmd.Args[i+1], []byte("msi"), 0600)
		}
	}
	return nil, errors.New("light called without -out")
}

func TestSuppressedICEValidations(t *testing.T) {
	want := []string{"ICE61", "ICE91"}
	if !reflect.DeepEqual(SuppressedICEValidations, want) {
		t.Errorf("SuppressedICEValidations = %v, want exactly %v", SuppressedICEValidations, want)
	}
}

func TestWixPackager_Package(t *testing.T) {
	workDir := t.TempDir()
	runner := &recordingRunner{handler: lightWritesOutput}

	artifact, err := NewWixPackager(runner, nil).Package(context.Background(), windowsRequest(workDir))
	if err != nil {
		t.Fatalf("Package() error = %v", err)
	}

	if artifact.Path != filepath.Join(workDir, "lapce-v1.2.3.msi") {
		t.Errorf("artifact path = %s", artifact.Path)
	}
	if artifact.Type != "msi" || artifact.Platform != entities.PlatformWindows || artifact.Name != "Lapce" {
		t.Errorf("unexpected artifact %+v", artifact)
	}

	lines := runner.lines()
	if len(lines) != 2 {
		t.Fatalf("expected candle then light, got %v", lines)
	}

	candle := lines[0]
	for _, want := range []string{
		"candle -nologo -arch x64",
		"-ext WixUIExtension -ext WixUtilExtension",
		"-dBinaryPath=/src/target/lapce.exe -dManufacturer=Lapce -dVersion=1.2.3",
		"extra/windows/wix/lapce.wxs",
	} {
		if !strings.Contains(candle, want) {
			t.Errorf("candle = %q, missing %q", candle, want)
		}
	}

	light := lines[1]
	if !strings.Contains(light, "-sice:ICE61 -sice:ICE91") {
		t.Errorf("light = %q, want ICE61 and ICE91 suppressed", light)
	}
	if strings.Contains(light, "-sval") || strings.Count(light, "-sice:") != 2 {
		t.Errorf("light = %q, must suppress only the listed validations", light)
	}
}

func TestWixPackager_Failures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*gateways.PackageRequest)
		handler func(gateways.Command) (*gateways.CommandResult, error)
		reason  string
	}{
		{
			name:   "missing source",
			mutate: func(r *gateways.PackageRequest) { r.Definition.Installer.Source = "" },
			reason: "not configured",
		},
		{
			name:   "two binaries",
			mutate: func(r *gateways.PackageRequest) { r.Binaries = append(r.Binaries, r.Binaries[0]) },
			reason: "exactly one binary",
		},
		{
			name: "candle fails",
			handler: func(cmd gateways.Command) (*gateways.CommandResult, error) {
				if cmd.Name == "candle" {
					return nil, &CommandError{Command: "candle", ExitCode: 1}
				}
				return &gateways.CommandResult{}, nil
			},
			reason: "candle failed",
		},
		{
			name: "light produces nothing",
			handler: func(gateways.Command) (*gateways.CommandResult, error) {
				return &gateways.CommandResult{}, nil
			},
			reason: "no installer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := windowsRequest(t.TempDir())
			if tt.mutate != nil {
				tt.mutate(&req)
			}

			_, err := NewWixPackager(&recordingRunner{handler: tt.handler}, nil).Package(context.Background(), req)
			if !errors.Is(err, entities.ErrPackagingFailed) {
				t.Fatalf("Package() error = %v, want ErrPackagingFailed", err)
			}
			if !strings.Contains(err.Error(), tt.reason) {
				t.Errorf("Package() error = %v, want reason %q", err, tt.reason)
			}
		})
	}
}
