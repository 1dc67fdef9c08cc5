package gateways

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ochairo/tagship/internal/domain/entities"
	"github.com/ochairo/tagship/internal/domain/interfaces/gateways"
)

func TestCargoToolchain_Build(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		profile    string
		wantPath   string
		wantMacEnv bool
	}{
		{
			name:       "darwin target gets deployment target",
			target:     "x86_64-apple-darwin",
			profile:    "release-lto",
			wantPath:   "target/x86_64-apple-darwin/release-lto/lapce",
			wantMacEnv: true,
		},
		{
			name:     "windows target gets exe suffix",
			target:   "x86_64-pc-windows-msvc",
			profile:  "release-lto",
			wantPath: "target/x86_64-pc-windows-msvc/release-lto/lapce.exe",
		},
		{
			name:     "dev profile builds into debug",
			target:   "x86_64-pc-windows-msvc",
			profile:  "dev",
			wantPath: "target/x86_64-pc-windows-msvc/debug/lapce.exe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := t.TempDir()
			want := filepath.Join(src, filepath.FromSlash(tt.wantPath))

			runner := &recordingRunner{handler: func(gateways.Command) (*gateways.CommandResult, error) {
				if err := os.MkdirAll(filepath.Dir(want), 0750); err != nil {
					return nil, err
				}
				return &gateways.CommandResult{}, os.WriteFile(want, []byte("bin"), 0600)
			}}

			tc := NewCargoToolchain(runner, src, "lapce", tt.profile, nil)
			binary, err := tc.Build(context.Background(), tt.target)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}

			if binary.Path != want || binary.Target != tt.target {
				t.Errorf("Build() = %+v, want path %s", binary, want)
			}

			cmd, ok := runner.find("cargo", "build")
			if !ok {
				t.Fatal("cargo build was not invoked")
			}
			if cmd.Dir != src {
				t.Errorf("cargo ran in %q, want %q", cmd.Dir, src)
			}
			_, hasEnv := cmd.Env[macOSDeploymentVariable]
			if hasEnv != tt.wantMacEnv {
				t.Errorf("%s set = %v, want %v", macOSDeploymentVariable, hasEnv, tt.wantMacEnv)
			}
		})
	}
}

func TestCargoToolchain_BuildFailureWrapsErrBuild(t *testing.T) {
	runner := &recordingRunner{handler: func(gateways.Command) (*gateways.CommandResult, error) {
		return &gateways.CommandResult{ExitCode: 101}, &CommandError{Command: "cargo build", ExitCode: 101}
	}}

	_, err := NewCargoToolchain(runner, t.TempDir(), "lapce", "release", nil).
		Build(context.Background(), "aarch64-apple-darwin")
	if !errors.Is(err, entities.ErrBuild) {
		t.Fatalf("Build() error = %v, want ErrBuild", err)
	}

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) || cmdErr.ExitCode != 101 {
		t.Errorf("Build() error should carry the command failure, got %v", err)
	}
}

func TestCargoToolchain_MissingBinary(t *testing.T) {
	runner := &recordingRunner{}

	_, err := NewCargoToolchain(runner, t.TempDir(), "lapce", "release", nil).
		Build(context.Background(), "x86_64-pc-windows-msvc")
	if !errors.Is(err, entities.ErrBuild) {
		t.Errorf("Build() error = %v, want ErrBuild", err)
	}
}

func TestCargoToolchain_EmptyTarget(t *testing.T) {
	runner := &recordingRunner{}

	_, err := NewCargoToolchain(runner, t.TempDir(), "lapce", "", nil).Build(context.Background(), " ")
	if !errors.Is(err, entities.ErrBuild) {
		t.Errorf("Build() error = %v, want ErrBuild", err)
	}
	if len(runner.lines()) != 0 {
		t.Errorf("no command should run for an empty target, got %v", runner.lines())
	}
}
