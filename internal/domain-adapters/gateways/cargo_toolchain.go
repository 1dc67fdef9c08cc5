package gateways

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ochairo/tagship/internal/domain/entities"
	"github.com/ochairo/tagship/internal/domain/interfaces"
	"github.com/ochairo/tagship/internal/domain/interfaces/gateways"
)

const (
	defaultBuildTimeout     = 60 * time.Minute
	defaultMacOSDeployment  = "10.11"
	macOSDeploymentVariable = "MACOSX_DEPLOYMENT_TARGET"
)

// CargoToolchain builds the product binary with cargo for one target triple
type CargoToolchain struct {
	runner    gateways.CommandRunner
	sourceDir string
	binary    string
	profile   string
	timeout   time.Duration
	logger    interfaces.Logger

	// MacOSDeploymentTarget is exported to darwin builds
	MacOSDeploymentTarget string
}

// NewCargoToolchain creates a toolchain that builds binary from the cargo
// workspace at sourceDir using profile
func NewCargoToolchain(runner gateways.CommandRunner, sourceDir, binary, profile string, logger interfaces.Logger) *CargoToolchain {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	if profile == "" {
		profile = "release"
	}
	return &CargoToolchain{
		runner:                runner,
		sourceDir:             sourceDir,
		binary:                binary,
		profile:               profile,
		timeout:               defaultBuildTimeout,
		logger:                logger,
		MacOSDeploymentTarget: defaultMacOSDeployment,
	}
}

// Build runs cargo build for target and returns the compiled binary
func (t *CargoToolchain) Build(ctx context.Context, target string) (*entities.Binary, error) {
	if strings.TrimSpace(target) == "" {
		return nil, fmt.Errorf("%w: empty target triple", entities.ErrBuild)
	}

	env := map[string]string{}
	if strings.Contains(target, "apple-darwin") {
		env[macOSDeploymentVariable] = t.MacOSDeploymentTarget
	}

	t.logger.Info("building target",
		interfaces.F("target", target),
		interfaces.F("profile", t.profile),
	)

	_, err := t.runner.Run(ctx, gateways.Command{
		Name: "cargo",
		Args: []string{
			"build",
			"--profile", t.profile,
			"--target", target,
			"--bin", t.binary,
			"--locked",
		},
		Dir:         t.sourceDir,
		Env:         env,
		Timeout:     t.timeout,
		Description: "cargo build " + target,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", entities.ErrBuild, target, err)
	}

	path := t.outputPath(target)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s: binary missing after build: %w", entities.ErrBuild, target, err)
	}

	return &entities.Binary{Target: target, Path: path}, nil
}

// outputPath mirrors cargo's target/<triple>/<profile dir>/<bin> layout
func (t *CargoToolchain) outputPath(target string) string {
	name := t.binary
	if strings.Contains(target, "windows") {
		name += ".exe"
	}
	return filepath.Join(t.sourceDir, "target", target, profileDir(t.profile), name)
}

// profileDir maps the built-in dev profile to its "debug" directory
func profileDir(profile string) string {
	if profile == "dev" || profile == "test" {
		return "debug"
	}
	return profile
}
