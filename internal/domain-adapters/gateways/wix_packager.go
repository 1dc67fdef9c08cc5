package gateways

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ochairo/tagship/internal/domain/entities"
	"github.com/ochairo/tagship/internal/domain/interfaces"
	"github.com/ochairo/tagship/internal/domain/interfaces/gateways"
)

// SuppressedICEValidations lists the installer validation checks the linker
// skips, and nothing else.
//
//   - ICE61: the upgrade table matches the installed version itself, so a
//     same-version package replaces the previous install.
//   - ICE91: per-user directories in a per-machine package. Install scope is
//     chosen in the installer UI.
var SuppressedICEValidations = []string{"ICE61", "ICE91"}

var defaultWixExtensions = []string{"WixUIExtension", "WixUtilExtension"}

const defaultPackageTimeout = 15 * time.Minute

// WixPackager builds an installer-table package with candle and light
type WixPackager struct {
	runner gateways.CommandRunner
	logger interfaces.Logger
}

// NewWixPackager creates a WiX packager
func NewWixPackager(runner gateways.CommandRunner, logger interfaces.Logger) *WixPackager {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &WixPackager{runner: runner, logger: logger}
}

// Package compiles the .wxs source and links it into an .msi under req.WorkDir
func (p *WixPackager) Package(ctx context.Context, req gateways.PackageRequest) (*entities.Artifact, error) {
	installer := req.Definition.Installer
	if installer.Source == "" {
		return nil, &entities.PackagingError{Reason: "installer source (.wxs) is not configured"}
	}
	if len(req.Binaries) != 1 {
		return nil, &entities.PackagingError{Reason: fmt.Sprintf("installer expects exactly one binary, got %d", len(req.Binaries))}
	}

	arch := installer.Arch
	if arch == "" {
		arch = "x64"
	}
	extensions := installer.Extensions
	if len(extensions) == 0 {
		extensions = defaultWixExtensions
	}

	objPath := filepath.Join(req.WorkDir, strings.ToLower(req.BinaryName)+".wixobj")
	msiPath := filepath.Join(req.WorkDir, fmt.Sprintf("%s-%s.msi", req.BinaryName, req.Version))
	if err := os.Remove(msiPath); err != nil && !os.IsNotExist(err) {
		return nil, &entities.PackagingError{Reason: "failed to remove stale installer", Err: err}
	}

	defines := map[string]string{
		"Version":    strings.TrimPrefix(req.Version, "v"),
		"BinaryPath": req.Binaries[0].Path,
	}
	for key, value := range installer.Defines {
		defines[key] = value
	}

	candleArgs := []string{"-nologo", "-arch", arch}
	candleArgs = append(candleArgs, extensionArgs(extensions)...)
	candleArgs = append(candleArgs, defineArgs(defines)...)
	candleArgs = append(candleArgs, "-out", objPath, installer.Source)

	p.logger.Info("compiling installer", interfaces.F("source", installer.Source), interfaces.F("arch", arch))
	if _, err := p.runner.Run(ctx, gateways.Command{
		Name:        "candle",
		Args:        candleArgs,
		Timeout:     defaultPackageTimeout,
		Description: "compile installer source",
	}); err != nil {
		return nil, &entities.PackagingError{Reason: "candle failed", Err: err}
	}

	lightArgs := []string{"-nologo"}
	lightArgs = append(lightArgs, extensionArgs(extensions)...)
	lightArgs = append(lightArgs, suppressionArgs()...)
	lightArgs = append(lightArgs, "-out", msiPath, objPath)

	if _, err := p.runner.Run(ctx, gateways.Command{
		Name:        "light",
		Args:        lightArgs,
		Timeout:     defaultPackageTimeout,
		Description: "link installer",
	}); err != nil {
		return nil, &entities.PackagingError{Reason: "light failed", Err: err}
	}

	if _, err := os.Stat(msiPath); err != nil {
		return nil, &entities.PackagingError{Reason: "linker produced no installer", Err: err}
	}

	return &entities.Artifact{
		Name:     req.Product,
		Version:  req.Version,
		Platform: req.Platform,
		Path:     msiPath,
		Type:     "msi",
	}, nil
}

func extensionArgs(extensions []string) []string {
	args := make([]string, 0, len(extensions)*2)
	for _, ext := range extensions {
		args = append(args, "-ext", ext)
	}
	return args
}

// defineArgs renders -dKey=Value in key order
func defineArgs(defines map[string]string) []string {
	keys := make([]string, 0, len(defines))
	for key := range defines {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	args := make([]string, 0, len(keys))
	for _, key := range keys {
		args = append(args, fmt.Sprintf("-d%s=%s", key, defines[key]))
	}
	return args
}

func suppressionArgs() []string {
	args := make([]string, 0, len(SuppressedICEValidations))
	for _, ice := range SuppressedICEValidations {
		args = append(args, "-sice:"+ice)
	}
	return args
}
