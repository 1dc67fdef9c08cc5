package gateways

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ochairo/tagship/internal/domain/entities"
	"github.com/ochairo/tagship/internal/domain/interfaces"
	"github.com/ochairo/tagship/internal/domain/interfaces/gateways"
)

// DiskImagePackager builds a universal .app bundle and wraps it in a
// compressed disk image
type DiskImagePackager struct {
	runner gateways.CommandRunner
	logger interfaces.Logger
}

// NewDiskImagePackager creates a disk-image packager
func NewDiskImagePackager(runner gateways.CommandRunner, logger interfaces.Logger) *DiskImagePackager {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &DiskImagePackager{runner: runner, logger: logger}
}

// Package produces <binary>-<version>.dmg under req.WorkDir
func (p *DiskImagePackager) Package(ctx context.Context, req gateways.PackageRequest) (*entities.Artifact, error) {
	image := req.Definition.DiskImage
	if image.BundleTemplate == "" {
		return nil, &entities.PackagingError{Reason: "bundle template is not configured"}
	}
	if len(req.Binaries) == 0 {
		return nil, &entities.PackagingError{Reason: "no binaries to package"}
	}

	volume := image.VolumeName
	if volume == "" {
		volume = req.Product
	}

	universal := filepath.Join(req.WorkDir, req.BinaryName+"-universal")
	if err := p.lipo(ctx, req.Binaries, universal); err != nil {
		return nil, err
	}

	staging := filepath.Join(req.WorkDir, "dmg-staging")
	if err := os.RemoveAll(staging); err != nil {
		return nil, &entities.PackagingError{Reason: "failed to clear staging directory", Err: err}
	}
	bundle := filepath.Join(staging, req.Product+".app")
	if err := copyTree(image.BundleTemplate, bundle); err != nil {
		return nil, &entities.PackagingError{Reason: "failed to stage app bundle", Err: err}
	}
	if err := copyFile(universal, filepath.Join(bundle, "Contents", "MacOS", req.BinaryName), 0755); err != nil {
		return nil, &entities.PackagingError{Reason: "failed to install binary into bundle", Err: err}
	}
	if err := os.Symlink("/Applications", filepath.Join(staging, "Applications")); err != nil {
		return nil, &entities.PackagingError{Reason: "failed to create Applications link", Err: err}
	}

	dmgPath := filepath.Join(req.WorkDir, fmt.Sprintf("%s-%s.dmg", req.BinaryName, req.Version))
	p.logger.Info("creating disk image", interfaces.F("volume", volume), interfaces.F("bundle", bundle))
	if _, err := p.runner.Run(ctx, gateways.Command{
		Name: "hdiutil",
		Args: []string{
			"create", dmgPath,
			"-volname", volume,
			"-fs", "HFS+",
			"-srcfolder", staging,
			"-ov",
			"-format", "UDZO",
		},
		Timeout:     defaultPackageTimeout,
		Description: "create disk image",
	}); err != nil {
		return nil, &entities.PackagingError{Reason: "hdiutil create failed", Err: err}
	}

	if _, err := os.Stat(dmgPath); err != nil {
		return nil, &entities.PackagingError{Reason: "hdiutil produced no image", Err: err}
	}

	return &entities.Artifact{
		Name:     req.Product,
		Version:  req.Version,
		Platform: req.Platform,
		Path:     dmgPath,
		Type:     "dmg",
	}, nil
}

// lipo merges the per-arch binaries into one universal binary. A single
// binary is copied as-is.
func (p *DiskImagePackager) lipo(ctx context.Context, binaries []*entities.Binary, output string) error {
	if len(binaries) == 1 {
		if err := copyFile(binaries[0].Path, output, 0755); err != nil {
			return &entities.PackagingError{Reason: "failed to copy binary", Err: err}
		}
		return nil
	}

	args := make([]string, 0, len(binaries)+3)
	for _, binary := range binaries {
		args = append(args, binary.Path)
	}
	args = append(args, "-create", "-output", output)

	if _, err := p.runner.Run(ctx, gateways.Command{
		Name:        "lipo",
		Args:        args,
		Timeout:     defaultPackageTimeout,
		Description: "create universal binary",
	}); err != nil {
		return &entities.PackagingError{Reason: "lipo failed", Err: err}
	}
	return nil
}
