package orchestrators

import (
	"context"

	"github.com/ochairo/tagship/internal/domain/entities"
	"github.com/ochairo/tagship/internal/domain/interfaces/gateways"
)

// PlatformPipeline is the platform-specific part of a release run. Adding a
// platform means adding a variant; the orchestrator's phase sequence is shared.
type PlatformPipeline interface {
	Platform() entities.Platform

	// RequiresNotarization is true for gatekeeper platforms
	RequiresNotarization() bool

	Package(ctx context.Context, req gateways.PackageRequest) (*entities.Artifact, error)
	Sign(ctx context.Context, artifact *entities.Artifact, cred *entities.Credential) error
}

// windowsPipeline builds an installer-table package and signs it
type windowsPipeline struct {
	packager gateways.Packager
	signer   gateways.Signer
}

// NewWindowsPipeline creates the installer-table variant
func NewWindowsPipeline(packager gateways.Packager, signer gateways.Signer) PlatformPipeline {
	return &windowsPipeline{packager: packager, signer: signer}
}

func (p *windowsPipeline) Platform() entities.Platform { return entities.PlatformWindows }

func (p *windowsPipeline) RequiresNotarization() bool { return false }

func (p *windowsPipeline) Package(ctx context.Context, req gateways.PackageRequest) (*entities.Artifact, error) {
	return p.packager.Package(ctx, req)
}

func (p *windowsPipeline) Sign(ctx context.Context, artifact *entities.Artifact, cred *entities.Credential) error {
	return p.signer.Sign(ctx, artifact, cred)
}

// macOSPipeline builds a universal disk image, signs it and requires
// notarization before publish
type macOSPipeline struct {
	packager gateways.Packager
	signer   gateways.Signer
}

// NewMacOSPipeline creates the disk-image variant
func NewMacOSPipeline(packager gateways.Packager, signer gateways.Signer) PlatformPipeline {
	return &macOSPipeline{packager: packager, signer: signer}
}

func (p *macOSPipeline) Platform() entities.Platform { return entities.PlatformMacOS }

func (p *macOSPipeline) RequiresNotarization() bool { return true }

func (p *macOSPipeline) Package(ctx context.Context, req gateways.PackageRequest) (*entities.Artifact, error) {
	return p.packager.Package(ctx, req)
}

func (p *macOSPipeline) Sign(ctx context.Context, artifact *entities.Artifact, cred *entities.Credential) error {
	return p.signer.Sign(ctx, artifact, cred)
}
