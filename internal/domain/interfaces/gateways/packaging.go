package gateways

import (
	"context"

	"github.com/ochairo/tagship/internal/domain/entities"
)

// PackageRequest carries everything a packager needs for one platform
type PackageRequest struct {
	Product    string
	BinaryName string
	Version    string
	Platform   entities.Platform
	Definition entities.PlatformDefinition
	Binaries   []*entities.Binary
	WorkDir    string
}

// Packager wraps compiled binaries into a platform-native installer.
// Failures are deterministic and return an *entities.PackagingError.
type Packager interface {
	Package(ctx context.Context, req PackageRequest) (*entities.Artifact, error)
}

// Signer embeds a code signature into the artifact in place
type Signer interface {
	Sign(ctx context.Context, artifact *entities.Artifact, cred *entities.Credential) error
}
