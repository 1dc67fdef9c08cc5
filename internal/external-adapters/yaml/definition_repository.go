package yaml

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ochairo/tagship/internal/domain/entities"
)

// DefaultDefinitionFile is the release definition file name in the source tree
const DefaultDefinitionFile = "release.yml"

// DefinitionRepository implements repositories.DefinitionRepository using a
// YAML file. Relative paths inside the definition resolve against the file's
// directory.
type DefinitionRepository struct {
	path   string
	parser *DefinitionParser
}

// NewDefinitionRepository creates a repository reading path
func NewDefinitionRepository(path string) *DefinitionRepository {
	return &DefinitionRepository{
		path:   path,
		parser: NewDefinitionParser(),
	}
}

// GetDefinition reads and parses the release definition
func (r *DefinitionRepository) GetDefinition(ctx context.Context) (*entities.ReleaseDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := os.Stat(r.path); os.IsNotExist(err) {
		return nil, fmt.Errorf("release definition not found: %s", r.path)
	}

	def, err := r.parser.ParseFile(r.path)
	if err != nil {
		return nil, err
	}

	baseDir := filepath.Dir(r.path)
	for platform, pd := range def.Platforms {
		pd.Installer.Source = resolve(baseDir, pd.Installer.Source)
		pd.DiskImage.BundleTemplate = resolve(baseDir, pd.DiskImage.BundleTemplate)
		pd.DiskImage.Entitlements = resolve(baseDir, pd.DiskImage.Entitlements)
		def.Platforms[platform] = pd
	}

	return def, nil
}

func resolve(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
