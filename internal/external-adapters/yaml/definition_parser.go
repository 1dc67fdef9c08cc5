// Package yaml provides the YAML release definition parser and repository.
package yaml

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ochairo/tagship/internal/domain/entities"
)

// DefaultProfile is the cargo profile used when the definition names none
const DefaultProfile = "release-lto"

// yamlDefinition represents the raw YAML structure of release.yml
type yamlDefinition struct {
	Product   string                  `yaml:"product"`
	Binary    string                  `yaml:"binary"`
	Profile   string                  `yaml:"profile"`
	Platforms map[string]yamlPlatform `yaml:"platforms"`
}

type yamlPlatform struct {
	Targets   []string      `yaml:"targets"`
	Installer yamlInstaller `yaml:"installer"`
	DiskImage yamlDiskImage `yaml:"disk_image"`
}

type yamlInstaller struct {
	Source     string            `yaml:"source"`
	Arch       string            `yaml:"arch"`
	Extensions []string          `yaml:"extensions"`
	Defines    map[string]string `yaml:"defines"`
}

type yamlDiskImage struct {
	BundleTemplate string `yaml:"bundle_template"`
	Entitlements   string `yaml:"entitlements"`
	VolumeName     string `yaml:"volume_name"`
}

// DefinitionParser parses release.yml files
type DefinitionParser struct{}

// NewDefinitionParser creates a new YAML parser
func NewDefinitionParser() *DefinitionParser {
	return &DefinitionParser{}
}

// ParseFile parses a YAML definition file into a ReleaseDefinition entity
func (p *DefinitionParser) ParseFile(filePath string) (*entities.ReleaseDefinition, error) {
	//nolint:gosec // G304: filePath is the release definition path from config
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
	}

	return p.Parse(data)
}

// Parse parses YAML bytes into a ReleaseDefinition entity. Unknown keys are
// rejected so a misspelled field fails loudly instead of being ignored.
func (p *DefinitionParser) Parse(data []byte) (*entities.ReleaseDefinition, error) {
	var raw yamlDefinition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("release definition is empty")
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if raw.Product == "" {
		return nil, fmt.Errorf("release definition must have a product")
	}
	if raw.Binary == "" {
		return nil, fmt.Errorf("release definition must have a binary")
	}
	if len(raw.Platforms) == 0 {
		return nil, fmt.Errorf("release definition must list at least one platform")
	}

	def := &entities.ReleaseDefinition{
		Product:   raw.Product,
		Binary:    raw.Binary,
		Profile:   raw.Profile,
		Platforms: make(map[entities.Platform]entities.PlatformDefinition, len(raw.Platforms)),
	}
	if def.Profile == "" {
		def.Profile = DefaultProfile
	}

	names := make([]string, 0, len(raw.Platforms))
	for name := range raw.Platforms {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		platform, err := convertPlatform(name, raw.Platforms[name], raw.Product)
		if err != nil {
			return nil, err
		}
		def.Platforms[entities.Platform(name)] = platform
	}

	return def, nil
}

func convertPlatform(name string, yp yamlPlatform, product string) (entities.PlatformDefinition, error) {
	if len(yp.Targets) == 0 {
		return entities.PlatformDefinition{}, fmt.Errorf("platform %s must list at least one target", name)
	}

	pd := entities.PlatformDefinition{
		Targets: yp.Targets,
		Installer: entities.InstallerDefinition{
			Source:     yp.Installer.Source,
			Arch:       yp.Installer.Arch,
			Extensions: yp.Installer.Extensions,
			Defines:    yp.Installer.Defines,
		},
		DiskImage: entities.DiskImageDefinition{
			BundleTemplate: yp.DiskImage.BundleTemplate,
			Entitlements:   yp.DiskImage.Entitlements,
			VolumeName:     yp.DiskImage.VolumeName,
		},
	}

	switch entities.Platform(name) {
	case entities.PlatformWindows:
		if pd.Installer.Source == "" {
			return pd, fmt.Errorf("platform windows requires installer.source")
		}
		if len(pd.Targets) != 1 {
			return pd, fmt.Errorf("platform windows builds exactly one target, got %d", len(pd.Targets))
		}
	case entities.PlatformMacOS:
		if pd.DiskImage.BundleTemplate == "" {
			return pd, fmt.Errorf("platform macos requires disk_image.bundle_template")
		}
		if pd.DiskImage.VolumeName == "" {
			pd.DiskImage.VolumeName = product
		}
	default:
		return pd, fmt.Errorf("unsupported platform in release definition: %s", name)
	}

	return pd, nil
}
