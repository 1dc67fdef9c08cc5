// Package services implements domain logic shared by the release pipeline.
package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ochairo/tagship/internal/domain/entities"
)

// KnownPlatforms lists every platform with a pipeline variant
var KnownPlatforms = []entities.Platform{
	entities.PlatformMacOS,
	entities.PlatformWindows,
}

// PlanStatus represents the readiness of a release plan
type PlanStatus string

// Release plan statuses
const (
	PlanReady                PlanStatus = "ready"
	PlanNoPlatforms          PlanStatus = "no_platforms"
	PlanUnknownPlatforms     PlanStatus = "unknown_platforms"
	PlanUndefinedPlatforms   PlanStatus = "undefined_platforms"
	PlanIncompleteDefinition PlanStatus = "incomplete_definition"
)

// PlanValidation is the result of checking requested platforms against
// the release definition
type PlanValidation struct {
	Status              PlanStatus
	Requested           []entities.Platform
	UnknownPlatforms    []entities.Platform
	UndefinedPlatforms  []entities.Platform
	IncompletePlatforms []entities.Platform
}

// IsReady returns true if every requested platform can run
func (v *PlanValidation) IsReady() bool {
	return v.Status == PlanReady
}

// ErrorMessage returns a human-readable error message if not ready
func (v *PlanValidation) ErrorMessage() string {
	switch v.Status {
	case PlanReady:
		return ""
	case PlanNoPlatforms:
		return "No platforms requested"
	case PlanUnknownPlatforms:
		return fmt.Sprintf("Unknown platforms: %s (supported: %s)", platformsToString(v.UnknownPlatforms), platformsToString(KnownPlatforms))
	case PlanUndefinedPlatforms:
		return fmt.Sprintf("Platforms missing from release definition: %s", platformsToString(v.UndefinedPlatforms))
	case PlanIncompleteDefinition:
		return fmt.Sprintf("Release definition incomplete for: %s", platformsToString(v.IncompletePlatforms))
	default:
		return "Unknown status"
	}
}

// ReleaseService handles release planning and naming rules
type ReleaseService struct{}

// NewReleaseService creates a new release service
func NewReleaseService() *ReleaseService {
	return &ReleaseService{}
}

// ValidatePlan checks that every requested platform is known and fully
// described by def. An empty request means every platform in def. Repeated
// platforms collapse to their first occurrence so each gets one job.
func (s *ReleaseService) ValidatePlan(def *entities.ReleaseDefinition, requested []entities.Platform) *PlanValidation {
	if len(requested) == 0 {
		requested = s.definedPlatforms(def)
	} else {
		requested = uniquePlatforms(requested)
	}

	validation := &PlanValidation{Requested: requested}
	validation.UnknownPlatforms = s.findUnknownPlatforms(requested)

	for _, platform := range requested {
		platformDef, ok := def.Platforms[platform]
		if !ok {
			if s.isKnownPlatform(platform) {
				validation.UndefinedPlatforms = append(validation.UndefinedPlatforms, platform)
			}
			continue
		}
		if !s.isComplete(platform, platformDef) {
			validation.IncompletePlatforms = append(validation.IncompletePlatforms, platform)
		}
	}

	switch {
	case len(requested) == 0:
		validation.Status = PlanNoPlatforms
	case len(validation.UnknownPlatforms) > 0:
		validation.Status = PlanUnknownPlatforms
	case len(validation.UndefinedPlatforms) > 0:
		validation.Status = PlanUndefinedPlatforms
	case len(validation.IncompletePlatforms) > 0 || def.Product == "" || def.Binary == "":
		validation.Status = PlanIncompleteDefinition
	default:
		validation.Status = PlanReady
	}

	return validation
}

// FinalFileName returns the published name <Product>-<platform>.<ext>
func (s *ReleaseService) FinalFileName(product string, platform entities.Platform) string {
	return fmt.Sprintf("%s-%s.%s", product, platform, platform.Extension())
}

func uniquePlatforms(platforms []entities.Platform) []entities.Platform {
	seen := make(map[entities.Platform]bool, len(platforms))
	unique := make([]entities.Platform, 0, len(platforms))
	for _, platform := range platforms {
		if seen[platform] {
			continue
		}
		seen[platform] = true
		unique = append(unique, platform)
	}
	return unique
}

func (s *ReleaseService) definedPlatforms(def *entities.ReleaseDefinition) []entities.Platform {
	platforms := make([]entities.Platform, 0, len(def.Platforms))
	for platform := range def.Platforms {
		platforms = append(platforms, platform)
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })
	return platforms
}

// isComplete checks the packaging inputs the platform's packager needs
func (s *ReleaseService) isComplete(platform entities.Platform, def entities.PlatformDefinition) bool {
	if len(def.Targets) == 0 {
		return false
	}
	switch platform {
	case entities.PlatformWindows:
		return def.Installer.Source != ""
	case entities.PlatformMacOS:
		return def.DiskImage.BundleTemplate != ""
	default:
		return false
	}
}

func (s *ReleaseService) isKnownPlatform(platform entities.Platform) bool {
	for _, known := range KnownPlatforms {
		if known == platform {
			return true
		}
	}
	return false
}

// findUnknownPlatforms returns platforms that have no pipeline variant
func (s *ReleaseService) findUnknownPlatforms(requested []entities.Platform) []entities.Platform {
	var unknown []entities.Platform
	for _, p := range requested {
		if !s.isKnownPlatform(p) {
			unknown = append(unknown, p)
		}
	}
	return unknown
}

// platformsToString converts a slice of platforms to a comma-separated string
func platformsToString(platforms []entities.Platform) string {
	strs := make([]string, len(platforms))
	for i, p := range platforms {
		strs[i] = string(p)
	}
	return strings.Join(strs, ", ")
}
