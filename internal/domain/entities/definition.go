package entities

// ReleaseDefinition describes what a release is made of, loaded from release.yml
type ReleaseDefinition struct {
	Product   string
	Binary    string
	Profile   string // cargo profile, e.g. "release-lto"
	Platforms map[Platform]PlatformDefinition
}

// PlatformDefinition holds the packaging inputs for one platform
type PlatformDefinition struct {
	Targets   []string
	Installer InstallerDefinition
	DiskImage DiskImageDefinition
}

// InstallerDefinition configures the WiX installer-table packager
type InstallerDefinition struct {
	Source     string // .wxs file
	Arch       string // candle -arch value
	Extensions []string
	Defines    map[string]string
}

// DiskImageDefinition configures the disk-image packager
type DiskImageDefinition struct {
	BundleTemplate string // .app bundle skeleton (Info.plist, resources)
	Entitlements   string
	VolumeName     string
}

// Extension returns the installer extension for platform
func (p Platform) Extension() string {
	switch p {
	case PlatformMacOS:
		return "dmg"
	case PlatformWindows:
		return "msi"
	default:
		return "bin"
	}
}
