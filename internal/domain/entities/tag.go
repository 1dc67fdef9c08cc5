package entities

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// releaseTagPattern gates tags before semver parsing. Build metadata is not
// accepted, and numeric parts must not carry leading zeros.
var releaseTagPattern = regexp.MustCompile(`^v(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)(-[0-9A-Za-z-]+(\.[0-9A-Za-z-]+)*)?$`)

// ReleaseTag is a validated version tag such as v1.2.3 or v0.4.0-rc.1.
// The zero value is not a valid tag; use ParseReleaseTag.
type ReleaseTag struct {
	name    string
	version *semver.Version
}

// ParseReleaseTag validates raw and returns the immutable tag.
func ParseReleaseTag(raw string) (ReleaseTag, error) {
	if !releaseTagPattern.MatchString(raw) {
		return ReleaseTag{}, fmt.Errorf("%w: %q does not match v<major>.<minor>.<patch>[-suffix]", ErrInvalidTag, raw)
	}

	version, err := semver.StrictNewVersion(strings.TrimPrefix(raw, "v"))
	if err != nil {
		return ReleaseTag{}, fmt.Errorf("%w: %q: %v", ErrInvalidTag, raw, err)
	}

	return ReleaseTag{name: raw, version: version}, nil
}

// String returns the tag exactly as it was pushed
func (t ReleaseTag) String() string {
	return t.name
}

// IsZero reports whether t was never parsed
func (t ReleaseTag) IsZero() bool {
	return t.version == nil
}

// Prerelease reports whether the tag carries a -suffix
func (t ReleaseTag) Prerelease() bool {
	return t.version != nil && t.version.Prerelease() != ""
}
