// Package entities defines core domain models and data structures.
package entities

import (
	"path/filepath"
	"strings"
)

// Artifact is the single installer file a platform job produces. It is
// mutated in place by signing and stapling; earlier versions are overwritten.
type Artifact struct {
	Name     string
	Version  string
	Platform Platform
	Path     string
	Type     string // "dmg", "msi"
	SHA256   string // content hash, set once the artifact is final
}

// FileName returns the base name of the artifact on disk
func (a *Artifact) FileName() string {
	return filepath.Base(a.Path)
}

// Ext returns the file extension without the dot
func (a *Artifact) Ext() string {
	return strings.TrimPrefix(filepath.Ext(a.Path), ".")
}

// Binary is a toolchain output for one target triple
type Binary struct {
	Target string
	Path   string
}
