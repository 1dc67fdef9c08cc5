package entities

import (
	"path"
	"time"
)

// ReleaseKey addresses one published file: (tag, platform, filename)
type ReleaseKey struct {
	Tag      string
	Platform Platform
	Filename string
}

// String renders the key as tag/platform/filename
func (k ReleaseKey) String() string {
	return path.Join(k.Tag, string(k.Platform), k.Filename)
}

// PublishResult describes a successful upload
type PublishResult struct {
	Key      ReleaseKey
	SHA256   string
	Size     int64
	Attempts int
	Sidecars []ReleaseKey
}

// PipelineResult is the terminal outcome of one platform run
type PipelineResult struct {
	RunID          string
	Tag            string
	Platform       Platform
	Job            *PlatformJob
	Artifact       *Artifact
	Published      *PublishResult
	FailedPhase    Phase
	Err            error
	PhaseDurations map[Phase]time.Duration
	TotalDuration  time.Duration
}

// Success reports whether the platform reached publish
func (r *PipelineResult) Success() bool {
	return r.Err == nil && r.Published != nil
}

// Status returns "success" or "failed:<phase>"
func (r *PipelineResult) Status() string {
	if r.Success() {
		return "success"
	}
	return "failed:" + string(r.FailedPhase)
}
