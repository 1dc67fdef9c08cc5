package entities

import "fmt"

// Platform identifies a release platform
type Platform string

// Supported release platforms
const (
	PlatformMacOS   Platform = "macos"
	PlatformWindows Platform = "windows"
)

// Phase names a pipeline phase. Phase names appear in terminal statuses
// such as "failed:notarize".
type Phase string

// Pipeline phases in execution order
const (
	PhaseValidate Phase = "validate"
	PhaseBuild    Phase = "build"
	PhasePackage  Phase = "package"
	PhaseSign     Phase = "sign"
	PhaseNotarize Phase = "notarize"
	PhaseRename   Phase = "rename"
	PhasePublish  Phase = "publish"
)

// JobStatus is the lifecycle state of a PlatformJob
type JobStatus string

// Job lifecycle states
const (
	JobPending    JobStatus = "pending"
	JobBuilt      JobStatus = "built"
	JobPackaged   JobStatus = "packaged"
	JobSigned     JobStatus = "signed"
	JobNotarizing JobStatus = "notarizing"
	JobNotarized  JobStatus = "notarized"
	JobPublished  JobStatus = "published"
	JobFailed     JobStatus = "failed"
)

// PlatformJob tracks one platform through the pipeline.
// It is owned by a single orchestrator run and never shared.
type PlatformJob struct {
	Platform     Platform
	Targets      []string
	Gatekeeper   bool // requires notarization before publish
	ArtifactPath string
	Status       JobStatus
	FailedPhase  Phase
	History      []JobStatus
}

// NewPlatformJob creates a pending job
func NewPlatformJob(platform Platform, targets []string, gatekeeper bool) *PlatformJob {
	return &PlatformJob{
		Platform:   platform,
		Targets:    append([]string(nil), targets...),
		Gatekeeper: gatekeeper,
		Status:     JobPending,
		History:    []JobStatus{JobPending},
	}
}

// Advance moves the job to next, rejecting any transition outside the lifecycle
func (j *PlatformJob) Advance(next JobStatus) error {
	if !j.canAdvance(next) {
		return fmt.Errorf("illegal job transition %s -> %s on %s", j.Status, next, j.Platform)
	}
	j.Status = next
	j.History = append(j.History, next)
	return nil
}

func (j *PlatformJob) canAdvance(next JobStatus) bool {
	switch j.Status {
	case JobPending:
		return next == JobBuilt || next == JobFailed
	case JobBuilt:
		return next == JobPackaged || next == JobFailed
	case JobPackaged:
		return next == JobSigned || next == JobFailed
	case JobSigned:
		if j.Gatekeeper {
			return next == JobNotarizing || next == JobFailed
		}
		return next == JobPublished || next == JobFailed
	case JobNotarizing:
		return next == JobNotarized || next == JobFailed
	case JobNotarized:
		return next == JobPublished || next == JobFailed
	default:
		return false
	}
}

// Fail marks the job failed in phase. Terminal jobs are left untouched.
func (j *PlatformJob) Fail(phase Phase) {
	if j.Status == JobFailed || j.Status == JobPublished {
		return
	}
	j.Status = JobFailed
	j.FailedPhase = phase
	j.History = append(j.History, JobFailed)
}

// EligibleForPublish reports whether the job's artifact may be uploaded:
// signed for ordinary platforms, notarized for gatekeeper platforms.
func (j *PlatformJob) EligibleForPublish() bool {
	if j.Gatekeeper {
		return j.Status == JobNotarized
	}
	return j.Status == JobSigned
}
