package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlatformJob_Lifecycle_Ordinary(t *testing.T) {
	job := NewPlatformJob(PlatformWindows, []string{"x86_64-pc-windows-msvc"}, false)

	for _, next := range []JobStatus{JobBuilt, JobPackaged, JobSigned} {
		require.NoError(t, job.Advance(next))
	}
	assert.True(t, job.EligibleForPublish())
	require.NoError(t, job.Advance(JobPublished))
	assert.Equal(t, []JobStatus{JobPending, JobBuilt, JobPackaged, JobSigned, JobPublished}, job.History)
}

func TestPlatformJob_Lifecycle_Gatekeeper(t *testing.T) {
	job := NewPlatformJob(PlatformMacOS, []string{"x86_64-apple-darwin", "aarch64-apple-darwin"}, true)

	for _, next := range []JobStatus{JobBuilt, JobPackaged, JobSigned} {
		require.NoError(t, job.Advance(next))
	}
	assert.False(t, job.EligibleForPublish(), "signed is not enough on a gatekeeper platform")
	assert.Error(t, job.Advance(JobPublished))

	require.NoError(t, job.Advance(JobNotarizing))
	assert.False(t, job.EligibleForPublish())
	require.NoError(t, job.Advance(JobNotarized))
	assert.True(t, job.EligibleForPublish())
}

func TestPlatformJob_IllegalTransitions(t *testing.T) {
	job := NewPlatformJob(PlatformWindows, nil, false)

	assert.Error(t, job.Advance(JobSigned))
	assert.Error(t, job.Advance(JobPublished))
	assert.Equal(t, JobPending, job.Status)

	require.NoError(t, job.Advance(JobBuilt))
	assert.Error(t, job.Advance(JobNotarizing))
}

func TestPlatformJob_Fail(t *testing.T) {
	job := NewPlatformJob(PlatformMacOS, nil, true)
	require.NoError(t, job.Advance(JobBuilt))

	job.Fail(PhasePackage)
	assert.Equal(t, JobFailed, job.Status)
	assert.Equal(t, PhasePackage, job.FailedPhase)
	assert.False(t, job.EligibleForPublish())

	// a second failure does not overwrite the first phase
	job.Fail(PhaseSign)
	assert.Equal(t, PhasePackage, job.FailedPhase)
	assert.Error(t, job.Advance(JobPackaged))
}

func TestNewPlatformJob_CopiesTargets(t *testing.T) {
	targets := []string{"a", "b"}
	job := NewPlatformJob(PlatformMacOS, targets, true)
	targets[0] = "changed"
	assert.Equal(t, "a", job.Targets[0])
}
