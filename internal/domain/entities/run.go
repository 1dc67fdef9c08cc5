package entities

import "time"

// PhaseRecord is one ledger row: a phase that ran for a platform in a run
type PhaseRecord struct {
	RunID     string
	Tag       string
	Platform  Platform
	Phase     Phase
	Status    JobStatus
	StartedAt time.Time
	Duration  time.Duration
	Error     string
}

// RunSummary is the terminal outcome of a run as stored in the ledger
type RunSummary struct {
	RunID      string
	Tag        string
	Platform   Platform
	Status     string
	Key        string
	SHA256     string
	Error      string
	FinishedAt time.Time
}
