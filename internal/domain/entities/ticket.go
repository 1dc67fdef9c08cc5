package entities

import (
	"fmt"
	"log/slog"
	"time"
)

// NotarizationState is the per-artifact notarization state
type NotarizationState string

// Notarization states
const (
	NotarizationUnsubmitted NotarizationState = "unsubmitted"
	NotarizationSubmitted   NotarizationState = "submitted"
	NotarizationPolling     NotarizationState = "polling"
	NotarizationAccepted    NotarizationState = "accepted"
	NotarizationRejected    NotarizationState = "rejected"
	NotarizationTimedOut    NotarizationState = "timeout"
	NotarizationStapled     NotarizationState = "stapled"
	NotarizationFailed      NotarizationState = "failed"
)

var notarizationTransitions = map[NotarizationState][]NotarizationState{
	NotarizationUnsubmitted: {NotarizationSubmitted},
	NotarizationSubmitted:   {NotarizationPolling},
	NotarizationPolling:     {NotarizationAccepted, NotarizationRejected, NotarizationTimedOut},
	NotarizationAccepted:    {NotarizationStapled, NotarizationFailed},
	NotarizationRejected:    {NotarizationFailed},
	NotarizationTimedOut:    {NotarizationFailed},
}

// Verdict is the authority's answer for a submission
type Verdict string

// Verdicts
const (
	VerdictPending  Verdict = "pending"
	VerdictAccepted Verdict = "accepted"
	VerdictRejected Verdict = "rejected"
)

// NotarizationTicket tracks one submission to the notary authority.
type NotarizationTicket struct {
	SubmissionID string
	Verdict      Verdict
	Status       string // raw authority status, for diagnostics
	State        NotarizationState
	SubmittedAt  time.Time
	Deadline     time.Time
	LogURL       string

	// PollHandle is a non-secret, read-only handle for status queries
	// (scoped token or keychain profile name). Never logged.
	PollHandle string
}

// NewNotarizationTicket returns an unsubmitted ticket
func NewNotarizationTicket() *NotarizationTicket {
	return &NotarizationTicket{
		Verdict: VerdictPending,
		State:   NotarizationUnsubmitted,
	}
}

// Advance moves the ticket to next. Only edges of the notarization state
// machine are allowed; polling can never reach stapled without accepted.
func (t *NotarizationTicket) Advance(next NotarizationState) error {
	for _, allowed := range notarizationTransitions[t.State] {
		if allowed == next {
			t.State = next
			return nil
		}
	}
	return fmt.Errorf("illegal notarization transition %s -> %s", t.State, next)
}

// Expired reports whether the poll deadline has passed at now
func (t *NotarizationTicket) Expired(now time.Time) bool {
	return !t.Deadline.IsZero() && !now.Before(t.Deadline)
}

// LogValue keeps the poll handle out of structured logs
func (t *NotarizationTicket) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("submission_id", t.SubmissionID),
		slog.String("state", string(t.State)),
		slog.String("verdict", string(t.Verdict)),
		slog.Time("deadline", t.Deadline),
	)
}
