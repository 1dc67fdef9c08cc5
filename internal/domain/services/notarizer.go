package services

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ochairo/tagship/internal/domain/entities"
	"github.com/ochairo/tagship/internal/domain/interfaces"
	"github.com/ochairo/tagship/internal/domain/interfaces/gateways"
)

// NotarizerConfig controls submission deadlines and the polling schedule
type NotarizerConfig struct {
	Deadline       time.Duration
	PollInitial    time.Duration
	PollMax        time.Duration
	PollMultiplier float64
	PollJitter     float64
	StapleAttempts uint
	StapleBackoff  time.Duration
}

// DefaultNotarizerConfig returns the schedule used in CI
func DefaultNotarizerConfig() NotarizerConfig {
	return NotarizerConfig{
		Deadline:       time.Hour,
		PollInitial:    15 * time.Second,
		PollMax:        2 * time.Minute,
		PollMultiplier: 1.5,
		PollJitter:     0.1,
		StapleAttempts: 5,
		StapleBackoff:  10 * time.Second,
	}
}

// Notarizer drives one artifact through submit, verdict polling and stapling.
type Notarizer struct {
	service gateways.NotaryService
	stapler gateways.Stapler
	config  NotarizerConfig
	logger  interfaces.Logger
	now     func() time.Time
	polls   metric.Int64Counter
}

// NewNotarizer creates a notarizer. Zero config fields take defaults.
func NewNotarizer(service gateways.NotaryService, stapler gateways.Stapler, config NotarizerConfig, logger interfaces.Logger) *Notarizer {
	defaults := DefaultNotarizerConfig()
	if config.Deadline <= 0 {
		config.Deadline = defaults.Deadline
	}
	if config.PollInitial <= 0 {
		config.PollInitial = defaults.PollInitial
	}
	if config.PollMax <= 0 {
		config.PollMax = defaults.PollMax
	}
	if config.PollMultiplier < 1 {
		config.PollMultiplier = defaults.PollMultiplier
	}
	if config.StapleAttempts == 0 {
		config.StapleAttempts = defaults.StapleAttempts
	}
	if config.StapleBackoff <= 0 {
		config.StapleBackoff = defaults.StapleBackoff
	}
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}

	polls, err := otel.Meter("github.com/ochairo/tagship/services").Int64Counter(
		"tagship.notarization.polls",
		metric.WithDescription("Notary status requests by outcome"),
	)
	if err != nil {
		logger.Warn("notarization poll counter unavailable", interfaces.F("error", err))
	}

	return &Notarizer{
		service: service,
		stapler: stapler,
		config:  config,
		logger:  logger,
		now:     time.Now,
		polls:   polls,
	}
}

// Notarize submits, waits for a verdict and staples. It consumes cred: the
// credential is destroyed as soon as the submission call returns, so no
// secret is held while polling.
func (n *Notarizer) Notarize(ctx context.Context, artifact *entities.Artifact, cred *entities.Credential) (*entities.NotarizationTicket, error) {
	ticket, err := n.Submit(ctx, artifact, cred)
	cred.Destroy()
	if err != nil {
		return nil, err
	}

	if _, err := n.AwaitVerdict(ctx, ticket); err != nil {
		_ = ticket.Advance(entities.NotarizationFailed)
		return ticket, err
	}

	if err := n.Staple(ctx, artifact, ticket); err != nil {
		return ticket, err
	}

	return ticket, nil
}

// Submit uploads the signed artifact and opens a ticket with a poll deadline
func (n *Notarizer) Submit(ctx context.Context, artifact *entities.Artifact, cred *entities.Credential) (*entities.NotarizationTicket, error) {
	ticket := entities.NewNotarizationTicket()

	submission, err := n.service.Submit(ctx, artifact, cred)
	if err != nil {
		return nil, fmt.Errorf("notary submission of %s failed: %w", artifact.FileName(), err)
	}

	ticket.SubmissionID = submission.ID
	ticket.PollHandle = submission.PollHandle
	ticket.SubmittedAt = n.now()
	ticket.Deadline = ticket.SubmittedAt.Add(n.config.Deadline)
	if err := ticket.Advance(entities.NotarizationSubmitted); err != nil {
		return nil, err
	}

	n.logger.Info("notarization submitted",
		interfaces.F("artifact", artifact.FileName()),
		interfaces.F("submission_id", ticket.SubmissionID),
		interfaces.F("deadline", ticket.Deadline.Format(time.RFC3339)),
	)
	return ticket, nil
}

// AwaitVerdict polls until the authority accepts or rejects the submission,
// or the ticket deadline passes. Polling ignores cancellation of ctx so a
// submission that was made is never abandoned before its deadline. Status
// errors are transient and retried on the same ticket.
func (n *Notarizer) AwaitVerdict(ctx context.Context, ticket *entities.NotarizationTicket) (entities.Verdict, error) {
	if err := ticket.Advance(entities.NotarizationPolling); err != nil {
		return ticket.Verdict, err
	}

	pollCtx, cancel := n.pollContext(ctx, ticket)
	defer cancel()

	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = n.config.PollInitial
	schedule.MaxInterval = n.config.PollMax
	schedule.Multiplier = n.config.PollMultiplier
	schedule.RandomizationFactor = n.config.PollJitter
	schedule.Reset()

	var lastErr error
	polls, transient := 0, 0
	for {
		status, err := n.service.Status(pollCtx, ticket)
		polls++

		switch {
		case err != nil:
			transient++
			lastErr = err
			n.recordPoll(pollCtx, "error")
			n.logger.Warn("notary status request failed, retrying",
				interfaces.F("submission_id", ticket.SubmissionID),
				interfaces.F("transient_errors", transient),
				interfaces.F("error", err),
			)

		case status.Verdict == entities.VerdictAccepted:
			n.recordPoll(pollCtx, "accepted")
			ticket.Verdict = entities.VerdictAccepted
			ticket.Status = status.Status
			if err := ticket.Advance(entities.NotarizationAccepted); err != nil {
				return ticket.Verdict, err
			}
			n.logger.Info("notarization accepted",
				interfaces.F("submission_id", ticket.SubmissionID),
				interfaces.F("polls", polls),
			)
			return ticket.Verdict, nil

		case status.Verdict == entities.VerdictRejected:
			n.recordPoll(pollCtx, "rejected")
			ticket.Verdict = entities.VerdictRejected
			ticket.Status = status.Status
			if err := ticket.Advance(entities.NotarizationRejected); err != nil {
				return ticket.Verdict, err
			}
			ticket.LogURL = n.fetchLogURL(pollCtx, ticket)
			return ticket.Verdict, &entities.RejectionError{
				SubmissionID: ticket.SubmissionID,
				Status:       status.Status,
				LogURL:       ticket.LogURL,
			}

		default:
			n.recordPoll(pollCtx, "pending")
			ticket.Status = status.Status
			n.logger.Debug("notarization pending",
				interfaces.F("submission_id", ticket.SubmissionID),
				interfaces.F("status", status.Status),
			)
		}

		if ticket.Expired(n.now()) {
			return ticket.Verdict, n.timedOut(ticket, polls, transient, lastErr)
		}

		timer := time.NewTimer(schedule.NextBackOff())
		select {
		case <-pollCtx.Done():
			timer.Stop()
			return ticket.Verdict, n.timedOut(ticket, polls, transient, lastErr)
		case <-timer.C:
		}
	}
}

// Staple embeds the accepted verdict into the artifact. It refuses tickets
// that have not been accepted.
func (n *Notarizer) Staple(ctx context.Context, artifact *entities.Artifact, ticket *entities.NotarizationTicket) error {
	if ticket.State != entities.NotarizationAccepted {
		return fmt.Errorf("%w: ticket %s is %s, not accepted", entities.ErrStapleFailed, ticket.SubmissionID, ticket.State)
	}

	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = n.config.StapleBackoff
	schedule.MaxInterval = 4 * n.config.StapleBackoff

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		return struct{}{}, n.stapler.Staple(ctx, artifact.Path)
	},
		backoff.WithBackOff(schedule),
		backoff.WithMaxTries(n.config.StapleAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			n.logger.Warn("staple failed, retrying",
				interfaces.F("artifact", artifact.FileName()),
				interfaces.F("retry_in", wait.String()),
				interfaces.F("error", err),
			)
		}),
	)
	if err != nil {
		_ = ticket.Advance(entities.NotarizationFailed)
		return fmt.Errorf("%w: %s after %d attempts: %w", entities.ErrStapleFailed, artifact.FileName(), attempts, err)
	}

	if err := ticket.Advance(entities.NotarizationStapled); err != nil {
		return err
	}
	n.logger.Info("notarization stapled", interfaces.F("artifact", artifact.FileName()))
	return nil
}

func (n *Notarizer) fetchLogURL(ctx context.Context, ticket *entities.NotarizationTicket) string {
	url, err := n.service.LogURL(ctx, ticket)
	if err != nil {
		n.logger.Warn("could not fetch notarization log",
			interfaces.F("submission_id", ticket.SubmissionID),
			interfaces.F("error", err),
		)
		return ""
	}
	return url
}

// pollContext detaches from ctx cancellation and ends at the ticket deadline, if any
func (n *Notarizer) pollContext(ctx context.Context, ticket *entities.NotarizationTicket) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if ticket.Deadline.IsZero() {
		return context.WithCancel(detached)
	}
	return context.WithDeadline(detached, ticket.Deadline)
}

// timedOut moves the ticket to timed_out and describes the last known status
func (n *Notarizer) timedOut(ticket *entities.NotarizationTicket, polls, transient int, lastErr error) error {
	if err := ticket.Advance(entities.NotarizationTimedOut); err != nil {
		return err
	}
	msg := fmt.Sprintf("submission %s still %q at deadline %s after %d polls (%d transient errors)",
		ticket.SubmissionID, ticket.Status, ticket.Deadline.Format(time.RFC3339), polls, transient)
	if lastErr != nil {
		return fmt.Errorf("%w: %s: last error: %w", entities.ErrNotarizationTimeout, msg, lastErr)
	}
	return fmt.Errorf("%w: %s", entities.ErrNotarizationTimeout, msg)
}

func (n *Notarizer) recordPoll(ctx context.Context, outcome string) {
	if n.polls == nil {
		return
	}
	n.polls.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
