package gateways

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ochairo/tagship/internal/domain/entities"
	"github.com/ochairo/tagship/internal/domain/interfaces"
	"github.com/ochairo/tagship/internal/domain/interfaces/gateways"
)

const notarytoolTimeout = 30 * time.Minute

// notarytoolSubmission is the --output-format json answer of submit and info
type notarytoolSubmission struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// NotarytoolGateway drives `xcrun notarytool` without --wait. The password is
// stored once into an ephemeral keychain profile at submit time; polling only
// references the profile by name.
type NotarytoolGateway struct {
	runner    gateways.CommandRunner
	keychains *Keychains
	logDir    string
	logger    interfaces.Logger

	mu       sync.Mutex
	profiles map[string]*KeychainLease
}

// NewNotarytoolGateway creates a notarytool backed NotaryService. Developer
// logs for rejected submissions are written to logDir.
func NewNotarytoolGateway(runner gateways.CommandRunner, keychains *Keychains, logDir string, logger interfaces.Logger) *NotarytoolGateway {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	if logDir == "" {
		logDir = os.TempDir()
	}
	return &NotarytoolGateway{
		runner:    runner,
		keychains: keychains,
		logDir:    logDir,
		logger:    logger,
		profiles:  make(map[string]*KeychainLease),
	}
}

// Submit stores the credential in a fresh keychain profile and uploads the artifact
func (g *NotarytoolGateway) Submit(ctx context.Context, artifact *entities.Artifact, cred *entities.Credential) (*gateways.NotarySubmission, error) {
	if cred == nil || cred.Kind != entities.CredentialNotaryPassword {
		return nil, fmt.Errorf("%w: notarytool needs an Apple ID password credential", entities.ErrCredentialUnavailable)
	}

	lease, err := g.keychains.Create(ctx)
	if err != nil {
		return nil, err
	}
	profile := "tagship-" + uuid.NewString()

	password := cred.SecretString()
	if _, err := g.runner.Run(ctx, gateways.Command{
		Name: "xcrun",
		Args: []string{
			"notarytool", "store-credentials", profile,
			"--apple-id", cred.Identity,
			"--team-id", cred.Team,
			"--password", password,
			"--keychain", lease.Path,
		},
		Secrets:     []string{password},
		Description: "store notary credentials",
	}); err != nil {
		return nil, errors.Join(fmt.Errorf("%w: %w", entities.ErrCredentialUnavailable, err), lease.Release(context.WithoutCancel(ctx)))
	}

	g.mu.Lock()
	g.profiles[profile] = lease
	g.mu.Unlock()

	result, err := g.runner.Run(ctx, gateways.Command{
		Name:        "xcrun",
		Args:        append([]string{"notarytool", "submit", artifact.Path}, g.profileArgs(profile, lease)...),
		Timeout:     notarytoolTimeout,
		Description: "submit for notarization",
	})
	if err != nil {
		return nil, fmt.Errorf("notarytool submit failed: %w", err)
	}

	var submission notarytoolSubmission
	if err := json.Unmarshal([]byte(result.Stdout), &submission); err != nil {
		return nil, fmt.Errorf("failed to decode notarytool submit output: %w", err)
	}
	if submission.ID == "" {
		return nil, fmt.Errorf("notarytool submit returned no submission id: %s", submission.Message)
	}

	g.logger.Info("submitted for notarization", interfaces.F("submission_id", submission.ID))
	return &gateways.NotarySubmission{ID: submission.ID, PollHandle: profile}, nil
}

// Status runs notarytool info for the ticket's submission
func (g *NotarytoolGateway) Status(ctx context.Context, ticket *entities.NotarizationTicket) (*gateways.NotaryStatus, error) {
	lease, err := g.lease(ticket.PollHandle)
	if err != nil {
		return nil, err
	}

	result, err := g.runner.Run(ctx, gateways.Command{
		Name:        "xcrun",
		Args:        append([]string{"notarytool", "info", ticket.SubmissionID}, g.profileArgs(ticket.PollHandle, lease)...),
		Timeout:     5 * time.Minute,
		Description: "notarization status",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: notarytool info: %w", entities.ErrTransientNetwork, err)
	}

	var info notarytoolSubmission
	if err := json.Unmarshal([]byte(result.Stdout), &info); err != nil {
		return nil, fmt.Errorf("%w: failed to decode notarytool info output: %w", entities.ErrTransientNetwork, err)
	}
	return &gateways.NotaryStatus{Verdict: verdictFor(info.Status), Status: info.Status}, nil
}

// LogURL downloads the developer log next to the other run logs and returns its file URL
func (g *NotarytoolGateway) LogURL(ctx context.Context, ticket *entities.NotarizationTicket) (string, error) {
	lease, err := g.lease(ticket.PollHandle)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(g.logDir, 0750); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}
	logPath, err := filepath.Abs(filepath.Join(g.logDir, fmt.Sprintf("notarization-%s.json", ticket.SubmissionID)))
	if err != nil {
		return "", err
	}

	args := append([]string{"notarytool", "log", ticket.SubmissionID}, g.profileArgs(ticket.PollHandle, lease)[:4]...)
	if _, err := g.runner.Run(ctx, gateways.Command{
		Name:        "xcrun",
		Args:        append(args, logPath),
		Description: "fetch notarization log",
	}); err != nil {
		return "", fmt.Errorf("notarytool log failed: %w", err)
	}
	return "file://" + filepath.ToSlash(logPath), nil
}

// Close deletes every keychain created for submissions
func (g *NotarytoolGateway) Close(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var errs []error
	for profile, lease := range g.profiles {
		errs = append(errs, lease.Release(ctx))
		delete(g.profiles, profile)
	}
	return errors.Join(errs...)
}

func (g *NotarytoolGateway) lease(profile string) (*KeychainLease, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	lease, ok := g.profiles[profile]
	if !ok {
		return nil, fmt.Errorf("unknown notary keychain profile")
	}
	return lease, nil
}

func (g *NotarytoolGateway) profileArgs(profile string, lease *KeychainLease) []string {
	return []string{
		"--keychain-profile", profile,
		"--keychain", lease.Path,
		"--output-format", "json",
	}
}

// verdictFor maps the authority's status string onto a verdict. Anything not
// final is still pending.
func verdictFor(status string) entities.Verdict {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "accepted":
		return entities.VerdictAccepted
	case "invalid", "rejected":
		return entities.VerdictRejected
	default:
		return entities.VerdictPending
	}
}
