package gateways

import (
	"context"

	"github.com/ochairo/tagship/internal/domain/entities"
)

// NotarySubmission is what the authority returns for an upload
type NotarySubmission struct {
	ID string

	// PollHandle lets Status run without the submission credential
	PollHandle string
}

// NotaryStatus is one status answer from the authority
type NotaryStatus struct {
	Verdict entities.Verdict
	Status  string // raw status, e.g. "In Progress", "Invalid"
}

// NotaryService talks to the external verification authority
type NotaryService interface {
	// Submit uploads a signed artifact. The credential is only used here.
	Submit(ctx context.Context, artifact *entities.Artifact, cred *entities.Credential) (*NotarySubmission, error)

	// Status queries the verdict for ticket. Errors are treated as transient.
	Status(ctx context.Context, ticket *entities.NotarizationTicket) (*NotaryStatus, error)

	// LogURL returns the developer log location for a finished submission
	LogURL(ctx context.Context, ticket *entities.NotarizationTicket) (string, error)
}

// Stapler embeds an accepted verdict into the artifact
type Stapler interface {
	Staple(ctx context.Context, artifactPath string) error
}
