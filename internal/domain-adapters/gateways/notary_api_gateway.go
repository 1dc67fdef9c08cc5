package gateways

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/ochairo/tagship/internal/domain/entities"
	"github.com/ochairo/tagship/internal/domain/interfaces"
	"github.com/ochairo/tagship/internal/domain/interfaces/gateways"
)

const (
	defaultNotaryAPI      = "https://appstoreconnect.apple.com"
	notaryAudience        = "appstoreconnect-v1"
	notarySubmissionsPath = "/notary/v2/submissions"
	notaryUploadRegion    = "us-west-2"
	submitTokenTTL        = 15 * time.Minute
)

// NotaryAPIConfig configures the App Store Connect notary REST client
type NotaryAPIConfig struct {
	BaseURL string

	// PollTokenTTL bounds the read-only status token; it should cover the
	// notarization deadline
	PollTokenTTL time.Duration

	// RequestsPerSecond paces status and log requests
	RequestsPerSecond float64
}

// DefaultNotaryAPIConfig returns the production endpoint settings
func DefaultNotaryAPIConfig() NotaryAPIConfig {
	return NotaryAPIConfig{
		BaseURL:           defaultNotaryAPI,
		PollTokenTTL:      time.Hour,
		RequestsPerSecond: 1,
	}
}

// notaryClaims are App Store Connect token claims. Scope narrows a token to
// specific requests.
type notaryClaims struct {
	jwt.RegisteredClaims
	Scope []string `json:"scope,omitempty"`
}

// submissionUploader puts the artifact into the bucket named by a new submission
type submissionUploader interface {
	Upload(ctx context.Context, target uploadTarget, body io.ReadSeeker) error
}

// uploadTarget holds the temporary S3 credentials returned by a submission
type uploadTarget struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Bucket          string
	Object          string
}

// NotaryAPIGateway implements NotaryService over the notary REST API
type NotaryAPIGateway struct {
	client   *http.Client
	config   NotaryAPIConfig
	uploader submissionUploader
	limiter  *rate.Limiter
	logger   interfaces.Logger
	now      func() time.Time
}

// NewNotaryAPIGateway creates a notary API client
func NewNotaryAPIGateway(config NotaryAPIConfig, logger interfaces.Logger) *NotaryAPIGateway {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	defaults := DefaultNotaryAPIConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.PollTokenTTL <= 0 {
		config.PollTokenTTL = defaults.PollTokenTTL
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = defaults.RequestsPerSecond
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")

	return &NotaryAPIGateway{
		client:   &http.Client{Timeout: time.Minute},
		config:   config,
		uploader: &s3SubmissionUploader{region: notaryUploadRegion},
		limiter:  rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
		logger:   logger,
		now:      time.Now,
	}
}

type newSubmissionRequest struct {
	SubmissionName string `json:"submissionName"`
	SHA256         string `json:"sha256"`
}

type newSubmissionResponse struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			AwsAccessKeyID     string `json:"awsAccessKeyId"`
			AwsSecretAccessKey string `json:"awsSecretAccessKey"`
			AwsSessionToken    string `json:"awsSessionToken"`
			Bucket             string `json:"bucket"`
			Object             string `json:"object"`
		} `json:"attributes"`
	} `json:"data"`
}

type submissionResponse struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Status      string `json:"status"`
			Name        string `json:"name"`
			CreatedDate string `json:"createdDate"`
		} `json:"attributes"`
	} `json:"data"`
}

type submissionLogResponse struct {
	Data struct {
		Attributes struct {
			DeveloperLogURL string `json:"developerLogUrl"`
		} `json:"attributes"`
	} `json:"data"`
}

// Submit registers the artifact, uploads it with the returned temporary
// credentials, and mints a read-only token scoped to this submission
func (g *NotaryAPIGateway) Submit(ctx context.Context, artifact *entities.Artifact, cred *entities.Credential) (*gateways.NotarySubmission, error) {
	if cred == nil || cred.Kind != entities.CredentialNotaryAPIKey {
		return nil, fmt.Errorf("%w: notary API needs an API key credential", entities.ErrCredentialUnavailable)
	}
	key, err := jwt.ParseECPrivateKeyFromPEM(cred.Material)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid notary API key: %w", entities.ErrCredentialUnavailable, err)
	}

	//nolint:gosec // G304: Artifact path comes from the pipeline work directory
	content, err := os.ReadFile(artifact.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	sum := sha256.Sum256(content)

	token, err := g.token(key, cred, submitTokenTTL, nil)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(newSubmissionRequest{
		SubmissionName: artifact.FileName(),
		SHA256:         hex.EncodeToString(sum[:]),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal submission: %w", err)
	}

	var created newSubmissionResponse
	if err := g.do(ctx, http.MethodPost, notarySubmissionsPath, token, body, &created); err != nil {
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}
	attrs := created.Data.Attributes
	if created.Data.ID == "" || attrs.Bucket == "" || attrs.Object == "" {
		return nil, fmt.Errorf("submission response is missing id or upload location")
	}

	if err := g.uploader.Upload(ctx, uploadTarget{
		AccessKeyID:     attrs.AwsAccessKeyID,
		SecretAccessKey: attrs.AwsSecretAccessKey,
		SessionToken:    attrs.AwsSessionToken,
		Bucket:          attrs.Bucket,
		Object:          attrs.Object,
	}, bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to upload submission %s: %w", created.Data.ID, err)
	}

	submissionPath := notarySubmissionsPath + "/" + created.Data.ID
	pollToken, err := g.token(key, cred, g.config.PollTokenTTL, []string{
		"GET " + submissionPath,
		"GET " + submissionPath + "/logs",
	})
	if err != nil {
		return nil, err
	}

	g.logger.Info("submitted for notarization", interfaces.F("submission_id", created.Data.ID))
	return &gateways.NotarySubmission{ID: created.Data.ID, PollHandle: pollToken}, nil
}

// Status fetches the submission status with the ticket's scoped token
func (g *NotaryAPIGateway) Status(ctx context.Context, ticket *entities.NotarizationTicket) (*gateways.NotaryStatus, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var resp submissionResponse
	if err := g.do(ctx, http.MethodGet, notarySubmissionsPath+"/"+ticket.SubmissionID, ticket.PollHandle, nil, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", entities.ErrTransientNetwork, err)
	}

	status := resp.Data.Attributes.Status
	return &gateways.NotaryStatus{Verdict: verdictFor(status), Status: status}, nil
}

// LogURL returns the developer log location of a finished submission
func (g *NotaryAPIGateway) LogURL(ctx context.Context, ticket *entities.NotarizationTicket) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}

	var resp submissionLogResponse
	if err := g.do(ctx, http.MethodGet, notarySubmissionsPath+"/"+ticket.SubmissionID+"/logs", ticket.PollHandle, nil, &resp); err != nil {
		return "", err
	}
	if resp.Data.Attributes.DeveloperLogURL == "" {
		return "", fmt.Errorf("no developer log for submission %s", ticket.SubmissionID)
	}
	return resp.Data.Attributes.DeveloperLogURL, nil
}

// token signs an ES256 App Store Connect token
func (g *NotaryAPIGateway) token(key *ecdsa.PrivateKey, cred *entities.Credential, ttl time.Duration, scope []string) (string, error) {
	now := g.now().UTC()
	claims := notaryClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cred.Team,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Audience:  jwt.ClaimStrings{notaryAudience},
		},
		Scope: scope,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = cred.Identity

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("%w: failed to sign notary token: %w", entities.ErrCredentialUnavailable, err)
	}
	return signed, nil
}

// do sends one JSON request and decodes a 2xx answer into out
func (g *NotaryAPIGateway) do(ctx context.Context, method, path, token string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.config.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "tagship/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", entities.ErrTransientNetwork, err)
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: notary API answered %d", entities.ErrCredentialUnavailable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return statusError("notary API "+method+" "+path, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode notary API response: %w", err)
	}
	return nil
}

// s3SubmissionUploader uploads with the session credentials of one submission
type s3SubmissionUploader struct {
	region string
}

func (u *s3SubmissionUploader) Upload(ctx context.Context, target uploadTarget, body io.ReadSeeker) error {
	client := s3.New(s3.Options{
		Region: u.region,
		Credentials: credentials.NewStaticCredentialsProvider(
			target.AccessKeyID, target.SecretAccessKey, target.SessionToken),
	})

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(target.Bucket),
		Key:    aws.String(target.Object),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", entities.ErrTransientNetwork, err)
	}
	return nil
}
