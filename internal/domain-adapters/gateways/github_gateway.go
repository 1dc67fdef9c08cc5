package gateways

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ochairo/tagship/internal/domain/entities"
	"github.com/ochairo/tagship/internal/domain/interfaces"
	"github.com/ochairo/tagship/internal/domain/interfaces/gateways"
)

const (
	// Attempts for API calls; asset uploads are attempted once and retried by the publisher
	maxAPIAttempts = 4
	initialBackoff = 1 * time.Second
	maxBackoff     = 32 * time.Second

	defaultGitHubAPI = "https://api.github.com"
)

// ErrReleaseNotFound is returned by GetRelease when the tag has no release
var ErrReleaseNotFound = errors.New("release not found")

var errRateLimitExhausted = errors.New("GitHub API rate limit exceeded (0 remaining)")

// HTTPGitHubGateway implements GitHubGateway using standard HTTP client
type HTTPGitHubGateway struct {
	client    *http.Client
	token     string
	userAgent string
	baseURL   string
	logger    interfaces.Logger
	retry     func() backoff.BackOff
}

// NewHTTPGitHubGateway creates a new GitHub gateway with HTTP client
func NewHTTPGitHubGateway(token string, logger interfaces.Logger) *HTTPGitHubGateway {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &HTTPGitHubGateway{
		client: &http.Client{
			Timeout: 10 * time.Minute, // installers are large
		},
		token:     token,
		userAgent: "tagship/1.0",
		baseURL:   defaultGitHubAPI,
		logger:    logger,
		retry:     apiBackOff,
	}
}

// WithBaseURL points the gateway at a GitHub Enterprise or test server
func (g *HTTPGitHubGateway) WithBaseURL(baseURL string) *HTTPGitHubGateway {
	g.baseURL = strings.TrimSuffix(baseURL, "/")
	return g
}

// checkRateLimit checks GitHub API rate limit headers and returns error if exhausted
func (g *HTTPGitHubGateway) checkRateLimit(resp *http.Response) error {
	remaining := resp.Header.Get("X-RateLimit-Remaining")
	if remaining == "" {
		return nil // No rate limit header, continue
	}

	remainingInt, err := strconv.Atoi(remaining)
	if err != nil {
		return nil // Invalid header, ignore
	}

	// If exhausted, return error immediately (don't wait in CI)
	if remainingInt == 0 {
		resetTime := resp.Header.Get("X-RateLimit-Reset")
		if resetTime != "" {
			if resetUnix, err := strconv.ParseInt(resetTime, 10, 64); err == nil {
				resetAt := time.Unix(resetUnix, 0)
				return fmt.Errorf("%w: %w, resets at %s", entities.ErrTransientNetwork, errRateLimitExhausted, resetAt.Format(time.RFC3339))
			}
		}
		return fmt.Errorf("%w: %w", entities.ErrTransientNetwork, errRateLimitExhausted)
	}

	if remainingInt <= 10 {
		g.logger.Warn("GitHub API rate limit low", interfaces.F("remaining", remainingInt))
	}

	return nil
}

// isRetryableError checks if an HTTP status code is retryable
func isRetryableError(statusCode int) bool {
	switch statusCode {
	case http.StatusForbidden, // 403 - rate limit
		http.StatusTooManyRequests,     // 429
		http.StatusInternalServerError, // 500
		http.StatusBadGateway,          // 502
		http.StatusServiceUnavailable,  // 503
		http.StatusGatewayTimeout:      // 504
		return true
	default:
		return false
	}
}

// apiBackOff doubles from initialBackoff up to maxBackoff
func apiBackOff() backoff.BackOff {
	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = initialBackoff
	schedule.MaxInterval = maxBackoff
	return schedule
}

// do sends req once. Network failures and an exhausted rate limit become
// errors; any other response is returned for the caller to inspect.
func (g *HTTPGitHubGateway) do(req *http.Request) (*http.Response, error) {
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entities.ErrTransientNetwork, err)
	}

	if rateLimitErr := g.checkRateLimit(resp); rateLimitErr != nil {
		//nolint:errcheck,gosec // G104: Best effort close on rate limit error
		resp.Body.Close()
		return nil, rateLimitErr
	}
	return resp, nil
}

// doWithRetry sends an API request with exponential backoff. Request bodies
// are rewound through GetBody before every retry. An exhausted rate limit is
// not retried.
func (g *HTTPGitHubGateway) doWithRetry(req *http.Request) (*http.Response, error) {
	attempt := 0
	return backoff.Retry(req.Context(), func() (*http.Response, error) {
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, backoff.Permanent(fmt.Errorf("failed to rewind request body: %w", err))
			}
			req.Body = body
		}
		attempt++

		resp, err := g.do(req)
		if errors.Is(err, errRateLimitExhausted) {
			return nil, backoff.Permanent(err)
		}
		if err != nil {
			return nil, err
		}
		if isRetryableError(resp.StatusCode) {
			err := statusError(req.Method+" "+req.URL.Path, resp)
			//nolint:errcheck,gosec // G104: Best effort close before retry
			resp.Body.Close()
			return nil, err
		}
		return resp, nil
	},
		backoff.WithBackOff(g.retry()),
		backoff.WithMaxTries(maxAPIAttempts),
	)
}

func (g *HTTPGitHubGateway) newRequest(ctx context.Context, method, target string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "token "+g.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", g.userAgent)
	return req, nil
}

// statusError describes an unexpected response; 5xx answers are transient
func statusError(op string, resp *http.Response) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	detail := string(bodyBytes)
	if err != nil {
		detail = "(failed to read response)"
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s: status %d: %s", entities.ErrTransientNetwork, op, resp.StatusCode, detail)
	}
	return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, detail)
}

// githubRelease represents the GitHub API release format
type githubRelease struct {
	ID          int64  `json:"id,omitempty"`
	TagName     string `json:"tag_name"`
	Name        string `json:"name"`
	Body        string `json:"body"`
	Draft       bool   `json:"draft"`
	Prerelease  bool   `json:"prerelease"`
	CreatedAt   string `json:"created_at,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
	HTMLURL     string `json:"html_url,omitempty"`
	UploadURL   string `json:"upload_url,omitempty"`
}

func (r githubRelease) toDomain() *gateways.GitHubRelease {
	return &gateways.GitHubRelease{
		ID:          r.ID,
		TagName:     r.TagName,
		Name:        r.Name,
		Body:        r.Body,
		Draft:       r.Draft,
		Prerelease:  r.Prerelease,
		CreatedAt:   r.CreatedAt,
		PublishedAt: r.PublishedAt,
		HTMLURL:     r.HTMLURL,
		UploadURL:   r.UploadURL,
	}
}

// githubAsset represents a GitHub release asset
type githubAsset struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	Label              string `json:"label"`
	State              string `json:"state"`
	Size               int64  `json:"size"`
	DownloadCount      int    `json:"download_count"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

func (a githubAsset) toDomain() *gateways.GitHubAsset {
	return &gateways.GitHubAsset{
		ID:                 a.ID,
		Name:               a.Name,
		Label:              a.Label,
		State:              a.State,
		Size:               a.Size,
		DownloadCount:      a.DownloadCount,
		BrowserDownloadURL: a.BrowserDownloadURL,
	}
}

// CreateRelease creates a new GitHub release
func (g *HTTPGitHubGateway) CreateRelease(ctx context.Context, owner, repo string, release *gateways.GitHubRelease) (*gateways.GitHubRelease, error) {
	target := fmt.Sprintf("%s/repos/%s/%s/releases", g.baseURL, owner, repo)

	body, err := json.Marshal(githubRelease{
		TagName:    release.TagName,
		Name:       release.Name,
		Body:       release.Body,
		Draft:      release.Draft,
		Prerelease: release.Prerelease,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal release: %w", err)
	}

	req, err := g.newRequest(ctx, http.MethodPost, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.doWithRetry(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create release: %w", err)
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, statusError("failed to create release", resp)
	}

	var result githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return result.toDomain(), nil
}

// GetRelease retrieves a release by tag name
func (g *HTTPGitHubGateway) GetRelease(ctx context.Context, owner, repo, tag string) (*gateways.GitHubRelease, error) {
	target := fmt.Sprintf("%s/repos/%s/%s/releases/tags/%s", g.baseURL, owner, repo, url.PathEscape(tag))

	req, err := g.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.doWithRetry(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get release: %w", err)
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrReleaseNotFound, tag)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("failed to get release", resp)
	}

	var result githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return result.toDomain(), nil
}

// UploadAsset uploads a file to a release
func (g *HTTPGitHubGateway) UploadAsset(ctx context.Context, uploadURL, filename string, content io.Reader) (*gateways.GitHubAsset, error) {
	// Remove template suffix BEFORE any processing (e.g., {?name,label})
	// GitHub returns URLs like: https://uploads.github.com/.../assets{?name,label}
	baseURL := strings.Split(uploadURL, "{")[0]

	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid upload URL: %q", uploadURL)
	}

	// GitHub's upload URLs should use uploads.github.com, not api.github.com
	if strings.Contains(baseURL, "api.github.com") {
		baseURL = strings.Replace(baseURL, "api.github.com", "uploads.github.com", 1)
	}

	uploadURLWithName := fmt.Sprintf("%s?name=%s", baseURL, url.QueryEscape(filename))

	body, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	req, err := g.newRequest(ctx, http.MethodPost, uploadURLWithName, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = int64(len(body))

	resp, err := g.do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to upload asset: %w", err)
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, statusError("failed to upload asset "+filename, resp)
	}

	var result githubAsset
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return result.toDomain(), nil
}

// ListReleaseAssets lists all assets for a release
func (g *HTTPGitHubGateway) ListReleaseAssets(ctx context.Context, owner, repo string, releaseID int64) ([]*gateways.GitHubAsset, error) {
	target := fmt.Sprintf("%s/repos/%s/%s/releases/%d/assets?per_page=100", g.baseURL, owner, repo, releaseID)

	req, err := g.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.doWithRetry(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("failed to list assets", resp)
	}

	var results []githubAsset
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	assets := make([]*gateways.GitHubAsset, len(results))
	for i, a := range results {
		assets[i] = a.toDomain()
	}
	return assets, nil
}

// DeleteAsset removes an asset so a file of the same name can be re-uploaded
func (g *HTTPGitHubGateway) DeleteAsset(ctx context.Context, owner, repo string, assetID int64) error {
	target := fmt.Sprintf("%s/repos/%s/%s/releases/assets/%d", g.baseURL, owner, repo, assetID)

	req, err := g.newRequest(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return err
	}

	resp, err := g.doWithRetry(req)
	if err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	// Already gone is as good as deleted
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return statusError("failed to delete asset", resp)
	}
	return nil
}
