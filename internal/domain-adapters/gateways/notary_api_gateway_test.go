package gateways

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ochairo/tagship/internal/domain/entities"
)

const submissionID = "2efe2717-52ef-43a5-96dc-0797e4ca1041"

type recordingUploader struct {
	target uploadTarget
	body   string
	err    error
}

func (u *recordingUploader) Upload(_ context.Context, target uploadTarget, body io.ReadSeeker) error {
	data, _ := io.ReadAll(body)
	u.target = target
	u.body = string(data)
	return u.err
}

func apiKey(t *testing.T) (*ecdsa.PrivateKey, []byte) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return key, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

// notaryAPI fakes the submissions endpoints and checks every bearer token
func notaryAPI(t *testing.T, key *ecdsa.PrivateKey, status string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		claims := &notaryClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return &key.PublicKey, nil },
			jwt.WithAudience(notaryAudience), jwt.WithValidMethods([]string{"ES256"}))
		if err != nil || !token.Valid {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "KEY123", token.Header["kid"])
		assert.Equal(t, "issuer-uuid", claims.Issuer)

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/notary/v2/submissions":
			assert.Empty(t, claims.Scope)
			var req newSubmissionRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "lapce-v1.2.3.dmg", req.SubmissionName)
			assert.Len(t, req.SHA256, 64)
			_, _ = io.WriteString(w, `{"data":{"id":"`+submissionID+`","type":"newSubmissions","attributes":{
				"awsAccessKeyId":"AKIA","awsSecretAccessKey":"secret","awsSessionToken":"session",
				"bucket":"notary-submissions-prod","object":"prod/AQAAA/lapce.dmg"}}}`)
		case r.Method == http.MethodGet && r.URL.Path == "/notary/v2/submissions/"+submissionID:
			assert.Contains(t, claims.Scope, "GET /notary/v2/submissions/"+submissionID)
			_, _ = io.WriteString(w, `{"data":{"id":"`+submissionID+`","attributes":{"status":"`+status+`"}}}`)
		case r.Method == http.MethodGet && r.URL.Path == "/notary/v2/submissions/"+submissionID+"/logs":
			_, _ = io.WriteString(w, `{"data":{"attributes":{"developerLogUrl":"https://logs.example/`+submissionID+`"}}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func apiGateway(server *httptest.Server, uploader submissionUploader) *NotaryAPIGateway {
	g := NewNotaryAPIGateway(NotaryAPIConfig{BaseURL: server.URL, RequestsPerSecond: 1000}, nil)
	g.uploader = uploader
	return g
}

func apiCredential(pemKey []byte) *entities.Credential {
	return &entities.Credential{
		Kind:     entities.CredentialNotaryAPIKey,
		Identity: "KEY123",
		Team:     "issuer-uuid",
		Material: pemKey,
	}
}

func dmgArtifact(t *testing.T) *entities.Artifact {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lapce-v1.2.3.dmg")
	require.NoError(t, os.WriteFile(path, []byte("signed dmg"), 0600))
	return &entities.Artifact{Path: path, Platform: entities.PlatformMacOS}
}

func TestNotaryAPIGateway_SubmitAndPoll(t *testing.T) {
	key, pemKey := apiKey(t)
	server := notaryAPI(t, key, "Accepted")
	defer server.Close()

	uploader := &recordingUploader{}
	g := apiGateway(server, uploader)

	cred := apiCredential(pemKey)
	submission, err := g.Submit(context.Background(), dmgArtifact(t), cred)
	require.NoError(t, err)
	assert.Equal(t, submissionID, submission.ID)
	assert.Equal(t, "notary-submissions-prod", uploader.target.Bucket)
	assert.Equal(t, "prod/AQAAA/lapce.dmg", uploader.target.Object)
	assert.Equal(t, "session", uploader.target.SessionToken)
	assert.Equal(t, "signed dmg", uploader.body)

	// The poll handle keeps working without the key
	cred.Destroy()
	ticket := &entities.NotarizationTicket{SubmissionID: submission.ID, PollHandle: submission.PollHandle}

	status, err := g.Status(context.Background(), ticket)
	require.NoError(t, err)
	assert.Equal(t, entities.VerdictAccepted, status.Verdict)

	logURL, err := g.LogURL(context.Background(), ticket)
	require.NoError(t, err)
	assert.Equal(t, "https://logs.example/"+submissionID, logURL)
}

func TestNotaryAPIGateway_PollTokenIsScoped(t *testing.T) {
	key, pemKey := apiKey(t)
	server := notaryAPI(t, key, "In Progress")
	defer server.Close()

	submission, err := apiGateway(server, &recordingUploader{}).Submit(context.Background(), dmgArtifact(t), apiCredential(pemKey))
	require.NoError(t, err)

	claims := &notaryClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(submission.PollHandle, claims)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"GET /notary/v2/submissions/" + submissionID,
		"GET /notary/v2/submissions/" + submissionID + "/logs",
	}, claims.Scope)
	assert.WithinDuration(t, claims.IssuedAt.Add(DefaultNotaryAPIConfig().PollTokenTTL), claims.ExpiresAt.Time, 0)
}

func TestNotaryAPIGateway_StatusErrorsAreTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := apiGateway(server, nil).Status(context.Background(),
		&entities.NotarizationTicket{SubmissionID: submissionID, PollHandle: "token"})
	assert.ErrorIs(t, err, entities.ErrTransientNetwork)
}

func TestNotaryAPIGateway_SubmitFailures(t *testing.T) {
	key, pemKey := apiKey(t)
	server := notaryAPI(t, key, "Accepted")
	defer server.Close()

	t.Run("wrong credential kind", func(t *testing.T) {
		_, err := apiGateway(server, &recordingUploader{}).Submit(context.Background(), dmgArtifact(t),
			&entities.Credential{Kind: entities.CredentialNotaryPassword})
		assert.ErrorIs(t, err, entities.ErrCredentialUnavailable)
	})

	t.Run("unparseable key", func(t *testing.T) {
		_, err := apiGateway(server, &recordingUploader{}).Submit(context.Background(), dmgArtifact(t),
			apiCredential([]byte("not a key")))
		assert.ErrorIs(t, err, entities.ErrCredentialUnavailable)
	})

	t.Run("key rejected by server", func(t *testing.T) {
		_, otherKey := apiKey(t)
		_, err := apiGateway(server, &recordingUploader{}).Submit(context.Background(), dmgArtifact(t),
			apiCredential(otherKey))
		assert.ErrorIs(t, err, entities.ErrCredentialUnavailable)
	})

	t.Run("upload fails", func(t *testing.T) {
		uploader := &recordingUploader{err: errors.New("connection reset")}
		_, err := apiGateway(server, uploader).Submit(context.Background(), dmgArtifact(t), apiCredential(pemKey))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to upload submission "+submissionID)
	})
}
