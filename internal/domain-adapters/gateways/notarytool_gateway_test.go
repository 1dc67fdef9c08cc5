package gateways

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/ochairo/tagship/internal/domain/entities"
	"github.com/ochairo/tagship/internal/domain/interfaces/gateways"
)

func notarytoolCredential() *entities.Credential {
	return &entities.Credential{
		Kind:     entities.CredentialNotaryPassword,
		Identity: "dev@lapce.dev",
		Team:     "TEAM123",
		Secret:   []byte("app-specific-pw"),
	}
}

// notarytool answers submit and info with canned JSON
func notarytool(infoStatus string) func(gateways.Command) (*gateways.CommandResult, error) {
	return func(cmd gateways.Command) (*gateways.CommandResult, error) {
		if cmd.Name != "xcrun" {
			return securityTool(cmd)
		}
		switch cmd.Args[1] {
		case "submit":
			return &gateways.CommandResult{Stdout: `{"id":"2efe2717-52ef-43a5-96dc-0797e4ca1041","message":"Successfully uploaded file"}`}, nil
		case "info":
			return &gateways.CommandResult{Stdout: `{"id":"2efe2717-52ef-43a5-96dc-0797e4ca1041","status":"` + infoStatus + `"}`}, nil
		case "log":
			return &gateways.CommandResult{}, os.WriteFile(cmd.Args[len(cmd.Args)-1], []byte("{}"), 0600)
		}
		return &gateways.CommandResult{}, nil
	}
}

func TestVerdictFor(t *testing.T) {
	tests := map[string]entities.Verdict{
		"Accepted":    entities.VerdictAccepted,
		"Invalid":     entities.VerdictRejected,
		"Rejected":    entities.VerdictRejected,
		"In Progress": entities.VerdictPending,
		"":            entities.VerdictPending,
	}
	for status, want := range tests {
		if got := verdictFor(status); got != want {
			t.Errorf("verdictFor(%q) = %s, want %s", status, got, want)
		}
	}
}

func TestNotarytoolGateway_SubmitStatusLog(t *testing.T) {
	runner := &recordingRunner{handler: notarytool("Invalid")}
	logDir := t.TempDir()
	g := NewNotarytoolGateway(runner, NewKeychains(runner, t.TempDir(), nil), logDir, nil)

	cred := notarytoolCredential()
	submission, err := g.Submit(context.Background(), &entities.Artifact{Path: "/work/lapce.dmg"}, cred)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if submission.ID != "2efe2717-52ef-43a5-96dc-0797e4ca1041" || !strings.HasPrefix(submission.PollHandle, "tagship-") {
		t.Errorf("unexpected submission %+v", submission)
	}

	// Polling works after the caller destroyed the credential
	cred.Destroy()
	ticket := &entities.NotarizationTicket{SubmissionID: submission.ID, PollHandle: submission.PollHandle}

	status, err := g.Status(context.Background(), ticket)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Verdict != entities.VerdictRejected || status.Status != "Invalid" {
		t.Errorf("Status() = %+v", status)
	}

	logURL, err := g.LogURL(context.Background(), ticket)
	if err != nil {
		t.Fatalf("LogURL() error = %v", err)
	}
	if !strings.HasPrefix(logURL, "file://") || !strings.HasSuffix(logURL, "notarization-"+submission.ID+".json") {
		t.Errorf("LogURL() = %s", logURL)
	}

	for _, line := range runner.lines() {
		if strings.Contains(line, "--wait") {
			t.Errorf("notarytool must not block: %s", line)
		}
		if strings.Contains(line, "notarytool info") && strings.Contains(line, "--password") {
			t.Errorf("polling must not pass the password: %s", line)
		}
	}
	store, _ := runner.find("xcrun", "notarytool")
	if strings.Contains(store.String(), "app-specific-pw") {
		t.Errorf("store-credentials line leaks the password: %s", store.String())
	}

	if err := g.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, ok := runner.find("security", "delete-keychain"); !ok {
		t.Error("Close() must delete the keychain")
	}
	if _, err := g.Status(context.Background(), ticket); err == nil {
		t.Error("Status() after Close() should fail")
	}
}

func TestNotarytoolGateway_StatusErrorsAreTransient(t *testing.T) {
	runner := &recordingRunner{handler: func(cmd gateways.Command) (*gateways.CommandResult, error) {
		if cmd.Name == "xcrun" && cmd.Args[1] == "info" {
			return nil, &CommandError{Command: "xcrun notarytool info", ExitCode: 69}
		}
		return notarytool("")(cmd)
	}}
	g := NewNotarytoolGateway(runner, NewKeychains(runner, t.TempDir(), nil), t.TempDir(), nil)

	submission, err := g.Submit(context.Background(), &entities.Artifact{Path: "a.dmg"}, notarytoolCredential())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	_, err = g.Status(context.Background(), &entities.NotarizationTicket{SubmissionID: submission.ID, PollHandle: submission.PollHandle})
	if !errors.Is(err, entities.ErrTransientNetwork) {
		t.Errorf("Status() error = %v, want ErrTransientNetwork", err)
	}
}

func TestNotarytoolGateway_RejectsWrongCredential(t *testing.T) {
	runner := &recordingRunner{}
	g := NewNotarytoolGateway(runner, NewKeychains(runner, t.TempDir(), nil), "", nil)

	_, err := g.Submit(context.Background(), &entities.Artifact{Path: "a.dmg"},
		&entities.Credential{Kind: entities.CredentialNotaryAPIKey})
	if !errors.Is(err, entities.ErrCredentialUnavailable) {
		t.Errorf("Submit() error = %v, want ErrCredentialUnavailable", err)
	}
	if len(runner.lines()) != 0 {
		t.Errorf("no command should run, got %v", runner.lines())
	}
}
