package gateways

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/ochairo/tagship/internal/domain/interfaces"
	"github.com/ochairo/tagship/internal/domain/interfaces/gateways"
)

const (
	defaultCommandTimeout = 30 * time.Minute
	stderrTailLines       = 20
)

// CommandError reports a failed or timed-out external program. Command and
// Stderr are already masked.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
	TimedOut bool
	Err      error
}

func (e *CommandError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("%s: timed out: %v", e.Command, e.Err)
	}
	msg := fmt.Sprintf("%s: exit %d", e.Command, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExecRunner runs commands as child processes
type ExecRunner struct {
	defaultTimeout time.Duration
	logger         interfaces.Logger
}

// NewExecRunner creates a command runner that logs through logger
func NewExecRunner(logger interfaces.Logger) *ExecRunner {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &ExecRunner{
		defaultTimeout: defaultCommandTimeout,
		logger:         logger,
	}
}

// Run executes cmd and waits for it to finish
func (r *ExecRunner) Run(ctx context.Context, cmd gateways.Command) (*gateways.CommandResult, error) {
	startTime := time.Now()

	timeout := cmd.Timeout
	if timeout == 0 {
		timeout = r.defaultTimeout
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	//nolint:gosec // G204: Program and arguments come from release configuration, no shell involved
	c := exec.CommandContext(execCtx, cmd.Name, cmd.Args...)
	if cmd.Dir != "" {
		c.Dir = cmd.Dir
	}

	env := os.Environ()
	for key, value := range cmd.Env {
		env = append(env, fmt.Sprintf("%s=%s", key, value))
	}
	c.Env = env

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	line := cmd.String()
	r.logger.Debug("running command",
		interfaces.F("command", line),
		interfaces.F("description", cmd.Description),
		interfaces.F("dir", cmd.Dir),
	)

	err := c.Run()
	result := &gateways.CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(startTime),
	}

	if err == nil {
		r.logger.Debug("command finished",
			interfaces.F("command", cmd.Name),
			interfaces.F("duration", result.Duration),
		)
		return result, nil
	}

	cmdErr := &CommandError{
		Command: line,
		Stderr:  mask(tail(result.Stderr, stderrTailLines), cmd.Secrets),
		Err:     err,
	}

	var exitErr *exec.ExitError
	//nolint:gocritic // ifElseChain: checking different error types, not suitable for switch
	if errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		cmdErr.TimedOut = true
		cmdErr.ExitCode = -1
		cmdErr.Err = fmt.Errorf("after %v: %w", timeout, context.DeadlineExceeded)
	} else if errors.As(err, &exitErr) {
		cmdErr.ExitCode = exitErr.ExitCode()
	} else {
		cmdErr.ExitCode = -1
	}
	result.ExitCode = cmdErr.ExitCode

	r.logger.Warn("command failed",
		interfaces.F("command", line),
		interfaces.F("exit_code", cmdErr.ExitCode),
		interfaces.F("duration", result.Duration),
	)
	return result, cmdErr
}

// tail keeps the last n lines of s
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// mask replaces every secret in s
func mask(s string, secrets []string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, "****")
	}
	return s
}
