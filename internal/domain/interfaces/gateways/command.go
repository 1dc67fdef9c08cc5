// Package gateways defines interfaces for external service adapters.
package gateways

import (
	"context"
	"strings"
	"time"
)

// Command is a single external program invocation. Args are passed to the
// program directly, never through a shell.
type Command struct {
	Name        string
	Args        []string
	Dir         string
	Env         map[string]string
	Timeout     time.Duration
	Description string

	// Secrets are masked wherever the command line is rendered
	Secrets []string
}

// String renders the command line with secrets masked
func (c Command) String() string {
	parts := append([]string{c.Name}, c.Args...)
	line := strings.Join(parts, " ")
	for _, secret := range c.Secrets {
		if secret == "" {
			continue
		}
		line = strings.ReplaceAll(line, secret, "****")
	}
	return line
}

// CommandResult holds the outcome of a finished command
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// CommandRunner executes external programs
type CommandRunner interface {
	// Run executes cmd. A non-zero exit returns an error together with the
	// populated result.
	Run(ctx context.Context, cmd Command) (*CommandResult, error)
}
