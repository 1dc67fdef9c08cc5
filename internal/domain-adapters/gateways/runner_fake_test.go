package gateways

import (
	"context"
	"strings"
	"sync"

	"github.com/ochairo/tagship/internal/domain/interfaces/gateways"
)

// recordingRunner records commands and answers from an optional handler
type recordingRunner struct {
	mu       sync.Mutex
	commands []gateways.Command
	handler  func(cmd gateways.Command) (*gateways.CommandResult, error)
}

func (r *recordingRunner) Run(_ context.Context, cmd gateways.Command) (*gateways.CommandResult, error) {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	r.mu.Unlock()

	if r.handler != nil {
		return r.handler(cmd)
	}
	return &gateways.CommandResult{}, nil
}

// lines renders each recorded command as "name arg arg"
func (r *recordingRunner) lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, strings.Join(append([]string{cmd.Name}, cmd.Args...), " "))
	}
	return out
}

// find returns the first command whose name and first argument match
func (r *recordingRunner) find(name, sub string) (gateways.Command, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cmd := range r.commands {
		if cmd.Name == name && (sub == "" || (len(cmd.Args) > 0 && cmd.Args[0] == sub)) {
			return cmd, true
		}
	}
	return gateways.Command{}, false
}
