package main

import (
	"errors"
	"fmt"
)

// Process exit codes
const (
	exitOK      = 0
	exitFailed  = 1 // at least one platform failed
	exitInvalid = 2 // invalid tag or usage error
)

// exitError carries the exit code a command wants main to use
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

// exitCode maps a command error to the process exit code. Errors that are not
// tagged come from flag or argument parsing.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitInvalid
}
