package entities

import (
	"errors"
	"fmt"
)

// Failure taxonomy. Every fatal error aborts only its own platform job.
var (
	ErrInvalidTag            = errors.New("invalid release tag")
	ErrBuild                 = errors.New("build failed")
	ErrPackagingFailed       = errors.New("packaging failed")
	ErrSigningFailed         = errors.New("signing failed")
	ErrNotarizationRejected  = errors.New("notarization rejected")
	ErrNotarizationTimeout   = errors.New("notarization timed out")
	ErrTransientNetwork      = errors.New("transient network error")
	ErrUpload                = errors.New("upload failed")
	ErrCredentialUnavailable = errors.New("credential unavailable")
	ErrNotEligibleForPublish = errors.New("artifact not eligible for publish")
	ErrStapleFailed          = errors.New("staple failed")
	ErrInvalidPlan           = errors.New("invalid release plan")
)

// PhaseError records which pipeline phase produced a failure.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("failed:%s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// PackagingError carries the reason a packaging toolchain call failed.
type PackagingError struct {
	Reason string
	Err    error
}

func (e *PackagingError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", ErrPackagingFailed, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %v", ErrPackagingFailed, e.Reason, e.Err)
}

// Is lets errors.Is(err, ErrPackagingFailed) match.
func (e *PackagingError) Is(target error) bool {
	return target == ErrPackagingFailed
}

func (e *PackagingError) Unwrap() error {
	return e.Err
}

// RejectionError is returned when the notary authority rejects a submission.
type RejectionError struct {
	SubmissionID string
	Status       string
	LogURL       string
}

func (e *RejectionError) Error() string {
	msg := fmt.Sprintf("%v: submission %s returned %q", ErrNotarizationRejected, e.SubmissionID, e.Status)
	if e.LogURL != "" {
		msg += " (log: " + e.LogURL + ")"
	}
	return msg
}

// Is lets errors.Is(err, ErrNotarizationRejected) match.
func (e *RejectionError) Is(target error) bool {
	return target == ErrNotarizationRejected
}
