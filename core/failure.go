package core

import (
	"errors"
	"fmt"
	"time"
)

// FailureKind is the closed taxonomy of failure categories produced by
// fallible operations. Recovery routines match on this enum structurally
// rather than inspecting error text.
type FailureKind string

const (
	// FailureTimeout marks an operation that did not finish in time.
	FailureTimeout FailureKind = "timeout"
	// FailureConnection marks a transport-level failure reaching a peer.
	FailureConnection FailureKind = "connection"
	// FailureRateLimit marks a provider throttling the caller; RetryAfter
	// may carry the provider's hint.
	FailureRateLimit FailureKind = "rate_limit"
	// FailureNotFound marks a missing entity or document.
	FailureNotFound FailureKind = "not_found"
	// FailureInvalidInput marks a request the callee rejected as malformed.
	FailureInvalidInput FailureKind = "invalid_input"
	// FailureInternal is the residual category for everything else.
	FailureInternal FailureKind = "internal"
)

// Failure is the uniform error envelope for external integrations and
// fallible internal operations: a machine-readable kind and reason plus an
// optional retry-after hint. Consumers never inspect provider-specific codes,
// only this envelope.
type Failure struct {
	Kind       FailureKind
	Op         string
	Reason     string
	RetryAfter time.Duration
	Err        error
}

// NewFailure constructs a Failure for operation op.
func NewFailure(kind FailureKind, op, reason string) *Failure {
	return &Failure{Kind: kind, Op: op, Reason: reason}
}

// WrapFailure constructs a Failure preserving the underlying error for
// errors.Is/As chains.
func WrapFailure(kind FailureKind, op string, err error) *Failure {
	return &Failure{Kind: kind, Op: op, Reason: err.Error(), Err: err}
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.Op != "" {
		return fmt.Sprintf("%s: %s: %s", f.Op, f.Kind, f.Reason)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Reason)
}

// Unwrap returns the wrapped cause, if any.
func (f *Failure) Unwrap() error { return f.Err }

// KindOf extracts the failure kind from err. Non-Failure errors classify as
// FailureInternal; a nil error has no kind and returns "".
func KindOf(err error) FailureKind {
	if err == nil {
		return ""
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return FailureInternal
}

// RetryAfterOf extracts the retry-after hint from err, or zero when absent.
func RetryAfterOf(err error) time.Duration {
	var f *Failure
	if errors.As(err, &f) {
		return f.RetryAfter
	}
	return 0
}
