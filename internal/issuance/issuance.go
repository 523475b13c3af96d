// Package issuance produces the credential body for a new claim. The external
// issuance backend is tried first; when it is unconfigured, failing, or its
// circuit is open, a locally signed mock credential is used so the caller
// always receives a usable offer.
package issuance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Source records where a claim's credential body came from.
type Source string

const (
	SourceBackend Source = "backend"
	SourceMock    Source = "mock"
)

// CredentialRequest describes the credential to issue for one claim.
type CredentialRequest struct {
	ClaimID        string
	HolderID       string
	CredentialType string
	Context        string
	// Subject is the credentialSubject attribute set. It must never contain a
	// raw national ID, only its hash.
	Subject    map[string]any
	Expiration *time.Time
}

// Result is a finished credential ready to be stored on a claim.
type Result struct {
	Source              Source
	BackendCredentialID string
	Credential          json.RawMessage
}

// Backend is the external credential-issuance service.
//
// Error Contract:
//   - errors are *BackendError so callers can tell transient from permanent failures
type Backend interface {
	CreateCredential(ctx context.Context, req CredentialRequest) (string, error)
	FetchCredential(ctx context.Context, credentialID string) (json.RawMessage, error)
}

// ErrorCategory classifies backend failures.
type ErrorCategory string

const (
	ErrorTimeout     ErrorCategory = "timeout"
	ErrorOutage      ErrorCategory = "outage"
	ErrorRateLimited ErrorCategory = "rate_limited"
	ErrorRejected    ErrorCategory = "rejected"
	ErrorNotFound    ErrorCategory = "not_found"
	ErrorBadData     ErrorCategory = "bad_data"
	ErrorInternal    ErrorCategory = "internal"
)

// BackendError wraps a backend failure with its category.
type BackendError struct {
	Category   ErrorCategory
	Op         string
	Message    string
	Underlying error
	Retryable  bool
}

func (e *BackendError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("issuance backend %s [%s]: %s: %v", e.Op, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("issuance backend %s [%s]: %s", e.Op, e.Category, e.Message)
}

func (e *BackendError) Unwrap() error {
	return e.Underlying
}

// NewBackendError builds a BackendError. Timeouts, outages and rate limiting
// are retryable; everything else is permanent.
func NewBackendError(category ErrorCategory, op, message string, underlying error) *BackendError {
	return &BackendError{
		Category:   category,
		Op:         op,
		Message:    message,
		Underlying: underlying,
		Retryable:  category == ErrorTimeout || category == ErrorOutage || category == ErrorRateLimited,
	}
}

// CategoryOf returns the category of err, or ErrorInternal.
func CategoryOf(err error) ErrorCategory {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Category
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}
	return ErrorInternal
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Retryable
	}
	return false
}
