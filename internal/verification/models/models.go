package models

import (
	"encoding/json"
	"errors"
	"time"

	"zkcred/internal/verification/scope"
)

var (
	ErrAlreadyResolved = errors.New("verification session already resolved")
	ErrExpired         = errors.New("verification session expired")
)

// Kind distinguishes business verifications from operator identity challenges.
type Kind string

const (
	KindVerification Kind = "verification"
	KindChallenge    Kind = "challenge"
)

// Status is the session state. It is write-once from pending.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusFailed   Status = "failed"
	StatusExpired  Status = "expired"
)

func (s Status) IsTerminal() bool {
	return s == StatusVerified || s == StatusFailed || s == StatusExpired
}

// Result is the outcome of resolving a session with a wallet's proof.
type Result struct {
	Verified             bool      `json:"verified"`
	HolderID             string    `json:"holder_id,omitempty"`
	IssuerID             string    `json:"issuer_id,omitempty"`
	IssuerAddress        string    `json:"issuer_address,omitempty"`
	IssuerAuthorized     bool      `json:"issuer_authorized"`
	AuthorizationUnknown bool      `json:"authorization_unknown,omitempty"`
	DisclosedFields      []string  `json:"disclosed_fields,omitempty"`
	Message              string    `json:"message"`
	VerifiedAt           time.Time `json:"verified_at"`
}

// Session is one proof request awaiting the holder's wallet.
type Session struct {
	ID               string                 `json:"id"`
	Kind             Kind                   `json:"kind"`
	VerificationType scope.VerificationType `json:"verification_type"`
	Conditions       scope.Conditions       `json:"conditions,omitempty"`
	Reason           string                 `json:"reason,omitempty"`
	Scopes           []scope.Scope          `json:"scopes"`
	Status           Status                 `json:"status"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
	ExpiresAt        time.Time              `json:"expires_at"`
	Result           *Result                `json:"result,omitempty"`
}

// PastExpiry reports whether a pending session has reached its expiry at now.
func (s *Session) PastExpiry(now time.Time) bool {
	return s.Status == StatusPending && !now.Before(s.ExpiresAt)
}

// Expire flips a pending session past its expiry to expired. It reports
// whether anything changed.
func (s *Session) Expire(now time.Time) bool {
	if !s.PastExpiry(now) {
		return false
	}
	s.Status = StatusExpired
	s.UpdatedAt = now
	return true
}

// Resolve records the terminal outcome. The session must still be pending
// and within its window.
func (s *Session) Resolve(result Result, now time.Time) error {
	switch {
	case s.Status == StatusExpired, s.PastExpiry(now):
		return ErrExpired
	case s.Status.IsTerminal():
		return ErrAlreadyResolved
	}
	if result.Verified {
		s.Status = StatusVerified
	} else {
		s.Status = StatusFailed
	}
	result.VerifiedAt = now
	s.Result = &result
	s.UpdatedAt = now
	return nil
}

// Clone returns a deep copy so stores never hand out shared state.
func (s *Session) Clone() *Session {
	out := *s
	if s.Scopes != nil {
		// Nested maps are copied through JSON, matching what persistent stores return.
		raw, err := json.Marshal(s.Scopes)
		if err == nil {
			var scopes []scope.Scope
			if json.Unmarshal(raw, &scopes) == nil {
				out.Scopes = scopes
			}
		}
	}
	if s.Conditions != nil {
		raw, err := json.Marshal(s.Conditions)
		if err == nil {
			var conds scope.Conditions
			if json.Unmarshal(raw, &conds) == nil {
				out.Conditions = conds
			}
		}
	}
	if s.Result != nil {
		r := *s.Result
		r.DisclosedFields = append([]string(nil), s.Result.DisclosedFields...)
		out.Result = &r
	}
	return &out
}
