package models

import (
	"strings"
	"time"

	"zkcred/internal/verification/scope"
	"zkcred/internal/wallet/message"
	limits "zkcred/pkg/platform/validation"
	"zkcred/pkg/validation"
)

// OpenRequest asks for a new verification session.
type OpenRequest struct {
	VerificationType string           `json:"verification_type" validate:"required"`
	Conditions       scope.Conditions `json:"conditions"`
	Reason           string           `json:"reason"`
}

func (r *OpenRequest) Normalize() {
	r.VerificationType = strings.TrimSpace(r.VerificationType)
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *OpenRequest) Validate() error {
	var c validation.Collector
	c.Struct(r)
	c.Check("conditions", limits.CheckSliceCount("conditions", len(r.Conditions), limits.MaxConditions))
	c.Check("reason", limits.CheckStringLength("reason", r.Reason, limits.MaxReasonLength))
	if !c.Has("verification_type") {
		if _, err := scope.ParseVerificationType(r.VerificationType); err != nil {
			c.Add("verification_type", err.Error())
		}
	}
	return c.Err()
}

// ChallengeRequest asks for an identity challenge with no business condition.
type ChallengeRequest struct {
	Reason string `json:"reason"`
}

func (r *ChallengeRequest) Normalize() {
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *ChallengeRequest) Validate() error {
	var c validation.Collector
	c.Check("reason", limits.CheckStringLength("reason", r.Reason, limits.MaxReasonLength))
	return c.Err()
}

// OpenResult is returned to the verifier after a session is opened.
type OpenResult struct {
	RequestID string           `json:"request_id"`
	Kind      Kind             `json:"kind"`
	Status    Status           `json:"status"`
	ExpiresAt time.Time        `json:"expires_at"`
	Request   *message.Message `json:"request"`
	Links     *message.Links   `json:"links"`
}

// SessionResponse is the polling view of a session.
type SessionResponse struct {
	RequestID        string                 `json:"request_id"`
	Kind             Kind                   `json:"kind"`
	VerificationType scope.VerificationType `json:"verification_type,omitempty"`
	Status           Status                 `json:"status"`
	CreatedAt        time.Time              `json:"created_at"`
	ExpiresAt        time.Time              `json:"expires_at"`
	Result           *Result                `json:"result,omitempty"`
}

func (s *Session) ToResponse() SessionResponse {
	return SessionResponse{
		RequestID:        s.ID,
		Kind:             s.Kind,
		VerificationType: s.VerificationType,
		Status:           s.Status,
		CreatedAt:        s.CreatedAt,
		ExpiresAt:        s.ExpiresAt,
		Result:           s.Result,
	}
}
