package models

import (
	"encoding/json"
	"errors"
	"time"
)

// IDPrefix marks claim identifiers.
const IDPrefix = "clm_"

var ErrInvalidTransition = errors.New("invalid claim status transition")

// Status is the claim lifecycle state.
type Status string

const (
	StatusPending Status = "pending"
	StatusIssued  Status = "issued"
	StatusRevoked Status = "revoked"
)

func (s Status) IsValid() bool {
	return s == StatusPending || s == StatusIssued || s == StatusRevoked
}

// CanTransitionTo reports whether s may move to next. Transitions are
// monotonic: pending→issued, pending→revoked, issued→revoked.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusIssued || next == StatusRevoked
	case StatusIssued:
		return next == StatusRevoked
	default:
		return false
	}
}

// CredentialSource records where a claim's credential body came from.
type CredentialSource string

const (
	SourceBackend CredentialSource = "backend"
	SourceMock    CredentialSource = "mock"
)

// Subject is the attribute set a credential attests to. It holds the salted
// hash of the national ID, never the raw value. DateOfBirth is YYYY-MM-DD.
type Subject struct {
	FullName       string `json:"full_name"`
	NationalIDHash string `json:"national_id_hash"`
	DateOfBirth    string `json:"date_of_birth,omitempty"`
	Skill          string `json:"skill,omitempty"`
	Graduated      bool   `json:"graduated"`
	Score          *int   `json:"score,omitempty"`
	Institution    string `json:"institution,omitempty"`
	Degree         string `json:"degree,omitempty"`
	GraduationYear *int   `json:"graduation_year,omitempty"`
	Grade          string `json:"grade,omitempty"`
}

// CredentialSubject renders the subject with the field names the
// verification scopes query. dateOfBirth is a Unix timestamp so age
// predicates can compare it numerically.
func (s Subject) CredentialSubject() map[string]any {
	out := map[string]any{
		"fullName":       s.FullName,
		"nationalIdHash": s.NationalIDHash,
		"graduated":      s.Graduated,
	}
	if s.DateOfBirth != "" {
		if dob, err := time.Parse(time.DateOnly, s.DateOfBirth); err == nil {
			out["dateOfBirth"] = dob.Unix()
		}
	}
	if s.Skill != "" {
		out["skill"] = s.Skill
	}
	if s.Score != nil {
		out["score"] = *s.Score
	}
	if s.Institution != "" {
		out["institution"] = s.Institution
	}
	if s.Degree != "" {
		out["degree"] = s.Degree
	}
	if s.GraduationYear != nil {
		out["graduationYear"] = *s.GraduationYear
	}
	if s.Grade != "" {
		out["grade"] = s.Grade
	}
	return out
}

// Claim is one credential-issuance attempt and its lifecycle record. Claims
// are never deleted; revocation is a status.
type Claim struct {
	ID                  string           `json:"id"`
	ReferenceID         string           `json:"reference_id"`
	HolderID            string           `json:"holder_id"`
	Subject             Subject          `json:"subject"`
	Status              Status           `json:"status"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
	IssuedAt            *time.Time       `json:"issued_at,omitempty"`
	RevokedAt           *time.Time       `json:"revoked_at,omitempty"`
	RevocationReason    string           `json:"revocation_reason,omitempty"`
	BackendCredentialID string           `json:"backend_credential_id,omitempty"`
	CredentialSource    CredentialSource `json:"credential_source"`
	Credential          json.RawMessage  `json:"credential,omitempty"`
	IssuedTo            string           `json:"issued_to,omitempty"`
}

// MarkIssued moves a pending claim to issued and records the recipient. An
// already-issued claim is left untouched and changed is false.
func (c *Claim) MarkIssued(issuedTo string, now time.Time) (changed bool, err error) {
	if c.Status == StatusIssued {
		return false, nil
	}
	if !c.Status.CanTransitionTo(StatusIssued) {
		return false, ErrInvalidTransition
	}
	c.Status = StatusIssued
	c.IssuedAt = &now
	c.UpdatedAt = now
	if c.IssuedTo == "" {
		c.IssuedTo = issuedTo
	}
	return true, nil
}

// Revoke moves a claim to revoked. Revoking a revoked claim is a no-op and
// changed is false.
func (c *Claim) Revoke(reason string, now time.Time) (changed bool, err error) {
	if c.Status == StatusRevoked {
		return false, nil
	}
	if !c.Status.CanTransitionTo(StatusRevoked) {
		return false, ErrInvalidTransition
	}
	c.Status = StatusRevoked
	c.RevokedAt = &now
	c.UpdatedAt = now
	c.RevocationReason = reason
	return true, nil
}

// Stats is the read-side aggregation over all claims.
type Stats struct {
	Total       int            `json:"total"`
	Pending     int            `json:"pending"`
	Issued      int            `json:"issued"`
	Revoked     int            `json:"revoked"`
	IssuedToday int            `json:"issued_today"`
	Skills      map[string]int `json:"skills"`
}

// Add folds one claim into the aggregation. dayStart is the start of "today".
func (s *Stats) Add(c *Claim, dayStart time.Time) {
	s.Total++
	switch c.Status {
	case StatusPending:
		s.Pending++
	case StatusIssued:
		s.Issued++
	case StatusRevoked:
		s.Revoked++
	}
	if c.IssuedAt != nil && !c.IssuedAt.Before(dayStart) {
		s.IssuedToday++
	}
	if c.Subject.Skill != "" {
		if s.Skills == nil {
			s.Skills = make(map[string]int)
		}
		s.Skills[c.Subject.Skill]++
	}
}

// Clone returns a deep copy so stores never hand out shared state.
func (c *Claim) Clone() *Claim {
	out := *c
	if c.IssuedAt != nil {
		t := *c.IssuedAt
		out.IssuedAt = &t
	}
	if c.RevokedAt != nil {
		t := *c.RevokedAt
		out.RevokedAt = &t
	}
	if c.Subject.Score != nil {
		v := *c.Subject.Score
		out.Subject.Score = &v
	}
	if c.Subject.GraduationYear != nil {
		v := *c.Subject.GraduationYear
		out.Subject.GraduationYear = &v
	}
	if c.Credential != nil {
		out.Credential = append(json.RawMessage(nil), c.Credential...)
	}
	return &out
}
