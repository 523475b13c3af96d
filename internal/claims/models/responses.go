package models

import (
	"time"

	"zkcred/internal/wallet/message"
)

// CreateResult is returned to the issuing organization after a claim is created.
type CreateResult struct {
	ClaimID          string           `json:"claim_id"`
	ReferenceID      string           `json:"reference_id"`
	Status           Status           `json:"status"`
	CredentialSource CredentialSource `json:"credential_source"`
	Offer            *message.Message `json:"offer"`
	Links            *message.Links   `json:"links"`
}

// RevokeResult echoes a revocation.
type RevokeResult struct {
	ClaimID string `json:"claim_id"`
	Revoked bool   `json:"revoked"`
	Reason  string `json:"reason,omitempty"`
}

// ClaimResponse is the public view of a claim. The credential body and the
// national-ID hash are withheld.
type ClaimResponse struct {
	ID               string           `json:"id"`
	ReferenceID      string           `json:"reference_id"`
	HolderID         string           `json:"holder_id"`
	Status           Status           `json:"status"`
	Skill            string           `json:"skill,omitempty"`
	CredentialSource CredentialSource `json:"credential_source"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	IssuedAt         *time.Time       `json:"issued_at,omitempty"`
	RevokedAt        *time.Time       `json:"revoked_at,omitempty"`
	RevocationReason string           `json:"revocation_reason,omitempty"`
	IssuedTo         string           `json:"issued_to,omitempty"`
}

// ToResponse converts a claim into its public view.
func (c *Claim) ToResponse() ClaimResponse {
	return ClaimResponse{
		ID:               c.ID,
		ReferenceID:      c.ReferenceID,
		HolderID:         c.HolderID,
		Status:           c.Status,
		Skill:            c.Subject.Skill,
		CredentialSource: c.CredentialSource,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
		IssuedAt:         c.IssuedAt,
		RevokedAt:        c.RevokedAt,
		RevocationReason: c.RevocationReason,
		IssuedTo:         c.IssuedTo,
	}
}

// RevocationStatus answers the credentialStatus pointer embedded in issued
// credentials.
type RevocationStatus struct {
	ClaimID   string     `json:"claim_id"`
	Revoked   bool       `json:"revoked"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}
