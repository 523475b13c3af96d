package audit

import "time"

// Event records one lifecycle transition of a claim or verification session.
// It is transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	// SubjectID is the claim id or session id the event is about.
	SubjectID string `json:"subject_id"`
	HolderID  string `json:"holder_id,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	// Actor is the operator behind an authority action such as a revocation.
	Actor string `json:"actor,omitempty"`
}

type Action string

const (
	ActionClaimCreated         Action = "claim.created"
	ActionClaimIssued          Action = "claim.issued"
	ActionClaimRevoked         Action = "claim.revoked"
	ActionVerificationOpened   Action = "verification.opened"
	ActionChallengeOpened      Action = "challenge.opened"
	ActionVerificationResolved Action = "verification.resolved"
	ActionVerificationExpired  Action = "verification.expired"
)
