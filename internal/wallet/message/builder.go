package message

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// issuanceNamespace seeds deterministic issuance message ids so a repeated
// fetch for the same claim yields a byte-identical message.
var issuanceNamespace = uuid.MustParse("6f1c5a52-4c8e-4f8e-9a55-3a0b8c6e2d71")

// Config holds the addressing details the builder stamps into messages.
type Config struct {
	// BaseURL is the public URL wallets use to reach this service.
	BaseURL     string
	IssuerDID   string
	VerifierDID string
	// Scheme is the wallet deep-link scheme, e.g. "iden3comm".
	Scheme string
	// UniversalLinkBase is the web wallet URL that accepts an i_m fragment.
	UniversalLinkBase string
}

// Builder constructs wallet protocol messages.
type Builder struct {
	cfg   Config
	newID func() string
}

// NewBuilder creates a Builder.
func NewBuilder(cfg Config) *Builder {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Scheme == "" {
		cfg.Scheme = "iden3comm"
	}
	return &Builder{cfg: cfg, newID: func() string { return uuid.NewString() }}
}

// FetchURL is where a wallet posts the fetch-request for claimID.
func (b *Builder) FetchURL(claimID string) string {
	return fmt.Sprintf("%s/wallet/claims/%s/fetch", b.cfg.BaseURL, url.PathEscape(claimID))
}

// CallbackURL is where a wallet posts the authorization response for requestID.
func (b *Builder) CallbackURL(requestID string) string {
	return fmt.Sprintf("%s/wallet/verifications/%s/callback", b.cfg.BaseURL, url.PathEscape(requestID))
}

// IssuerDID returns the configured issuer identifier.
func (b *Builder) IssuerDID() string {
	return b.cfg.IssuerDID
}

// Offer builds the credential offer for a pending claim. The thread id is the
// claim id so the wallet's fetch-request correlates back to it.
func (b *Builder) Offer(claimID, holderDID, description string) (*Message, error) {
	body, err := json.Marshal(OfferBody{
		URL:         b.FetchURL(claimID),
		Credentials: []OfferCredential{{ID: claimID, Description: description}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal offer body: %w", err)
	}
	return &Message{
		ID:       b.newID(),
		Typ:      MediaTypePlain,
		Type:     TypeCredentialOffer,
		ThreadID: claimID,
		From:     b.cfg.IssuerDID,
		To:       holderDID,
		Body:     body,
	}, nil
}

// FetchEcho normalizes an inbound fetch-request. Missing fields are filled with
// defaults keyed by the claim id instead of rejecting the message, since wallets
// in the field send partial messages. inbound may be nil.
func (b *Builder) FetchEcho(claimID, holderDefault string, inbound *Message) *Message {
	out := Message{}
	if inbound != nil {
		out = *inbound
	}
	if out.ID == "" {
		out.ID = claimID
	}
	if out.Typ == "" {
		out.Typ = MediaTypePlain
	}
	if out.Type == "" {
		out.Type = TypeCredentialFetchRequest
	}
	if out.ThreadID == "" {
		out.ThreadID = out.ID
	}
	if out.From == "" {
		out.From = holderDefault
	}
	if out.To == "" {
		out.To = b.cfg.IssuerDID
	}
	if !out.HasBody() {
		// FetchBody has a single string field, so this cannot fail.
		out.Body, _ = json.Marshal(FetchBody{ID: claimID})
	}
	return &out
}

// Issuance wraps a finished credential addressed from the issuer to the holder,
// threaded to the originating claim. The message id is derived from the claim
// id, so the same claim and holder always produce the same message.
func (b *Builder) Issuance(claimID, holderDID string, credential json.RawMessage) (*Message, error) {
	body, err := json.Marshal(IssuanceBody{Credential: credential})
	if err != nil {
		return nil, fmt.Errorf("marshal issuance body: %w", err)
	}
	return &Message{
		ID:       uuid.NewSHA1(issuanceNamespace, []byte(claimID)).String(),
		Typ:      MediaTypePlain,
		Type:     TypeCredentialIssuance,
		ThreadID: claimID,
		From:     b.cfg.IssuerDID,
		To:       holderDID,
		Body:     body,
	}, nil
}

// AuthorizationRequest builds the proof request for a verification session. Its
// id and thread id are the session id; the wallet echoes the thread id back.
func (b *Builder) AuthorizationRequest(requestID, reason string, scope any) (*Message, error) {
	body, err := json.Marshal(AuthorizationRequestBody{
		CallbackURL: b.CallbackURL(requestID),
		Reason:      reason,
		Scope:       scope,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal authorization request body: %w", err)
	}
	return &Message{
		ID:       requestID,
		Typ:      MediaTypePlain,
		Type:     TypeAuthorizationRequest,
		ThreadID: requestID,
		From:     b.cfg.VerifierDID,
		Body:     body,
	}, nil
}

// AuthorizationAck answers a wallet's authorization response with the outcome.
func (b *Builder) AuthorizationAck(requestID, holderDID string, ack AckBody) (*Message, error) {
	body, err := json.Marshal(ack)
	if err != nil {
		return nil, fmt.Errorf("marshal authorization ack body: %w", err)
	}
	return &Message{
		ID:       b.newID(),
		Typ:      MediaTypePlain,
		Type:     TypeAuthorizationResponse,
		ThreadID: requestID,
		From:     b.cfg.VerifierDID,
		To:       holderDID,
		Body:     body,
	}, nil
}

// Error builds a problem-report so the wallet can show something meaningful
// when a callback cannot be honoured.
func (b *Builder) Error(threadID, code, msg string) *Message {
	body, _ := json.Marshal(ErrorBody{Code: code, Message: msg})
	return &Message{
		ID:       b.newID(),
		Typ:      MediaTypePlain,
		Type:     TypeProblemReport,
		ThreadID: threadID,
		From:     b.cfg.IssuerDID,
		Body:     body,
	}
}
