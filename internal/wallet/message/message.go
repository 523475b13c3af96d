// Package message builds the identity-wallet protocol messages exchanged during
// issuance (offer, fetch-request, issuance-response) and verification
// (authorization request and response), plus their QR and deep-link encodings.
package message

import (
	"encoding/json"
)

// MediaTypePlain is the protocol/version tag carried in every message's typ field.
const MediaTypePlain = "application/iden3comm-plain-json"

// Message type URIs.
const (
	TypeCredentialOffer        = "https://iden3-communication.io/credentials/1.0/offer"
	TypeCredentialFetchRequest = "https://iden3-communication.io/credentials/1.0/fetch-request"
	TypeCredentialIssuance     = "https://iden3-communication.io/credentials/1.0/issuance-response"
	TypeAuthorizationRequest   = "https://iden3-communication.io/authorization/1.0/request"
	TypeAuthorizationResponse  = "https://iden3-communication.io/authorization/1.0/response"
	TypeProblemReport          = "https://iden3-communication.io/didcomm/1.0/problem-report"
)

// Message is the common envelope of every wallet message. Body stays raw so
// inbound messages round-trip without losing fields this service does not model.
type Message struct {
	ID       string          `json:"id"`
	Typ      string          `json:"typ,omitempty"`
	Type     string          `json:"type"`
	ThreadID string          `json:"thid,omitempty"`
	From     string          `json:"from,omitempty"`
	To       string          `json:"to,omitempty"`
	Body     json.RawMessage `json:"body,omitempty"`
}

// DecodeBody unmarshals the raw body into v.
func (m *Message) DecodeBody(v any) error {
	if len(m.Body) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(m.Body, v)
}

// HasBody reports whether the message carries a non-null body.
func (m *Message) HasBody() bool {
	return len(m.Body) > 0 && string(m.Body) != "null"
}

// OfferBody points the wallet back at the fetch endpoint for one claim.
type OfferBody struct {
	URL         string            `json:"url"`
	Credentials []OfferCredential `json:"credentials"`
}

type OfferCredential struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// FetchBody names the claim the wallet wants issued.
type FetchBody struct {
	ID string `json:"id"`
}

// IssuanceBody carries the finished credential document.
type IssuanceBody struct {
	Credential json.RawMessage `json:"credential"`
}

// AuthorizationRequestBody asks the wallet for proofs satisfying Scope and
// tells it where to post the response.
type AuthorizationRequestBody struct {
	CallbackURL string `json:"callbackUrl"`
	Reason      string `json:"reason"`
	Scope       any    `json:"scope"`
}

// AuthorizationResponseBody is what a wallet posts back: one proof per requested scope.
type AuthorizationResponseBody struct {
	Message string          `json:"message,omitempty"`
	Scope   []ProofResponse `json:"scope"`
}

// ProofResponse is a single zero-knowledge proof answering one scope.
type ProofResponse struct {
	ID         int       `json:"id"`
	CircuitID  string    `json:"circuitId"`
	Proof      ProofData `json:"proof"`
	PubSignals []string  `json:"pub_signals"`
	// Issuer is the DID of the credential issuer the proof was generated against,
	// when the wallet discloses it.
	Issuer string `json:"issuer,omitempty"`
}

// ProofData holds the Groth16 proof points.
type ProofData struct {
	A        []string   `json:"pi_a"`
	B        [][]string `json:"pi_b"`
	C        []string   `json:"pi_c"`
	Protocol string     `json:"protocol,omitempty"`
}

// AckBody is the verifier's answer to an authorization response.
type AckBody struct {
	Verified         bool   `json:"verified"`
	IssuerAuthorized bool   `json:"issuerAuthorized"`
	Message          string `json:"message"`
}

// ErrorBody is the body of a problem-report message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
