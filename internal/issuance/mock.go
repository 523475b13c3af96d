package issuance

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	w3cCredentialsContext = "https://www.w3.org/2018/credentials/v1"
	mockProofType         = "MockSignature2024"
	revocationStatusType  = "Iden3commRevocationStatusV1.0"
)

var ErrMissingSigningKey = errors.New("mock signing key is required")

// MockConfig configures a MockSigner.
type MockConfig struct {
	IssuerDID  string
	SigningKey []byte
	// StatusBaseURL is the public base URL; revocation pointers are
	// {StatusBaseURL}/wallet/claims/{id}/status.
	StatusBaseURL string
}

// MockSigner produces self-signed credentials when the backend is not usable.
// The proof is an HS256 JWS over the credential digest; it is a placeholder,
// not a verifiable signature.
type MockSigner struct {
	issuerDID     string
	key           []byte
	statusBaseURL string
}

// NewMockSigner creates a MockSigner.
func NewMockSigner(cfg MockConfig) (*MockSigner, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, ErrMissingSigningKey
	}
	return &MockSigner{
		issuerDID:     cfg.IssuerDID,
		key:           cfg.SigningKey,
		statusBaseURL: strings.TrimRight(cfg.StatusBaseURL, "/"),
	}, nil
}

type credentialStatus struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	StatusPurpose   string `json:"statusPurpose"`
	RevocationNonce int64  `json:"revocationNonce"`
}

type mockProof struct {
	Type               string `json:"type"`
	Created            string `json:"created"`
	VerificationMethod string `json:"verificationMethod"`
	ProofPurpose       string `json:"proofPurpose"`
	JWS                string `json:"jws"`
}

type credential struct {
	Context           []string          `json:"@context"`
	ID                string            `json:"id"`
	Type              []string          `json:"type"`
	Issuer            string            `json:"issuer"`
	IssuanceDate      string            `json:"issuanceDate"`
	ExpirationDate    string            `json:"expirationDate,omitempty"`
	CredentialSubject map[string]any    `json:"credentialSubject"`
	CredentialStatus  *credentialStatus `json:"credentialStatus,omitempty"`
	Proof             *mockProof        `json:"proof,omitempty"`
}

// StatusURL is the revocation pointer embedded in a credential for claimID.
func (s *MockSigner) StatusURL(claimID string) string {
	return fmt.Sprintf("%s/wallet/claims/%s/status", s.statusBaseURL, claimID)
}

// Sign builds and signs a credential for req as of now.
func (s *MockSigner) Sign(req CredentialRequest, now time.Time) (json.RawMessage, error) {
	subject := make(map[string]any, len(req.Subject)+1)
	for k, v := range req.Subject {
		subject[k] = v
	}
	subject["id"] = req.HolderID

	contexts := []string{w3cCredentialsContext}
	if req.Context != "" {
		contexts = append(contexts, req.Context)
	}
	types := []string{"VerifiableCredential"}
	if req.CredentialType != "" {
		types = append(types, req.CredentialType)
	}

	cred := credential{
		Context:           contexts,
		ID:                "urn:claim:" + req.ClaimID,
		Type:              types,
		Issuer:            s.issuerDID,
		IssuanceDate:      now.UTC().Format(time.RFC3339),
		CredentialSubject: subject,
		CredentialStatus: &credentialStatus{
			ID:              s.StatusURL(req.ClaimID),
			Type:            revocationStatusType,
			StatusPurpose:   "revocation",
			RevocationNonce: now.Unix(),
		},
	}
	if req.Expiration != nil {
		cred.ExpirationDate = req.Expiration.UTC().Format(time.RFC3339)
	}

	unsigned, err := json.Marshal(cred)
	if err != nil {
		return nil, fmt.Errorf("marshal credential: %w", err)
	}
	digest := sha256.Sum256(unsigned)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":    s.issuerDID,
		"sub":    req.HolderID,
		"jti":    req.ClaimID,
		"iat":    now.Unix(),
		"digest": hex.EncodeToString(digest[:]),
	})
	jws, err := token.SignedString(s.key)
	if err != nil {
		return nil, fmt.Errorf("sign credential: %w", err)
	}

	cred.Proof = &mockProof{
		Type:               mockProofType,
		Created:            now.UTC().Format(time.RFC3339),
		VerificationMethod: s.issuerDID + "#mock-key-1",
		ProofPurpose:       "assertionMethod",
		JWS:                jws,
	}
	signed, err := json.Marshal(cred)
	if err != nil {
		return nil, fmt.Errorf("marshal signed credential: %w", err)
	}
	return signed, nil
}
