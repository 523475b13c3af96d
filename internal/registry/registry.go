// Package registry is the client side of the on-chain issuer allow-list.
// Proof results are only trusted when the issuer's address is registered and
// active; a registry that cannot be reached counts as not authorized.
package registry

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
)

var (
	ErrIssuerNotFound = errors.New("issuer not registered")
	ErrInvalidAddress = errors.New("invalid issuer address")
)

var addressPattern = regexp.MustCompile(`0x[0-9a-fA-F]{40}`)

// Issuer is one allow-list entry.
type Issuer struct {
	Address string    `json:"address"`
	Name    string    `json:"name"`
	Type    string    `json:"type,omitempty"`
	Active  bool      `json:"active"`
	AddedAt time.Time `json:"added_at"`
}

// Registry is the issuer allow-list.
//
// Error Contract:
//   - Info returns ErrIssuerNotFound for unknown addresses
//   - IsAuthorized returns false, nil for unknown addresses
//   - any other error means the registry could not answer
type Registry interface {
	IsAuthorized(ctx context.Context, address string) (bool, error)
	Info(ctx context.Context, address string) (*Issuer, error)
	List(ctx context.Context, activeOnly bool) ([]Issuer, error)
	// Add registers or replaces an issuer and returns the hash of the
	// transaction that recorded it.
	Add(ctx context.Context, issuer Issuer) (string, error)
}

// NormalizeAddress validates a 0x-prefixed 20-byte hex address and returns it
// lower-cased.
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if len(address) != 42 || !addressPattern.MatchString(address) {
		return "", ErrInvalidAddress
	}
	return strings.ToLower(address), nil
}

// AddressFromIssuerID extracts the on-chain address embedded in an issuer
// identifier such as did:ethr:0xabc... or a bare address. ok is false when the
// identifier carries no address.
func AddressFromIssuerID(issuerID string) (string, bool) {
	match := addressPattern.FindString(issuerID)
	if match == "" {
		return "", false
	}
	return strings.ToLower(match), true
}
