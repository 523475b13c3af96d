package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"sync"
)

// InMemory is a process-local allow-list for development and tests.
type InMemory struct {
	mu      sync.RWMutex
	issuers map[string]Issuer
	seq     uint64
}

func NewInMemory(issuers ...Issuer) *InMemory {
	r := &InMemory{issuers: make(map[string]Issuer, len(issuers))}
	for _, issuer := range issuers {
		_, _ = r.Add(context.Background(), issuer)
	}
	return r
}

func (r *InMemory) IsAuthorized(_ context.Context, address string) (bool, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	issuer, ok := r.issuers[addr]
	return ok && issuer.Active, nil
}

func (r *InMemory) Info(_ context.Context, address string) (*Issuer, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	issuer, ok := r.issuers[addr]
	if !ok {
		return nil, ErrIssuerNotFound
	}
	return &issuer, nil
}

func (r *InMemory) List(_ context.Context, activeOnly bool) ([]Issuer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Issuer, 0, len(r.issuers))
	for _, issuer := range r.issuers {
		if activeOnly && !issuer.Active {
			continue
		}
		out = append(out, issuer)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

// Add stores the issuer and returns a synthetic transaction hash derived from
// the record and a per-registry sequence number.
func (r *InMemory) Add(_ context.Context, issuer Issuer) (string, error) {
	addr, err := NormalizeAddress(issuer.Address)
	if err != nil {
		return "", err
	}
	issuer.Address = addr
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.issuers[addr] = issuer
	return txHash(issuer, r.seq), nil
}

func txHash(issuer Issuer, seq uint64) string {
	h := sha256.New()
	for _, part := range []string{
		issuer.Address,
		issuer.Name,
		issuer.Type,
		strconv.FormatBool(issuer.Active),
		strconv.FormatUint(seq, 10),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return "0x" + hex.EncodeToString(h.Sum(nil))
}
