package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"zkcred/internal/claims/models"
	"zkcred/internal/sentinel"
	platformsync "zkcred/pkg/platform/sync"
)

// InMemoryStore keeps claims in process memory. Reads and writes copy, and
// per-id updates serialize on a sharded lock so unrelated claims don't contend.
type InMemoryStore struct {
	mu     sync.RWMutex
	claims map[string]*models.Claim
	locks  *platformsync.ShardedMutex
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		claims: make(map[string]*models.Claim),
		locks:  platformsync.NewShardedMutex(),
	}
}

func (s *InMemoryStore) Create(_ context.Context, claim *models.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.claims[claim.ID]; ok {
		return sentinel.ErrConflict
	}
	s.claims[claim.ID] = claim.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*models.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	claim, ok := s.claims[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return claim.Clone(), nil
}

func (s *InMemoryStore) Update(ctx context.Context, id string, fn UpdateFunc) (*models.Claim, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	claim, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(claim); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.claims[id] = claim.Clone()
	s.mu.Unlock()
	return claim, nil
}

func (s *InMemoryStore) ListByHolder(_ context.Context, holderID string, limit int) ([]*models.Claim, error) {
	s.mu.RLock()
	var out []*models.Claim
	for _, claim := range s.claims {
		if claim.HolderID == holderID {
			out = append(out, claim.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) Stats(_ context.Context, dayStart time.Time) (*models.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &models.Stats{Skills: make(map[string]int)}
	for _, claim := range s.claims {
		stats.Add(claim, dayStart)
	}
	return stats, nil
}
