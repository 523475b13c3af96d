package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"zkcred/internal/sentinel"
	"zkcred/internal/verification/models"
	platformsync "zkcred/pkg/platform/sync"
)

// InMemoryStore keeps sessions in process memory.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	locks    *platformsync.ShardedMutex
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*models.Session),
		locks:    platformsync.NewShardedMutex(),
	}
}

func (s *InMemoryStore) Create(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return sentinel.ErrConflict
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return session.Clone(), nil
}

func (s *InMemoryStore) Update(ctx context.Context, id string, fn UpdateFunc) (*models.Session, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	session, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(session); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[id] = session.Clone()
	s.mu.Unlock()
	return session, nil
}

func (s *InMemoryStore) ListExpired(_ context.Context, now time.Time, limit int) ([]*models.Session, error) {
	s.mu.RLock()
	var out []*models.Session
	for _, session := range s.sessions {
		if session.PastExpiry(now) {
			out = append(out, session.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ExpiresAt.Before(out[j].ExpiresAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
