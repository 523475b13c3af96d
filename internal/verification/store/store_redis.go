package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"zkcred/internal/sentinel"
	"zkcred/internal/verification/models"
)

const (
	sessionKeyPrefix = "verification:session:"
	pendingIndexKey  = "verification:pending"

	// defaultRetention keeps terminal sessions pollable after their expiry.
	defaultRetention = 24 * time.Hour

	maxWatchAttempts = 5
)

// RedisStore keeps sessions as JSON values with a TTL. Pending sessions are
// also indexed in a sorted set scored by expiry for the sweeper.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
}

type RedisOption func(*RedisStore)

// WithRetention sets how long a session outlives its expiry before Redis drops it.
func WithRetention(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		if d > 0 {
			s.retention = d
		}
	}
}

func NewRedis(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, retention: defaultRetention}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func (s *RedisStore) ttl(session *models.Session) time.Duration {
	if remaining := time.Until(session.ExpiresAt); remaining > 0 {
		return remaining + s.retention
	}
	return s.retention
}

func (s *RedisStore) Create(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	created, err := s.client.SetNX(ctx, sessionKey(session.ID), data, s.ttl(session)).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !created {
		return sentinel.ErrConflict
	}
	if session.Status == models.StatusPending {
		err = s.client.ZAdd(ctx, pendingIndexKey, redis.Z{
			Score:  float64(session.ExpiresAt.Unix()),
			Member: session.ID,
		}).Err()
		if err != nil {
			return fmt.Errorf("index pending session: %w", err)
		}
	}
	return nil
}

func (s *RedisStore) FindByID(ctx context.Context, id string) (*models.Session, error) {
	return getSession(ctx, s.client, id)
}

func getSession(ctx context.Context, getter redis.Cmdable, id string) (*models.Session, error) {
	data, err := getter.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}

// Update applies fn under WATCH and retries when another writer got there first.
func (s *RedisStore) Update(ctx context.Context, id string, fn UpdateFunc) (*models.Session, error) {
	key := sessionKey(id)
	var result *models.Session

	txf := func(tx *redis.Tx) error {
		session, err := getSession(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(session); err != nil {
			return err
		}
		data, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}

		ttl := s.ttl(session)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, ttl)
			if session.Status.IsTerminal() {
				pipe.ZRem(ctx, pendingIndexKey, id)
			}
			return nil
		})
		if err != nil {
			return err
		}
		result = session
		return nil
	}

	for range maxWatchAttempts {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, sentinel.ErrConflict
}

func (s *RedisStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.Session, error) {
	ids, err := s.client.ZRangeByScore(ctx, pendingIndexKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("range pending sessions: %w", err)
	}

	out := make([]*models.Session, 0, len(ids))
	for _, id := range ids {
		session, err := s.FindByID(ctx, id)
		if errors.Is(err, sentinel.ErrNotFound) {
			// TTL already dropped the value; drop the dangling index entry too.
			s.client.ZRem(ctx, pendingIndexKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if session.PastExpiry(now) {
			out = append(out, session)
		}
	}
	return out, nil
}
