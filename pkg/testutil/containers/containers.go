//go:build integration

// Package containers starts throwaway backing services for integration tests.
// Each service is started once per test binary and shared by every suite in it.
package containers

import (
	"sync"
	"testing"
)

type Manager struct {
	postgres lazy[*PostgresContainer]
	kafka    lazy[*KafkaContainer]
	redis    lazy[*RedisContainer]
	mongo    lazy[*MongoContainer]
}

var (
	manager     *Manager
	managerOnce sync.Once
)

func GetManager() *Manager {
	managerOnce.Do(func() { manager = &Manager{} })
	return manager
}

func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	return m.postgres.get(t, NewPostgresContainer)
}

func (m *Manager) GetKafka(t *testing.T) *KafkaContainer {
	return m.kafka.get(t, NewKafkaContainer)
}

func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	return m.redis.get(t, NewRedisContainer)
}

func (m *Manager) GetMongo(t *testing.T) *MongoContainer {
	return m.mongo.get(t, NewMongoContainer)
}

// lazy holds one container, started by the first caller.
type lazy[T any] struct {
	mu      sync.Mutex
	started bool
	value   T
}

func (l *lazy[T]) get(t *testing.T, start func(*testing.T) T) T {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.started {
		l.value = start(t)
		l.started = true
	}
	return l.value
}
