// Package cursor persists extraction resumption points outside the job
// store, so an interrupted discovery scan can pick up where it died.
package cursor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"lienharvest/pkg/core"
)

// Store persists one cursor per (site, date window).
type Store interface {
	Save(ctx context.Context, site, dateStart, dateEnd string, c core.Cursor) error
	Load(ctx context.Context, site, dateStart, dateEnd string) (core.Cursor, bool, error)
	Clear(ctx context.Context, site, dateStart, dateEnd string) error
}

// RedisStore keeps cursors in Redis with a TTL, so stale resumption points
// age out on their own.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore initializes a Redis-backed cursor store.
func NewRedisStore(addr, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
		ttl:    ttl,
	}
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(site, dateStart, dateEnd string) string {
	return fmt.Sprintf("%s%s:%s:%s", s.prefix, site, dateStart, dateEnd)
}

// Save writes the cursor for a scan window.
func (s *RedisStore) Save(ctx context.Context, site, dateStart, dateEnd string, c core.Cursor) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(site, dateStart, dateEnd), payload, s.ttl).Err()
}

// Load reads the cursor for a scan window. The second return value is
// false when no cursor is stored.
func (s *RedisStore) Load(ctx context.Context, site, dateStart, dateEnd string) (core.Cursor, bool, error) {
	val, err := s.client.Get(ctx, s.key(site, dateStart, dateEnd)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.Cursor{}, false, nil
		}
		return core.Cursor{}, false, err
	}

	var c core.Cursor
	if err := json.Unmarshal([]byte(val), &c); err != nil {
		return core.Cursor{}, false, err
	}
	return c, true, nil
}

// Clear removes the cursor for a scan window.
func (s *RedisStore) Clear(ctx context.Context, site, dateStart, dateEnd string) error {
	return s.client.Del(ctx, s.key(site, dateStart, dateEnd)).Err()
}

// Memory is an in-process Store for tests and single-node deployments
// without Redis.
type Memory struct {
	cursors map[string]core.Cursor
}

// NewMemory creates an empty in-memory cursor store.
func NewMemory() *Memory {
	return &Memory{cursors: make(map[string]core.Cursor)}
}

func (m *Memory) Save(_ context.Context, site, dateStart, dateEnd string, c core.Cursor) error {
	m.cursors[site+":"+dateStart+":"+dateEnd] = c
	return nil
}

func (m *Memory) Load(_ context.Context, site, dateStart, dateEnd string) (core.Cursor, bool, error) {
	c, ok := m.cursors[site+":"+dateStart+":"+dateEnd]
	return c, ok, nil
}

func (m *Memory) Clear(_ context.Context, site, dateStart, dateEnd string) error {
	delete(m.cursors, site+":"+dateStart+":"+dateEnd)
	return nil
}
