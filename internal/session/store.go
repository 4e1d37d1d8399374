// Package session persists serialized carts per storefront session.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long an idle cart survives.
const DefaultTTL = 72 * time.Hour

// RedisStore keeps each session's cart under cart:<session>. Every read
// pushes the expiry forward so active carts do not vanish mid-visit.
type RedisStore struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
}

func (s RedisStore) key(id string) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "cart:"
	}
	return prefix + id
}

func (s RedisStore) ttl() time.Duration {
	if s.TTL <= 0 {
		return DefaultTTL
	}
	return s.TTL
}

// Load returns the stored bytes, or nil when the session has no cart.
func (s RedisStore) Load(ctx context.Context, id string) ([]byte, error) {
	if s.Client == nil {
		return nil, errors.New("session: redis client not configured")
	}
	key := s.key(id)
	pipe := s.Client.TxPipeline()
	get := pipe.Get(ctx, key)
	pipe.Expire(ctx, key, s.ttl())
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session load %s: %w", id, err)
	}
	data, err := get.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session load %s: %w", id, err)
	}
	return data, nil
}

// Save replaces the stored cart and resets its expiry.
func (s RedisStore) Save(ctx context.Context, id string, data []byte) error {
	if s.Client == nil {
		return errors.New("session: redis client not configured")
	}
	if err := s.Client.Set(ctx, s.key(id), data, s.ttl()).Err(); err != nil {
		return fmt.Errorf("session save %s: %w", id, err)
	}
	return nil
}

// Delete removes the session's cart.
func (s RedisStore) Delete(ctx context.Context, id string) error {
	if s.Client == nil {
		return errors.New("session: redis client not configured")
	}
	if err := s.Client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("session delete %s: %w", id, err)
	}
	return nil
}

const memorySweepInterval = time.Minute

// MemoryStore is an in-process store with the same sliding expiry.
type MemoryStore struct {
	TTL time.Duration
	Now func() time.Time

	mu        sync.Mutex
	entries   map[string]memoryEntry
	nextSweep time.Time
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{TTL: ttl}
}

func (m *MemoryStore) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *MemoryStore) ttl() time.Duration {
	if m.TTL <= 0 {
		return DefaultTTL
	}
	return m.TTL
}

// Load returns a copy of the stored bytes.
func (m *MemoryStore) Load(_ context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	now := m.now()
	if !ok {
		return nil, nil
	}
	if !now.Before(e.expiresAt) {
		delete(m.entries, id)
		return nil, nil
	}
	e.expiresAt = now.Add(m.ttl())
	m.entries[id] = e
	return append([]byte(nil), e.data...), nil
}

// Save stores a copy of data. Carts of abandoned sessions are swept here,
// at most once per sweep interval.
func (m *MemoryStore) Save(_ context.Context, id string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[string]memoryEntry)
	}
	now := m.now()
	if !now.Before(m.nextSweep) {
		m.sweep(now)
	}
	m.entries[id] = memoryEntry{data: append([]byte(nil), data...), expiresAt: now.Add(m.ttl())}
	return nil
}

func (m *MemoryStore) sweep(now time.Time) {
	for id, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, id)
		}
	}
	m.nextSweep = now.Add(min(m.ttl(), memorySweepInterval))
}

// Delete removes the session's cart.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}
