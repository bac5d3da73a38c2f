package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cleansight/internal/domain"
	"cleansight/pkg/redis"
)

// SessionKey holds the identity bound to a browser session
func SessionKey(sid string) string {
	return fmt.Sprintf(redis.KeySession, sid)
}

// PendingRoleKey holds a role chosen on the registration form before federated
// sign-in completes. Only the browser session that chose it can read it back.
func PendingRoleKey(sid, email string) string {
	return fmt.Sprintf(redis.KeyPendingRole, sid, domain.NormalizeEmail(email))
}

// OAuthStateKey holds the browser session and role hint behind an OAuth state parameter
func OAuthStateKey(state string) string {
	return fmt.Sprintf(redis.KeyOAuthState, state)
}

// redisKV stores records in Redis under the environment prefix
type redisKV struct {
	client *redis.Client
}

// NewRedisKV creates a Redis-backed key-value store
func NewRedisKV(client *redis.Client) KeyValueStore {
	return &redisKV{client: client}
}

func (s *redisKV) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, s.client.KeyBuilder.BuildKey(key), value, ttl)
}

func (s *redisKV) PutNew(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.client.KeyBuilder.BuildKey(key), value, ttl)
}

func (s *redisKV) Get(ctx context.Context, key string) (string, bool, error) {
	return found(s.client.Get(ctx, s.client.KeyBuilder.BuildKey(key)))
}

func (s *redisKV) Take(ctx context.Context, key string) (string, bool, error) {
	return found(s.client.GetDel(ctx, s.client.KeyBuilder.BuildKey(key)))
}

func (s *redisKV) Delete(ctx context.Context, key string) error {
	return s.client.Delete(ctx, s.client.KeyBuilder.BuildKey(key))
}

func found(val string, err error) (string, bool, error) {
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// MemoryKV is an in-process KeyValueStore with lazy expiry
type MemoryKV struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryKV creates an empty in-memory key-value store
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{entries: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryKV) Put(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

func (s *MemoryKV) PutNew(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.liveLocked(key); ok {
		return false, nil
	}
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
	return true, nil
}

func (s *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.liveLocked(key)
	return e.value, ok, nil
}

func (s *MemoryKV) Take(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.liveLocked(key)
	delete(s.entries, key)
	return e.value, ok, nil
}

func (s *MemoryKV) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryKV) liveLocked(key string) (memoryEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}
