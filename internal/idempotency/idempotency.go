// Package idempotency deduplicates client retries of booking requests within
// a bounded window.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// State describes what a Claim found.
type State int

const (
	// New means the caller now owns the key and must Complete or Release it.
	New State = iota
	// Pending means another request owns the key and has not finished.
	Pending
	// Done means a booking was already committed under the key.
	Done
)

// Claim is the result of claiming a key.
type Claim struct {
	State     State
	BookingID string
}

// Store claims keys for the duration of a booking and remembers the
// resulting booking id until the window expires.
type Store interface {
	Claim(ctx context.Context, key string) (Claim, error)
	Complete(ctx context.Context, key, bookingID string) error
	Release(ctx context.Context, key string) error
}

const pendingMarker = "pending"

// RedisStore keeps claims in Redis so every process sharing the instance
// sees the same window.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisStore constructs a RedisStore whose entries live for ttl.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, prefix: "idem:booking:"}
}

func (s *RedisStore) key(k string) string { return s.prefix + k }

func (s *RedisStore) Claim(ctx context.Context, key string) (Claim, error) {
	// Two rounds: the key may expire or be released between SETNX and GET.
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.client.SetNX(ctx, s.key(key), pendingMarker, s.ttl).Result()
		if err != nil {
			return Claim{}, fmt.Errorf("claim idempotency key: %w", err)
		}
		if ok {
			return Claim{State: New}, nil
		}

		val, err := s.client.Get(ctx, s.key(key)).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return Claim{}, fmt.Errorf("read idempotency key: %w", err)
		}
		return parse(val), nil
	}
	return Claim{State: Pending}, nil
}

func (s *RedisStore) Complete(ctx context.Context, key, bookingID string) error {
	if err := s.client.Set(ctx, s.key(key), "done:"+bookingID, s.ttl).Err(); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

func parse(val string) Claim {
	if id, ok := strings.CutPrefix(val, "done:"); ok {
		return Claim{State: Done, BookingID: id}
	}
	return Claim{State: Pending}
}

// MemoryStore is the single-process fallback used when Redis is not configured.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memEntry
}

type memEntry struct {
	value     string
	expiresAt time.Time
}

// NewMemoryStore constructs a MemoryStore whose entries live for ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[string]memEntry)}
}

func (s *MemoryStore) Claim(_ context.Context, key string) (Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[key]; ok && now.Before(e.expiresAt) {
		return parse(e.value), nil
	}
	s.entries[key] = memEntry{value: pendingMarker, expiresAt: now.Add(s.ttl)}
	s.sweep(now)
	return Claim{State: New}, nil
}

func (s *MemoryStore) Complete(_ context.Context, key, bookingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memEntry{value: "done:" + bookingID, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// sweep drops expired entries. Called with mu held.
func (s *MemoryStore) sweep(now time.Time) {
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
		}
	}
}
