// Package guard blocks repeated launches of the same outbound call inside a
// short window. Call creation is not idempotent, so a double-submitted form
// must not place two real calls.
package guard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard hands out a key at most once per ttl.
type Guard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release gives a key back before its window ends. Releasing a key that
	// is not held is not an error.
	Release(ctx context.Context, key string) error
}

// LaunchKey derives the guard key for a destination and script.
func LaunchKey(to, script string) string {
	sum := sha256.Sum256([]byte(to + "\n" + script))
	return "launch:" + hex.EncodeToString(sum[:])
}

// RedisGuard uses SET NX PX so the window is shared across processes.
type RedisGuard struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisGuard(rdb *redis.Client, prefix string) *RedisGuard {
	if prefix == "" {
		prefix = "callagent:"
	}
	return &RedisGuard{rdb: rdb, prefix: prefix}
}

func (g *RedisGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if g.rdb == nil {
		return false, errors.New("guard: redis client is nil")
	}
	if key == "" {
		return false, errors.New("guard: key is required")
	}
	if ttl <= 0 {
		return false, errors.New("guard: ttl must be > 0")
	}
	return g.rdb.SetNX(ctx, g.prefix+key, time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
}

func (g *RedisGuard) Release(ctx context.Context, key string) error {
	if g.rdb == nil {
		return errors.New("guard: redis client is nil")
	}
	if key == "" {
		return errors.New("guard: key is required")
	}
	return g.rdb.Del(ctx, g.prefix+key).Err()
}

// MemoryGuard is the single-process fallback used when Redis is not configured.
type MemoryGuard struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{expires: map[string]time.Time{}, now: time.Now}
}

func (g *MemoryGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, errors.New("guard: key is required")
	}
	if ttl <= 0 {
		return false, errors.New("guard: ttl must be > 0")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for k, exp := range g.expires {
		if !now.Before(exp) {
			delete(g.expires, k)
		}
	}
	if _, held := g.expires[key]; held {
		return false, nil
	}
	g.expires[key] = now.Add(ttl)
	return true, nil
}

func (g *MemoryGuard) Release(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("guard: key is required")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.expires, key)
	return nil
}
