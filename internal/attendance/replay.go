package attendance

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisReplayGuard marks redeemed tokens with SET NX so a signature can be
// claimed by exactly one redemption across all API instances.
type RedisReplayGuard struct {
	client *redis.Client
	prefix string
}

// NewRedisReplayGuard creates a guard namespaced under the given prefix.
func NewRedisReplayGuard(client *redis.Client, prefix string) *RedisReplayGuard {
	if prefix == "" {
		prefix = "campus:redeemed:"
	}
	return &RedisReplayGuard{client: client, prefix: prefix}
}

// FirstUse claims a signature. Returns false when it was already redeemed.
func (g *RedisReplayGuard) FirstUse(ctx context.Context, signature string, ttl time.Duration) (bool, error) {
	return g.client.SetNX(ctx, g.prefix+signature, 1, ttl).Result()
}

// MemoryReplayGuard is a process-local guard for dev and testing, in the
// same spirit as the in-memory queue backend.
type MemoryReplayGuard struct {
	mu   sync.Mutex
	seen map[string]time.Time // signature -> expiry
}

// NewMemoryReplayGuard creates an empty guard.
func NewMemoryReplayGuard() *MemoryReplayGuard {
	return &MemoryReplayGuard{seen: make(map[string]time.Time)}
}

// FirstUse claims a signature, pruning expired entries as it goes.
func (g *MemoryReplayGuard) FirstUse(_ context.Context, signature string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now()
	for sig, exp := range g.seen {
		if now.After(exp) {
			delete(g.seen, sig)
		}
	}
	if _, ok := g.seen[signature]; ok {
		return false, nil
	}
	g.seen[signature] = now.Add(ttl)
	return true, nil
}
