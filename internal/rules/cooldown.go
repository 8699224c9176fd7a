package rules

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CooldownStore gates rule re-triggering. TryAcquire is atomic: of any
// number of concurrent callers inside one window (push and pull racing
// included), exactly one wins and becomes responsible for dispatch.
type CooldownStore interface {
	TryAcquire(ctx context.Context, ruleID string, window time.Duration) (bool, error)
}

// MemoryCooldown is the single-instance store: a timestamp map behind
// one mutex.
type MemoryCooldown struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

// NewMemoryCooldown creates an in-process cooldown store.
func NewMemoryCooldown() *MemoryCooldown {
	return &MemoryCooldown{last: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryCooldown) TryAcquire(_ context.Context, ruleID string, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if last, ok := m.last[ruleID]; ok && window > 0 && now.Sub(last) < window {
		return false, nil
	}
	m.last[ruleID] = now
	return true, nil
}

// RedisCooldown shares cooldown state across instances with a keyed
// SET NX PX, so only one instance processes a given rule's window.
type RedisCooldown struct {
	client *redis.Client
}

// NewRedisCooldown creates a Redis-backed cooldown store.
func NewRedisCooldown(client *redis.Client) *RedisCooldown {
	return &RedisCooldown{client: client}
}

func (r *RedisCooldown) TryAcquire(ctx context.Context, ruleID string, window time.Duration) (bool, error) {
	if window <= 0 {
		return true, nil
	}
	return r.client.SetNX(ctx, "cooldown:rule:"+ruleID, time.Now().UnixMilli(), window).Result()
}
