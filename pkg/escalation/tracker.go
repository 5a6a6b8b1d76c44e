// Package escalation sweeps in-flight workflow instances and emits advisory
// escalation events for steps that have been waiting past their thresholds.
package escalation

import (
	"context"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Tracker remembers which (instance, step, rule) combinations already fired
// so each rule escalates at most once per step activation.
type Tracker interface {
	// MarkFired records the rule as fired and reports whether this call was
	// the first to do so.
	MarkFired(ctx context.Context, instanceID, stepID string, ruleIndex int) (bool, error)
	Close() error
}

func firedKey(instanceID, stepID string, ruleIndex int) string {
	return fmt.Sprintf("approvalflow:escalation:%s:%s:%d", instanceID, stepID, ruleIndex)
}

// MemoryTracker keeps fired markers in process memory. Suitable for a single
// escalator process or tests.
type MemoryTracker struct {
	mu    sync.Mutex
	fired map[string]bool
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{fired: make(map[string]bool)}
}

func (t *MemoryTracker) MarkFired(_ context.Context, instanceID, stepID string, ruleIndex int) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := firedKey(instanceID, stepID, ruleIndex)
	if t.fired[key] {
		return false, nil
	}

	t.fired[key] = true

	return true, nil
}

func (t *MemoryTracker) Close() error {
	return nil
}

// RedisTracker shares fired markers across escalator replicas. SETNX makes
// the mark atomic, so two concurrent sweeps never both claim first.
type RedisTracker struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisTracker connects to Redis at the given address. Markers expire
// after ttl; instances terminal long before then never get re-examined, so
// expiry only bounds key growth.
func NewRedisTracker(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisTracker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := client.Ping(pingCtx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisTracker{client: client, ttl: ttl}, nil
}

func (t *RedisTracker) MarkFired(ctx context.Context, instanceID, stepID string, ruleIndex int) (bool, error) {
	first, err := t.client.SetNX(ctx, firedKey(instanceID, stepID, ruleIndex), time.Now().UTC().Format(time.RFC3339), t.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark escalation fired: %w", err)
	}

	return first, nil
}

func (t *RedisTracker) Close() error {
	return t.client.Close()
}
