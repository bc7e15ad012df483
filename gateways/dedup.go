package gateways

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	webhookKeyPrefix = "webhook:event:"
	webhookDoneTTL   = 72 * time.Hour
	webhookLockTTL   = 5 * time.Minute

	stateProcessing = "processing"
	stateDone       = "done"
)

// RedisWebhookDeduper holds a short processing lock per event id and a longer done marker.
type RedisWebhookDeduper struct {
	client *redis.Client
}

func NewRedisWebhookDeduper(client *redis.Client) *RedisWebhookDeduper {
	return &RedisWebhookDeduper{client: client}
}

func (d *RedisWebhookDeduper) key(eventID string) string {
	return webhookKeyPrefix + eventID
}

func (d *RedisWebhookDeduper) Reserve(ctx context.Context, eventID string) (bool, error) {
	_, err := d.client.SetArgs(ctx, d.key(eventID), stateProcessing, redis.SetArgs{Mode: "NX", TTL: webhookLockTTL}).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis set: %w", err)
	}
	return true, nil
}

func (d *RedisWebhookDeduper) MarkDone(ctx context.Context, eventID string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return d.client.Set(ctx, d.key(eventID), stateDone, webhookDoneTTL).Err()
}

func (d *RedisWebhookDeduper) Release(ctx context.Context, eventID string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return d.client.Del(ctx, d.key(eventID)).Err()
}

// MemoryWebhookDeduper is the single-process fallback when REDIS_ADDR is unset.
type MemoryWebhookDeduper struct {
	mu     sync.Mutex
	now    func() time.Time
	states map[string]dedupEntry
}

type dedupEntry struct {
	state   string
	expires time.Time
}

func NewMemoryWebhookDeduper() *MemoryWebhookDeduper {
	return &MemoryWebhookDeduper{now: time.Now, states: map[string]dedupEntry{}}
}

func (d *MemoryWebhookDeduper) Reserve(_ context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if e, ok := d.states[eventID]; ok && now.Before(e.expires) {
		return false, nil
	}
	d.states[eventID] = dedupEntry{state: stateProcessing, expires: now.Add(webhookLockTTL)}
	return true, nil
}

func (d *MemoryWebhookDeduper) MarkDone(_ context.Context, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.states[eventID] = dedupEntry{state: stateDone, expires: d.now().Add(webhookDoneTTL)}
	return nil
}

func (d *MemoryWebhookDeduper) Release(_ context.Context, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.states, eventID)
	return nil
}
