package webhook

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the production IdempotencyStore: SET NX with TTL is the
// atomic first-seen primitive, shared across process restarts and
// replicas.
type RedisStore struct {
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
}

// NewRedisStore wraps an existing Redis client. ttl is the retention
// window for delivery records; every call is bounded by a per-operation
// timeout so a slow store cannot stall delivery acceptance.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client:  client,
		ttl:     ttl,
		timeout: 2 * time.Second,
	}
}

// NewRedisClient connects to Redis and verifies reachability.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}
	return client, nil
}

// RecordIfNew implements IdempotencyStore.
func (r *RedisStore) RecordIfNew(ctx context.Context, provider, deliveryID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.client.SetNX(ctx, "webhook:delivery:"+provider+":"+deliveryID, "1", r.ttl).Result()
}
