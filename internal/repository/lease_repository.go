package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// LeaseRepository grants short-lived exclusive leases on work items through Redis.
type LeaseRepository struct {
	client *redis.Client
	owner  string
	logger *zap.Logger
}

// NewLeaseRepository constructs a lease repository. A nil client grants every lease.
func NewLeaseRepository(client *redis.Client, owner string, logger *zap.Logger) *LeaseRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeaseRepository{client: client, owner: owner, logger: logger}
}

// Acquire tries to take the lease for key. It returns false when another owner holds it.
func (r *LeaseRepository) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r.client == nil {
		return true, nil
	}
	ok, err := r.client.SetNX(ctx, key, r.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	if !ok {
		r.logger.Debug("lease held by another owner", zap.String("key", key))
	}
	return ok, nil
}

var releaseScript = redis.NewScript(`if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) end return 0`)

// Release drops the lease if it is still owned by this repository.
func (r *LeaseRepository) Release(ctx context.Context, key string) error {
	if r.client == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, r.client, []string{key}, r.owner).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redis release %s: %w", key, err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (r *LeaseRepository) Ping(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying Redis connection if present.
func (r *LeaseRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
