package workerpool

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClaimLock is the ClaimGuard for deployments that run more than one
// scheduler against the same worker fleet: worker claims are coordinated
// through Redis SETNX-with-expiry as a distributed mutex. A pool confined
// to a single process does not need one.
type RedisClaimLock struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

var _ ClaimGuard = (*RedisClaimLock)(nil)

// NewRedisClaimLock builds a lock helper against an existing client. ttl
// bounds how long a claim survives without renewal, so a crashed owner
// cannot wedge a worker forever.
func NewRedisClaimLock(client *redis.Client, ttl time.Duration) *RedisClaimLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisClaimLock{client: client, ttl: ttl, prefix: "oya:claim:"}
}

func (l *RedisClaimLock) key(workerID string) string {
	return l.prefix + workerID
}

// TryAcquire attempts to claim workerID for owner. It returns false without
// error if another owner currently holds the lock.
func (l *RedisClaimLock) TryAcquire(ctx context.Context, workerID, owner string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(workerID), owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("workerpool: redis claim acquire: %w", err)
	}
	return ok, nil
}

// Renew extends the lock's TTL if owner still holds it.
func (l *RedisClaimLock) Renew(ctx context.Context, workerID, owner string) error {
	current, err := l.client.Get(ctx, l.key(workerID)).Result()
	if err == redis.Nil {
		return fmt.Errorf("%w: %s", ErrWorkerNotFound, workerID)
	}
	if err != nil {
		return fmt.Errorf("workerpool: redis claim renew: %w", err)
	}
	if current != owner {
		return fmt.Errorf("%w: %s held by %s", ErrAlreadyClaimed, workerID, current)
	}
	return l.client.Expire(ctx, l.key(workerID), l.ttl).Err()
}

// Release drops the lock unconditionally. Callers should only call this
// after confirming ownership via Renew or their own bookkeeping.
func (l *RedisClaimLock) Release(ctx context.Context, workerID string) error {
	return l.client.Del(ctx, l.key(workerID)).Err()
}
