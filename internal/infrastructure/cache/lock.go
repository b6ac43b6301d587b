package cache

import (
	"context"
	"sync"
	"time"
)

// InvestmentLocker serializes settlement work per investment id. The sweep
// skips any investment whose lock is held; transitions are never attempted
// concurrently for the same id.
type InvestmentLocker interface {
	// Acquire tries to take the lock for key, returning whether it succeeded
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release frees the lock for key
	Release(ctx context.Context, key string) error
}

// RedisLock implements InvestmentLocker with Redis SETNX so the single-writer
// discipline holds across service replicas. The TTL bounds how long a crashed
// holder can block an investment.
type RedisLock struct {
	client RedisClient
	prefix string
}

// NewRedisLock creates a Redis-backed investment locker
func NewRedisLock(client RedisClient) *RedisLock {
	return &RedisLock{client: client, prefix: "settlement:lock:"}
}

// Acquire tries to take the lock via SETNX
func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, l.prefix+key, 1, ttl)
}

// Release frees the lock
func (l *RedisLock) Release(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.prefix+key)
}

// LocalLock implements InvestmentLocker in process memory, for single-replica
// deployments and tests.
type LocalLock struct {
	mu   sync.Mutex
	held map[string]time.Time
}

// NewLocalLock creates an in-process investment locker
func NewLocalLock() *LocalLock {
	return &LocalLock{held: make(map[string]time.Time)}
}

// Acquire tries to take the lock
func (l *LocalLock) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if expiry, ok := l.held[key]; ok && time.Now().Before(expiry) {
		return false, nil
	}
	l.held[key] = time.Now().Add(ttl)
	return true, nil
}

// Release frees the lock
func (l *LocalLock) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}
