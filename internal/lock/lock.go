// Package lock provides a Redis-backed mutual-exclusion lock for ingestion runs.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another holder owns the lock.
var ErrLockHeld = errors.New("lock held by another holder")

// Locker acquires named locks with a TTL. The returned release func is idempotent.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// unlockLua deletes the key only while it still carries the caller's token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// RedisLocker implements Locker with SET NX PX and a token-checked unlock.
type RedisLocker struct {
	rdb      redis.UniversalClient
	prefix   string
	unlockSc *redis.Script
}

// NewRedisLocker creates a locker that namespaces keys under prefix.
func NewRedisLocker(rdb redis.UniversalClient, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "nightrate:lock:"
	}
	return &RedisLocker{
		rdb:      rdb,
		prefix:   prefix,
		unlockSc: redis.NewScript(unlockLua),
	}
}

// Dial connects to Redis at addr and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

// Acquire takes the lock for key or returns ErrLockHeld.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	k := l.prefix + key

	ok, err := l.rdb.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			// The caller's context may already be cancelled.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = l.unlockSc.Run(ctx, l.rdb, []string{k}, token).Err()
		})
	}
	return release, nil
}

// LocalLocker is an in-process Locker for single-instance deployments and tests.
type LocalLocker struct {
	mu   sync.Mutex
	seq  uint64
	held map[string]localHold
}

type localHold struct {
	token  uint64
	expiry time.Time // zero means no expiry
}

// NewLocalLocker creates an empty in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localHold)}
}

// Acquire takes the lock for key or returns ErrLockHeld. Expired locks are reclaimed.
func (l *LocalLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if h, ok := l.held[key]; ok && (h.expiry.IsZero() || now.Before(h.expiry)) {
		return nil, ErrLockHeld
	}

	l.seq++
	h := localHold{token: l.seq}
	if ttl > 0 {
		h.expiry = now.Add(ttl)
	}
	l.held[key] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.held[key].token == h.token {
				delete(l.held, key)
			}
		})
	}, nil
}

var (
	_ Locker = (*RedisLocker)(nil)
	_ Locker = (*LocalLocker)(nil)
)
