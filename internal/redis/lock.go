package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
)

const lockPollInterval = 50 * time.Millisecond

// Locker guards critical sections keyed by slot or phone number.
type Locker interface {
	// WithLock runs fn only if the key is free right now.
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
	// WithLockWait keeps retrying for up to wait before giving up.
	WithLockWait(ctx context.Context, key string, wait time.Duration, fn func(ctx context.Context) error) error
}

// SlotKey is the lock key for one availability slot.
func SlotKey(slotID uuid.UUID) string {
	return fmt.Sprintf("lock:slot:%s", slotID.String())
}

// PhoneKey is the lock key serializing all messages from one phone number.
func PhoneKey(phone string) string {
	return fmt.Sprintf("lock:phone:%s", phone)
}

type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker creates a locker that uses one Redis key per guarded resource
func NewRedisLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	token := uuid.NewString()

	ok, err := l.acquire(ctx, key, token)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockNotAcquired
	}

	return l.run(ctx, key, token, fn)
}

func (l *redisLocker) WithLockWait(ctx context.Context, key string, wait time.Duration, fn func(ctx context.Context) error) error {
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := l.acquire(ctx, key, token)
		if err != nil {
			return err
		}
		if ok {
			return l.run(ctx, key, token, fn)
		}
		if time.Now().After(deadline) {
			return ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

func (l *redisLocker) acquire(ctx context.Context, key, token string) (bool, error) {
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	return ok, nil
}

func (l *redisLocker) run(ctx context.Context, key, token string, fn func(ctx context.Context) error) error {
	defer func() {
		_ = l.release(context.WithoutCancel(ctx), key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}
