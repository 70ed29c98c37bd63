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
	ErrLockNotAcquired = errors.New("booking lock not acquired")
)

const lockPollInterval = 25 * time.Millisecond

// Locker guards booking critical sections with one Redis key per resource.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewLocker creates a locker whose keys expire after ttl. A held key is
// retried for up to wait before ErrLockNotAcquired is returned.
func NewLocker(client *redis.Client, ttl, wait time.Duration) *Locker {
	return &Locker{
		client: client,
		ttl:    ttl,
		wait:   wait,
	}
}

func lockKey(key string) string {
	return "lock:" + key
}

func (l *Locker) WithLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	var held []string
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			_ = l.release(releaseCtx, held[i], token)
		}
	}()

	for _, k := range keys {
		key := lockKey(k)
		if err := l.acquire(ctx, key, token, deadline); err != nil {
			return err
		}
		held = append(held, key)
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *Locker) acquire(ctx context.Context, key, token string, deadline time.Time) error {
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire booking lock: %w", err)
		}
		if ok {
			return nil
		}
		if !time.Now().Add(lockPollInterval).Before(deadline) {
			return ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *Locker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release booking lock: %w", err)
	}
	return nil
}
