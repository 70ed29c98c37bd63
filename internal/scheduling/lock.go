package scheduling

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Locker serialises the conflict check and the write for a set of
// resources. Keys are acquired in the order given.
type Locker interface {
	WithLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error
}

func providerLockKey(id uuid.UUID) string {
	return "provider:" + id.String()
}

func operatoryLockKey(id uuid.UUID) string {
	return "operatory:" + id.String()
}

// bookingLockKeys always puts the provider first so that two bookings
// sharing resources take them in the same order.
func bookingLockKeys(providerID uuid.UUID, operatoryID *uuid.UUID) []string {
	keys := []string{providerLockKey(providerID)}
	if operatoryID != nil {
		keys = append(keys, operatoryLockKey(*operatoryID))
	}
	return keys
}

// LocalLocker is an in-process Locker backed by one channel semaphore per key.
type LocalLocker struct {
	wait time.Duration

	mu sync.Mutex
	// One per provider or operatory key, never removed. Bounded by the
	// number of resources.
	sems map[string]chan struct{}
}

// NewLocalLocker returns a locker that gives up after wait. A zero wait
// blocks until the context is done.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{
		wait: wait,
		sems: make(map[string]chan struct{}),
	}
}

func (l *LocalLocker) sem(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.sems[key]
	if !ok {
		s = make(chan struct{}, 1)
		l.sems[key] = s
	}
	return s
}

func (l *LocalLocker) WithLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	acquireCtx := ctx
	if l.wait > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	held := make([]chan struct{}, 0, len(keys))
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}()

	for _, key := range keys {
		s := l.sem(key)
		select {
		case s <- struct{}{}:
			held = append(held, s)
		case <-acquireCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrSlotBeingBooked
		}
	}

	return fn(ctx)
}
