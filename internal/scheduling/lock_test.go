package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestLocalLocker_TimesOut(t *testing.T) {
	l := NewLocalLocker(30 * time.Millisecond)
	keys := []string{"provider:a"}

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = l.WithLock(context.Background(), keys, func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	err := l.WithLock(context.Background(), keys, func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrSlotBeingBooked) {
		t.Fatalf("expected ErrSlotBeingBooked, got %v", err)
	}

	close(release)
	// Once released the key is free again.
	deadline := time.Now().Add(time.Second)
	for {
		err = l.WithLock(context.Background(), keys, func(ctx context.Context) error { return nil })
		if err == nil || time.Now().After(deadline) {
			break
		}
	}
	if err != nil {
		t.Fatalf("expected lock to be free, got %v", err)
	}
}

func TestLocalLocker_ContextCancelled(t *testing.T) {
	l := NewLocalLocker(0)
	keys := []string{"operatory:1"}

	held := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	go func() {
		_ = l.WithLock(context.Background(), keys, func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.WithLock(ctx, keys, func(ctx context.Context) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the caller's deadline, got %v", err)
	}
}

func TestLocalLocker_ReleasesPartialAcquire(t *testing.T) {
	l := NewLocalLocker(20 * time.Millisecond)

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = l.WithLock(context.Background(), []string{"operatory:1"}, func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	err := l.WithLock(context.Background(), []string{"provider:1", "operatory:1"}, func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrSlotBeingBooked) {
		t.Fatalf("expected ErrSlotBeingBooked, got %v", err)
	}
	close(release)

	if err := l.WithLock(context.Background(), []string{"provider:1"}, func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("provider key should have been released: %v", err)
	}
}

func TestBookingLockKeys(t *testing.T) {
	p, o := uuid.New(), uuid.New()

	keys := bookingLockKeys(p, &o)
	if len(keys) != 2 || keys[0] != "provider:"+p.String() || keys[1] != "operatory:"+o.String() {
		t.Fatalf("unexpected keys %v", keys)
	}
	if keys := bookingLockKeys(p, nil); len(keys) != 1 {
		t.Fatalf("expected only the provider key, got %v", keys)
	}
}

func TestLocalLocker_OneSemaphorePerKey(t *testing.T) {
	l := NewLocalLocker(time.Second)
	provider := uuid.New()

	for range 50 {
		keys := bookingLockKeys(provider, nil)
		if err := l.WithLock(context.Background(), keys, func(ctx context.Context) error { return nil }); err != nil {
			t.Fatalf("lock: %v", err)
		}
	}
	if len(l.sems) != 1 {
		t.Fatalf("expected one semaphore for one provider, got %d", len(l.sems))
	}
}
