//go:build !integration

package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"newspay-l402/internal/domain/model"
	"newspay-l402/internal/domain/ports/repository"
	"newspay-l402/internal/infra/db/storetest"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cli := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cli.Close() })
	return Wrap(cli, "test:"), mr
}

func TestContextStore(t *testing.T) {
	storetest.PaymentContexts(t, func(t *testing.T) repository.PaymentContextRepository {
		c, _ := newTestClient(t)
		return NewContextStore(c)
	})
}

func TestContextStoreLayout(t *testing.T) {
	t.Run("should namespace keys and index deadlines", func(t *testing.T) {
		c, mr := newTestClient(t)
		store := NewContextStore(c)
		pc, _ := model.NewPaymentContext(time.Now(), time.Minute)
		if err := store.Save(context.Background(), pc); err != nil {
			t.Fatalf("save: %v", err)
		}
		if got := mr.HGet("test:ctx:"+pc.Token, "state"); got != "open" {
			t.Errorf("state field = %q", got)
		}
		members, err := mr.ZMembers("test:ctx:deadlines")
		if err != nil || len(members) != 1 || members[0] != pc.Token {
			t.Errorf("deadline index = %v (%v)", members, err)
		}
	})
}

func TestLocker(t *testing.T) {
	ctx := context.Background()

	t.Run("should hand the lock to one owner at a time", func(t *testing.T) {
		c, _ := newTestClient(t)
		l := NewLocker(c)

		tok, err := l.TryLock(ctx, "reconciler", time.Minute)
		if err != nil {
			t.Fatalf("first lock: %v", err)
		}
		if _, err := l.TryLock(ctx, "reconciler", time.Minute); !errors.Is(err, ErrLockHeld) {
			t.Fatalf("second lock: want ErrLockHeld, got %v", err)
		}
		if err := l.Unlock(ctx, "reconciler", "someone-else"); err != nil {
			t.Fatalf("foreign unlock: %v", err)
		}
		if _, err := l.TryLock(ctx, "reconciler", time.Minute); !errors.Is(err, ErrLockHeld) {
			t.Fatal("foreign unlock released the lock")
		}
		if err := l.Unlock(ctx, "reconciler", tok); err != nil {
			t.Fatalf("unlock: %v", err)
		}
		if _, err := l.TryLock(ctx, "reconciler", time.Minute); err != nil {
			t.Errorf("relock: %v", err)
		}
	})

	t.Run("should release after the ttl", func(t *testing.T) {
		c, mr := newTestClient(t)
		l := NewLocker(c)
		if _, err := l.TryLock(ctx, "sweeper", time.Second); err != nil {
			t.Fatal(err)
		}
		mr.FastForward(2 * time.Second)
		if _, err := l.TryLock(ctx, "sweeper", time.Second); err != nil {
			t.Errorf("lock not released by ttl: %v", err)
		}
	})
}

func TestRateLimiter(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)
	rl := NewRateLimiter(c)

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "203.0.113.7", 3, time.Minute)
		if err != nil || !ok {
			t.Fatalf("request %d: ok=%v err=%v", i, ok, err)
		}
	}
	if ok, _ := rl.Allow(ctx, "203.0.113.7", 3, time.Minute); ok {
		t.Error("fourth request in window should be limited")
	}
	if ok, _ := rl.Allow(ctx, "198.51.100.1", 3, time.Minute); !ok {
		t.Error("other client should not be limited")
	}

	mr.FastForward(time.Minute + time.Second)
	if ok, _ := rl.Allow(ctx, "203.0.113.7", 3, time.Minute); !ok {
		t.Error("window did not reset")
	}

	t.Run("should re-arm a window key that lost its expiry", func(t *testing.T) {
		k := "test:rate_limit:payment_request:192.0.2.9"
		if err := mr.Set(k, "50"); err != nil {
			t.Fatal(err)
		}
		if ok, _ := rl.Allow(ctx, "payment_request:192.0.2.9", 3, time.Minute); ok {
			t.Fatal("over-limit key allowed")
		}
		if ttl := mr.TTL(k); ttl <= 0 || ttl > time.Minute {
			t.Fatalf("ttl = %v", ttl)
		}
		mr.FastForward(time.Minute + time.Second)
		if ok, _ := rl.Allow(ctx, "payment_request:192.0.2.9", 3, time.Minute); !ok {
			t.Error("stuck key never expired")
		}
	})

	t.Run("should not limit when no limit is set", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			if ok, err := rl.Allow(ctx, "payment_request:192.0.2.10", 0, time.Minute); err != nil || !ok {
				t.Fatalf("request %d: ok=%v err=%v", i, ok, err)
			}
		}
	})
}
