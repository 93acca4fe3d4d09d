package lease

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// redisServer is the miniredis instance behind the current test's "redis"
// backend. miniredis does not expire keys in real time; its TTLs only run
// down when FastForward is called.
var redisServer *miniredis.Miniredis

func backends(t *testing.T) map[string]Storage {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)
	redisServer = mr

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return map[string]Storage{
		"memory": NewMemoryStorage(),
		"redis":  NewRedisStorage(rdb),
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s Storage)) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, s)
		})
	}
}

func TestMaybeAcquireGrantsWhenFree(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		got, ok, err := s.MaybeAcquire(ctx, "scheduler", "replica-a", time.Minute)
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
		if !ok {
			t.Fatalf("want lease granted on empty key")
		}
		if got.OwnerID != "replica-a" {
			t.Fatalf("want owner replica-a, got %s", got.OwnerID)
		}
	})
}

func TestMaybeAcquireRejectsOtherOwnerWhileHeld(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		if _, ok, err := s.MaybeAcquire(ctx, "scheduler", "replica-a", time.Minute); err != nil || !ok {
			t.Fatalf("first acquire: ok=%v err=%v", ok, err)
		}
		_, ok, err := s.MaybeAcquire(ctx, "scheduler", "replica-b", time.Minute)
		if err != nil {
			t.Fatalf("second acquire: %v", err)
		}
		if ok {
			t.Fatalf("want replica-b rejected while replica-a holds the lease")
		}
	})
}

func TestMaybeAcquireRenewsSameOwner(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		if _, ok, err := s.MaybeAcquire(ctx, "scheduler", "replica-a", time.Minute); err != nil || !ok {
			t.Fatalf("first acquire: ok=%v err=%v", ok, err)
		}
		got, ok, err := s.MaybeAcquire(ctx, "scheduler", "replica-a", time.Minute)
		if err != nil {
			t.Fatalf("renewal: %v", err)
		}
		if !ok {
			t.Fatalf("want same owner able to renew its own lease")
		}
		if got.OwnerID != "replica-a" {
			t.Fatalf("want owner replica-a, got %s", got.OwnerID)
		}
	})
}

func TestMaybeAcquireGrantsAfterExpiry(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		if _, ok, err := s.MaybeAcquire(ctx, "scheduler", "replica-a", 5*time.Millisecond); err != nil || !ok {
			t.Fatalf("first acquire: ok=%v err=%v", ok, err)
		}
		time.Sleep(20 * time.Millisecond)
		redisServer.FastForward(20 * time.Millisecond)
		got, ok, err := s.MaybeAcquire(ctx, "scheduler", "replica-b", time.Minute)
		if err != nil {
			t.Fatalf("acquire after expiry: %v", err)
		}
		if !ok {
			t.Fatalf("want replica-b to acquire an expired lease")
		}
		if got.OwnerID != "replica-b" {
			t.Fatalf("want owner replica-b, got %s", got.OwnerID)
		}
	})
}

func TestReleaseOnlyByOwner(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		if _, ok, err := s.MaybeAcquire(ctx, "scheduler", "replica-a", time.Minute); err != nil || !ok {
			t.Fatalf("acquire: ok=%v err=%v", ok, err)
		}
		if err := s.Release(ctx, "scheduler", "replica-b"); err != nil {
			t.Fatalf("release by non-owner must not error: %v", err)
		}
		if _, ok, err := s.MaybeAcquire(ctx, "scheduler", "replica-b", time.Minute); err != nil || ok {
			t.Fatalf("want lease still held by replica-a after no-op release, ok=%v err=%v", ok, err)
		}

		if err := s.Release(ctx, "scheduler", "replica-a"); err != nil {
			t.Fatalf("release by owner: %v", err)
		}
		if _, ok, err := s.MaybeAcquire(ctx, "scheduler", "replica-b", time.Minute); err != nil || !ok {
			t.Fatalf("want lease acquirable after owner released it, ok=%v err=%v", ok, err)
		}
	})
}
