package conversation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestKeyedLockerSerializesSameKey(t *testing.T) {
	locker := NewKeyedLocker(0)
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "+15125550100")
			if err != nil {
				t.Errorf("lock failed: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Fatalf("expected one holder at a time, saw %d", maxInside)
	}
	if locker.size() != 0 {
		t.Fatalf("expected lock entries to be released, got %d", locker.size())
	}
}

func TestKeyedLockerIndependentKeys(t *testing.T) {
	locker := NewKeyedLocker(50 * time.Millisecond)
	ctx := context.Background()

	unlockA, err := locker.Lock(ctx, "a")
	if err != nil {
		t.Fatalf("lock a: %v", err)
	}
	defer unlockA()

	unlockB, err := locker.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("lock b should not wait on a: %v", err)
	}
	unlockB()
}

func TestKeyedLockerTimesOut(t *testing.T) {
	locker := NewKeyedLocker(20 * time.Millisecond)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := locker.Lock(ctx, "k"); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
	unlock()
	// Unlock is idempotent.
	unlock()

	again, err := locker.Lock(ctx, "k")
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	again()
	if locker.size() != 0 {
		t.Fatalf("expected no tracked keys, got %d", locker.size())
	}
}

func TestKeyedLockerHonorsContext(t *testing.T) {
	locker := NewKeyedLocker(0)
	unlock, _ := locker.Lock(context.Background(), "k")
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := locker.Lock(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRedisLockerExcludesSecondHolder(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locker := NewRedisLocker(client, time.Second, 100*time.Millisecond)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "+15125550100")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if !mr.Exists("conversation:lock:+15125550100") {
		t.Fatalf("expected lock key to be set")
	}

	if _, err := locker.Lock(ctx, "+15125550100"); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}

	unlock()
	if mr.Exists("conversation:lock:+15125550100") {
		t.Fatalf("expected lock key to be released")
	}

	unlock2, err := locker.Lock(ctx, "+15125550100")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	unlock2()
}

func TestRedisLockerReleaseKeepsForeignLease(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locker := NewRedisLocker(client, time.Second, 0)

	unlock, err := locker.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	// Simulate the lease expiring and another instance taking over.
	if err := mr.Set("conversation:lock:k", "someone-else"); err != nil {
		t.Fatalf("set: %v", err)
	}
	unlock()

	got, err := mr.Get("conversation:lock:k")
	if err != nil || got != "someone-else" {
		t.Fatalf("expected foreign lease to survive, got %q (%v)", got, err)
	}
}

func TestRedisLockerWaitsForRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locker := NewRedisLocker(client, time.Second, 2*time.Second)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	go func() {
		time.Sleep(50 * time.Millisecond)
		unlock()
	}()

	second, err := locker.Lock(ctx, "k")
	if err != nil {
		t.Fatalf("expected second lock after release, got %v", err)
	}
	second()
}
