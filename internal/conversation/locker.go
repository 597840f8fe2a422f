package conversation

import (
	"context"
	"sync"
	"time"
)

// Locker serializes work per key. Unlock must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

// KeyedLocker is an in-process Locker holding one semaphore per active key.
// Entries are dropped once no goroutine holds or waits on them.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
	wait  time.Duration
}

// NewKeyedLocker creates a locker. wait bounds how long Lock blocks (0 waits for ctx only).
func NewKeyedLocker(wait time.Duration) *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyLock), wait: wait}
}

func (l *KeyedLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &keyLock{sem: make(chan struct{}, 1)}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	var timeout <-chan time.Time
	if l.wait > 0 {
		timer := time.NewTimer(l.wait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, entry, false)
		return nil, ctx.Err()
	case <-timeout:
		l.release(key, entry, false)
		return nil, ErrLockTimeout
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, entry, true) })
	}, nil
}

func (l *KeyedLocker) release(key string, entry *keyLock, held bool) {
	if held {
		<-entry.sem
	}
	l.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

// size reports tracked keys; used by tests.
func (l *KeyedLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
