package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/layer-3/faucet/core"
	"github.com/layer-3/faucet/ports"
)

type keyLock struct {
	sem  chan struct{}
	refs int
}

// MemoryLocker hands out one in-process lock per key. Waiters queue until the
// holder releases or their context ends.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// NewMemoryLocker creates a new in-process locker
func NewMemoryLocker() ports.Locker {
	return &MemoryLocker{locks: make(map[string]*keyLock)}
}

// Lock blocks until key is free or ctx is done
func (l *MemoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl, false)
		return nil, fmt.Errorf("%w: %s", core.ErrClaimInProgress, key)
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, kl, true) })
	}, nil
}

func (l *MemoryLocker) release(key string, kl *keyLock, held bool) {
	if held {
		<-kl.sem
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}
