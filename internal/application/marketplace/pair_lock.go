package marketplace

import (
	"context"
	"sync"

	"github.com/crosslist/backend/internal/domain/marketplace"
	"github.com/google/uuid"
)

// PairLocker serializes work on one (item, marketplace) pair.
// Lock blocks until the pair is free or ctx is done; the returned function
// releases the pair and is safe to call more than once.
type PairLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// PairKey is the lock key of a pair
func PairKey(itemID uuid.UUID, code marketplace.Code) string {
	return itemID.String() + ":" + string(code)
}

// PairLockArena is an in-process PairLocker. Entries are reference counted
// and dropped when no goroutine holds or waits for them.
type PairLockArena struct {
	mu    sync.Mutex
	locks map[string]*pairLock
}

type pairLock struct {
	ch   chan struct{}
	refs int
}

// NewPairLockArena creates an empty arena
func NewPairLockArena() *PairLockArena {
	return &PairLockArena{locks: make(map[string]*pairLock)}
}

// Lock acquires the pair
func (a *PairLockArena) Lock(ctx context.Context, key string) (func(), error) {
	a.mu.Lock()
	l, ok := a.locks[key]
	if !ok {
		l = &pairLock{ch: make(chan struct{}, 1)}
		a.locks[key] = l
	}
	l.refs++
	a.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		a.release(key, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			a.release(key, l)
		})
	}, nil
}

func (a *PairLockArena) release(key string, l *pairLock) {
	a.mu.Lock()
	defer a.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(a.locks, key)
	}
}

// Len returns the number of pairs currently held or awaited
func (a *PairLockArena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.locks)
}
