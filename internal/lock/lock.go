// Package lock provides keyed mutual exclusion for the select-and-claim
// section of provisioning, so two requests for the same owner and topic
// cannot claim the same asset.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotAcquired is returned when a lock could not be obtained before the
// context ended.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker hands out exclusive locks by key. Acquire blocks until the lock is
// held or ctx is done. The returned release func is safe to call more than once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Key builds the lock key for an owner/topic pair.
func Key(ownerID, topicKey string) string {
	return "claim:" + ownerID + "/" + topicKey
}

// MemoryLocker serializes holders within a single process.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*memEntry
}

type memEntry struct {
	ch   chan struct{}
	refs int
}

// NewMemoryLocker creates an empty MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*memEntry)}
}

// Acquire waits for key to be free within this process, or for ctx to end.
func (l *MemoryLocker) Acquire(ctx context.Context, key string) (func(), error) {
	e := l.ref(key)
	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, e)
		return nil, fmt.Errorf("acquire %s: %w: %w", key, ErrNotAcquired, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.unref(key, e)
		})
	}, nil
}

func (l *MemoryLocker) ref(key string) *memEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.locks[key]
	if !ok {
		e = &memEntry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	return e
}

// unref drops the entry once nobody holds or waits on it.
func (l *MemoryLocker) unref(key string, e *memEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// size reports the number of live entries.
func (l *MemoryLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

var _ Locker = (*MemoryLocker)(nil)
