// Package lock serializes work per key (one account, one note) without a
// global lock.
package lock

import (
	"context"
	"sync"
)

// Locker acquires an exclusive lock for key. Work done while holding the
// lock must use the returned context; unlock must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (context.Context, func(), error)
}

// Local is an in-process keyed mutex. Entries are dropped when the last
// holder or waiter releases them.
type Local struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	ch   chan struct{} // buffered(1): holding the token means holding the lock
	refs int
}

var _ Locker = (*Local)(nil)

// NewLocal constructs an empty keyed mutex.
func NewLocal() *Local {
	return &Local{entries: map[string]*entry{}}
}

// Lock blocks until key is free or ctx is done. The context is returned
// unchanged.
func (l *Local) Lock(ctx context.Context, key string) (context.Context, func(), error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, nil, ctx.Err()
	}

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			<-e.ch
			l.release(key, e)
		})
	}, nil
}

func (l *Local) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// size reports the number of live entries.
func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// AccountKey is the lock key for an account's credential set and OTP fields.
func AccountKey(id string) string { return "account:" + id }

// NoteKey is the lock key for one note.
func NoteKey(id string) string { return "note:" + id }
