// Package lock serializes work per key (one user's cart) across requests.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned when a lock could not be acquired within the wait budget.
var ErrTimeout = errors.New("timed out waiting for lock")

// Locker acquires a named exclusive lock. The returned release func must be
// called exactly once; it never blocks for long and never fails loudly.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// CartKey is the lock key shared by cart mutations and checkout for a user.
func CartKey(userID string) string { return "cart:" + userID }

// Local is an in-process keyed mutex. Waiters honour ctx and the wait timeout.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
	wait  time.Duration
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocal returns a Local locker. wait <= 0 means wait until ctx is done.
func NewLocal(wait time.Duration) *Local {
	return &Local{slots: map[string]*slot{}, wait: wait}
}

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	var timeout <-chan time.Time
	if l.wait > 0 {
		t := time.NewTimer(l.wait)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(key, s)
		return nil, ctx.Err()
	case <-timeout:
		l.drop(key, s)
		return nil, ErrTimeout
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.drop(key, s)
		})
	}, nil
}

func (l *Local) drop(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}
