// Package lock provides the mutual exclusion that keeps two sync runs from
// rotating the same backup history at once.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNotAcquired is returned when the context ends before the lock is free.
	ErrNotAcquired = errors.New("lock not acquired")

	// ErrLost is the cause of a held context whose lock expired or was taken
	// over before release.
	ErrLost = errors.New("lock lost")
)

// Locker hands out named locks. The held context survives cancellation of
// ctx and ends on release, or with cause ErrLost when the lock is lost. The
// returned release function is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (held context.Context, release func(), err error)
}

// Local is an in-process Locker.
type Local struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocal() *Local {
	return &Local{slots: make(map[string]chan struct{})}
}

func (l *Local) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}

	return slot
}

func (l *Local) Lock(ctx context.Context, key string) (context.Context, func(), error) {
	slot := l.slot(key)

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctx.Err())
	}

	held, cancel := context.WithCancel(context.WithoutCancel(ctx))

	var once sync.Once

	return held, func() {
		once.Do(func() {
			cancel()
			<-slot
		})
	}, nil
}
