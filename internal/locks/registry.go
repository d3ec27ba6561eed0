// Package locks provides per-ticket mutual exclusion for lifecycle
// operations. Locks are created lazily on first use and live for the
// process lifetime; the registry map itself is guarded independently of
// the locks it hands out.
package locks

import (
	"context"
	"sync"
)

// Registry maps ticket IDs to exclusive locks.
type Registry struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{locks: make(map[string]chan struct{})}
}

func (r *Registry) lockFor(ticketID string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[ticketID]
	if !ok {
		lock = make(chan struct{}, 1)
		r.locks[ticketID] = lock
	}
	return lock
}

// Acquire blocks until the ticket's lock is held or ctx is done. On success
// it returns a release func the caller must invoke on every exit path,
// typically via defer.
func (r *Registry) Acquire(ctx context.Context, ticketID string) (func(), error) {
	lock := r.lockFor(ticketID)
	select {
	case lock <- struct{}{}:
		return func() { <-lock }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len reports how many ticket locks exist.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
