// Package runlock provides the cross-process mutual exclusion
// guarding pipeline runs: at most one occupant of the
// quote-acquisition step at a time, across all worker processes
package runlock

import (
	"context"
	"sync"
	"time"
)

// Lock is a single-occupant lease. Acquire is non-blocking;
// the lease expires on its own if the holder crashes
type Lock interface {
	// TryAcquire attempts to take the lease for the given TTL.
	// Returns false when another occupant holds it
	TryAcquire(ctx context.Context, ttl time.Duration) (bool, error)

	// Release frees the lease. Safe to call when not held
	Release(ctx context.Context) error
}

// MemoryLock is a process-local Lock, for single-process
// deployments and tests
type MemoryLock struct {
	expiresAt time.Time
	held      bool

	mu sync.Mutex
}

func NewMemoryLock() *MemoryLock {
	return &MemoryLock{}
}

func (l *MemoryLock) TryAcquire(_ context.Context, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	if l.held && now.Before(l.expiresAt) {
		return false, nil
	}

	l.held = true
	l.expiresAt = now.Add(ttl)

	return true, nil
}

func (l *MemoryLock) Release(_ context.Context) error {
	l.mu.Lock()
	l.held = false
	l.mu.Unlock()

	return nil
}
