package refresher

import "sync/atomic"

// RefreshLock is a non-blocking lock that lets a second backfill fail fast
// instead of queueing behind the first.
type RefreshLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire takes the lock if it is free and reports whether it did
func (l *RefreshLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release frees the lock.
// Must only be called by the goroutine that successfully acquired the lock.
func (l *RefreshLock) Release() {
	l.state.Store(0)
}

// Held reports whether a refresh is running
func (l *RefreshLock) Held() bool {
	return l.state.Load() == 1
}
