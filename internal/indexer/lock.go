package indexer

import (
	"errors"
	"sync/atomic"
)

// ErrIndexingInProgress is returned when IndexRepository is called while a
// previous run on the same Indexer has not finished.
var ErrIndexingInProgress = errors.New("indexing already in progress")

// IndexLock is a non-blocking mutual exclusion flag. Two concurrent indexing
// runs would interleave their batched transactions over the same rows, so a
// second caller is turned away instead of queued.
type IndexLock struct {
	held atomic.Bool
}

// TryAcquire takes the lock if it is free and reports whether it succeeded.
func (l *IndexLock) TryAcquire() bool {
	return l.held.CompareAndSwap(false, true)
}

// Release frees the lock for the next TryAcquire. Only the caller that
// acquired it may release it.
func (l *IndexLock) Release() {
	l.held.Store(false)
}
