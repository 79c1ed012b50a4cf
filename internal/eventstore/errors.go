// Package eventstore holds the sentinel errors shared by every
// EventStore implementation (internal/eventstore/memory, .../postgres,
// .../sqlite). It has no dependency on internal/ledger so that those
// implementations — which do depend on internal/ledger for the Event
// and EventStore types they build against — don't form an import
// cycle back through this package.
package eventstore

import "errors"

var (
	// ErrConcurrency is returned when the event handed to Commit
	// carries a sequence number other than the one reserved at
	// BeginAppend. Commit does not compare the event's previous hash
	// with the reserved one, and does not recompute its event hash.
	ErrConcurrency = errors.New("eventstore: concurrency error")

	// ErrLockBusy is returned when the chain-head lock could not be
	// acquired before the caller's context deadline.
	ErrLockBusy = errors.New("eventstore: lock busy")

	// ErrOperationTimedOut is returned when a store operation exceeded
	// its configured statement timeout after acquiring the lock.
	ErrOperationTimedOut = errors.New("eventstore: operation timed out")
)
