package ledger

import (
	"context"

	"github.com/google/uuid"
)

// ChainHead is the current tip of the chain: the sequence number the
// next appended event must use, and the hash it must chain from.
type ChainHead struct {
	NextSequence  int64
	LastEventHash *string // nil only when the chain is empty
}

// AppendScope is held across the hash/sign step between reserving the
// chain head and durably committing an event. There is deliberately no
// separate "reserve" call exposed beyond BeginAppend: the scope itself
// is the reservation, and it must be resolved by exactly one of Commit
// or Rollback. Callers defer Rollback immediately after a successful
// BeginAppend so an early return always releases the head lock.
type AppendScope interface {
	// Head returns the sequence number and previous hash reserved for
	// this scope, computed before any lock is released.
	Head() ChainHead

	// Commit durably appends event, along with the exact canonical
	// bytes hashed to produce it and the canonicalizer version that
	// produced them, and releases the head lock.
	Commit(ctx context.Context, event Event, canonicalPayload []byte, canonVersion int) error

	// Rollback releases the head lock without appending anything. It is
	// a no-op if Commit already succeeded.
	Rollback(ctx context.Context) error
}

// EventStore owns sequence numbers, chain-head state, and persistence.
// LedgerService never computes a sequence number or previous hash
// itself — it always asks the EventStore, so that concurrent writers
// serialize correctly regardless of which EventStore backs them.
type EventStore interface {
	// BeginAppend reserves the next (sequence, previous_hash) pair and
	// returns a scope that must be committed or rolled back.
	BeginAppend(ctx context.Context) (AppendScope, error)

	// GetHead returns the current chain head without reserving it.
	GetHead(ctx context.Context) (ChainHead, error)

	// GetEventCount returns the total number of committed events.
	GetEventCount(ctx context.Context) (int64, error)

	// ListAll returns every event in ascending sequence order.
	ListAll(ctx context.Context) ([]Event, error)

	// ListForEntity returns every event whose EntityID matches id, in
	// ascending sequence order.
	ListForEntity(ctx context.Context, id uuid.UUID) ([]Event, error)
}
