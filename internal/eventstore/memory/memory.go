// Package memory provides an in-process EventStore, the Go counterpart
// of original_source's InMemoryEventStore. It serializes appends with a
// single mutex, the same shape as audit.Logger's Append — there is no
// durability and no concurrency safety beyond process lifetime; it
// exists for tests and for single-process deployments that accept
// losing the chain on restart.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/tedy97123/accountabiltyme/internal/eventstore"
	"github.com/tedy97123/accountabiltyme/internal/ledger"
)

// Store is a mutex-guarded, in-process EventStore.
type Store struct {
	mu       sync.RWMutex
	events   []ledger.Event
	nextSeq  int64
	lastHash *string

	appendMu sync.Mutex // held across an entire BeginAppend..Commit/Rollback cycle
	locked   bool
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

func (s *Store) GetHead(ctx context.Context) (ledger.ChainHead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ledger.ChainHead{NextSequence: s.nextSeq, LastEventHash: s.lastHash}, nil
}

func (s *Store) GetEventCount(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.events)), nil
}

func (s *Store) ListAll(ctx context.Context) ([]ledger.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Event, len(s.events))
	copy(out, s.events)
	return out, nil
}

func (s *Store) ListForEntity(ctx context.Context, id uuid.UUID) ([]ledger.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.Event
	for _, e := range s.events {
		if e.EntityID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

// BeginAppend acquires the append lock and returns a scope holding the
// reserved (sequence, previous_hash) pair. The lock is held until the
// scope's Commit or Rollback runs, exactly as reserve_head/commit_append
// pair in original_source's EventStore.
func (s *Store) BeginAppend(ctx context.Context) (ledger.AppendScope, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", eventstore.ErrLockBusy, err)
	}
	s.appendMu.Lock()

	s.mu.RLock()
	head := ledger.ChainHead{NextSequence: s.nextSeq, LastEventHash: s.lastHash}
	s.mu.RUnlock()

	return &appendScope{store: s, head: head}, nil
}

type appendScope struct {
	store    *Store
	head     ledger.ChainHead
	resolved bool
}

func (sc *appendScope) Head() ledger.ChainHead { return sc.head }

func (sc *appendScope) Commit(ctx context.Context, event ledger.Event, canonicalPayload []byte, canonVersion int) error {
	if sc.resolved {
		return fmt.Errorf("eventstore/memory: scope already resolved")
	}
	defer sc.store.appendMu.Unlock()
	sc.resolved = true

	if event.SequenceNumber != sc.head.NextSequence {
		return fmt.Errorf("%w: reserved sequence %d no longer matches append (got %d)",
			eventstore.ErrConcurrency, sc.head.NextSequence, event.SequenceNumber)
	}

	sc.store.mu.Lock()
	defer sc.store.mu.Unlock()
	sc.store.events = append(sc.store.events, event)
	sc.store.nextSeq = event.SequenceNumber + 1
	hash := event.EventHash
	sc.store.lastHash = &hash
	return nil
}

func (sc *appendScope) Rollback(ctx context.Context) error {
	if sc.resolved {
		return nil
	}
	sc.resolved = true
	sc.store.appendMu.Unlock()
	return nil
}
