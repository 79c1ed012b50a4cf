// Package scheduler periodically batches unanchored ledger events into
// anchor.Service batches. It is deliberately outside the security core:
// the worst a broken scheduler can do is anchor late, never anchor
// incorrectly, since anchor.Service.CreateBatch itself enforces that no
// event is ever anchored twice.
//
// Grounded on internal/server/storage/postgres.go's ticker-driven
// flushLoop and internal/watcher/file_watcher.go's poll-loop shape.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tedy97123/accountabiltyme/internal/anchor"
	"github.com/tedy97123/accountabiltyme/internal/ledger"
)

// DefaultBatchSize is how many events one anchor batch covers when the
// backlog is large enough.
const DefaultBatchSize = 100

// DefaultInterval is how often the scheduler checks for a new batch.
const DefaultInterval = 30 * time.Second

// DefaultMinUnanchored is the smallest backlog that triggers a batch;
// below this the scheduler waits for the next tick rather than
// anchoring a handful of events at a time.
const DefaultMinUnanchored = 10

// Scheduler runs Tick on a ticker, moving the unanchored event backlog
// into fixed-size anchor.Service batches.
type Scheduler struct {
	store  ledger.EventStore
	anchor *anchor.Service
	logger *slog.Logger

	batchSize     int
	interval      time.Duration
	minUnanchored int

	mu              sync.Mutex
	lastAnchoredSeq int64 // -1 until the first batch is created

	stopCh chan struct{}
	doneCh chan struct{}
}

// Option configures an optional Scheduler parameter.
type Option func(*Scheduler)

func WithBatchSize(n int) Option     { return func(s *Scheduler) { s.batchSize = n } }
func WithInterval(d time.Duration) Option { return func(s *Scheduler) { s.interval = d } }
func WithMinUnanchored(n int) Option { return func(s *Scheduler) { s.minUnanchored = n } }
func WithLogger(l *slog.Logger) Option { return func(s *Scheduler) { s.logger = l } }

// New constructs a Scheduler over store and anchorSvc with default
// parameters, overridden by any opts given.
func New(store ledger.EventStore, anchorSvc *anchor.Service, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:           store,
		anchor:          anchorSvc,
		logger:          slog.Default(),
		batchSize:       DefaultBatchSize,
		interval:        DefaultInterval,
		minUnanchored:   DefaultMinUnanchored,
		lastAnchoredSeq: -1,
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the scheduler's tick loop in a background goroutine. Stop
// must be called to release it.
func (s *Scheduler) Start() {
	go s.loop()
}

// Stop ends the tick loop and waits for the in-flight tick, if any, to
// finish.
func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
		<-s.doneCh
	}
}

func (s *Scheduler) loop() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.Tick(context.Background()); err != nil {
				s.logger.Error("anchor scheduler tick failed", "error", err)
			}
		}
	}
}

// Tick runs one scheduling pass: if the unanchored backlog meets
// minUnanchored, it creates exactly one batch of up to batchSize
// events, oldest first. It is exported so callers (and tests) can drive
// the scheduler deterministically instead of waiting on the ticker.
func (s *Scheduler) Tick(ctx context.Context) error {
	s.mu.Lock()
	lastSeq := s.lastAnchoredSeq
	s.mu.Unlock()

	events, err := s.store.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("anchor/scheduler: list events: %w", err)
	}

	var backlog []ledger.Event
	for _, ev := range events {
		if ev.SequenceNumber > lastSeq {
			backlog = append(backlog, ev)
		}
	}
	if len(backlog) < s.minUnanchored {
		return nil
	}

	n := s.batchSize
	if n > len(backlog) {
		n = len(backlog)
	}
	return s.createBatchFrom(backlog[:n])
}

func (s *Scheduler) createBatchFrom(events []ledger.Event) error {
	ids := make([]uuid.UUID, len(events))
	hashes := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.EventID
		hashes[i] = ev.EventHash
	}

	batch, err := s.anchor.CreateBatch(ids, hashes, events[0].SequenceNumber, events[len(events)-1].SequenceNumber)
	if err != nil {
		return fmt.Errorf("anchor/scheduler: create batch: %w", err)
	}

	s.mu.Lock()
	s.lastAnchoredSeq = batch.SequenceEnd
	s.mu.Unlock()

	s.logger.Info("created anchor batch",
		"batch_id", batch.ID,
		"event_count", len(events),
		"sequence_start", batch.SequenceStart,
		"sequence_end", batch.SequenceEnd,
	)
	return nil
}
