// Package postgres provides a pgxpool-backed, durable EventStore
// (eventstore_driver: postgres). The chain-head lock is a row-level
// SELECT ... FOR UPDATE on the singleton ledger_head row, held inside a
// pgx.Tx for the lifetime of an append scope — the same "acquire a
// connection-scoped lock, commit or roll back" shape as the teacher's
// pool-owning Store, adapted from whole-batch flushing to a
// single-row append lock.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tedy97123/accountabiltyme/internal/eventstore"
	"github.com/tedy97123/accountabiltyme/internal/ledger"
)

const ddl = `
CREATE TABLE IF NOT EXISTS ledger_events (
    event_id            UUID PRIMARY KEY,
    sequence_number     BIGINT NOT NULL UNIQUE,
    previous_event_hash TEXT,
    event_hash          TEXT NOT NULL,
    event_type          TEXT NOT NULL,
    entity_type         TEXT NOT NULL,
    entity_id           UUID NOT NULL,
    created_by          UUID,
    editor_signature    TEXT NOT NULL,
    created_at          TIMESTAMPTZ NOT NULL,
    payload_json        JSONB NOT NULL,
    payload_canon       BYTEA NOT NULL,
    canon_version       INTEGER NOT NULL,
    anchor_batch_id     UUID,
    merkle_proof        JSONB
);
CREATE INDEX IF NOT EXISTS idx_ledger_events_entity ON ledger_events (entity_id);
CREATE TABLE IF NOT EXISTS ledger_head (
    id               BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (id),
    last_sequence    BIGINT NOT NULL,
    last_event_hash  TEXT
);
`

// DefaultLockTimeout bounds how long BeginAppend waits to acquire the
// ledger_head row lock before returning eventstore.ErrLockBusy.
const DefaultLockTimeout = 5 * time.Second

// DefaultStatementTimeout bounds how long a single append's statements
// may run once the lock is held, before eventstore.ErrOperationTimedOut.
const DefaultStatementTimeout = 10 * time.Second

// DefaultReaperInterval is how often the idle-session reaper scans
// pg_stat_activity for sessions that have held the head lock too long.
const DefaultReaperInterval = 30 * time.Second

// DefaultIdleCeiling is the maximum time a session may hold the head
// lock before the reaper terminates its backend.
const DefaultIdleCeiling = time.Minute

// Store is a PostgreSQL-backed EventStore.
type Store struct {
	pool            *pgxpool.Pool
	lockTimeout     time.Duration
	stmtTimeout     time.Duration
	reaperInterval  time.Duration
	idleCeiling     time.Duration
	stopCh          chan struct{}
	doneCh          chan struct{}
}

// Option configures optional Store parameters.
type Option func(*Store)

// WithLockTimeout overrides DefaultLockTimeout.
func WithLockTimeout(d time.Duration) Option { return func(s *Store) { s.lockTimeout = d } }

// WithStatementTimeout overrides DefaultStatementTimeout.
func WithStatementTimeout(d time.Duration) Option { return func(s *Store) { s.stmtTimeout = d } }

// WithReaper overrides the reaper's interval and idle ceiling.
func WithReaper(interval, idleCeiling time.Duration) Option {
	return func(s *Store) { s.reaperInterval = interval; s.idleCeiling = idleCeiling }
}

// Open connects to connStr, applies the schema, and starts the
// background lock reaper.
func Open(ctx context.Context, connStr string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("eventstore/postgres: pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("eventstore/postgres: ping: %w", err)
	}

	s := &Store{
		pool:           pool,
		lockTimeout:    DefaultLockTimeout,
		stmtTimeout:    DefaultStatementTimeout,
		reaperInterval: DefaultReaperInterval,
		idleCeiling:    DefaultIdleCeiling,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return nil, fmt.Errorf("eventstore/postgres: apply schema: %w", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO ledger_head (id, last_sequence, last_event_hash) VALUES (TRUE, -1, NULL) ON CONFLICT DO NOTHING`); err != nil {
		pool.Close()
		return nil, fmt.Errorf("eventstore/postgres: seed head: %w", err)
	}

	go s.reapLoop()
	return s, nil
}

// Close stops the reaper goroutine and closes the connection pool.
func (s *Store) Close() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
		<-s.doneCh
	}
	s.pool.Close()
}

// reapLoop periodically terminates backends that have held the
// ledger_head lock past idleCeiling, grounded on the teacher's
// ticker-driven flushLoop shape in internal/server/storage/postgres.go.
func (s *Store) reapLoop() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.reaperInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			_ = s.reapStaleSessions(context.Background())
		}
	}
}

func (s *Store) reapStaleSessions(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		SELECT pg_terminate_backend(pid)
		FROM pg_stat_activity
		WHERE query LIKE 'SELECT last_sequence, last_event_hash FROM ledger_head%'
		  AND state = 'idle in transaction'
		  AND now() - state_change > $1`,
		s.idleCeiling)
	return err
}

func (s *Store) GetHead(ctx context.Context) (ledger.ChainHead, error) {
	var lastSeq int64
	var lastHash *string
	err := s.pool.QueryRow(ctx, `SELECT last_sequence, last_event_hash FROM ledger_head`).
		Scan(&lastSeq, &lastHash)
	if err != nil {
		return ledger.ChainHead{}, fmt.Errorf("eventstore/postgres: get head: %w", err)
	}
	return ledger.ChainHead{NextSequence: lastSeq + 1, LastEventHash: lastHash}, nil
}

func (s *Store) GetEventCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("eventstore/postgres: count: %w", err)
	}
	return n, nil
}

const listColumns = `event_id, sequence_number, previous_event_hash, event_hash, event_type,
	entity_type, entity_id, created_by, editor_signature, created_at, payload_json,
	anchor_batch_id, merkle_proof`

func (s *Store) ListAll(ctx context.Context) ([]ledger.Event, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+listColumns+` FROM ledger_events ORDER BY sequence_number ASC`)
	if err != nil {
		return nil, fmt.Errorf("eventstore/postgres: list all: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *Store) ListForEntity(ctx context.Context, id uuid.UUID) ([]ledger.Event, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+listColumns+` FROM ledger_events WHERE entity_id = $1 ORDER BY sequence_number ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("eventstore/postgres: list for entity: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]ledger.Event, error) {
	var out []ledger.Event
	for rows.Next() {
		var (
			ev                                      ledger.Event
			eventType, entityType                   string
			prevHash, merkleProof                    *string
			createdBy, anchorBatchID                 *uuid.UUID
			payloadJSON                              []byte
		)
		if err := rows.Scan(&ev.EventID, &ev.SequenceNumber, &prevHash, &ev.EventHash, &eventType,
			&entityType, &ev.EntityID, &createdBy, &ev.EditorSignature, &ev.CreatedAt, &payloadJSON,
			&anchorBatchID, &merkleProof); err != nil {
			return nil, fmt.Errorf("eventstore/postgres: scan event: %w", err)
		}
		ev.EventType = ledger.EventType(eventType)
		ev.EntityType = ledger.EntityType(entityType)
		ev.PreviousEventHash = prevHash
		ev.AnchorBatchID = anchorBatchID
		if createdBy != nil {
			ev.CreatedBy = *createdBy
		}
		if merkleProof != nil {
			ev.MerkleProof = json.RawMessage(*merkleProof)
		}
		payload, err := ledger.DecodePayload(ev.EventType, json.RawMessage(payloadJSON))
		if err != nil {
			return nil, err
		}
		ev.Payload = payload
		out = append(out, ev)
	}
	return out, rows.Err()
}

// BeginAppend acquires the ledger_head row lock via SELECT ... FOR
// UPDATE inside a transaction. The lock is released when the returned
// scope's Commit or Rollback runs.
func (s *Store) BeginAppend(ctx context.Context) (ledger.AppendScope, error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	tx, err := s.pool.Begin(lockCtx)
	if err != nil {
		return nil, classifyBeginErr(err)
	}

	var lastSeq int64
	var lastHash *string
	err = tx.QueryRow(lockCtx, `SELECT last_sequence, last_event_hash FROM ledger_head FOR UPDATE`).
		Scan(&lastSeq, &lastHash)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, classifyBeginErr(err)
	}

	return &appendScope{
		tx:          tx,
		head:        ledger.ChainHead{NextSequence: lastSeq + 1, LastEventHash: lastHash},
		stmtTimeout: s.stmtTimeout,
	}, nil
}

func classifyBeginErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", eventstore.ErrLockBusy, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "55P03" { // lock_not_available
		return fmt.Errorf("%w: %v", eventstore.ErrLockBusy, err)
	}
	return fmt.Errorf("eventstore/postgres: begin append: %w", err)
}

type appendScope struct {
	tx          pgx.Tx
	head        ledger.ChainHead
	stmtTimeout time.Duration
	resolved    bool
}

func (sc *appendScope) Head() ledger.ChainHead { return sc.head }

func (sc *appendScope) Commit(ctx context.Context, event ledger.Event, canonicalPayload []byte, canonVersion int) error {
	if sc.resolved {
		return fmt.Errorf("eventstore/postgres: scope already resolved")
	}
	sc.resolved = true

	stmtCtx, cancel := context.WithTimeout(ctx, sc.stmtTimeout)
	defer cancel()

	if event.SequenceNumber != sc.head.NextSequence {
		_ = sc.tx.Rollback(ctx)
		return fmt.Errorf("%w: reserved sequence %d no longer matches append (got %d)",
			eventstore.ErrConcurrency, sc.head.NextSequence, event.SequenceNumber)
	}

	payloadJSON, err := event.PayloadJSON()
	if err != nil {
		_ = sc.tx.Rollback(ctx)
		return err
	}

	var createdBy *uuid.UUID
	if event.CreatedBy != uuid.Nil {
		createdBy = &event.CreatedBy
	}
	var merkleProof *string
	if event.MerkleProof != nil {
		s := string(event.MerkleProof)
		merkleProof = &s
	}

	_, err = sc.tx.Exec(stmtCtx, `
		INSERT INTO ledger_events
			(event_id, sequence_number, previous_event_hash, event_hash, event_type,
			 entity_type, entity_id, created_by, editor_signature, created_at,
			 payload_json, payload_canon, canon_version, anchor_batch_id, merkle_proof)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		event.EventID, event.SequenceNumber, event.PreviousEventHash, event.EventHash, string(event.EventType),
		string(event.EntityType), event.EntityID, createdBy, event.EditorSignature, event.CreatedAt,
		payloadJSON, canonicalPayload, canonVersion, event.AnchorBatchID, merkleProof,
	)
	if err != nil {
		_ = sc.tx.Rollback(ctx)
		return classifyCommitErr(err)
	}

	_, err = sc.tx.Exec(stmtCtx, `UPDATE ledger_head SET last_sequence = $1, last_event_hash = $2`,
		event.SequenceNumber, event.EventHash)
	if err != nil {
		_ = sc.tx.Rollback(ctx)
		return classifyCommitErr(err)
	}

	if err := sc.tx.Commit(stmtCtx); err != nil {
		return classifyCommitErr(err)
	}
	return nil
}

func classifyCommitErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", eventstore.ErrOperationTimedOut, err)
	}
	return fmt.Errorf("eventstore/postgres: commit append: %w", err)
}

func (sc *appendScope) Rollback(ctx context.Context) error {
	if sc.resolved {
		return nil
	}
	sc.resolved = true
	return sc.tx.Rollback(ctx)
}
