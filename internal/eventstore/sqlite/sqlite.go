// Package sqlite provides a WAL-mode SQLite-backed EventStore, the
// lightweight durable option selected by eventstore_driver: sqlite. It
// mirrors internal/queue's single-writer-connection pattern: SQLite
// allows only one writer, so the pool is capped at one connection and
// every append serializes through it naturally, without a separate
// application-level mutex.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver with database/sql

	"github.com/tedy97123/accountabiltyme/internal/eventstore"
	"github.com/tedy97123/accountabiltyme/internal/ledger"
)

// ddl is applied on Open; it mirrors the canonical schema in
// SPEC_FULL.md §6.1, rendered in SQLite's dialect, without the
// spec_version column.
const ddl = `
CREATE TABLE IF NOT EXISTS ledger_events (
    event_id            TEXT PRIMARY KEY,
    sequence_number     INTEGER NOT NULL UNIQUE,
    previous_event_hash TEXT,
    event_hash          TEXT NOT NULL,
    event_type          TEXT NOT NULL,
    entity_type         TEXT NOT NULL,
    entity_id           TEXT NOT NULL,
    created_by          TEXT,
    editor_signature    TEXT NOT NULL,
    created_at          TEXT NOT NULL,
    payload_json        TEXT NOT NULL,
    payload_canon       BLOB NOT NULL,
    canon_version       INTEGER NOT NULL,
    anchor_batch_id     TEXT,
    merkle_proof        TEXT
);
CREATE INDEX IF NOT EXISTS idx_ledger_events_entity ON ledger_events (entity_id);
CREATE TABLE IF NOT EXISTS ledger_head (
    id              INTEGER PRIMARY KEY CHECK (id = 1),
    last_sequence   INTEGER NOT NULL,
    last_event_hash TEXT
);
`

// Store is a WAL-mode SQLite EventStore.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path, enables WAL
// journal mode, and applies the schema. path may be ":memory:" for
// tests, which loses all data when closed.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("eventstore/sqlite: open %q: %w", path, err)
	}

	// A single writer connection serializes appends the same way a
	// mutex would, and avoids "database is locked" errors under
	// concurrent callers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("eventstore/sqlite: set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA synchronous = NORMAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("eventstore/sqlite: set synchronous = NORMAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("eventstore/sqlite: enable foreign keys: %w", err)
	}
	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("eventstore/sqlite: apply schema: %w", err)
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO ledger_head (id, last_sequence, last_event_hash) VALUES (1, -1, NULL)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("eventstore/sqlite: seed head: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) GetHead(ctx context.Context) (ledger.ChainHead, error) {
	var lastSeq int64
	var lastHash sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT last_sequence, last_event_hash FROM ledger_head WHERE id = 1`).
		Scan(&lastSeq, &lastHash)
	if err != nil {
		return ledger.ChainHead{}, fmt.Errorf("eventstore/sqlite: get head: %w", err)
	}
	return headFromRow(lastSeq, lastHash), nil
}

func headFromRow(lastSeq int64, lastHash sql.NullString) ledger.ChainHead {
	head := ledger.ChainHead{NextSequence: lastSeq + 1}
	if lastHash.Valid {
		h := lastHash.String
		head.LastEventHash = &h
	}
	return head
}

func (s *Store) GetEventCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_events`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("eventstore/sqlite: count: %w", err)
	}
	return n, nil
}

func (s *Store) ListAll(ctx context.Context) ([]ledger.Event, error) {
	rows, err := s.db.QueryContext(ctx, listQuery+` ORDER BY sequence_number ASC`)
	if err != nil {
		return nil, fmt.Errorf("eventstore/sqlite: list all: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *Store) ListForEntity(ctx context.Context, id uuid.UUID) ([]ledger.Event, error) {
	rows, err := s.db.QueryContext(ctx, listQuery+` WHERE entity_id = ? ORDER BY sequence_number ASC`, id.String())
	if err != nil {
		return nil, fmt.Errorf("eventstore/sqlite: list for entity: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

const listQuery = `
SELECT event_id, sequence_number, previous_event_hash, event_hash, event_type,
       entity_type, entity_id, created_by, editor_signature, created_at,
       payload_json, anchor_batch_id, merkle_proof
FROM ledger_events`

func scanEvents(rows *sql.Rows) ([]ledger.Event, error) {
	var out []ledger.Event
	for rows.Next() {
		var (
			eventID, eventType, entityType, entityID, signature, createdAtStr string
			prevHash, createdBy, anchorBatchID, merkleProof                  sql.NullString
			eventHash                                                        string
			payloadJSON                                                      string
			seq                                                              int64
		)
		if err := rows.Scan(&eventID, &seq, &prevHash, &eventHash, &eventType, &entityType,
			&entityID, &createdBy, &signature, &createdAtStr, &payloadJSON, &anchorBatchID, &merkleProof); err != nil {
			return nil, fmt.Errorf("eventstore/sqlite: scan event: %w", err)
		}
		ev, err := rowToEvent(eventID, seq, prevHash, eventHash, eventType, entityType,
			entityID, createdBy, signature, createdAtStr, payloadJSON, anchorBatchID, merkleProof)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func rowToEvent(eventID string, seq int64, prevHash sql.NullString, eventHash, eventType, entityType,
	entityID string, createdBy sql.NullString, signature, createdAtStr, payloadJSON string,
	anchorBatchID, merkleProof sql.NullString) (ledger.Event, error) {

	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return ledger.Event{}, fmt.Errorf("eventstore/sqlite: parse created_at: %w", err)
	}
	payload, err := ledger.DecodePayload(ledger.EventType(eventType), json.RawMessage(payloadJSON))
	if err != nil {
		return ledger.Event{}, err
	}

	ev := ledger.Event{
		EventID:         uuid.MustParse(eventID),
		SequenceNumber:  seq,
		EventType:       ledger.EventType(eventType),
		EntityID:        uuid.MustParse(entityID),
		EntityType:      ledger.EntityType(entityType),
		Payload:         payload,
		EventHash:       eventHash,
		EditorSignature: signature,
		CreatedAt:       createdAt,
	}
	if prevHash.Valid {
		h := prevHash.String
		ev.PreviousEventHash = &h
	}
	if createdBy.Valid {
		ev.CreatedBy = uuid.MustParse(createdBy.String)
	}
	if anchorBatchID.Valid {
		id := uuid.MustParse(anchorBatchID.String)
		ev.AnchorBatchID = &id
	}
	if merkleProof.Valid {
		ev.MerkleProof = json.RawMessage(merkleProof.String)
	}
	return ev, nil
}

// BeginAppend starts a transaction that holds an exclusive write lock on
// ledger_head for the lifetime of the scope, via SQLite's single-writer
// connection: because the pool has exactly one connection, the open
// transaction holds it, and any other append blocks waiting for that
// connection until this one commits or rolls back.
func (s *Store) BeginAppend(ctx context.Context) (ledger.AppendScope, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", eventstore.ErrLockBusy, err)
	}

	var lastSeq int64
	var lastHash sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT last_sequence, last_event_hash FROM ledger_head WHERE id = 1`).
		Scan(&lastSeq, &lastHash)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("eventstore/sqlite: reserve head: %w", err)
	}

	return &appendScope{tx: tx, head: headFromRow(lastSeq, lastHash)}, nil
}

type appendScope struct {
	tx       *sql.Tx
	head     ledger.ChainHead
	resolved bool
}

func (sc *appendScope) Head() ledger.ChainHead { return sc.head }

func (sc *appendScope) Commit(ctx context.Context, event ledger.Event, canonicalPayload []byte, canonVersion int) error {
	if sc.resolved {
		return fmt.Errorf("eventstore/sqlite: scope already resolved")
	}
	sc.resolved = true

	if event.SequenceNumber != sc.head.NextSequence {
		_ = sc.tx.Rollback()
		return fmt.Errorf("%w: reserved sequence %d no longer matches append (got %d)",
			eventstore.ErrConcurrency, sc.head.NextSequence, event.SequenceNumber)
	}

	payloadJSON, err := event.PayloadJSON()
	if err != nil {
		_ = sc.tx.Rollback()
		return err
	}

	var createdBy, anchorBatchID, merkleProof any
	if event.CreatedBy != uuid.Nil {
		createdBy = event.CreatedBy.String()
	}
	if event.AnchorBatchID != nil {
		anchorBatchID = event.AnchorBatchID.String()
	}
	if event.MerkleProof != nil {
		merkleProof = string(event.MerkleProof)
	}
	var prevHash any
	if event.PreviousEventHash != nil {
		prevHash = *event.PreviousEventHash
	}

	_, err = sc.tx.ExecContext(ctx, `
		INSERT INTO ledger_events
			(event_id, sequence_number, previous_event_hash, event_hash, event_type,
			 entity_type, entity_id, created_by, editor_signature, created_at,
			 payload_json, payload_canon, canon_version, anchor_batch_id, merkle_proof)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.EventID.String(), event.SequenceNumber, prevHash, event.EventHash, string(event.EventType),
		string(event.EntityType), event.EntityID.String(), createdBy, event.EditorSignature,
		event.CreatedAt.UTC().Format(time.RFC3339Nano), string(payloadJSON), canonicalPayload,
		canonVersion, anchorBatchID, merkleProof,
	)
	if err != nil {
		_ = sc.tx.Rollback()
		return fmt.Errorf("eventstore/sqlite: insert event: %w", err)
	}

	_, err = sc.tx.ExecContext(ctx,
		`UPDATE ledger_head SET last_sequence = ?, last_event_hash = ? WHERE id = 1`,
		event.SequenceNumber, event.EventHash)
	if err != nil {
		_ = sc.tx.Rollback()
		return fmt.Errorf("eventstore/sqlite: update head: %w", err)
	}

	if err := sc.tx.Commit(); err != nil {
		return fmt.Errorf("eventstore/sqlite: commit: %w", err)
	}
	return nil
}

func (sc *appendScope) Rollback(ctx context.Context) error {
	if sc.resolved {
		return nil
	}
	sc.resolved = true
	return sc.tx.Rollback()
}
