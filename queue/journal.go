/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package queue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Journal persists queued operations so a disconnected client's buffered
// writes survive a process restart. Implementations must preserve enqueue
// order across Load.
type Journal interface {
	// Append persists op at the tail.
	Append(op Operation) error
	// RemoveHead discards the oldest persisted operation.
	RemoveHead() error
	// BumpHeadRetry records the head's retry counter after a failed replay.
	BumpHeadRetry(retryCount int) error
	// Load returns every persisted operation in enqueue order.
	Load() ([]Operation, error)
	// Close releases the journal's resources.
	Close() error
}

// SQLiteJournal is a Journal backed by a local sqlite database file.
type SQLiteJournal struct {
	db *sql.DB
}

// OpenSQLiteJournal opens (and if needed initializes) a journal at path.
// Use ":memory:" for an ephemeral journal.
func OpenSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open offline journal: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS offline_ops (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			kind        TEXT NOT NULL,
			collection  TEXT NOT NULL,
			entity_id   TEXT NOT NULL,
			payload     TEXT,
			opt_lock    INTEGER NOT NULL DEFAULT 0,
			enqueued_at TEXT NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize offline journal: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

// Append persists op at the tail.
func (j *SQLiteJournal) Append(op Operation) error {
	payload, err := json.Marshal(op.Document)
	if err != nil {
		return fmt.Errorf("marshal journal payload: %w", err)
	}
	_, err = j.db.Exec(
		`INSERT INTO offline_ops (kind, collection, entity_id, payload, opt_lock, enqueued_at, retry_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(op.Kind), op.Collection, op.ID, string(payload), op.OptimisticLock,
		op.EnqueuedAt.UTC().Format(time.RFC3339Nano), op.RetryCount,
	)
	if err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}

// RemoveHead discards the oldest persisted operation.
func (j *SQLiteJournal) RemoveHead() error {
	_, err := j.db.Exec(
		`DELETE FROM offline_ops WHERE seq = (SELECT MIN(seq) FROM offline_ops)`)
	if err != nil {
		return fmt.Errorf("remove journal head: %w", err)
	}
	return nil
}

// BumpHeadRetry records the head's retry counter.
func (j *SQLiteJournal) BumpHeadRetry(retryCount int) error {
	_, err := j.db.Exec(
		`UPDATE offline_ops SET retry_count = ? WHERE seq = (SELECT MIN(seq) FROM offline_ops)`,
		retryCount,
	)
	if err != nil {
		return fmt.Errorf("update journal head retry count: %w", err)
	}
	return nil
}

// Load returns every persisted operation in enqueue order.
func (j *SQLiteJournal) Load() ([]Operation, error) {
	rows, err := j.db.Query(
		`SELECT kind, collection, entity_id, payload, opt_lock, enqueued_at, retry_count
		 FROM offline_ops ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}
	defer rows.Close()

	var ops []Operation
	for rows.Next() {
		var (
			kind, collection, id, payload, enqueuedAt string
			optLock                                   bool
			retryCount                                int
		)
		if err := rows.Scan(&kind, &collection, &id, &payload, &optLock, &enqueuedAt, &retryCount); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		op := Operation{
			Kind:           OpKind(kind),
			Collection:     collection,
			ID:             id,
			OptimisticLock: optLock,
			RetryCount:     retryCount,
		}
		if payload != "" && payload != "null" {
			if err := json.Unmarshal([]byte(payload), &op.Document); err != nil {
				return nil, fmt.Errorf("unmarshal journal payload: %w", err)
			}
		}
		if t, err := time.Parse(time.RFC3339Nano, enqueuedAt); err == nil {
			op.EnqueuedAt = t
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// Close releases the journal's database handle.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// MemoryJournal is a Journal held entirely in process memory. It offers the
// same ordering guarantees as SQLiteJournal without any persistence, which
// makes it useful in tests and for callers that want replay-on-reconnect
// semantics within a single process lifetime.
type MemoryJournal struct {
	mu  sync.Mutex
	ops []Operation
}

// NewMemoryJournal returns an empty in-memory journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

// Append persists op at the tail.
func (j *MemoryJournal) Append(op Operation) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ops = append(j.ops, op)
	return nil
}

// RemoveHead discards the oldest persisted operation.
func (j *MemoryJournal) RemoveHead() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.ops) > 0 {
		j.ops = j.ops[1:]
	}
	return nil
}

// BumpHeadRetry records the head's retry counter.
func (j *MemoryJournal) BumpHeadRetry(retryCount int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.ops) > 0 {
		j.ops[0].RetryCount = retryCount
	}
	return nil
}

// Load returns every persisted operation in enqueue order.
func (j *MemoryJournal) Load() ([]Operation, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Operation, len(j.ops))
	copy(out, j.ops)
	return out, nil
}

// Close is a no-op for in-memory journals.
func (j *MemoryJournal) Close() error {
	return nil
}
