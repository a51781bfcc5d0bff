/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package queue

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/suparena/repokit/errors"
	"github.com/suparena/repokit/storagemodels"
)

// OpKind enumerates the mutating operations a queue entry can carry.
type OpKind string

const (
	OpCreate     OpKind = "create"
	OpUpdate     OpKind = "update"
	OpDelete     OpKind = "delete"
	OpUpsert     OpKind = "upsert"
	OpSoftDelete OpKind = "softDelete"
	OpRestore    OpKind = "restore"
)

// Operation is one buffered write issued while disconnected.
type Operation struct {
	Kind           OpKind                 `json:"kind"`
	Collection     string                 `json:"collection"`
	ID             string                 `json:"id"`
	Document       storagemodels.Document `json:"document,omitempty"`
	OptimisticLock bool                   `json:"optimisticLock,omitempty"`
	EnqueuedAt     time.Time              `json:"enqueuedAt"`
	RetryCount     int                    `json:"retryCount"`
}

// Apply executes one queued operation against the live store. Supplied by
// the repository engine at construction.
type Apply func(ctx context.Context, op Operation) error

// State is the queue lifecycle state.
type State int

const (
	// Idle means the queue is empty.
	Idle State = iota
	// Queued means operations are pending replay.
	Queued
	// Flushing means a replay is in progress.
	Flushing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Queued:
		return "queued"
	case Flushing:
		return "flushing"
	default:
		return "unknown"
	}
}

// Queue buffers mutating operations issued while disconnected and replays
// them strictly in enqueue order once connectivity returns. A failed head
// stops the replay; later operations are never applied before an earlier
// one that has not yet succeeded.
type Queue struct {
	apply   Apply
	journal Journal
	logger  *logrus.Logger

	mu    sync.Mutex
	ops   []Operation
	state State
}

// Option configures a Queue.
type Option func(*Queue)

// WithJournal persists the queue through journal so buffered writes
// survive a process restart. Previously journaled operations are loaded
// ahead of anything enqueued afterwards.
func WithJournal(journal Journal) Option {
	return func(q *Queue) { q.journal = journal }
}

// WithLogger sets the logger used during replay.
func WithLogger(l *logrus.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// New constructs a Queue that replays through apply.
func New(apply Apply, opts ...Option) (*Queue, error) {
	q := &Queue{apply: apply, logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(q)
	}
	if q.journal != nil {
		ops, err := q.journal.Load()
		if err != nil {
			return nil, errors.Wrap(errors.KindFailedPrecondition, err, "load offline journal")
		}
		q.ops = ops
		if len(ops) > 0 {
			q.state = Queued
		}
	}
	return q, nil
}

// Enqueue appends op to the tail of the queue.
func (q *Queue) Enqueue(op Operation) error {
	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = time.Now().UTC()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.journal != nil {
		if err := q.journal.Append(op); err != nil {
			return errors.Wrap(errors.KindFailedPrecondition, err, "journal offline write")
		}
	}
	q.ops = append(q.ops, op)
	if q.state == Idle {
		q.state = Queued
	}
	return nil
}

// Len returns the number of pending operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// State returns the current lifecycle state.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Pending returns a copy of the queued operations in replay order.
func (q *Queue) Pending() []Operation {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Operation, len(q.ops))
	copy(out, q.ops)
	return out
}

// Flush replays queued operations strictly in order. On the first
// failure it stops immediately: the failed operation stays at the head
// with an incremented retry counter and the error is returned. A flush
// already in progress is not re-entered.
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	if q.state == Flushing {
		q.mu.Unlock()
		return nil
	}
	if len(q.ops) == 0 {
		q.state = Idle
		q.mu.Unlock()
		return nil
	}
	q.state = Flushing
	q.mu.Unlock()

	for {
		q.mu.Lock()
		if len(q.ops) == 0 {
			q.state = Idle
			q.mu.Unlock()
			return nil
		}
		head := q.ops[0]
		q.mu.Unlock()

		if err := q.apply(ctx, head); err != nil {
			q.mu.Lock()
			// The queue may only have grown at the tail meanwhile; the
			// head is still ours.
			q.ops[0].RetryCount++
			retries := q.ops[0].RetryCount
			q.state = Queued
			q.mu.Unlock()

			if q.journal != nil {
				if jerr := q.journal.BumpHeadRetry(retries); jerr != nil {
					q.logger.Warnf("offline journal retry-count update failed: %v", jerr)
				}
			}
			q.logger.WithFields(logrus.Fields{
				"kind":       head.Kind,
				"collection": head.Collection,
				"id":         head.ID,
				"retryCount": retries,
			}).Warnf("offline replay stopped at head: %v", err)
			return err
		}

		q.mu.Lock()
		q.ops = q.ops[1:]
		q.mu.Unlock()
		if q.journal != nil {
			if jerr := q.journal.RemoveHead(); jerr != nil {
				q.logger.Warnf("offline journal head removal failed: %v", jerr)
			}
		}
	}
}
