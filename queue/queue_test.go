/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package queue

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/suparena/repokit/errors"
	"github.com/suparena/repokit/storagemodels"
)

type applyRecorder struct {
	applied []Operation
	failOn  map[string]error
}

func (r *applyRecorder) apply(ctx context.Context, op Operation) error {
	if err, ok := r.failOn[op.ID]; ok {
		return err
	}
	r.applied = append(r.applied, op)
	return nil
}

func op(kind OpKind, id string) Operation {
	return Operation{
		Kind:       kind,
		Collection: "users",
		ID:         id,
		Document:   storagemodels.Document{"id": id},
	}
}

func TestQueue(t *testing.T) {
	t.Run("FlushAppliesInEnqueueOrder", func(t *testing.T) {
		rec := &applyRecorder{}
		q, err := New(rec.apply)
		require.NoError(t, err)

		require.NoError(t, q.Enqueue(op(OpCreate, "1")))
		require.NoError(t, q.Enqueue(op(OpUpdate, "2")))
		require.NoError(t, q.Enqueue(op(OpDelete, "3")))
		require.Equal(t, Queued, q.State())

		require.NoError(t, q.Flush(context.Background()))
		require.Equal(t, Idle, q.State())
		require.Equal(t, 0, q.Len())

		require.Len(t, rec.applied, 3)
		require.Equal(t, "1", rec.applied[0].ID)
		require.Equal(t, "2", rec.applied[1].ID)
		require.Equal(t, "3", rec.applied[2].ID)
	})

	t.Run("HeadFailureBlocksLaterOps", func(t *testing.T) {
		rec := &applyRecorder{failOn: map[string]error{
			"1": errors.E(errors.KindUnavailable, "still offline"),
		}}
		q, err := New(rec.apply)
		require.NoError(t, err)

		require.NoError(t, q.Enqueue(op(OpCreate, "1")))
		require.NoError(t, q.Enqueue(op(OpUpdate, "2")))
		require.NoError(t, q.Enqueue(op(OpUpdate, "3")))

		err = q.Flush(context.Background())
		require.Error(t, err)
		require.Empty(t, rec.applied, "no later op may apply before the head succeeds")
		require.Equal(t, 3, q.Len())
		require.Equal(t, Queued, q.State())

		pending := q.Pending()
		require.Equal(t, "1", pending[0].ID)
		require.Equal(t, 1, pending[0].RetryCount)
		require.Equal(t, 0, pending[1].RetryCount)

		// Head recovers; the rest replays in order.
		delete(rec.failOn, "1")
		require.NoError(t, q.Flush(context.Background()))
		require.Equal(t, []string{"1", "2", "3"}, appliedIDs(rec))
		require.Equal(t, Idle, q.State())
	})

	t.Run("RetryCountAccumulates", func(t *testing.T) {
		rec := &applyRecorder{failOn: map[string]error{
			"1": errors.E(errors.KindUnavailable, "down"),
		}}
		q, err := New(rec.apply)
		require.NoError(t, err)
		require.NoError(t, q.Enqueue(op(OpCreate, "1")))

		require.Error(t, q.Flush(context.Background()))
		require.Error(t, q.Flush(context.Background()))
		require.Equal(t, 2, q.Pending()[0].RetryCount)
	})

	t.Run("EmptyFlushIsIdle", func(t *testing.T) {
		q, err := New((&applyRecorder{}).apply)
		require.NoError(t, err)
		require.NoError(t, q.Flush(context.Background()))
		require.Equal(t, Idle, q.State())
	})
}

func appliedIDs(rec *applyRecorder) []string {
	ids := make([]string, len(rec.applied))
	for i, o := range rec.applied {
		ids[i] = o.ID
	}
	return ids
}

func TestSQLiteJournal(t *testing.T) {
	t.Run("SurvivesReload", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "journal.db")

		j, err := OpenSQLiteJournal(path)
		require.NoError(t, err)

		rec := &applyRecorder{failOn: map[string]error{"1": errors.E(errors.KindUnavailable, "offline")}}
		q, err := New(rec.apply, WithJournal(j))
		require.NoError(t, err)
		require.NoError(t, q.Enqueue(op(OpCreate, "1")))
		require.NoError(t, q.Enqueue(op(OpUpdate, "2")))
		require.Error(t, q.Flush(context.Background()))
		require.NoError(t, j.Close())

		// New process: journal reloads pending ops in order, including the
		// bumped retry counter.
		j2, err := OpenSQLiteJournal(path)
		require.NoError(t, err)
		defer j2.Close()

		rec2 := &applyRecorder{}
		q2, err := New(rec2.apply, WithJournal(j2))
		require.NoError(t, err)
		require.Equal(t, 2, q2.Len())
		require.Equal(t, Queued, q2.State())

		pending := q2.Pending()
		require.Equal(t, "1", pending[0].ID)
		require.Equal(t, OpCreate, pending[0].Kind)
		require.Equal(t, 1, pending[0].RetryCount)
		require.Equal(t, "1", pending[0].Document.ID())

		require.NoError(t, q2.Flush(context.Background()))
		require.Equal(t, []string{"1", "2"}, appliedIDs(rec2))

		ops, err := j2.Load()
		require.NoError(t, err)
		require.Empty(t, ops, "flushed entries must leave the journal")
	})

	t.Run("InMemory", func(t *testing.T) {
		j, err := OpenSQLiteJournal(":memory:")
		require.NoError(t, err)
		defer j.Close()

		require.NoError(t, j.Append(op(OpCreate, "a")))
		ops, err := j.Load()
		require.NoError(t, err)
		require.Len(t, ops, 1)
		require.NoError(t, j.RemoveHead())
		ops, err = j.Load()
		require.NoError(t, err)
		require.Empty(t, ops)
	})
}
