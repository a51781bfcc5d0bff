/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package repository

import (
	"context"

	"github.com/suparena/repokit/errors"
	"github.com/suparena/repokit/queue"
	"github.com/suparena/repokit/retry"
)

// SetOnline flips the connectivity state. Going online flushes the
// offline queue in strict enqueue order; the flush error (if any) is
// returned while the failed operation stays at the head for the next
// flush.
func (r *Repository[T]) SetOnline(ctx context.Context, online bool) error {
	was := r.online.Swap(online)
	if online && !was {
		return r.offline.Flush(ctx)
	}
	return nil
}

// Online reports the current connectivity state.
func (r *Repository[T]) Online() bool {
	return r.online.Load()
}

// PendingWrites returns the buffered offline operations in replay order.
func (r *Repository[T]) PendingWrites() []queue.Operation {
	return r.offline.Pending()
}

// enqueueWrite buffers the operation and synthesizes the optimistic
// placeholder the caller observes immediately. The placeholder is marked
// Pending: the store reflects the write no earlier than the operation's
// position in the queue.
func (r *Repository[T]) enqueueWrite(op queue.Operation) (*Record[T], error) {
	if err := r.offline.Enqueue(op); err != nil {
		return nil, err
	}
	r.invalidate(op.ID)
	return r.placeholder(op)
}

func (r *Repository[T]) placeholder(op queue.Operation) (*Record[T], error) {
	now := r.now()

	switch op.Kind {
	case queue.OpCreate, queue.OpUpsert:
		data, err := decodeDocument[T](op.Document)
		if err != nil {
			return nil, err
		}
		return &Record[T]{
			ID:        op.ID,
			Data:      data,
			CreatedAt: now,
			UpdatedAt: now,
			Version:   1,
			Pending:   true,
		}, nil
	case queue.OpUpdate:
		data, err := decodeDocument[T](op.Document)
		if err != nil {
			return nil, err
		}
		return &Record[T]{ID: op.ID, Data: data, UpdatedAt: now, Pending: true}, nil
	case queue.OpSoftDelete:
		return &Record[T]{ID: op.ID, UpdatedAt: now, DeletedAt: &now, Pending: true}, nil
	case queue.OpRestore:
		return &Record[T]{ID: op.ID, UpdatedAt: now, Pending: true}, nil
	default:
		return &Record[T]{ID: op.ID, Pending: true}, nil
	}
}

// deferred is the classified outcome of a void write issued offline.
func (r *Repository[T]) deferred(op queue.Operation) error {
	return errors.E(errors.KindOfflineQueued,
		"%s %s %q deferred to the offline queue", r.name, op.Kind, op.ID)
}

// applyQueued replays one buffered operation against the live store. The
// queue calls this strictly in enqueue order and stops on the first
// failure.
func (r *Repository[T]) applyQueued(ctx context.Context, op queue.Operation) error {
	var err error
	switch op.Kind {
	case queue.OpCreate:
		_, err = retry.Do(ctx, r.cfg.Retry, r.name+".replay.create", func(ctx context.Context) (*Record[T], error) {
			return r.createOnline(ctx, op.ID, op.Document)
		})
	case queue.OpUpdate:
		_, err = retry.Do(ctx, r.cfg.Retry, r.name+".replay.update", func(ctx context.Context) (*Record[T], error) {
			return r.updateOnline(ctx, op.ID, op.Document, op.OptimisticLock)
		})
	case queue.OpUpsert:
		_, err = retry.Do(ctx, r.cfg.Retry, r.name+".replay.upsert", func(ctx context.Context) (*Record[T], error) {
			return r.upsertOnline(ctx, op.ID, op.Document)
		})
	case queue.OpSoftDelete:
		err = r.cfg.Retry.Run(ctx, r.name+".replay.softDelete", func(ctx context.Context) error {
			return r.softDeleteOnline(ctx, op.ID)
		})
	case queue.OpRestore:
		_, err = retry.Do(ctx, r.cfg.Retry, r.name+".replay.restore", func(ctx context.Context) (*Record[T], error) {
			return r.restoreOnline(ctx, op.ID)
		})
	case queue.OpDelete:
		err = r.cfg.Retry.Run(ctx, r.name+".replay.destroy", func(ctx context.Context) error {
			return r.destroyOnline(ctx, op.ID)
		})
	default:
		err = errors.E(errors.KindInternal, "unknown queued operation kind %q", op.Kind)
	}
	if err != nil {
		return err
	}
	r.invalidate(op.ID)
	return nil
}
