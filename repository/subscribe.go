/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package repository

import (
	"context"
	"sync"

	"github.com/suparena/repokit/storagemodels"
	"github.com/suparena/repokit/store"
)

// Event is one realtime change delivered to a subscriber, carrying the
// materialized entity.
type Event[T any] struct {
	Kind   storagemodels.ChangeKind
	Record *Record[T]
}

// Subscribe pushes realtime changes of one entity. The channel closes
// when the subscription is canceled or ctx ends. Events that fail to
// materialize are reported through the listener error path and dropped.
func (r *Repository[T]) Subscribe(ctx context.Context, id string, opts ...storagemodels.SubscribeOption) (<-chan Event[T], store.CancelFunc, error) {
	return r.subscribe(ctx, storagemodels.ListenTarget{ID: id}, opts)
}

// SubscribeQuery pushes realtime changes of every entity matching the
// query.
func (r *Repository[T]) SubscribeQuery(ctx context.Context, q Query, opts ...storagemodels.SubscribeOption) (<-chan Event[T], store.CancelFunc, error) {
	params := &storagemodels.QueryParams{Filters: q.Filters, Order: q.Order, Limit: q.Limit}
	if !q.IncludeDeleted {
		params.Filters = append(visibilityFilter(), q.Filters...)
	}
	target := storagemodels.ListenTarget{Query: params}
	subOpts := opts
	if q.IncludeDeleted {
		subOpts = append([]storagemodels.SubscribeOption{storagemodels.WithDeleted()}, opts...)
	}
	return r.subscribe(ctx, target, subOpts)
}

func (r *Repository[T]) subscribe(ctx context.Context, target storagemodels.ListenTarget, opts []storagemodels.SubscribeOption) (<-chan Event[T], store.CancelFunc, error) {
	options := storagemodels.DefaultSubscribeOptions()
	for _, opt := range opts {
		opt(&options)
	}

	events := make(chan Event[T], options.BufferSize)
	subCtx, stop := context.WithCancel(ctx)

	// Unsubscribing must not close events under a blocked sender, so
	// every sender registers before touching the channel and the close
	// waits for the last one to drain out.
	var (
		senderMu sync.Mutex
		senders  sync.WaitGroup
		stopped  bool
	)

	onChange := func(ev storagemodels.ChangeEvent) {
		senderMu.Lock()
		if stopped {
			senderMu.Unlock()
			return
		}
		senders.Add(1)
		senderMu.Unlock()
		defer senders.Done()

		doc := ev.Document
		kind := ev.Kind
		if doc != nil && kind != storagemodels.ChangeRemoved {
			doc = r.pipeline.Materialize(doc)
			if doc.Deleted() && !options.IncludeDeleted {
				// A soft delete leaves the document in place; under
				// default visibility the subscriber sees a removal.
				kind = storagemodels.ChangeRemoved
			}
		}
		rec, err := materialize[T](doc)
		if err != nil {
			r.log.WithField("id", doc.ID()).Warnf("%s subscription event dropped: %v", r.name, err)
			return
		}
		select {
		case events <- Event[T]{Kind: kind, Record: rec}:
		case <-subCtx.Done():
		}
	}
	onError := func(err error) {
		r.log.Warnf("%s listener error: %v", r.name, err)
	}

	cancel, err := r.st.Listen(ctx, r.name, target, onChange, onError)
	if err != nil {
		stop()
		close(events)
		return nil, nil, err
	}

	var once sync.Once
	var done store.CancelFunc = func() {
		once.Do(func() {
			cancel()
			senderMu.Lock()
			stopped = true
			senderMu.Unlock()
			stop()          // releases senders blocked on a full channel
			senders.Wait()  // after this no sender touches events
			close(events)
		})
	}
	return events, done, nil
}
