/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package repository

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/suparena/repokit/batch"
	"github.com/suparena/repokit/errors"
	"github.com/suparena/repokit/migrate"
	"github.com/suparena/repokit/queue"
	"github.com/suparena/repokit/retry"
	"github.com/suparena/repokit/storagemodels"
	"github.com/suparena/repokit/store"
)

// Repository is the engine facade for one collection: batched reads,
// versioned transactional writes, migration on read, offline buffering,
// cursor pagination and realtime subscriptions, uniform across entity
// types.
type Repository[T any] struct {
	name     string
	st       store.Store
	cfg      CollectionConfig[T]
	loader   *batch.Coalescer[storagemodels.Document]
	pipeline *migrate.Pipeline
	offline  *queue.Queue
	log      *logrus.Logger

	online atomic.Bool

	cacheMu    sync.Mutex
	queryCache map[string]*FindResult[T]
}

// New constructs a Repository over st for the configured collection.
func New[T any](st store.Store, cfg CollectionConfig[T]) (*Repository[T], error) {
	if cfg.Name == "" {
		return nil, errors.E(errors.KindInvalidArgument, "collection name is required")
	}
	if cfg.IDStrategy == IDStrategyDeterministic && cfg.IDFunc == nil {
		return nil, errors.E(errors.KindInvalidArgument,
			"collection %q: deterministic id strategy requires IDFunc", cfg.Name)
	}
	cfg.normalize()

	r := &Repository[T]{
		name:       cfg.Name,
		st:         st,
		cfg:        cfg,
		log:        cfg.Logger,
		queryCache: make(map[string]*FindResult[T]),
	}
	r.online.Store(true)

	r.pipeline = migrate.New(cfg.Migrations,
		migrate.WithLogger(r.log),
		migrate.WithRepair(r.repair),
	)
	r.loader = batch.New(r.fetchBatch, cfg.Batch)

	q, err := queue.New(r.applyQueued,
		queue.WithLogger(r.log),
		queue.WithJournal(cfg.Journal),
	)
	if err != nil {
		return nil, err
	}
	r.offline = q
	return r, nil
}

// Name returns the collection name this repository is bound to.
func (r *Repository[T]) Name() string { return r.name }

// fetchBatch is the coalescer's multi-read. Documents are migrated here
// so the point-read cache holds current-schema documents and read-repair
// fires once per physical fetch.
func (r *Repository[T]) fetchBatch(ctx context.Context, ids []string) ([]batch.Result[storagemodels.Document], error) {
	docs, err := r.st.MultiRead(ctx, r.name, ids)
	if err != nil {
		return nil, err
	}
	if len(docs) != len(ids) {
		// Invariant violation in the store adapter, surfaced as fatal by
		// the coalescer; returning the mismatch lets it classify.
		return nil, errors.E(errors.KindInternal,
			"multi-read returned %d documents for %d ids", len(docs), len(ids))
	}

	out := make([]batch.Result[storagemodels.Document], len(docs))
	for i, doc := range docs {
		if doc == nil {
			out[i] = batch.Result[storagemodels.Document]{Value: nil}
			continue
		}
		out[i] = batch.Result[storagemodels.Document]{Value: r.pipeline.Materialize(doc)}
	}
	return out, nil
}

// repair is the migration pipeline's write-back: persist the migrated
// form only if the stored version has not moved since the read.
func (r *Repository[T]) repair(ctx context.Context, doc storagemodels.Document) error {
	return r.st.Transact(ctx, func(tx store.Txn) error {
		current, err := tx.Get(r.name, doc.ID())
		if err != nil {
			return err
		}
		if current == nil || current.Version() != doc.Version() {
			// Somebody wrote meanwhile; their write already carries or
			// will re-trigger the migration.
			return nil
		}
		tx.Put(r.name, doc.ID(), doc)
		return nil
	})
}

// ReadOptions configures read visibility.
type ReadOptions struct {
	IncludeDeleted bool
}

// ReadOption is a functional option for reads.
type ReadOption func(*ReadOptions)

// IncludeDeleted admits soft-deleted entities into the read.
func IncludeDeleted() ReadOption {
	return func(o *ReadOptions) { o.IncludeDeleted = true }
}

func readOptions(opts []ReadOption) ReadOptions {
	var o ReadOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// GetByID fetches one entity through the batching read path. Concurrent
// gets within one debounce window share a single multi-read.
func (r *Repository[T]) GetByID(ctx context.Context, id string, opts ...ReadOption) (*Record[T], error) {
	o := readOptions(opts)
	return retry.Do(ctx, r.cfg.Retry, r.name+".getById", func(ctx context.Context) (*Record[T], error) {
		doc, err := r.loader.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return nil, errors.E(errors.KindNotFound, "%s %q not found", r.name, id)
		}
		rec, err := materialize[T](doc)
		if err != nil {
			return nil, err
		}
		if rec.Deleted() && !o.IncludeDeleted {
			return nil, errors.E(errors.KindNotFound, "%s %q not found", r.name, id)
		}
		return rec, nil
	})
}

// GetMany fetches several entities, coalesced into batched multi-reads.
// Missing ids are omitted from the result; order otherwise follows the
// request.
func (r *Repository[T]) GetMany(ctx context.Context, ids []string, opts ...ReadOption) ([]*Record[T], error) {
	o := readOptions(opts)
	return retry.Do(ctx, r.cfg.Retry, r.name+".getMany", func(ctx context.Context) ([]*Record[T], error) {
		results := r.loader.LoadMany(ctx, ids)
		out := make([]*Record[T], 0, len(ids))
		for _, res := range results {
			if res.Err != nil {
				return nil, res.Err
			}
			if res.Value == nil {
				continue
			}
			rec, err := materialize[T](res.Value)
			if err != nil {
				return nil, err
			}
			if rec.Deleted() && !o.IncludeDeleted {
				continue
			}
			out = append(out, rec)
		}
		return out, nil
	})
}

// Query is a filtered, ordered, cursor-paginated find request.
type Query struct {
	Filters []storagemodels.Filter
	// Order lists sort directives; cursor pagination requires the
	// terminal sort key to be the identity field. Empty means order by
	// identity.
	Order []storagemodels.Order
	Limit int32
	// Cursor resumes after a previous page's NextCursor.
	Cursor string
	// IncludeDeleted admits soft-deleted entities.
	IncludeDeleted bool
}

// FindResult is one page of query results.
type FindResult[T any] struct {
	Records []*Record[T]
	// NextCursor resumes the query after the last record; empty when the
	// page is final.
	NextCursor string
	HasMore    bool
}

// Find runs a query with a repository-scoped result cache keyed by the
// serialized query. Any write through this repository invalidates the
// cache wholesale.
func (r *Repository[T]) Find(ctx context.Context, q Query) (*FindResult[T], error) {
	key, err := serializeQuery(q)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	if cached, ok := r.queryCache[key]; ok {
		r.cacheMu.Unlock()
		return cached, nil
	}
	r.cacheMu.Unlock()

	order := q.Order
	if len(order) == 0 {
		order = []storagemodels.Order{{Field: storagemodels.FieldID}}
	}

	params := &storagemodels.QueryParams{
		Filters: q.Filters,
		Order:   order,
		Limit:   q.Limit,
	}
	if !q.IncludeDeleted {
		params.Filters = append(visibilityFilter(), q.Filters...)
	}
	if q.Cursor != "" {
		if order[len(order)-1].Field != storagemodels.FieldID {
			return nil, errors.E(errors.KindInvalidArgument,
				"cursor pagination requires the terminal sort key to be %q", storagemodels.FieldID)
		}
		start, err := decodeCursor(q.Cursor, order)
		if err != nil {
			return nil, err
		}
		params.StartAfter = start
	}

	result, err := retry.Do(ctx, r.cfg.Retry, r.name+".find", func(ctx context.Context) (*FindResult[T], error) {
		page, err := r.st.RangeQuery(ctx, r.name, params)
		if err != nil {
			return nil, classify(err, "%s range query", r.name)
		}

		res := &FindResult[T]{HasMore: page.HasMore}
		for _, doc := range page.Documents {
			rec, err := materialize[T](r.pipeline.Materialize(doc))
			if err != nil {
				return nil, err
			}
			res.Records = append(res.Records, rec)
		}
		if len(res.Records) > 0 && page.HasMore {
			last := res.Records[len(res.Records)-1]
			res.NextCursor = encodeCursor(last.raw, order)
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.queryCache[key] = result
	r.cacheMu.Unlock()
	return result, nil
}

// Count counts entities matching the filters, excluding soft-deleted
// unless asked otherwise.
func (r *Repository[T]) Count(ctx context.Context, filters []storagemodels.Filter, opts ...ReadOption) (int64, error) {
	o := readOptions(opts)
	if !o.IncludeDeleted {
		filters = append(visibilityFilter(), filters...)
	}
	return retry.Do(ctx, r.cfg.Retry, r.name+".count", func(ctx context.Context) (int64, error) {
		n, err := r.st.CountMatching(ctx, r.name, filters)
		if err != nil {
			return 0, classify(err, "%s count", r.name)
		}
		return n, nil
	})
}

// classify wraps a raw store error as unavailable. Errors the adapter
// already classified pass through untouched so the retry policy honors
// the adapter's verdict.
func classify(err error, format string, args ...any) error {
	if errors.KindOf(err) == errors.KindUnknown {
		return errors.Wrap(errors.KindUnavailable, err, format, args...)
	}
	return err
}

// visibilityFilter excludes soft-deleted documents: deletedAt absent or
// null.
func visibilityFilter() []storagemodels.Filter {
	return []storagemodels.Filter{{
		Field: storagemodels.FieldDeletedAt,
		Op:    storagemodels.OpEq,
		Value: nil,
	}}
}

func serializeQuery(q Query) (string, error) {
	b, err := json.Marshal(q)
	if err != nil {
		return "", errors.Wrap(errors.KindInvalidArgument, err, "serialize query")
	}
	return string(b), nil
}

// invalidate drops the query cache wholesale and evicts the point-read
// cache entries for the written ids. Every write path ends here.
func (r *Repository[T]) invalidate(ids ...string) {
	r.cacheMu.Lock()
	r.queryCache = make(map[string]*FindResult[T])
	r.cacheMu.Unlock()
	for _, id := range ids {
		r.loader.Clear(id)
	}
}
