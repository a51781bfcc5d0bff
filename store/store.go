/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package store

import (
	"context"

	"github.com/suparena/repokit/storagemodels"
)

// CancelFunc stops a listener registered with Listen.
type CancelFunc func()

// Store is the set of primitives the repository engine consumes from the
// underlying document store. Implementations wrap a concrete backend
// (DynamoDB in production, an in-memory store in tests); the engine never
// sees backend types or backend errors unwrapped.
type Store interface {
	// PointRead fetches one document by id. A missing document is
	// (nil, nil), not an error.
	PointRead(ctx context.Context, collection, id string) (storagemodels.Document, error)

	// MultiRead fetches several documents in one call. The result holds
	// exactly one entry per requested id, in request order, with nil for
	// ids that do not exist.
	MultiRead(ctx context.Context, collection string, ids []string) ([]storagemodels.Document, error)

	// RangeQuery runs a filtered, ordered, limited query.
	RangeQuery(ctx context.Context, collection string, params *storagemodels.QueryParams) (*storagemodels.Page, error)

	// Transact runs fn inside one transactional read-modify-write. Reads
	// through the Txn observe committed state; writes are applied
	// atomically on return. Contention with a concurrent writer surfaces
	// as an aborted-kind error.
	Transact(ctx context.Context, fn func(tx Txn) error) error

	// BatchWrite applies ops with per-item outcome accounting. The
	// returned slice holds exactly one result per op, in op order.
	BatchWrite(ctx context.Context, collection string, ops []storagemodels.WriteOp) ([]storagemodels.WriteResult, error)

	// Listen registers a realtime change listener for a document or query
	// target. Events are delivered to onChange, listener failures to
	// onError, until the returned CancelFunc runs or ctx is done.
	Listen(ctx context.Context, collection string, target storagemodels.ListenTarget, onChange func(storagemodels.ChangeEvent), onError func(error)) (CancelFunc, error)

	// CountMatching counts documents matching the filters.
	CountMatching(ctx context.Context, collection string, filters []storagemodels.Filter) (int64, error)
}

// Txn is the handle passed to a Transact callback.
type Txn interface {
	// Get reads the current committed document, or (nil, nil) when absent.
	Get(collection, id string) (storagemodels.Document, error)

	// Put stages a full-document write.
	Put(collection, id string, doc storagemodels.Document)

	// Delete stages a hard delete.
	Delete(collection, id string)
}
