/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package repository

import (
	"context"

	"github.com/suparena/repokit/storagemodels"
)

// Hooks are the per-collection extension points. Failure policy is fixed
// per call site and deliberately uneven, matching the behavior consumers
// already depend on:
//
//   - PreCreate failures are swallowed and logged; the create proceeds.
//   - PreUpdate failures abort the enclosing transaction.
//   - PreDelete failures abort the delete.
//   - All Post* hooks are best-effort notifications; failures are
//     swallowed and logged.
type Hooks[T any] struct {
	// PreCreate runs before a create persists. Swallowed on failure.
	PreCreate func(ctx context.Context, doc storagemodels.Document) error

	// PostCreate runs after a successful create. Swallowed on failure.
	PostCreate func(ctx context.Context, rec *Record[T]) error

	// PreUpdate runs inside the update transaction, after the fresh read
	// and before the merge. Its failure aborts the transaction.
	PreUpdate func(ctx context.Context, current storagemodels.Document, patch Patch) error

	// PostUpdate runs after a successful update. Swallowed on failure.
	PostUpdate func(ctx context.Context, rec *Record[T]) error

	// PreDelete runs inside the delete transaction. Its failure aborts
	// the delete.
	PreDelete func(ctx context.Context, current storagemodels.Document) error

	// PostDelete runs after a successful delete. Swallowed on failure.
	PostDelete func(ctx context.Context, id string) error
}

// Validator checks a document before create/update/upsert persists it.
// Unlike hooks, a validator failure always surfaces to the caller as a
// validation error and is never retried.
type Validator func(ctx context.Context, doc storagemodels.Document) error

// SearchSink receives successful writes for external index maintenance.
// Sink failures are swallowed and logged; indexing is best-effort
// enrichment and never fails the write.
type SearchSink interface {
	Index(ctx context.Context, collection string, doc storagemodels.Document) error
	Remove(ctx context.Context, collection, id string) error
}
