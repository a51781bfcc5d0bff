/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/suparena/repokit/errors"
	"github.com/suparena/repokit/queue"
	"github.com/suparena/repokit/retry"
	"github.com/suparena/repokit/storagemodels"
	"github.com/suparena/repokit/store"
)

// UpdateOptions configures an update.
type UpdateOptions struct {
	OptimisticLock bool
}

// UpdateOption is a functional option for updates.
type UpdateOption func(*UpdateOptions)

// WithOptimisticLock requires the patch to carry the version or
// updatedAt value the caller observed; a mismatch fails with a conflict.
func WithOptimisticLock() UpdateOption {
	return func(o *UpdateOptions) { o.OptimisticLock = true }
}

func updateOptions(opts []UpdateOption) UpdateOptions {
	var o UpdateOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (r *Repository[T]) now() time.Time {
	return time.Now().UTC()
}

// transact runs fn against the store and classifies raw transaction
// failures so they never surface unwrapped.
func (r *Repository[T]) transact(ctx context.Context, fn func(tx store.Txn) error) error {
	err := r.st.Transact(ctx, fn)
	if err != nil && errors.KindOf(err) == errors.KindUnknown {
		return errors.Wrap(errors.KindTransactionFailed, err, "%s transaction", r.name)
	}
	return err
}

// chooseID resolves the identity for a create/upsert deterministically up
// front, before any store call.
func (r *Repository[T]) chooseID(data T, doc storagemodels.Document) (string, error) {
	switch r.cfg.IDStrategy {
	case IDStrategyClient:
		if id := doc.ID(); id != "" {
			return id, nil
		}
		return "", errors.E(errors.KindValidationFailed,
			"%s: client-supplied id strategy requires an id", r.name)
	case IDStrategyDeterministic:
		id := r.cfg.IDFunc(data)
		if id == "" {
			return "", errors.E(errors.KindValidationFailed,
				"%s: deterministic id function returned empty id", r.name)
		}
		return id, nil
	default:
		if id := doc.ID(); id != "" {
			return id, nil
		}
		return uuid.NewString(), nil
	}
}

// newDocument assembles the stored form of a fresh entity.
func (r *Repository[T]) newDocument(id string, domain storagemodels.Document, now time.Time) storagemodels.Document {
	doc := domain.Clone()
	doc[storagemodels.FieldID] = id
	doc[storagemodels.FieldCreatedAt] = storagemodels.FormatTime(now)
	doc[storagemodels.FieldUpdatedAt] = storagemodels.FormatTime(now)
	doc[storagemodels.FieldDeletedAt] = nil
	doc[storagemodels.FieldVersion] = int64(1)
	doc[storagemodels.FieldSchemaVersion] = r.pipeline.Latest()
	return doc
}

// Create persists a new entity. The id is chosen by the collection's id
// strategy; a live or soft-deleted entity under the same id is a
// conflict.
func (r *Repository[T]) Create(ctx context.Context, data T) (*Record[T], error) {
	domain, err := encodeDocument(data)
	if err != nil {
		return nil, err
	}
	id, err := r.chooseID(data, domain)
	if err != nil {
		return nil, err
	}

	if !r.online.Load() {
		return r.enqueueWrite(queue.Operation{
			Kind: queue.OpCreate, Collection: r.name, ID: id, Document: domain,
		})
	}

	rec, err := retry.Do(ctx, r.cfg.Retry, r.name+".create", func(ctx context.Context) (*Record[T], error) {
		return r.createOnline(ctx, id, domain)
	})
	if err != nil {
		return nil, err
	}
	r.finishWrite(ctx, rec)
	if r.cfg.Hooks.PostCreate != nil {
		if err := r.cfg.Hooks.PostCreate(ctx, rec); err != nil {
			r.log.WithField("id", rec.ID).Warnf("%s post-create hook failed: %v", r.name, err)
		}
	}
	return rec, nil
}

func (r *Repository[T]) createOnline(ctx context.Context, id string, domain storagemodels.Document) (*Record[T], error) {
	doc := r.newDocument(id, domain, r.now())

	if r.cfg.Validator != nil {
		if err := r.cfg.Validator(ctx, doc); err != nil {
			return nil, asValidation(err)
		}
	}
	if r.cfg.Hooks.PreCreate != nil {
		// Legacy contract: a pre-create failure does not stop the create.
		if err := r.cfg.Hooks.PreCreate(ctx, doc); err != nil {
			r.log.WithField("id", id).Warnf("%s pre-create hook failed (ignored): %v", r.name, err)
		}
	}

	err := r.transact(ctx, func(tx store.Txn) error {
		existing, err := tx.Get(r.name, id)
		if err != nil {
			return err
		}
		if existing != nil {
			return errors.E(errors.KindConflict, "%s %q already exists", r.name, id)
		}
		tx.Put(r.name, id, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return materialize[T](doc)
}

// Update applies a partial patch inside one transactional
// read-modify-write. The current entity is re-read inside the
// transaction; with WithOptimisticLock the patch must carry the observed
// version or updatedAt, and any mismatch conflicts instead of
// overwriting.
func (r *Repository[T]) Update(ctx context.Context, id string, patch Patch, opts ...UpdateOption) (*Record[T], error) {
	o := updateOptions(opts)

	if !r.online.Load() {
		return r.enqueueWrite(queue.Operation{
			Kind: queue.OpUpdate, Collection: r.name, ID: id,
			Document: patch, OptimisticLock: o.OptimisticLock,
		})
	}

	rec, err := retry.Do(ctx, r.cfg.Retry, r.name+".update", func(ctx context.Context) (*Record[T], error) {
		return r.updateOnline(ctx, id, patch, o.OptimisticLock)
	})
	if err != nil {
		return nil, err
	}
	r.finishWrite(ctx, rec)
	if r.cfg.Hooks.PostUpdate != nil {
		if err := r.cfg.Hooks.PostUpdate(ctx, rec); err != nil {
			r.log.WithField("id", rec.ID).Warnf("%s post-update hook failed: %v", r.name, err)
		}
	}
	return rec, nil
}

func (r *Repository[T]) updateOnline(ctx context.Context, id string, patch Patch, optimistic bool) (*Record[T], error) {
	var updated storagemodels.Document

	err := r.transact(ctx, func(tx store.Txn) error {
		raw, err := tx.Get(r.name, id)
		if err != nil {
			return err
		}
		if raw == nil || raw.Deleted() {
			return errors.E(errors.KindNotFound, "%s %q not found", r.name, id)
		}
		current := r.pipeline.Apply(raw)

		if err := checkLock(r.name, current, patch, optimistic); err != nil {
			return err
		}

		if r.cfg.Validator != nil {
			if err := r.cfg.Validator(ctx, patch); err != nil {
				return asValidation(err)
			}
		}
		if r.cfg.Hooks.PreUpdate != nil {
			// Unlike pre-create, a pre-update failure aborts the
			// transaction.
			if err := r.cfg.Hooks.PreUpdate(ctx, current, patch); err != nil {
				return err
			}
		}

		updated = mergePatch(current, patch, r.now())
		tx.Put(r.name, id, updated)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return materialize[T](updated)
}

// checkLock enforces the two concurrency guards. With an explicit lock
// the patch must prove what it observed; without one, a volunteered
// updatedAt that disagrees still conflicts (legacy guard), but a missing
// one passes.
func checkLock(name string, current storagemodels.Document, patch Patch, optimistic bool) error {
	_, hasVersion := patch[storagemodels.FieldVersion]
	patchUpdated, hasUpdated := patch.Timestamp(storagemodels.FieldUpdatedAt)
	currentUpdated, _ := current.Timestamp(storagemodels.FieldUpdatedAt)

	if optimistic {
		switch {
		case hasVersion:
			if patch.Int64(storagemodels.FieldVersion) != current.Version() {
				return errors.E(errors.KindConflict,
					"%s %q: expected version %d, stored version is %d",
					name, current.ID(), patch.Int64(storagemodels.FieldVersion), current.Version())
			}
		case hasUpdated:
			if !patchUpdated.Equal(currentUpdated) {
				return errors.E(errors.KindConflict,
					"%s %q: updatedAt does not match stored value", name, current.ID())
			}
		default:
			return errors.E(errors.KindValidationFailed,
				"%s %q: optimistic lock requested but patch carries neither version nor updatedAt",
				name, current.ID())
		}
		return nil
	}

	if hasUpdated && !patchUpdated.Equal(currentUpdated) {
		return errors.E(errors.KindConflict,
			"%s %q: updatedAt does not match stored value", name, current.ID())
	}
	return nil
}

// mergePatch lays the patch's domain fields over the current document,
// bumps the version by exactly 1 and restamps updatedAt. Reserved fields
// in the patch are lock hints and are not merged.
func mergePatch(current storagemodels.Document, patch Patch, now time.Time) storagemodels.Document {
	merged := current.Clone()
	for k, v := range patch {
		switch k {
		case storagemodels.FieldID, storagemodels.FieldVersion, storagemodels.FieldSchemaVersion,
			storagemodels.FieldCreatedAt, storagemodels.FieldUpdatedAt, storagemodels.FieldDeletedAt:
			continue
		}
		merged[k] = v
	}
	merged[storagemodels.FieldVersion] = current.Version() + 1
	merged[storagemodels.FieldUpdatedAt] = storagemodels.FormatTime(now)
	return merged
}

// RunAtomic executes a caller-supplied mutation inside the transactional
// read-modify-write. The mutation always observes the freshly read
// current value; on contention the whole cycle re-runs from scratch.
func (r *Repository[T]) RunAtomic(ctx context.Context, id string, fn func(current *Record[T]) (Patch, error)) (*Record[T], error) {
	rec, err := retry.Do(ctx, r.cfg.Retry, r.name+".runAtomic", func(ctx context.Context) (*Record[T], error) {
		var updated storagemodels.Document
		err := r.transact(ctx, func(tx store.Txn) error {
			raw, err := tx.Get(r.name, id)
			if err != nil {
				return err
			}
			if raw == nil || raw.Deleted() {
				return errors.E(errors.KindNotFound, "%s %q not found", r.name, id)
			}
			current := r.pipeline.Apply(raw)
			rec, err := materialize[T](current)
			if err != nil {
				return err
			}

			patch, err := fn(rec)
			if err != nil {
				return err
			}
			if r.cfg.Hooks.PreUpdate != nil {
				if err := r.cfg.Hooks.PreUpdate(ctx, current, patch); err != nil {
					return err
				}
			}

			updated = mergePatch(current, patch, r.now())
			tx.Put(r.name, id, updated)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return materialize[T](updated)
	})
	if err != nil {
		return nil, err
	}
	r.finishWrite(ctx, rec)
	return rec, nil
}

// Upsert creates or updates in one transaction, choosing the id
// deterministically up front.
func (r *Repository[T]) Upsert(ctx context.Context, data T) (*Record[T], error) {
	domain, err := encodeDocument(data)
	if err != nil {
		return nil, err
	}
	id, err := r.chooseID(data, domain)
	if err != nil {
		return nil, err
	}

	if !r.online.Load() {
		return r.enqueueWrite(queue.Operation{
			Kind: queue.OpUpsert, Collection: r.name, ID: id, Document: domain,
		})
	}

	rec, err := retry.Do(ctx, r.cfg.Retry, r.name+".upsert", func(ctx context.Context) (*Record[T], error) {
		return r.upsertOnline(ctx, id, domain)
	})
	if err != nil {
		return nil, err
	}
	r.finishWrite(ctx, rec)
	return rec, nil
}

func (r *Repository[T]) upsertOnline(ctx context.Context, id string, domain storagemodels.Document) (*Record[T], error) {
	var written storagemodels.Document

	if r.cfg.Validator != nil {
		if err := r.cfg.Validator(ctx, domain); err != nil {
			return nil, asValidation(err)
		}
	}

	err := r.transact(ctx, func(tx store.Txn) error {
		raw, err := tx.Get(r.name, id)
		if err != nil {
			return err
		}
		if raw == nil {
			written = r.newDocument(id, domain, r.now())
			tx.Put(r.name, id, written)
			return nil
		}
		current := r.pipeline.Apply(raw)
		written = mergePatch(current, domain, r.now())
		tx.Put(r.name, id, written)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return materialize[T](written)
}

// Delete removes an entity: a soft delete by default, permanent when the
// collection is configured with HardDelete.
func (r *Repository[T]) Delete(ctx context.Context, id string) error {
	if r.cfg.HardDelete {
		return r.Destroy(ctx, id)
	}
	return r.SoftDelete(ctx, id)
}

// SoftDelete sets the soft-delete marker. The record is retained, stays
// addressable with IncludeDeleted, and every other field is left
// untouched so a later Restore returns it to its exact prior state.
func (r *Repository[T]) SoftDelete(ctx context.Context, id string) error {
	if !r.online.Load() {
		op := queue.Operation{Kind: queue.OpSoftDelete, Collection: r.name, ID: id}
		if _, err := r.enqueueWrite(op); err != nil {
			return err
		}
		// A void write cannot hand back a placeholder; the deferral is
		// reported as a classified, checkable outcome instead.
		return r.deferred(op)
	}

	err := r.cfg.Retry.Run(ctx, r.name+".softDelete", func(ctx context.Context) error {
		return r.softDeleteOnline(ctx, id)
	})
	if err != nil {
		return err
	}
	r.invalidate(id)
	r.afterDelete(ctx, id)
	return nil
}

func (r *Repository[T]) softDeleteOnline(ctx context.Context, id string) error {
	return r.transact(ctx, func(tx store.Txn) error {
		current, err := tx.Get(r.name, id)
		if err != nil {
			return err
		}
		if current == nil || current.Deleted() {
			return errors.E(errors.KindNotFound, "%s %q not found", r.name, id)
		}
		if r.cfg.Hooks.PreDelete != nil {
			if err := r.cfg.Hooks.PreDelete(ctx, current); err != nil {
				return err
			}
		}
		marked := current.Clone()
		now := r.now()
		marked[storagemodels.FieldDeletedAt] = storagemodels.FormatTime(now)
		marked[storagemodels.FieldUpdatedAt] = storagemodels.FormatTime(now)
		tx.Put(r.name, id, marked)
		return nil
	})
}

// Restore clears the soft-delete marker of a soft-deleted entity, leaving
// every other field exactly as it was apart from updatedAt.
func (r *Repository[T]) Restore(ctx context.Context, id string) (*Record[T], error) {
	if !r.online.Load() {
		return r.enqueueWrite(queue.Operation{
			Kind: queue.OpRestore, Collection: r.name, ID: id,
		})
	}

	rec, err := retry.Do(ctx, r.cfg.Retry, r.name+".restore", func(ctx context.Context) (*Record[T], error) {
		return r.restoreOnline(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	r.finishWrite(ctx, rec)
	return rec, nil
}

func (r *Repository[T]) restoreOnline(ctx context.Context, id string) (*Record[T], error) {
	var restored storagemodels.Document

	err := r.transact(ctx, func(tx store.Txn) error {
		current, err := tx.Get(r.name, id)
		if err != nil {
			return err
		}
		if current == nil {
			return errors.E(errors.KindNotFound, "%s %q not found", r.name, id)
		}
		if !current.Deleted() {
			return errors.E(errors.KindFailedPrecondition, "%s %q is not deleted", r.name, id)
		}
		restored = current.Clone()
		restored[storagemodels.FieldDeletedAt] = nil
		restored[storagemodels.FieldUpdatedAt] = storagemodels.FormatTime(r.now())
		tx.Put(r.name, id, restored)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return materialize[T](restored)
}

// Destroy removes the underlying record permanently. This is the only
// path that hard-deletes; Delete on a soft-delete collection never ends
// up here.
func (r *Repository[T]) Destroy(ctx context.Context, id string) error {
	if !r.online.Load() {
		op := queue.Operation{Kind: queue.OpDelete, Collection: r.name, ID: id}
		if _, err := r.enqueueWrite(op); err != nil {
			return err
		}
		return r.deferred(op)
	}

	err := r.cfg.Retry.Run(ctx, r.name+".destroy", func(ctx context.Context) error {
		return r.destroyOnline(ctx, id)
	})
	if err != nil {
		return err
	}
	r.invalidate(id)
	r.afterDelete(ctx, id)
	return nil
}

func (r *Repository[T]) destroyOnline(ctx context.Context, id string) error {
	return r.transact(ctx, func(tx store.Txn) error {
		current, err := tx.Get(r.name, id)
		if err != nil {
			return err
		}
		if current == nil {
			return errors.E(errors.KindNotFound, "%s %q not found", r.name, id)
		}
		if r.cfg.Hooks.PreDelete != nil {
			if err := r.cfg.Hooks.PreDelete(ctx, current); err != nil {
				return err
			}
		}
		tx.Delete(r.name, id)
		return nil
	})
}

// BatchError is one failed item of a multi-item write.
type BatchError struct {
	Index int
	ID    string
	Err   error
}

// BatchResult accounts a multi-item write per item.
type BatchResult[T any] struct {
	Created []*Record[T]
	Failed  []BatchError
}

// CreateMany persists many entities through chunked batched writes with
// per-item failure accounting. When any item fails, the others still
// stand and the returned error is a batch failure.
func (r *Repository[T]) CreateMany(ctx context.Context, items []T) (*BatchResult[T], error) {
	result := &BatchResult[T]{}

	type prepared struct {
		index int
		id    string
		doc   storagemodels.Document
	}
	var ready []prepared

	for i, item := range items {
		domain, err := encodeDocument(item)
		if err != nil {
			result.Failed = append(result.Failed, BatchError{Index: i, Err: err})
			continue
		}
		id, err := r.chooseID(item, domain)
		if err != nil {
			result.Failed = append(result.Failed, BatchError{Index: i, Err: err})
			continue
		}
		doc := r.newDocument(id, domain, r.now())
		if r.cfg.Validator != nil {
			if err := r.cfg.Validator(ctx, doc); err != nil {
				result.Failed = append(result.Failed, BatchError{Index: i, ID: id, Err: asValidation(err)})
				continue
			}
		}
		ready = append(ready, prepared{index: i, id: id, doc: doc})
	}

	if !r.online.Load() {
		for _, p := range ready {
			rec, err := r.enqueueWrite(queue.Operation{
				Kind: queue.OpCreate, Collection: r.name, ID: p.id, Document: p.doc,
			})
			if err != nil {
				result.Failed = append(result.Failed, BatchError{Index: p.index, ID: p.id, Err: err})
				continue
			}
			result.Created = append(result.Created, rec)
		}
		return result, batchOutcome(result)
	}

	var written []string
	for start := 0; start < len(ready); start += r.cfg.WriteChunk {
		end := start + r.cfg.WriteChunk
		if end > len(ready) {
			end = len(ready)
		}
		chunk := ready[start:end]

		ops := make([]storagemodels.WriteOp, len(chunk))
		for i, p := range chunk {
			ops[i] = storagemodels.WriteOp{Kind: storagemodels.WritePut, ID: p.id, Document: p.doc}
		}

		outcomes, err := retry.Do(ctx, r.cfg.Retry, r.name+".createMany", func(ctx context.Context) ([]storagemodels.WriteResult, error) {
			res, err := r.st.BatchWrite(ctx, r.name, ops)
			if err != nil {
				return nil, classify(err, "%s batch write", r.name)
			}
			return res, nil
		})
		if err != nil {
			for _, p := range chunk {
				result.Failed = append(result.Failed, BatchError{Index: p.index, ID: p.id, Err: err})
			}
			continue
		}

		for i, p := range chunk {
			if outcomes[i].Err != nil {
				result.Failed = append(result.Failed, BatchError{Index: p.index, ID: p.id, Err: outcomes[i].Err})
				continue
			}
			rec, err := materialize[T](p.doc)
			if err != nil {
				result.Failed = append(result.Failed, BatchError{Index: p.index, ID: p.id, Err: err})
				continue
			}
			result.Created = append(result.Created, rec)
			written = append(written, p.id)
		}
	}

	r.invalidate(written...)
	if r.cfg.Search != nil {
		for _, rec := range result.Created {
			if err := r.cfg.Search.Index(ctx, r.name, rec.raw); err != nil {
				r.log.WithField("id", rec.ID).Warnf("%s search indexing failed: %v", r.name, err)
			}
		}
	}
	return result, batchOutcome(result)
}

func batchOutcome[T any](result *BatchResult[T]) error {
	if len(result.Failed) == 0 {
		return nil
	}
	return errors.E(errors.KindBatchFailed, "%d of %d items failed",
		len(result.Failed), len(result.Failed)+len(result.Created))
}

// finishWrite runs the unconditional post-write bookkeeping: cache
// invalidation and best-effort search indexing.
func (r *Repository[T]) finishWrite(ctx context.Context, rec *Record[T]) {
	r.invalidate(rec.ID)
	if r.cfg.Search != nil && rec.raw != nil {
		if err := r.cfg.Search.Index(ctx, r.name, rec.raw); err != nil {
			r.log.WithField("id", rec.ID).Warnf("%s search indexing failed: %v", r.name, err)
		}
	}
}

func (r *Repository[T]) afterDelete(ctx context.Context, id string) {
	if r.cfg.Hooks.PostDelete != nil {
		if err := r.cfg.Hooks.PostDelete(ctx, id); err != nil {
			r.log.WithField("id", id).Warnf("%s post-delete hook failed: %v", r.name, err)
		}
	}
	if r.cfg.Search != nil {
		if err := r.cfg.Search.Remove(ctx, r.name, id); err != nil {
			r.log.WithField("id", id).Warnf("%s search removal failed: %v", r.name, err)
		}
	}
}

// asValidation forces unclassified validator errors into the validation
// kind so they surface consistently and are never retried.
func asValidation(err error) error {
	if errors.KindOf(err) != errors.KindUnknown {
		return err
	}
	return errors.Wrap(errors.KindValidationFailed, err, "validation")
}
