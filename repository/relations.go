/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package repository

import (
	"context"
	"sync"

	"github.com/suparena/repokit/errors"
	"github.com/suparena/repokit/storagemodels"
)

// RelationDescriptor is the static configuration of one expandable
// foreign-key field.
type RelationDescriptor struct {
	// Field names the relation on the populated record.
	Field string
	// TargetCollection holds the related documents.
	TargetCollection string
	// LocalKey is the attribute on this collection's document whose value
	// drives the lookup.
	LocalKey string
	// ForeignKey, when set, resolves by reverse lookup: the first live
	// document in the target collection whose ForeignKey equals the local
	// value. When empty, the local value is treated as the target's id.
	ForeignKey string
}

// Populate expands the requested relation fields on rec by issuing
// secondary reads, concurrently across fields. Population is best-effort:
// a failed resolution is logged and its field omitted; the primary read
// result is never failed. With no field arguments every configured
// relation is populated.
func (r *Repository[T]) Populate(ctx context.Context, rec *Record[T], fields ...string) *Record[T] {
	if rec == nil || rec.raw == nil || len(r.cfg.Relations) == 0 {
		return rec
	}

	wanted := make(map[string]bool, len(fields))
	for _, f := range fields {
		wanted[f] = true
	}

	type resolution struct {
		field string
		doc   storagemodels.Document
	}
	results := make(chan resolution)
	var wg sync.WaitGroup

	for _, rel := range r.cfg.Relations {
		if len(fields) > 0 && !wanted[rel.Field] {
			continue
		}
		wg.Add(1)
		go func(rel RelationDescriptor) {
			defer wg.Done()
			doc, err := r.resolveRelation(ctx, rec.raw, rel)
			if err != nil {
				r.log.WithFields(map[string]any{
					"id":    rec.ID,
					"field": rel.Field,
				}).Warnf("%s relation population failed (omitted): %v", r.name, err)
				return
			}
			if doc != nil {
				results <- resolution{field: rel.Field, doc: doc}
			}
		}(rel)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		if rec.Related == nil {
			rec.Related = make(map[string]storagemodels.Document)
		}
		rec.Related[res.field] = res.doc
	}
	return rec
}

func (r *Repository[T]) resolveRelation(ctx context.Context, raw storagemodels.Document, rel RelationDescriptor) (storagemodels.Document, error) {
	local, ok := raw[rel.LocalKey]
	if !ok || local == nil {
		return nil, nil
	}

	if rel.ForeignKey == "" {
		id, ok := local.(string)
		if !ok {
			return nil, errors.E(errors.KindInvalidArgument,
				"relation %q: local key %q is not a string id", rel.Field, rel.LocalKey)
		}
		doc, err := r.st.PointRead(ctx, rel.TargetCollection, id)
		if err != nil {
			return nil, err
		}
		if doc == nil || doc.Deleted() {
			return nil, nil
		}
		return doc, nil
	}

	params := &storagemodels.QueryParams{
		Filters: append(visibilityFilter(), storagemodels.Filter{
			Field: rel.ForeignKey, Op: storagemodels.OpEq, Value: local,
		}),
		Order: []storagemodels.Order{{Field: storagemodels.FieldID}},
		Limit: 1,
	}
	page, err := r.st.RangeQuery(ctx, rel.TargetCollection, params)
	if err != nil {
		return nil, err
	}
	if len(page.Documents) == 0 {
		return nil, nil
	}
	return page.Documents[0], nil
}
