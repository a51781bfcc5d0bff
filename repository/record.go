/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package repository

import (
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/suparena/repokit/errors"
	"github.com/suparena/repokit/storagemodels"
)

// Record is a materialized entity: the typed domain value plus the
// engine-managed system fields.
type Record[T any] struct {
	ID            string
	Data          T
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
	Version       int64
	SchemaVersion int64

	// Pending marks an optimistic placeholder for a write buffered in the
	// offline queue; the store may not reflect it yet.
	Pending bool

	// Related holds relation-populated documents keyed by relation field.
	Related map[string]storagemodels.Document

	raw storagemodels.Document
}

// Raw returns the underlying stored document, nil for placeholders.
func (r *Record[T]) Raw() storagemodels.Document {
	return r.raw
}

// Deleted reports whether the soft-delete marker is set.
func (r *Record[T]) Deleted() bool {
	return r.DeletedAt != nil
}

// Patch is a partial update: field name to new value. The reserved
// version and updatedAt keys are optimistic-lock hints, not data.
type Patch = storagemodels.Document

// materialize turns a migrated document into a Record.
func materialize[T any](doc storagemodels.Document) (*Record[T], error) {
	data, err := decodeDocument[T](doc)
	if err != nil {
		return nil, err
	}

	rec := &Record[T]{
		ID:            doc.ID(),
		Data:          data,
		Version:       doc.Version(),
		SchemaVersion: doc.SchemaVersion(),
		raw:           doc,
	}
	if t, ok := doc.Timestamp(storagemodels.FieldCreatedAt); ok {
		rec.CreatedAt = t
	}
	if t, ok := doc.Timestamp(storagemodels.FieldUpdatedAt); ok {
		rec.UpdatedAt = t
	}
	if t, ok := doc.Timestamp(storagemodels.FieldDeletedAt); ok {
		rec.DeletedAt = &t
	}
	return rec, nil
}

// decodeDocument maps a document's domain fields onto T by json tag.
func decodeDocument[T any](doc storagemodels.Document) (T, error) {
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
	})
	if err != nil {
		return out, errors.Wrap(errors.KindInternal, err, "build document decoder")
	}
	if err := dec.Decode(map[string]any(doc)); err != nil {
		return out, errors.Wrap(errors.KindInternal, err, "decode document %q", doc.ID())
	}
	return out, nil
}

// encodeDocument maps T onto a flat document by json tag. System fields
// are stripped so callers cannot smuggle them through domain data.
func encodeDocument[T any](data T) (storagemodels.Document, error) {
	var m map[string]any
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &m,
		TagName: "json",
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, err, "build document encoder")
	}
	if err := dec.Decode(data); err != nil {
		return nil, errors.Wrap(errors.KindInternal, err, "encode entity")
	}

	doc := storagemodels.Document(m)
	for _, reserved := range []string{
		storagemodels.FieldCreatedAt,
		storagemodels.FieldUpdatedAt,
		storagemodels.FieldDeletedAt,
		storagemodels.FieldVersion,
		storagemodels.FieldSchemaVersion,
	} {
		delete(doc, reserved)
	}
	return doc, nil
}
