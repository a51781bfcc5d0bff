/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package storagemodels

import (
	"time"

	"github.com/go-openapi/strfmt"
)

// Reserved document attributes managed by the repository engine. Domain
// fields live alongside them in the same flat document.
const (
	FieldID            = "id"
	FieldCreatedAt     = "createdAt"
	FieldUpdatedAt     = "updatedAt"
	FieldDeletedAt     = "deletedAt"
	FieldVersion       = "version"
	FieldSchemaVersion = "schemaVersion"
)

// Document is the raw stored form of one entity: a flat attribute map as
// the store returns it, before migration and materialization.
type Document map[string]any

// ID returns the document's identity attribute, or "" when absent.
func (d Document) ID() string {
	s, _ := d[FieldID].(string)
	return s
}

// Version returns the optimistic-concurrency counter, 0 when absent.
func (d Document) Version() int64 {
	return d.Int64(FieldVersion)
}

// SchemaVersion returns the migration tag, 0 when absent.
func (d Document) SchemaVersion() int64 {
	return d.Int64(FieldSchemaVersion)
}

// Int64 reads a numeric attribute, tolerating the integer widths that
// different store codecs produce.
func (d Document) Int64(field string) int64 {
	switch v := d[field].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// Timestamp parses an RFC3339 timestamp attribute. The second return is
// false when the attribute is absent, null, or unparseable.
func (d Document) Timestamp(field string) (time.Time, bool) {
	switch v := d[field].(type) {
	case time.Time:
		return v, true
	case strfmt.DateTime:
		return time.Time(v), true
	case string:
		dt, err := strfmt.ParseDateTime(v)
		if err != nil {
			return time.Time{}, false
		}
		return time.Time(dt), true
	default:
		return time.Time{}, false
	}
}

// Deleted reports whether the soft-delete marker is set.
func (d Document) Deleted() bool {
	if v, ok := d[FieldDeletedAt]; ok && v != nil {
		if s, isStr := v.(string); isStr && s == "" {
			return false
		}
		return true
	}
	return false
}

// Clone returns a shallow copy. Nested values are shared; the engine
// treats documents as immutable once read.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// FormatTime renders a timestamp in the canonical stored form.
func FormatTime(t time.Time) string {
	return strfmt.DateTime(t.UTC()).String()
}

// FilterOp enumerates the comparison operators a range query supports.
type FilterOp string

const (
	OpEq  FilterOp = "=="
	OpNe  FilterOp = "!="
	OpGt  FilterOp = ">"
	OpGte FilterOp = ">="
	OpLt  FilterOp = "<"
	OpLte FilterOp = "<="
	OpIn  FilterOp = "in"
)

// Filter is one field comparison applied by a range query.
type Filter struct {
	Field string
	Op    FilterOp
	Value any
}

// Order is one sort directive applied by a range query.
type Order struct {
	Field      string
	Descending bool
}

// QueryParams defines parameters for a range query against one collection.
type QueryParams struct {
	// Filters are ANDed together.
	Filters []Filter
	// Order lists sort directives in priority order.
	Order []Order
	// Limit caps the page size; 0 means store default.
	Limit int32
	// StartAfter holds the exclusive start position for pagination: the
	// order-field values plus identity of the last document on the
	// previous page.
	StartAfter Document
}

// Page is one page of range-query results.
type Page struct {
	Documents []Document
	// HasMore reports whether the store had further matches beyond Limit.
	HasMore bool
}

// WriteKind enumerates the primitive write operations a batch may carry.
type WriteKind string

const (
	WritePut    WriteKind = "put"
	WriteDelete WriteKind = "delete"
)

// WriteOp is one element of a batched write.
type WriteOp struct {
	Kind     WriteKind
	ID       string
	Document Document // nil for WriteDelete
}

// WriteResult reports the per-item outcome of a batched write.
type WriteResult struct {
	ID  string
	Err error
}
