/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package mock

import (
	"github.com/suparena/repokit/storagemodels"
)

// matchesAll evaluates ANDed filters against a document. A filter with a
// nil value and OpEq matches documents where the field is absent or null
// (this is how default visibility excludes soft-deleted documents).
func matchesAll(doc storagemodels.Document, filters []storagemodels.Filter) bool {
	for _, f := range filters {
		if !matches(doc, f) {
			return false
		}
	}
	return true
}

func matches(doc storagemodels.Document, f storagemodels.Filter) bool {
	val, present := doc[f.Field]
	if !present {
		val = nil
	}

	switch f.Op {
	case storagemodels.OpEq:
		return storagemodels.Compare(val, f.Value) == 0 && (val == nil) == (f.Value == nil)
	case storagemodels.OpNe:
		return !(storagemodels.Compare(val, f.Value) == 0 && (val == nil) == (f.Value == nil))
	case storagemodels.OpGt:
		return val != nil && storagemodels.Compare(val, f.Value) > 0
	case storagemodels.OpGte:
		return val != nil && storagemodels.Compare(val, f.Value) >= 0
	case storagemodels.OpLt:
		return val != nil && storagemodels.Compare(val, f.Value) < 0
	case storagemodels.OpLte:
		return val != nil && storagemodels.Compare(val, f.Value) <= 0
	case storagemodels.OpIn:
		for _, candidate := range toSlice(f.Value) {
			if storagemodels.Compare(val, candidate) == 0 {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func toSlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case []string:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out
	default:
		return []any{v}
	}
}
