/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package storagemodels

import (
	"fmt"
	"sort"
)

// Compare orders two attribute values: nil first, then numbers, then
// everything else by string rendering (RFC3339 timestamps order correctly
// this way).
func Compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}

	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}

	as := fmt.Sprintf("%v", a)
	bs := fmt.Sprintf("%v", b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// TupleCompare orders two documents by the order directives, falling back
// to id so every order is total.
func TupleCompare(a, b Document, order []Order) int {
	for _, o := range order {
		c := Compare(a[o.Field], b[o.Field])
		if c == 0 {
			continue
		}
		if o.Descending {
			return -c
		}
		return c
	}
	return Compare(a.ID(), b.ID())
}

// SortDocuments sorts in place by the order directives.
func SortDocuments(docs []Document, order []Order) {
	sort.SliceStable(docs, func(i, j int) bool {
		return TupleCompare(docs[i], docs[j], order) < 0
	})
}

// StartIndex returns the index of the first document strictly after the
// StartAfter position under the given order.
func StartIndex(docs []Document, order []Order, after Document) int {
	return sort.Search(len(docs), func(i int) bool {
		return TupleCompare(docs[i], after, order) > 0
	})
}
