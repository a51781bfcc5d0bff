/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package repository

import (
	"encoding/base64"
	"encoding/json"

	"github.com/suparena/repokit/errors"
	"github.com/suparena/repokit/storagemodels"
)

// encodeCursor captures the order-field values of the last document on a
// page as an opaque resumption token.
func encodeCursor(doc storagemodels.Document, order []storagemodels.Order) string {
	position := make(map[string]any, len(order))
	for _, o := range order {
		position[o.Field] = doc[o.Field]
	}
	b, err := json.Marshal(position)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// decodeCursor restores the exclusive start position for the given order.
// The cursor must carry a value for every order field.
func decodeCursor(cursor string, order []storagemodels.Order) (storagemodels.Document, error) {
	b, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, errors.Wrap(errors.KindInvalidArgument, err, "decode cursor")
	}
	var position map[string]any
	if err := json.Unmarshal(b, &position); err != nil {
		return nil, errors.Wrap(errors.KindInvalidArgument, err, "decode cursor")
	}
	for _, o := range order {
		if _, ok := position[o.Field]; !ok {
			return nil, errors.E(errors.KindInvalidArgument,
				"cursor does not match query order: missing %q", o.Field)
		}
	}
	return storagemodels.Document(position), nil
}
