/*
Package storagemodels defines the data structures used throughout repokit.

Key Types:

Document:
The raw stored form of one entity, a flat attribute map carrying the
reserved engine fields alongside domain fields:

	doc := storagemodels.Document{
	    "id":            "u-123",
	    "email":         "ada@example.com",
	    "createdAt":     storagemodels.FormatTime(time.Now()),
	    "updatedAt":     storagemodels.FormatTime(time.Now()),
	    "deletedAt":     nil,
	    "version":       int64(1),
	    "schemaVersion": int64(3),
	}

QueryParams:
Parameters for a filtered, ordered, paginated range query:

	params := &QueryParams{
	    Filters: []Filter{{Field: "teamId", Op: OpEq, Value: "t-9"}},
	    Order:   []Order{{Field: "createdAt", Descending: true}, {Field: "id"}},
	    Limit:   50,
	}

ChangeEvent:
A realtime change pushed to a subscriber, configured with functional
options:

	opts := []SubscribeOption{
	    WithBufferSize(64),
	    WithDeleted(),
	}

These types provide a consistent interface across different storage
implementations.
*/
package storagemodels
