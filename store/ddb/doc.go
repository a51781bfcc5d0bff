/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

/*
Package ddb provides the DynamoDB implementation of the store.Store
interface.

The store uses a single-table layout: each collection occupies one
partition and the document id rides the sort key. The layout is
configurable through a KeyMap of macro templates:

	keys := ddb.KeyMap{
	    "PK": "COL#{collection}",
	    "SK": "DOC#{id}",
	}

Key behaviors:
  - Point and batch reads re-align results to request order
  - Filters are pushed down as DynamoDB filter expressions
  - Transactions condition every write on the document version observed
    at read time, so lost updates surface as aborted-kind errors
  - Change listeners poll the target and diff snapshots into events

Construction from environment configuration:

	cfg, err := ddb.FromEnv()
	st, err := ddb.New(ctx, cfg)
*/
package ddb
