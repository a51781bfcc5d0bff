/*
Package store defines the store-primitive interfaces the repository engine
is built on.

The main interface is Store, which exposes the seven primitives the engine
composes:

	type Store interface {
	    PointRead(ctx context.Context, collection, id string) (storagemodels.Document, error)
	    MultiRead(ctx context.Context, collection string, ids []string) ([]storagemodels.Document, error)
	    RangeQuery(ctx context.Context, collection string, params *storagemodels.QueryParams) (*storagemodels.Page, error)
	    Transact(ctx context.Context, fn func(tx Txn) error) error
	    BatchWrite(ctx context.Context, collection string, ops []storagemodels.WriteOp) ([]storagemodels.WriteResult, error)
	    Listen(ctx context.Context, collection string, target storagemodels.ListenTarget, onChange func(storagemodels.ChangeEvent), onError func(error)) (CancelFunc, error)
	    CountMatching(ctx context.Context, collection string, filters []storagemodels.Filter) (int64, error)
	}

Implementations:
  - ddb: DynamoDB implementation with single-table key templates
  - mock: in-memory implementation with fault injection for testing

Authorization is deliberately absent: the engine has no permission
awareness, it consumes whatever the session behind the Store allows.
*/
package store
