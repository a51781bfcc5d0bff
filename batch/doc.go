/*
Package batch coalesces concurrent point reads into batched multi-key
fetches.

A dispatch fires when either the pending-key count reaches MaxBatch or
the debounce Window elapses since the first pending key, whichever comes
first. The batch function must return exactly one result per key, in key
order; anything else fails every pending key with an internal-invariant
error.

	loader := batch.New(func(ctx context.Context, ids []string) ([]batch.Result[Doc], error) {
	    docs, err := store.MultiRead(ctx, "users", ids)
	    ...
	}, batch.DefaultOptions())

	doc, err := loader.Load(ctx, "u-123")

Resolved values are memoized per key until the write path evicts them
with Clear; a read never evicts.
*/
package batch
