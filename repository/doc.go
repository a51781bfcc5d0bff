/*
Package repository implements the engine that gives every collection
uniform read, write, soft-delete, pagination, realtime and offline
semantics on top of the narrow store primitives.

A Repository[T] is parameterized by one collection:

	repo, err := repository.New[User](st, repository.CollectionConfig[User]{
	    Name: "users",
	    Migrations: []migrate.Step{
	        {TargetVersion: 1, Transform: addEmailLowercase},
	    },
	    Relations: []repository.RelationDescriptor{
	        {Field: "team", TargetCollection: "teams", LocalKey: "teamId"},
	    },
	})

Reads go through a coalescing point-read cache: concurrent GetByID calls
within one debounce window share a single multi-read, and every raw
document is migrated to the current schema version on the way out
(scheduling best-effort read-repair). Writes run inside the store's
transaction primitive with monotonic version increments and optional
optimistic locking, wrapped in classified retry. While offline, writes
are buffered in a strictly ordered queue and the caller receives an
optimistic placeholder marked Pending; SetOnline(ctx, true) replays the
queue in order, stopping at the first failure.

Every write through a repository invalidates that repository's query
cache wholesale and evicts the point-read cache entries of the written
ids. Caches are private to one repository instance and must not be
shared.
*/
package repository
