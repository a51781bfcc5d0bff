/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

/*
Package repokit provides a client-side repository engine for Go applications,
offering type-safe access to collections of documents held in a remote,
eventually consistent document store.

The engine layers a uniform repository surface on top of pluggable store
backends:
  - Coalesced, deduplicated point reads with short-lived caching
  - Transactional writes with optimistic concurrency control
  - Lazy, versioned schema migration with background read-repair
  - An offline queue that journals writes and replays them in order
  - Best-effort relation population and change subscriptions

Basic Usage:

	// Create and configure a registry
	reg := repokit.NewRegistry()
	err := reg.Init(repokit.Config{Store: st})

	// Build a typed repository for a collection
	teams, _ := repokit.NewRepository(reg, repository.CollectionConfig[Team]{
		Name: "teams",
	})

	// Read and write records
	rec, _ := teams.Create(ctx, Team{Name: "Rovers"})
	rec, _ = teams.GetByID(ctx, rec.ID)

Repositories for registered collections can be retrieved anywhere in the
process with repokit.GetRepository[Team](reg, "teams").

For more information, see the documentation at https://github.com/suparena/repokit
*/
package repokit
