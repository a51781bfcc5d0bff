/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

/*
Package processor provides code generation for RepoKit collection
registrations.

The processor reads a YAML collection descriptor and generates the Go
code that builds and registers a repository per collection:

	package: app
	collections:
	  teams:
	    type: models.Team
	    idStrategy: auto
	    relations:
	      - field: clubId
	        targetCollection: clubs
	  matches:
	    type: models.Match
	    hardDelete: true

Generated Code:

	func RegisterCollections(reg *repokit.Registry) error {
	    if _, err := repokit.NewRepository(reg, repository.CollectionConfig[models.Match]{
	        Name:       "matches",
	        IDStrategy: repository.IDStrategyAuto,
	        HardDelete: true,
	    }); err != nil {
	        return err
	    }
	    ...
	}

This automation reduces boilerplate and keeps collection settings in one
reviewable file.

Deterministic id strategies need an IDFunc and are therefore rejected by
the processor; register those collections in code.
*/
package processor
