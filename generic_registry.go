/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package repokit

import (
	"github.com/suparena/repokit/errors"
	"github.com/suparena/repokit/repository"
	"github.com/suparena/repokit/retry"
)

// NewRepository builds a repository for a collection using the
// registry's store, logger and default retry policy, and registers it
// under the collection name. Per-collection settings in cfg override
// the registry defaults.
func NewRepository[T any](reg *Registry, cfg repository.CollectionConfig[T]) (*repository.Repository[T], error) {
	base, err := reg.Config()
	if err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = base.Logger
	}
	if (cfg.Retry == retry.Policy{}) {
		cfg.Retry = base.Retry
	}

	repo, err := repository.New(base.Store, cfg)
	if err != nil {
		return nil, err
	}
	if err := reg.Register(repo.Name(), repo); err != nil {
		return nil, err
	}
	return repo, nil
}

// GetRepository retrieves a registered repository and asserts its
// entity type.
func GetRepository[T any](reg *Registry, name string) (*repository.Repository[T], error) {
	raw, err := reg.Get(name)
	if err != nil {
		return nil, err
	}
	repo, ok := raw.(*repository.Repository[T])
	if !ok {
		return nil, errors.E(errors.KindInvalidArgument,
			"repository for collection %q holds a different entity type", name)
	}
	return repo, nil
}
