/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package repokit

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/suparena/repokit/errors"
	"github.com/suparena/repokit/retry"
	"github.com/suparena/repokit/store"
)

// Config is the engine-wide configuration. It is an explicit, owned
// object handed to a Registry exactly once; there is no process-global
// configuration table.
type Config struct {
	// Store supplies the store primitives every repository runs on.
	Store store.Store
	// Logger defaults to the standard logrus logger.
	Logger *logrus.Logger
	// Retry is the default retry policy for collections that do not
	// override it.
	Retry retry.Policy
}

// Registry owns the engine configuration and the per-collection
// repositories registered under it.
type Registry struct {
	mu          sync.RWMutex
	cfg         Config
	initialized bool
	repos       map[string]any
}

// NewRegistry creates an unconfigured Registry.
func NewRegistry() *Registry {
	return &Registry{
		repos: make(map[string]any),
	}
}

// Init installs the configuration. A second initialization attempt is a
// configuration error, never a silent overwrite.
func (r *Registry) Init(cfg Config) error {
	if cfg.Store == nil {
		return errors.E(errors.KindInvalidArgument, "config requires a store")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return errors.E(errors.KindFailedPrecondition, "registry already initialized")
	}
	r.cfg = cfg
	r.initialized = true
	return nil
}

// Config returns the installed configuration.
func (r *Registry) Config() (Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.initialized {
		return Config{}, errors.E(errors.KindFailedPrecondition, "registry not initialized")
	}
	return r.cfg, nil
}

// Register stores the repository under its collection name.
func (r *Registry) Register(name string, repo any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return errors.E(errors.KindFailedPrecondition, "registry not initialized")
	}
	if _, exists := r.repos[name]; exists {
		return errors.E(errors.KindFailedPrecondition, "repository for collection %q already registered", name)
	}
	r.repos[name] = repo
	return nil
}

// Get retrieves the repository registered for a collection name. The
// caller must type-assert the returned value; prefer the typed
// GetRepository helper.
func (r *Registry) Get(name string) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	repo, exists := r.repos[name]
	if !exists {
		return nil, errors.E(errors.KindNotFound, "no repository registered for collection %q", name)
	}
	return repo, nil
}

// Collections lists the registered collection names.
func (r *Registry) Collections() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.repos))
	for name := range r.repos {
		names = append(names, name)
	}
	return names
}
