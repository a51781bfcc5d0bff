/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package repository

import (
	"github.com/sirupsen/logrus"

	"github.com/suparena/repokit/batch"
	"github.com/suparena/repokit/migrate"
	"github.com/suparena/repokit/queue"
	"github.com/suparena/repokit/retry"
)

// IDStrategy selects how a create chooses an identity.
type IDStrategy string

const (
	// IDStrategyAuto generates a fresh UUID.
	IDStrategyAuto IDStrategy = "auto"
	// IDStrategyClient requires the caller to supply the id in the data.
	IDStrategyClient IDStrategy = "client-supplied"
	// IDStrategyDeterministic derives the id from the data via IDFunc.
	IDStrategyDeterministic IDStrategy = "deterministic"
)

// CollectionConfig parameterizes one repository over one collection.
type CollectionConfig[T any] struct {
	// Name is the collection this repository is bound to. Required.
	Name string

	// HardDelete makes Delete remove records permanently instead of
	// setting the soft-delete marker.
	HardDelete bool

	// IDStrategy defaults to IDStrategyAuto.
	IDStrategy IDStrategy

	// IDFunc derives deterministic ids. Required with
	// IDStrategyDeterministic.
	IDFunc func(data T) string

	// Migrations are the versioned schema upgrade steps.
	Migrations []migrate.Step

	// Relations describes foreign-key fields Populate can expand.
	Relations []RelationDescriptor

	// Hooks are the per-collection extension points.
	Hooks Hooks[T]

	// Validator checks documents before create/update/upsert.
	Validator Validator

	// Search receives successful writes, best-effort.
	Search SearchSink

	// Retry wraps every repository operation (defaults apply).
	Retry retry.Policy

	// Batch configures the point-read coalescer (defaults apply).
	Batch batch.Options

	// WriteChunk is the createMany chunk size (default 25, the store's
	// batch-write fan-out limit).
	WriteChunk int

	// Journal makes the offline queue durable. Nil keeps it in memory.
	Journal queue.Journal

	// Logger defaults to the standard logrus logger.
	Logger *logrus.Logger
}

func (c *CollectionConfig[T]) normalize() {
	if c.IDStrategy == "" {
		c.IDStrategy = IDStrategyAuto
	}
	if c.WriteChunk <= 0 {
		c.WriteChunk = 25
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
}
