/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package migrate

import (
	"context"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/suparena/repokit/storagemodels"
)

// Transform upgrades a document by one schema step. It must not mutate
// its input; it returns the upgraded form.
type Transform func(doc storagemodels.Document) (storagemodels.Document, error)

// Step is one versioned migration. A document tagged below TargetVersion
// has the transform applied and its tag raised to TargetVersion.
type Step struct {
	TargetVersion int64
	Transform     Transform
}

// Repair persists a migrated document back to the store. It is invoked
// asynchronously and best-effort; its error is logged and dropped.
type Repair func(ctx context.Context, doc storagemodels.Document) error

// Pipeline upgrades stored documents to the current schema version on
// read and schedules read-repair of the upgraded form.
type Pipeline struct {
	steps  []Step
	repair Repair
	logger *logrus.Logger

	wg sync.WaitGroup
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRepair enables read-repair through fn.
func WithRepair(fn Repair) Option {
	return func(p *Pipeline) { p.repair = fn }
}

// WithLogger sets the logger used for swallowed failures.
func WithLogger(l *logrus.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New constructs a Pipeline. Steps are applied in ascending target-version
// order regardless of registration order.
func New(steps []Step, opts ...Option) *Pipeline {
	sorted := make([]Step, len(steps))
	copy(sorted, steps)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].TargetVersion < sorted[j].TargetVersion
	})

	p := &Pipeline{steps: sorted, logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Latest returns the highest target version, or 0 with no steps.
func (p *Pipeline) Latest() int64 {
	if len(p.steps) == 0 {
		return 0
	}
	return p.steps[len(p.steps)-1].TargetVersion
}

// Materialize applies every step whose target version exceeds the
// document's schema tag, strictly ascending, raising the tag after each
// step. A failing step aborts the chain and the document is returned in
// its last successfully-migrated state; reads never fail because a
// migration failed. When at least one step applied, a best-effort
// write-back of the migrated form is scheduled in the background.
func (p *Pipeline) Materialize(doc storagemodels.Document) storagemodels.Document {
	out, applied := p.apply(doc)
	if applied > 0 && p.repair != nil {
		p.scheduleRepair(out.Clone())
	}
	return out
}

// Apply migrates like Materialize but never schedules read-repair. Used
// for reads inside a transaction, where the transaction itself persists
// whatever the caller decides.
func (p *Pipeline) Apply(doc storagemodels.Document) storagemodels.Document {
	out, _ := p.apply(doc)
	return out
}

func (p *Pipeline) apply(doc storagemodels.Document) (storagemodels.Document, int) {
	if doc == nil {
		return nil, 0
	}

	current := doc
	tag := doc.SchemaVersion()
	applied := 0

	for _, step := range p.steps {
		if step.TargetVersion <= tag {
			continue
		}
		next, err := step.Transform(current.Clone())
		if err != nil {
			p.logger.WithFields(logrus.Fields{
				"id":            current.ID(),
				"schemaVersion": tag,
				"targetVersion": step.TargetVersion,
			}).Warnf("migration step failed, returning last good state: %v", err)
			break
		}
		next[storagemodels.FieldSchemaVersion] = step.TargetVersion
		current = next
		tag = step.TargetVersion
		applied++
	}

	return current, applied
}

// scheduleRepair runs the write-back detached from the read that
// triggered it. A failure is logged and never retried beyond the attempt
// already in flight.
func (p *Pipeline) scheduleRepair(doc storagemodels.Document) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.repair(context.Background(), doc); err != nil {
			p.logger.WithFields(logrus.Fields{
				"id":            doc.ID(),
				"schemaVersion": doc.SchemaVersion(),
			}).Warnf("read-repair write-back failed: %v", err)
		}
	}()
}

// Wait blocks until all scheduled read-repairs have finished. Used by
// tests and graceful shutdown.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}
