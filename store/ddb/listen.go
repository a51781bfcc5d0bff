/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"sync"
	"time"

	"github.com/suparena/repokit/errors"
	"github.com/suparena/repokit/store"
	"github.com/suparena/repokit/storagemodels"
)

// Listen implements store.Store. DynamoDB has no push channel the
// client can ride directly, so the listener polls the target on the
// configured interval and diffs snapshots into change events. Documents
// are compared by version and updatedAt, which every engine write
// touches.
func (s *Store) Listen(ctx context.Context, collection string, target storagemodels.ListenTarget, onChange func(storagemodels.ChangeEvent), onError func(error)) (store.CancelFunc, error) {
	if target.ID == "" && target.Query == nil {
		return nil, errors.E(errors.KindInvalidArgument, "listen target needs an id or a query")
	}

	ctx, cancel := context.WithCancel(ctx)
	var once sync.Once

	go s.pollWorker(ctx, collection, target, onChange, onError)

	return func() {
		once.Do(cancel)
	}, nil
}

func (s *Store) pollWorker(ctx context.Context, collection string, target storagemodels.ListenTarget, onChange func(storagemodels.ChangeEvent), onError func(error)) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	known := make(map[string]storagemodels.Document)
	primed := false

	for {
		current, err := s.fetchTarget(ctx, collection, target)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if onError != nil {
				onError(err)
			}
		} else {
			s.diffSnapshots(known, current, primed, onChange)
			known = current
			primed = true
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Store) fetchTarget(ctx context.Context, collection string, target storagemodels.ListenTarget) (map[string]storagemodels.Document, error) {
	current := make(map[string]storagemodels.Document)

	if target.ID != "" {
		doc, err := s.PointRead(ctx, collection, target.ID)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			current[doc.ID()] = doc
		}
		return current, nil
	}

	page, err := s.RangeQuery(ctx, collection, target.Query)
	if err != nil {
		return nil, err
	}
	for _, doc := range page.Documents {
		current[doc.ID()] = doc
	}
	return current, nil
}

// diffSnapshots emits one event per document whose membership or
// content changed between polls. The first snapshot seeds the baseline
// as a burst of added events.
func (s *Store) diffSnapshots(known, current map[string]storagemodels.Document, primed bool, onChange func(storagemodels.ChangeEvent)) {
	now := time.Now().UTC()

	for id, doc := range current {
		prev, existed := known[id]
		switch {
		case !existed:
			onChange(storagemodels.ChangeEvent{Kind: storagemodels.ChangeAdded, Document: doc, At: now})
		case docChanged(prev, doc):
			onChange(storagemodels.ChangeEvent{Kind: storagemodels.ChangeModified, Document: doc, At: now})
		}
	}

	if !primed {
		return
	}
	for id, prev := range known {
		if _, still := current[id]; !still {
			onChange(storagemodels.ChangeEvent{Kind: storagemodels.ChangeRemoved, Document: prev, At: now})
		}
	}
}

func docChanged(a, b storagemodels.Document) bool {
	if a.Version() != b.Version() {
		return true
	}
	return storagemodels.Compare(a["updatedAt"], b["updatedAt"]) != 0 ||
		storagemodels.Compare(a["deletedAt"], b["deletedAt"]) != 0
}
