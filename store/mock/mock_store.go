/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package mock provides an in-memory implementation of the store
// primitives for testing.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/suparena/repokit/errors"
	"github.com/suparena/repokit/storagemodels"
	"github.com/suparena/repokit/store"
)

// Store is an in-memory store.Store with builder-style fault injection.
// Transactions detect write-write contention by version, and listeners
// receive change events synchronously on commit.
type Store struct {
	mu   sync.Mutex
	data map[string]map[string]storagemodels.Document

	pointReadErr  error
	multiReadErr  error
	queryErr      error
	transactErr   error
	batchWriteErr error
	countErr      error
	listenErr     error
	shortfall     bool
	abortNext     int
	failPutIDs    map[string]error

	multiReadCalls int
	listeners      []*listener
	nextListener   int
}

type listener struct {
	id         int
	collection string
	target     storagemodels.ListenTarget
	onChange   func(storagemodels.ChangeEvent)
	onError    func(error)

	mu   sync.Mutex
	seen map[string]bool // ids currently inside a query target's result set
}

// New creates an empty mock Store.
func New() *Store {
	return &Store{
		data:       make(map[string]map[string]storagemodels.Document),
		failPutIDs: make(map[string]error),
	}
}

// Seed inserts documents directly, bypassing transactions and listeners.
func (s *Store) Seed(collection string, docs ...storagemodels.Document) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		s.collectionLocked(collection)[d.ID()] = d.Clone()
	}
	return s
}

// WithPointReadError makes PointRead return err.
func (s *Store) WithPointReadError(err error) *Store { s.pointReadErr = err; return s }

// WithMultiReadError makes MultiRead return err.
func (s *Store) WithMultiReadError(err error) *Store { s.multiReadErr = err; return s }

// WithMultiReadShortfall makes MultiRead drop the last result, violating
// the one-result-per-key contract.
func (s *Store) WithMultiReadShortfall() *Store { s.shortfall = true; return s }

// WithQueryError makes RangeQuery return err.
func (s *Store) WithQueryError(err error) *Store { s.queryErr = err; return s }

// WithTransactError makes Transact fail before running its callback.
func (s *Store) WithTransactError(err error) *Store { s.transactErr = err; return s }

// WithBatchWriteError makes BatchWrite fail wholesale.
func (s *Store) WithBatchWriteError(err error) *Store { s.batchWriteErr = err; return s }

// WithCountError makes CountMatching return err.
func (s *Store) WithCountError(err error) *Store { s.countErr = err; return s }

// WithListenError makes Listen fail at registration.
func (s *Store) WithListenError(err error) *Store { s.listenErr = err; return s }

// WithAbortNext makes the next n transaction commits abort with a
// contention signal.
func (s *Store) WithAbortNext(n int) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abortNext = n
	return s
}

// WithPutErrorFor fails batched puts of the given id.
func (s *Store) WithPutErrorFor(id string, err error) *Store {
	s.failPutIDs[id] = err
	return s
}

// MultiReadCalls reports how many MultiRead calls were issued.
func (s *Store) MultiReadCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.multiReadCalls
}

// Get returns a stored document (or nil) without store semantics, for
// test assertions.
func (s *Store) Get(collection, id string) storagemodels.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.collectionLocked(collection)[id]; ok {
		return d.Clone()
	}
	return nil
}

func (s *Store) collectionLocked(name string) map[string]storagemodels.Document {
	c, ok := s.data[name]
	if !ok {
		c = make(map[string]storagemodels.Document)
		s.data[name] = c
	}
	return c
}

// PointRead implements store.Store.
func (s *Store) PointRead(ctx context.Context, collection, id string) (storagemodels.Document, error) {
	if s.pointReadErr != nil {
		return nil, s.pointReadErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.collectionLocked(collection)[id]; ok {
		return d.Clone(), nil
	}
	return nil, nil
}

// MultiRead implements store.Store.
func (s *Store) MultiRead(ctx context.Context, collection string, ids []string) ([]storagemodels.Document, error) {
	s.mu.Lock()
	s.multiReadCalls++
	s.mu.Unlock()
	if s.multiReadErr != nil {
		return nil, s.multiReadErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storagemodels.Document, 0, len(ids))
	for _, id := range ids {
		if d, ok := s.collectionLocked(collection)[id]; ok {
			out = append(out, d.Clone())
		} else {
			out = append(out, nil)
		}
	}
	if s.shortfall && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

// RangeQuery implements store.Store.
func (s *Store) RangeQuery(ctx context.Context, collection string, params *storagemodels.QueryParams) (*storagemodels.Page, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}

	s.mu.Lock()
	var matched []storagemodels.Document
	for _, d := range s.collectionLocked(collection) {
		if matchesAll(d, params.Filters) {
			matched = append(matched, d.Clone())
		}
	}
	s.mu.Unlock()

	storagemodels.SortDocuments(matched, params.Order)

	if params.StartAfter != nil {
		idx := storagemodels.StartIndex(matched, params.Order, params.StartAfter)
		if idx < len(matched) {
			matched = matched[idx:]
		} else {
			matched = nil
		}
	}

	hasMore := false
	if params.Limit > 0 && int32(len(matched)) > params.Limit {
		matched = matched[:params.Limit]
		hasMore = true
	}
	return &storagemodels.Page{Documents: matched, HasMore: hasMore}, nil
}

// CountMatching implements store.Store.
func (s *Store) CountMatching(ctx context.Context, collection string, filters []storagemodels.Filter) (int64, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, d := range s.collectionLocked(collection) {
		if matchesAll(d, filters) {
			n++
		}
	}
	return n, nil
}

// readState is what a transactional read observed for one document. The
// write stamp is tracked next to the version because soft deletes and
// restores rewrite a document without bumping its version.
type readState struct {
	exists    bool
	version   int64
	updatedAt any
}

type txn struct {
	s       *Store
	reads   map[string]readState // keyed "collection/id"
	puts    map[string]storagemodels.Document
	deletes map[string]bool
	order   []string
}

func txnKey(collection, id string) string { return collection + "/" + id }

func (t *txn) Get(collection, id string) (storagemodels.Document, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	key := txnKey(collection, id)
	if d, ok := t.s.collectionLocked(collection)[id]; ok {
		t.reads[key] = readState{
			exists:    true,
			version:   d.Version(),
			updatedAt: d[storagemodels.FieldUpdatedAt],
		}
		return d.Clone(), nil
	}
	t.reads[key] = readState{}
	return nil, nil
}

func (t *txn) Put(collection, id string, doc storagemodels.Document) {
	key := txnKey(collection, id)
	t.puts[key] = doc.Clone()
	delete(t.deletes, key)
	t.order = append(t.order, key)
}

func (t *txn) Delete(collection, id string) {
	key := txnKey(collection, id)
	t.deletes[key] = true
	delete(t.puts, key)
	t.order = append(t.order, key)
}

// Transact implements store.Store with version-based contention detection:
// if any document read inside the transaction changed version before
// commit, the commit aborts.
func (s *Store) Transact(ctx context.Context, fn func(tx store.Txn) error) error {
	if s.transactErr != nil {
		return s.transactErr
	}

	t := &txn{
		s:       s,
		reads:   make(map[string]readState),
		puts:    make(map[string]storagemodels.Document),
		deletes: make(map[string]bool),
	}
	if err := fn(t); err != nil {
		return err
	}

	s.mu.Lock()
	if s.abortNext > 0 {
		s.abortNext--
		s.mu.Unlock()
		return errors.E(errors.KindAborted, "transaction aborted: concurrent writer")
	}

	for key, read := range t.reads {
		collection, id := splitKey(key)
		cur, exists := s.collectionLocked(collection)[id]
		switch {
		case !exists && read.exists:
			s.mu.Unlock()
			return errors.E(errors.KindAborted, "transaction aborted: %s deleted concurrently", key)
		case exists && !read.exists:
			s.mu.Unlock()
			return errors.E(errors.KindAborted, "transaction aborted: %s created concurrently", key)
		case exists && (cur.Version() != read.version ||
			storagemodels.Compare(cur[storagemodels.FieldUpdatedAt], read.updatedAt) != 0):
			s.mu.Unlock()
			return errors.E(errors.KindAborted, "transaction aborted: %s modified concurrently", key)
		}
	}

	// Apply staged writes in the order they were issued so listeners see
	// changes the way the transaction produced them.
	var events []pendingEvent
	applied := make(map[string]bool, len(t.order))
	for _, key := range t.order {
		if applied[key] {
			continue
		}
		applied[key] = true
		collection, id := splitKey(key)
		if doc, ok := t.puts[key]; ok {
			_, existed := s.collectionLocked(collection)[id]
			s.collectionLocked(collection)[id] = doc
			kind := storagemodels.ChangeAdded
			if existed {
				kind = storagemodels.ChangeModified
			}
			events = append(events, pendingEvent{collection, storagemodels.ChangeEvent{
				Kind: kind, Document: doc.Clone(), At: time.Now(),
			}})
			continue
		}
		if old, existed := s.collectionLocked(collection)[id]; t.deletes[key] && existed {
			delete(s.collectionLocked(collection), id)
			events = append(events, pendingEvent{collection, storagemodels.ChangeEvent{
				Kind: storagemodels.ChangeRemoved, Document: old, At: time.Now(),
			}})
		}
	}
	targets := make([]*listener, len(s.listeners))
	copy(targets, s.listeners)
	s.mu.Unlock()

	for _, ev := range events {
		notify(targets, ev)
	}
	return nil
}

type pendingEvent struct {
	collection string
	event      storagemodels.ChangeEvent
}

func notify(targets []*listener, ev pendingEvent) {
	for _, l := range targets {
		if l.collection != ev.collection {
			continue
		}
		if l.target.ID != "" {
			if l.target.ID == ev.event.Document.ID() {
				l.onChange(ev.event)
			}
			continue
		}
		l.notifyQuery(ev.event)
	}
}

// notifyQuery tracks which ids are inside the query's result set so a
// document that stops matching is reported as removed, the way a
// snapshot-diffing backend reports it.
func (l *listener) notifyQuery(ev storagemodels.ChangeEvent) {
	id := ev.Document.ID()
	matches := ev.Kind != storagemodels.ChangeRemoved &&
		matchesAll(ev.Document, l.target.Query.Filters)

	l.mu.Lock()
	if l.seen == nil {
		l.seen = make(map[string]bool)
	}
	inSet := l.seen[id]
	switch {
	case matches && !inSet:
		l.seen[id] = true
		ev.Kind = storagemodels.ChangeAdded
	case matches && inSet:
		ev.Kind = storagemodels.ChangeModified
	case !matches && inSet:
		delete(l.seen, id)
		ev.Kind = storagemodels.ChangeRemoved
	default:
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()
	l.onChange(ev)
}

// BatchWrite implements store.Store with per-item accounting.
func (s *Store) BatchWrite(ctx context.Context, collection string, ops []storagemodels.WriteOp) ([]storagemodels.WriteResult, error) {
	if s.batchWriteErr != nil {
		return nil, s.batchWriteErr
	}

	results := make([]storagemodels.WriteResult, len(ops))
	var events []pendingEvent

	s.mu.Lock()
	for i, op := range ops {
		results[i].ID = op.ID
		if err, ok := s.failPutIDs[op.ID]; ok && op.Kind == storagemodels.WritePut {
			results[i].Err = err
			continue
		}
		switch op.Kind {
		case storagemodels.WritePut:
			_, existed := s.collectionLocked(collection)[op.ID]
			s.collectionLocked(collection)[op.ID] = op.Document.Clone()
			kind := storagemodels.ChangeAdded
			if existed {
				kind = storagemodels.ChangeModified
			}
			events = append(events, pendingEvent{collection, storagemodels.ChangeEvent{
				Kind: kind, Document: op.Document.Clone(), At: time.Now(),
			}})
		case storagemodels.WriteDelete:
			if old, existed := s.collectionLocked(collection)[op.ID]; existed {
				delete(s.collectionLocked(collection), op.ID)
				events = append(events, pendingEvent{collection, storagemodels.ChangeEvent{
					Kind: storagemodels.ChangeRemoved, Document: old, At: time.Now(),
				}})
			}
		default:
			results[i].Err = fmt.Errorf("unknown write kind %q", op.Kind)
		}
	}
	targets := make([]*listener, len(s.listeners))
	copy(targets, s.listeners)
	s.mu.Unlock()

	for _, ev := range events {
		notify(targets, ev)
	}
	return results, nil
}

// Listen implements store.Store.
func (s *Store) Listen(ctx context.Context, collection string, target storagemodels.ListenTarget, onChange func(storagemodels.ChangeEvent), onError func(error)) (store.CancelFunc, error) {
	if s.listenErr != nil {
		return nil, s.listenErr
	}

	s.mu.Lock()
	s.nextListener++
	l := &listener{
		id:         s.nextListener,
		collection: collection,
		target:     target,
		onChange:   onChange,
		onError:    onError,
	}
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, cur := range s.listeners {
			if cur.id == l.id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
	return cancel, nil
}

func splitKey(key string) (string, string) {
	i := strings.IndexByte(key, '/')
	return key[:i], key[i+1:]
}
