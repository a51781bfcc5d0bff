/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package batch

import (
	"context"
	"sync"
	"time"

	"github.com/suparena/repokit/errors"
)

// Result is one per-key outcome of a batched fetch.
type Result[V any] struct {
	Value V
	Err   error
}

// Func performs one multi-key fetch. It must return exactly one Result
// per requested key, in request order; a length mismatch is treated as a
// fatal internal-invariant violation, not a retryable failure.
type Func[V any] func(ctx context.Context, keys []string) ([]Result[V], error)

// Options configures dispatch triggers.
type Options struct {
	// MaxBatch dispatches as soon as this many keys are pending
	// (default 10, the store's multi-get fan-out limit).
	MaxBatch int
	// Window is the debounce interval counted from the first pending key
	// (default 10ms).
	Window time.Duration
}

// DefaultOptions returns the default dispatch triggers.
func DefaultOptions() Options {
	return Options{MaxBatch: 10, Window: 10 * time.Millisecond}
}

type thunk[V any] struct {
	done chan struct{}
	val  V
	err  error
}

type pendingReq[V any] struct {
	key string
	t   *thunk[V]
}

// Coalescer merges concurrent point reads for one collection into batched
// multi-key fetches. Requests for the same key issued before the batch
// dispatches share one in-flight fetch, and resolved values are memoized
// until the write path evicts them with Clear.
type Coalescer[V any] struct {
	fetch Func[V]
	opts  Options

	mu      sync.Mutex
	cache   map[string]*thunk[V]
	pending []pendingReq[V]
	timer   *time.Timer
}

// New constructs a Coalescer around fetch.
func New[V any](fetch Func[V], opts Options) *Coalescer[V] {
	def := DefaultOptions()
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = def.MaxBatch
	}
	if opts.Window <= 0 {
		opts.Window = def.Window
	}
	return &Coalescer[V]{
		fetch: fetch,
		opts:  opts,
		cache: make(map[string]*thunk[V]),
	}
}

// Load returns the value for key, joining an in-flight or memoized fetch
// when one exists.
func (c *Coalescer[V]) Load(ctx context.Context, key string) (V, error) {
	c.mu.Lock()
	if t, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return c.await(ctx, t)
	}

	t := &thunk[V]{done: make(chan struct{})}
	c.cache[key] = t
	c.pending = append(c.pending, pendingReq[V]{key: key, t: t})

	if len(c.pending) >= c.opts.MaxBatch {
		reqs := c.takeBatchLocked()
		c.mu.Unlock()
		go c.dispatch(reqs)
	} else {
		if c.timer == nil {
			c.timer = time.AfterFunc(c.opts.Window, c.flushWindow)
		}
		c.mu.Unlock()
	}

	return c.await(ctx, t)
}

// LoadMany loads several keys, coalescing them with each other and with
// any other concurrent loads. The result holds one entry per key, in key
// order; per-key failures do not affect sibling keys.
func (c *Coalescer[V]) LoadMany(ctx context.Context, keys []string) []Result[V] {
	results := make([]Result[V], len(keys))
	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			v, err := c.Load(ctx, key)
			results[i] = Result[V]{Value: v, Err: err}
		}(i, key)
	}
	wg.Wait()
	return results
}

// Clear evicts the cache entry for key. The write path calls this after
// every mutation of key; reads never evict.
func (c *Coalescer[V]) Clear(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// An in-flight entry is evicted too: its waiters still resolve, but
	// the stale value is not memoized past the write.
	delete(c.cache, key)
}

// ClearAll evicts every cache entry.
func (c *Coalescer[V]) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*thunk[V])
}

func (c *Coalescer[V]) await(ctx context.Context, t *thunk[V]) (V, error) {
	select {
	case <-t.done:
		return t.val, t.err
	case <-ctx.Done():
		var zero V
		return zero, errors.Wrap(errors.KindDeadlineExceeded, ctx.Err(), "batched read")
	}
}

// takeBatchLocked detaches the pending batch and disarms the window timer.
func (c *Coalescer[V]) takeBatchLocked() []pendingReq[V] {
	reqs := c.pending
	c.pending = nil
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	return reqs
}

func (c *Coalescer[V]) flushWindow() {
	c.mu.Lock()
	c.timer = nil
	reqs := c.takeBatchLocked()
	c.mu.Unlock()
	if len(reqs) > 0 {
		c.dispatch(reqs)
	}
}

func (c *Coalescer[V]) dispatch(reqs []pendingReq[V]) {
	keys := make([]string, len(reqs))
	for i, r := range reqs {
		keys[i] = r.key
	}

	// The fetch runs detached from any single caller's context so that
	// one canceled caller cannot fail the batch for the others.
	results, err := c.fetch(context.Background(), keys)

	if err == nil && len(results) != len(keys) {
		err = errors.E(errors.KindInternal,
			"batch fetch returned %d results for %d keys", len(results), len(keys))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, r := range reqs {
		if err != nil {
			c.resolveLocked(r, Result[V]{Err: err})
			continue
		}
		c.resolveLocked(r, results[i])
	}
}

// resolveLocked completes one thunk. Failed entries are dropped from the
// cache so a later read can attempt a fresh fetch; successful entries stay
// memoized until Clear.
func (c *Coalescer[V]) resolveLocked(r pendingReq[V], res Result[V]) {
	r.t.val = res.Value
	r.t.err = res.Err
	close(r.t.done)
	if res.Err != nil && c.cache[r.key] == r.t {
		delete(c.cache, r.key)
	}
}
