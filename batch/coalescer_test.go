/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package batch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/suparena/repokit/errors"
)

// countingFetch records every dispatched batch and serves values from m.
type countingFetch struct {
	mu      sync.Mutex
	batches [][]string
	m       map[string]string
	errs    map[string]error
}

func (f *countingFetch) fn(ctx context.Context, keys []string) ([]Result[string], error) {
	f.mu.Lock()
	cp := make([]string, len(keys))
	copy(cp, keys)
	f.batches = append(f.batches, cp)
	f.mu.Unlock()

	out := make([]Result[string], len(keys))
	for i, k := range keys {
		if err, ok := f.errs[k]; ok {
			out[i] = Result[string]{Err: err}
			continue
		}
		out[i] = Result[string]{Value: f.m[k]}
	}
	return out, nil
}

func (f *countingFetch) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func TestCoalescer(t *testing.T) {
	t.Run("SingleBatchWithinWindow", func(t *testing.T) {
		fetch := &countingFetch{m: map[string]string{"a": "A", "b": "B", "c": "C"}}
		c := New(fetch.fn, Options{MaxBatch: 10, Window: 20 * time.Millisecond})

		var wg sync.WaitGroup
		got := make([]string, 3)
		for i, k := range []string{"a", "b", "c"} {
			wg.Add(1)
			go func(i int, k string) {
				defer wg.Done()
				v, err := c.Load(context.Background(), k)
				require.NoError(t, err)
				got[i] = v
			}(i, k)
		}
		wg.Wait()

		require.Equal(t, []string{"A", "B", "C"}, got)
		require.Equal(t, 1, fetch.batchCount(), "distinct ids within one window must share one multi-read")
	})

	t.Run("MaxBatchTriggersEarlyDispatch", func(t *testing.T) {
		fetch := &countingFetch{m: map[string]string{}}
		for i := 0; i < 10; i++ {
			fetch.m[fmt.Sprintf("k%d", i)] = fmt.Sprintf("v%d", i)
		}
		// Long window so only the size trigger can fire.
		c := New(fetch.fn, Options{MaxBatch: 10, Window: time.Hour})

		results := c.LoadMany(context.Background(), []string{
			"k0", "k1", "k2", "k3", "k4", "k5", "k6", "k7", "k8", "k9",
		})
		for i, r := range results {
			require.NoError(t, r.Err)
			require.Equal(t, fmt.Sprintf("v%d", i), r.Value)
		}
		require.Equal(t, 1, fetch.batchCount())
	})

	t.Run("DuplicateKeysShareOneFetch", func(t *testing.T) {
		var calls int32
		c := New(func(ctx context.Context, keys []string) ([]Result[string], error) {
			atomic.AddInt32(&calls, 1)
			out := make([]Result[string], len(keys))
			for i, k := range keys {
				out[i] = Result[string]{Value: "val-" + k}
			}
			return out, nil
		}, Options{Window: 10 * time.Millisecond})

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v, err := c.Load(context.Background(), "same")
				require.NoError(t, err)
				require.Equal(t, "val-same", v)
			}()
		}
		wg.Wait()
		require.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("MemoizedAcrossBatches", func(t *testing.T) {
		fetch := &countingFetch{m: map[string]string{"a": "A"}}
		c := New(fetch.fn, Options{Window: time.Millisecond})

		_, err := c.Load(context.Background(), "a")
		require.NoError(t, err)
		_, err = c.Load(context.Background(), "a")
		require.NoError(t, err)
		require.Equal(t, 1, fetch.batchCount(), "second read must hit the cache")

		c.Clear("a")
		_, err = c.Load(context.Background(), "a")
		require.NoError(t, err)
		require.Equal(t, 2, fetch.batchCount(), "read after Clear must refetch")
	})

	t.Run("PerKeyErrorDoesNotPoisonSiblings", func(t *testing.T) {
		fetch := &countingFetch{
			m:    map[string]string{"good": "G"},
			errs: map[string]error{"bad": errors.E(errors.KindNotFound, "bad is gone")},
		}
		c := New(fetch.fn, Options{Window: time.Millisecond})

		results := c.LoadMany(context.Background(), []string{"good", "bad"})
		require.NoError(t, results[0].Err)
		require.Equal(t, "G", results[0].Value)
		require.True(t, errors.IsNotFound(results[1].Err))
	})

	t.Run("CountMismatchIsInternal", func(t *testing.T) {
		c := New(func(ctx context.Context, keys []string) ([]Result[string], error) {
			return make([]Result[string], len(keys)-1), nil
		}, Options{Window: time.Millisecond})

		results := c.LoadMany(context.Background(), []string{"x", "y", "z"})
		for _, r := range results {
			require.True(t, errors.IsInternal(r.Err),
				"length mismatch must surface as an internal-invariant error, got %v", r.Err)
		}
	})

	t.Run("BatchErrorReachesEveryCaller", func(t *testing.T) {
		c := New(func(ctx context.Context, keys []string) ([]Result[string], error) {
			return nil, errors.E(errors.KindUnavailable, "store down")
		}, Options{Window: time.Millisecond})

		results := c.LoadMany(context.Background(), []string{"x", "y"})
		for _, r := range results {
			require.Equal(t, errors.KindUnavailable, errors.KindOf(r.Err))
		}
	})

	t.Run("ErrorsAreNotMemoized", func(t *testing.T) {
		var calls int32
		c := New(func(ctx context.Context, keys []string) ([]Result[string], error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				return nil, errors.E(errors.KindUnavailable, "flaky")
			}
			out := make([]Result[string], len(keys))
			for i := range keys {
				out[i] = Result[string]{Value: "ok"}
			}
			return out, nil
		}, Options{Window: time.Millisecond})

		_, err := c.Load(context.Background(), "k")
		require.Error(t, err)
		v, err := c.Load(context.Background(), "k")
		require.NoError(t, err)
		require.Equal(t, "ok", v)
	})
}
