/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/suparena/repokit/errors"
)

func fastPolicy() Policy {
	return Policy{MaxRetries: 3, BaseBackoff: time.Millisecond}
}

func TestRun(t *testing.T) {
	t.Run("TransientRetriedThenSucceeds", func(t *testing.T) {
		calls := 0
		err := fastPolicy().Run(context.Background(), "op", func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errors.E(errors.KindUnavailable, "flaky")
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, calls)
	})

	t.Run("TerminalFailsImmediately", func(t *testing.T) {
		for _, kind := range []errors.Kind{
			errors.KindFailedPrecondition,
			errors.KindValidationFailed,
			errors.KindPermissionDenied,
			errors.KindConflict,
			errors.KindNotFound,
		} {
			calls := 0
			err := fastPolicy().Run(context.Background(), "op", func(ctx context.Context) error {
				calls++
				return errors.E(kind, "terminal")
			})
			require.Equal(t, kind, errors.KindOf(err))
			require.Equal(t, 1, calls, "kind %v must not be retried", kind)
		}
	})

	t.Run("CeilingSurfacesLastErrorUnchanged", func(t *testing.T) {
		calls := 0
		last := errors.E(errors.KindUnavailable, "still down")
		err := fastPolicy().Run(context.Background(), "op", func(ctx context.Context) error {
			calls++
			return last
		})
		require.Equal(t, 3, calls)
		require.Same(t, last, err, "the last error must surface unchanged")
	})

	t.Run("UnclassifiedNotRetried", func(t *testing.T) {
		calls := 0
		err := fastPolicy().Run(context.Background(), "op", func(ctx context.Context) error {
			calls++
			return errors.E(errors.KindUnknown, "mystery")
		})
		require.Error(t, err)
		require.Equal(t, 1, calls)
	})

	t.Run("ContextCancelStopsBackoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		p := Policy{MaxRetries: 5, BaseBackoff: time.Hour}
		calls := 0
		done := make(chan error, 1)
		go func() {
			done <- p.Run(ctx, "op", func(ctx context.Context) error {
				calls++
				return errors.E(errors.KindUnavailable, "down")
			})
		}()
		time.Sleep(10 * time.Millisecond)
		cancel()
		select {
		case err := <-done:
			require.Equal(t, errors.KindDeadlineExceeded, errors.KindOf(err))
			require.Equal(t, 1, calls)
		case <-time.After(time.Second):
			t.Fatal("retry did not observe cancellation")
		}
	})
}

func TestBackoff(t *testing.T) {
	p := Policy{MaxRetries: 4, BaseBackoff: 100 * time.Millisecond}
	require.Equal(t, 100*time.Millisecond, p.Backoff(1))
	require.Equal(t, 200*time.Millisecond, p.Backoff(2))
	require.Equal(t, 400*time.Millisecond, p.Backoff(3))
	require.Equal(t, 800*time.Millisecond, p.Backoff(4))
}

func TestDoReturnsValue(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fastPolicy(), "op", func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.E(errors.KindAborted, "contention")
		}
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.Equal(t, 2, calls)
}
