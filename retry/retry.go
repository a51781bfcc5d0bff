/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package retry

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/suparena/repokit/errors"
)

// Policy wraps repository operations with bounded, classified,
// exponentially backed-off retry.
type Policy struct {
	// MaxRetries is the total number of attempts before the last error is
	// surfaced unchanged (default 3).
	MaxRetries int
	// BaseBackoff seeds the exponential delay: attempt n (counted from 1)
	// waits BaseBackoff * 2^(n-1) before attempt n+1 (default 100ms).
	BaseBackoff time.Duration
	// Logger receives one debug line per re-attempt. Nil means the
	// standard logrus logger.
	Logger *logrus.Logger
}

// DefaultPolicy returns the default retry policy.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, BaseBackoff: 100 * time.Millisecond}
}

func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if p.MaxRetries <= 0 {
		p.MaxRetries = def.MaxRetries
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = def.BaseBackoff
	}
	if p.Logger == nil {
		p.Logger = logrus.StandardLogger()
	}
	return p
}

// Backoff returns the delay applied after the given failed attempt,
// counted from 1.
func (p Policy) Backoff(attempt int) time.Duration {
	p = p.normalized()
	return p.BaseBackoff * (1 << (attempt - 1))
}

// Run executes op under the policy. Errors whose kind is not transient
// (see errors.Retryable) fail immediately; transient errors are retried
// until the attempt ceiling, then the last error is returned unchanged.
func (p Policy) Run(ctx context.Context, name string, op func(ctx context.Context) error) error {
	_, err := Do(ctx, p, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Do is the value-returning form of Policy.Run.
func Do[T any](ctx context.Context, p Policy, name string, op func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()

	var zero T
	var lastErr error
	for attempt := 1; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, errors.Wrap(errors.KindDeadlineExceeded, err, "%s", name)
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if !errors.Retryable(err) {
			return zero, err
		}
		lastErr = err

		if attempt == p.MaxRetries {
			break
		}

		delay := p.Backoff(attempt)
		p.Logger.WithFields(logrus.Fields{
			"op":      name,
			"attempt": attempt,
			"delay":   delay,
		}).Debugf("transient failure, backing off: %v", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, errors.Wrap(errors.KindDeadlineExceeded, ctx.Err(), "%s", name)
		case <-timer.C:
		}
	}
	return zero, lastErr
}
