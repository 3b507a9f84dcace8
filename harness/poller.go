package harness

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

// PollOptions bound a single convergence wait. Zero fields take the defaults
// below; the interval is fixed and small relative to the overall timeout, no
// backoff, because the predicate and not wall-clock economy gates completion.
type PollOptions struct {
	Timeout        time.Duration // overall wait deadline
	PerPollTimeout time.Duration // budget for one query attempt
	Interval       time.Duration // fixed delay between attempts
}

// Default poll bounds. The overall timeout matches the view-change wait used
// against real clusters; tests override all three.
const (
	DefaultPollTimeout    = 60 * time.Second
	DefaultPerPollTimeout = 5 * time.Second
	DefaultPollInterval   = 200 * time.Millisecond
)

func (o PollOptions) withDefaults() PollOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultPollTimeout
	}
	if o.PerPollTimeout <= 0 {
		o.PerPollTimeout = DefaultPerPollTimeout
	}
	if o.Interval <= 0 {
		o.Interval = DefaultPollInterval
	}
	return o
}

// WaitFor repeatedly invokes query until pred holds for its result or the
// overall deadline elapses. Each attempt runs under its own per-poll timeout;
// an attempt that times out or fails with a transient error counts as "not
// yet converged" and is retried. Any other query error is fatal immediately.
//
// On deadline expiry WaitFor returns the last observed value together with a
// context.DeadlineExceeded-wrapped error, so callers can report expected
// versus observed state.
func WaitFor[T any](ctx context.Context, query func(context.Context) (T, error), pred func(T) bool, opts PollOptions) (T, error) {
	opts = opts.withDefaults()

	var last T
	observed := false

	waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	for {
		attemptCtx, attemptCancel := context.WithTimeout(waitCtx, opts.PerPollTimeout)
		v, err := query(attemptCtx)
		attemptCancel()

		switch {
		case err == nil:
			last, observed = v, true
			if pred(v) {
				return v, nil
			}
		case IsTransient(err) || errors.Is(err, context.DeadlineExceeded):
			logrus.Debugf("poll attempt not yet converged: %v", err)
		default:
			return last, errors.Wrap(err, "convergence poll failed")
		}

		select {
		case <-waitCtx.Done():
			if observed {
				return last, errors.Wrapf(waitCtx.Err(),
					"convergence wait expired after %s, last observed %v", opts.Timeout, last)
			}
			return last, errors.Wrapf(waitCtx.Err(),
				"convergence wait expired after %s with no successful observation", opts.Timeout)
		case <-time.After(opts.Interval):
		}
	}
}

// WaitForView waits until the view observed by replica id satisfies pred.
// Unreachable-replica errors are transient and retried for the full wait.
func WaitForView(ctx context.Context, ctrl Controller, id ReplicaID, pred func(View) bool, opts PollOptions) (View, error) {
	return WaitFor(ctx, func(ctx context.Context) (View, error) {
		return ctrl.View(ctx, id)
	}, pred, opts)
}
