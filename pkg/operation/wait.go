package operation

import (
	"context"
	"fmt"
	"time"
)

// Refresh fetches the current snapshot of a remote operation.
// Implementations make exactly one round trip to the platform.
type Refresh[H any] func(ctx context.Context) (H, error)

// Until reports whether the wait loop may stop.
type Until[H any] func(H) bool

// Sleeper pauses between refreshes. It must return early with ctx.Err() when
// the context is cancelled.
type Sleeper func(ctx context.Context, d time.Duration) error

// Option configures a single Wait call.
type Option[H any] func(*waitOptions[H])

type waitOptions[H any] struct {
	state    func(H) string
	onChange func(H)
	sleep    Sleeper
}

// WithStateChange registers an edge-triggered callback.
//
// fn is invoked with the first snapshot observed and then only when state(h)
// differs from the state of the previous snapshot. Repeated states do not
// fire.
func WithStateChange[H any](state func(H) string, fn func(H)) Option[H] {
	return func(o *waitOptions[H]) {
		o.state = state
		o.onChange = fn
	}
}

// WithSleeper replaces the sleep between refreshes.
func WithSleeper[H any](s Sleeper) Option[H] {
	return func(o *waitOptions[H]) {
		if s != nil {
			o.sleep = s
		}
	}
}

// Wait blocks until until(h) holds for the latest snapshot or the policy
// budget is exhausted.
//
// The returned bool is true when the terminal condition was met. Exhausting
// the budget is a soft timeout: Wait returns the last snapshot, false and a
// nil error, and the caller decides how to proceed.
//
// Refresh errors are returned unmodified together with the last snapshot that
// was fetched successfully. No retry happens here.
func Wait[H any](ctx context.Context, refresh Refresh[H], until Until[H], policy Policy, opts ...Option[H]) (H, bool, error) {
	var zero H
	if refresh == nil || until == nil {
		return zero, false, fmt.Errorf("wait: refresh and until are required")
	}
	if err := policy.Validate(); err != nil {
		return zero, false, fmt.Errorf("wait: %w", err)
	}

	o := waitOptions[H]{sleep: sleepContext}
	for _, opt := range opts {
		opt(&o)
	}

	current, err := refresh(ctx)
	if err != nil {
		return zero, false, err
	}

	var (
		prev string
		seen bool
	)
	observe := func(h H) {
		if o.onChange == nil {
			return
		}
		s := o.state(h)
		if !seen || s != prev {
			o.onChange(h)
		}
		prev, seen = s, true
	}
	observe(current)

	budget := policy.Budget
	for {
		if until(current) {
			return current, true, nil
		}
		if policy.IsBounded() {
			if budget <= 0 {
				return current, false, nil
			}
			budget--
		}

		if err := o.sleep(ctx, policy.Interval); err != nil {
			return current, false, err
		}

		next, err := refresh(ctx)
		if err != nil {
			return current, false, err
		}
		current = next
		observe(current)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
