package memlock

import (
	"context"
	"errors"
	"time"
)

// WithOptions configures [With]'s scoped-acquisition behavior.
type WithOptions struct {
	// Blocking and Timeout are passed through to Acquire. When both are
	// left at their zero values, With uses Acquire's default form instead:
	// blocking with [NoTimeout].
	Blocking bool
	Timeout  time.Duration
	// BestEffort swallows ErrUnownedRelease from the deferred Release
	// (spec's suggested "best-effort release" mode for callers who expect
	// their critical section might occasionally outlive the lease and
	// don't want that surfaced as a hard error).
	BestEffort bool
}

// ErrAcquireTimedOut is returned by With when Acquire does not succeed
// within the configured timeout.
var ErrAcquireTimedOut = errors.New("memlock: acquire timed out")

// With acquires l, runs fn, and releases l unconditionally on the way out —
// even if the lease expired mid-scope, in which case the deferred release
// surfaces ErrUnownedRelease (or is swallowed, with opts.BestEffort).
//
// This mirrors the original's context-manager form; Go has no equivalent
// language construct, so the scope is expressed as a higher-order function
// taking the critical section as fn.
func With(ctx context.Context, l *Lock, opts WithOptions, fn func(ctx context.Context) error) error {
	blocking, timeout := opts.Blocking, opts.Timeout
	if !blocking && timeout == 0 {
		blocking, timeout = true, NoTimeout
	}

	ok, err := l.Acquire(ctx, blocking, timeout)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAcquireTimedOut
	}

	fnErr := fn(ctx)

	relErr := l.Release(ctx)
	if relErr != nil && opts.BestEffort && errors.Is(relErr, ErrUnownedRelease) {
		relErr = nil
	}

	if fnErr != nil {
		return fnErr
	}
	return relErr
}
