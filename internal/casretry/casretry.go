// Package casretry implements the CAS-retry-with-replay helper shared by
// mutating operations that need to merge concurrent writers.
//
// This is a Go reimplementation of the original's decorator-style retry: a
// decorator wrapped a mutation function and replayed it on conflict. Here
// the same behavior is an explicit loop parameterized by the caller's
// mutation closure, which must be idempotent — it is applied again, against
// a freshly reloaded base, every time a concurrent writer wins the race.
package casretry

import (
	"context"
	"errors"
	"fmt"

	"github.com/brainix/bloom/pkg/store"
)

// ErrExhausted is returned when every CAS attempt lost the race to a
// concurrent writer. It is retriable by the caller (a fresh Do call is
// always safe) but this package itself never retries beyond maxAttempts.
var ErrExhausted = errors.New("casretry: exhausted retry attempts on concurrent modification")

// Result is the outcome of a successful [Do]: the bytes now persisted, and
// the CAS token read back right after the successful swap (nil if the key
// had already vanished by then). Do itself takes no token: every call
// starts by reloading bytes and token from the store.
type Result struct {
	Bytes []byte
	Token store.CASToken
}

// Do loads the current bytes and CAS token at key (seeding key with
// initial() if it is absent), applies mutate to derive the new bytes, and
// attempts CompareAndSwap. On conflict it reloads and reapplies mutate
// against the fresh base, up to maxAttempts total attempts. On the final
// failed attempt it returns [ErrExhausted].
//
// mutate must be idempotent: Do may call it more than once, each time
// against a different (freshly reloaded) base, and only the final call's
// output is persisted.
func Do(
	ctx context.Context,
	s store.Store,
	key string,
	initial func() []byte,
	mutate func(current []byte) []byte,
	maxAttempts int,
) (Result, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	current, token, err := loadOrInit(ctx, s, key, initial)
	if err != nil {
		return Result{}, err
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		next := mutate(current)

		swapped, err := s.CompareAndSwap(ctx, key, next, token)
		if err != nil {
			return Result{}, fmt.Errorf("casretry: cas %q: %w", key, err)
		}
		if swapped {
			// Refresh the local view so a following mutation holds a
			// current token (spec step 5).
			refreshed, refreshedToken, ok, err := s.Gets(ctx, key)
			if err != nil {
				return Result{}, fmt.Errorf("casretry: refresh %q after cas: %w", key, err)
			}
			if !ok {
				// Another writer deleted the key out from under us between
				// our successful cas and this reload; treat the bytes we
				// just wrote as authoritative rather than erroring.
				return Result{Bytes: next, Token: nil}, nil
			}
			return Result{Bytes: refreshed, Token: refreshedToken}, nil
		}

		if attempt == maxAttempts {
			break
		}

		current, token, err = loadOrInit(ctx, s, key, initial)
		if err != nil {
			return Result{}, err
		}
	}

	return Result{}, fmt.Errorf("%w: key %q", ErrExhausted, key)
}

// loadOrInit reads key's current bytes+token, seeding it with initial() if
// absent (spec step 1), and always returns a token usable for CAS.
func loadOrInit(ctx context.Context, s store.Store, key string, initial func() []byte) ([]byte, store.CASToken, error) {
	value, token, ok, err := s.Gets(ctx, key)
	if err != nil {
		return nil, nil, fmt.Errorf("casretry: gets %q: %w", key, err)
	}
	if ok {
		return value, token, nil
	}

	seed := initial()
	if err := s.Set(ctx, key, seed, 0, false); err != nil {
		return nil, nil, fmt.Errorf("casretry: seed %q: %w", key, err)
	}

	value, token, ok, err = s.Gets(ctx, key)
	if err != nil {
		return nil, nil, fmt.Errorf("casretry: reload seeded %q: %w", key, err)
	}
	if !ok {
		return nil, nil, fmt.Errorf("casretry: key %q vanished immediately after seeding", key)
	}
	return value, token, nil
}
