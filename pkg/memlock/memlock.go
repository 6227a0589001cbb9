// Package memlock implements a memcache-backed distributed mutual-exclusion
// lock with lease (TTL) semantics and token-based ownership.
package memlock

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/brainix/bloom/pkg/clock"
	"github.com/brainix/bloom/pkg/keys"
	"github.com/brainix/bloom/pkg/store"
)

// Defaults for [Options].
const (
	DefaultLease      = 1 * time.Second
	DefaultRetryDelay = 200 * time.Millisecond
)

// NoTimeout is the sentinel timeout value meaning "no timeout": paired with
// blocking=false it is the only valid timeout, and paired with blocking=true
// it means retry indefinitely, bounded only by ctx. Any timeout >= 0,
// including zero, is a real finite deadline — a zero timeout still makes
// one attempt but returns immediately on failure rather than retrying.
const NoTimeout time.Duration = -1

// Options configures a new [Lock].
type Options struct {
	// Lease is the TTL applied to the store entry on acquisition. Default
	// [DefaultLease]. Critical sections must complete well within it.
	Lease time.Duration
	// RetryDelayMax bounds the jittered sleep between blocking-acquire
	// retries. Default [DefaultRetryDelay].
	RetryDelayMax time.Duration
	// Store is the backing store. Defaults to a [store.Fake] when nil.
	Store store.Store
	// Key is the store key. A random key with prefix [keys.MemlockPrefix]
	// is generated when empty.
	Key string
}

// Lock is a handle onto a memcache-mediated mutex. An instance "holds" the
// lock iff the store's current value at its key equals its own token — a
// 16-character random string generated once at construction.
//
// Lock is not safe for concurrent use by multiple goroutines.
type Lock struct {
	store         store.Store
	key           string
	token         string
	lease         time.Duration
	retryDelayMax time.Duration
	locked        bool
}

// New constructs a Lock. It is not held at construction.
func New(opts Options) *Lock {
	lease := opts.Lease
	if lease == 0 {
		lease = DefaultLease
	}
	retryDelayMax := opts.RetryDelayMax
	if retryDelayMax == 0 {
		retryDelayMax = DefaultRetryDelay
	}

	s := opts.Store
	if s == nil {
		s = store.NewFake()
	}

	key := opts.Key
	if key == "" {
		key = keys.New(keys.MemlockPrefix)
	}

	return &Lock{
		store:         s,
		key:           key,
		token:         keys.New(""),
		lease:         lease,
		retryDelayMax: retryDelayMax,
	}
}

// Acquire attempts to take the lock by writing its token with `add`, which
// only succeeds if the key is currently absent (never held, or the
// previous holder's lease expired and nothing else has claimed it since).
//
// With blocking=false, timeout must be [NoTimeout] (any other value
// alongside blocking=false is a contract violation and returns
// [ErrInvalidAcquireConfig]); Acquire makes exactly one attempt.
//
// With blocking=true, Acquire retries with a jittered sleep of up to
// RetryDelayMax between attempts until it succeeds or timeout elapses.
// timeout=[NoTimeout] retries indefinitely, bounded only by ctx; any
// timeout >= 0, including zero, is a real deadline — Acquire still makes
// at least one attempt, but returns false as soon as elapsed wall-clock
// reaches timeout without a further retry.
func (l *Lock) Acquire(ctx context.Context, blocking bool, timeout time.Duration) (bool, error) {
	if !blocking && timeout != NoTimeout {
		return false, invalidAcquireConfigError(l.key)
	}

	if !blocking {
		return l.tryAcquire(ctx)
	}

	var timer *clock.Timer
	if timeout >= 0 {
		timer = clock.New()
		if err := timer.Start(); err != nil {
			return false, &Error{Key: l.key, err: err}
		}
	}

	for {
		ok, err := l.tryAcquire(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}

		if timer != nil {
			elapsed, err := timer.Elapsed()
			if err != nil {
				return false, &Error{Key: l.key, err: err}
			}
			if elapsed >= timeout {
				return false, nil
			}
		}

		select {
		case <-ctx.Done():
			return false, nil
		case <-time.After(jitter(l.retryDelayMax)):
		}
	}
}

func (l *Lock) tryAcquire(ctx context.Context) (bool, error) {
	stored, err := l.store.Add(ctx, l.key, []byte(l.token), l.lease)
	if err != nil {
		return false, &Error{Key: l.key, Retriable: true, err: fmt.Errorf("add: %w", err)}
	}
	l.locked = stored
	return stored, nil
}

// Locked reports whether this instance currently holds the lock, by
// comparing the store's current value at key against its own token. This
// is a live check, not a cached flag: once the lease expires the store
// entry disappears (or is overwritten by a new holder) and Locked reports
// false from that point on, with no client-side timer involved.
func (l *Lock) Locked(ctx context.Context) (bool, error) {
	value, ok, err := l.store.Get(ctx, l.key)
	if err != nil {
		return false, &Error{Key: l.key, err: fmt.Errorf("get: %w", err)}
	}
	l.locked = ok && string(value) == l.token
	return l.locked, nil
}

// Release gives up the lock. Per the token-checked release design (the
// stronger of the two designs this primitive admits): it loads the current
// value+token, and deletes only if the stored value equals this instance's
// own token — so a lease that already expired and was reclaimed by another
// holder is never clobbered by a stale Release. If the key is absent, or
// present with a different token, Release returns [ErrUnownedRelease]
// without mutating the store.
func (l *Lock) Release(ctx context.Context) error {
	value, token, ok, err := l.store.Gets(ctx, l.key)
	if err != nil {
		return &Error{Key: l.key, err: fmt.Errorf("gets: %w", err)}
	}
	if !ok || string(value) != l.token {
		l.locked = false
		return unownedReleaseError(l.key)
	}

	deleted, err := l.store.Delete(ctx, l.key, false)
	if err != nil {
		return &Error{Key: l.key, err: fmt.Errorf("delete: %w", err)}
	}
	l.locked = false
	if !deleted {
		// The key expired or was deleted between our gets and our delete;
		// from this instance's perspective it no longer owns the lock
		// either way.
		_ = token
		return unownedReleaseError(l.key)
	}
	return nil
}

// Key returns the store key backing this lock.
func (l *Lock) Key() string { return l.key }

// Token returns this instance's ownership token.
func (l *Lock) Token() string { return l.token }

// String implements fmt.Stringer.
func (l *Lock) String() string {
	return fmt.Sprintf("<MemLock key=%s locked=%t>", l.key, l.locked)
}

// jitter returns a random duration in [0, max).
func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max)))
}
