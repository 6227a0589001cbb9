// Package store abstracts the minimum memcache surface the rest of this
// module depends on: get, gets (value+cas-token), set, add, cas, and delete.
//
// [Store] is the only component in this module permitted to perform I/O.
// Every other package treats it as opaque and drives it exclusively through
// this interface, so that [Fake] can stand in for a live memcache server in
// tests.
package store

import (
	"context"
	"time"
)

// CASToken is an opaque version marker returned by [Store.Gets] and
// consumed by [Store.CompareAndSwap]. Callers never construct or inspect a
// CASToken; they only ever pass back one they were just handed.
type CASToken interface {
	casToken()
}

// Store is the storage surface every primitive in this module is built on.
//
// Implementations must give add/cas/delete memcache's usual atomicity
// guarantees: Add succeeds iff the key was absent, CompareAndSwap succeeds
// iff the token is still current, and a TTL of 0 means "no expiry".
type Store interface {
	// Get returns the current bytes at key, or ok=false if absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Gets atomically reads the bytes at key along with an opaque token
	// usable in a later CompareAndSwap. ok=false means key is absent, and
	// token is nil in that case.
	Gets(ctx context.Context, key string) (value []byte, token CASToken, ok bool, err error)

	// Set unconditionally writes value to key. If noReply is true, the
	// write is fire-and-forget: Set returns (nil) without waiting for the
	// server's acknowledgement.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, noReply bool) error

	// Add writes value to key iff key is currently absent. stored reports
	// whether the write happened.
	Add(ctx context.Context, key string, value []byte, ttl time.Duration) (stored bool, err error)

	// CompareAndSwap writes value to key iff token is still the current
	// version. swapped reports whether the write happened; swapped=false
	// with err=nil means the token was stale (a retriable conflict, not a
	// failure).
	CompareAndSwap(ctx context.Context, key string, value []byte, token CASToken) (swapped bool, err error)

	// Delete removes key. deleted reports whether a value was actually
	// removed. If noReply is true, the deletion is fire-and-forget and
	// deleted is reported optimistically (true) without waiting on the
	// server.
	Delete(ctx context.Context, key string, noReply bool) (deleted bool, err error)
}
