package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// DefaultTimeout is the connect/read timeout applied to a [Memcache] store
// when the caller does not supply one and the call's context carries no
// deadline, matching spec's default of 1 second for both connect and read.
const DefaultTimeout = 1 * time.Second

// Memcache is a [Store] backed by a real memcache server, implemented on top
// of github.com/bradfitz/gomemcache/memcache.
//
// gomemcache has no wire-level "noreply" support (unlike the pymemcache
// client the original Python implementation used). Set and Delete calls with
// noReply=true are therefore fired from a background goroutine instead:
// behaviorally fire-and-forget, though not a literal memcache protocol
// extension. This is a deliberate, documented deviation — see DESIGN.md.
//
// *memcache.Client has a single shared Timeout field rather than a per-call
// parameter, and a Memcache is expected to be called concurrently (the same
// store instance backs Filter/Lock/Queue instances from multiple
// goroutines, and fire-and-forget noReply calls run in their own
// goroutines). mu serializes every mutation of client.Timeout, including
// the noReply goroutines, so a deadline derived for one call can never leak
// into another call's request.
type Memcache struct {
	client *memcache.Client

	mu      sync.Mutex
	timeout time.Duration
}

// NewMemcache returns a [Memcache] store talking to the given server
// addresses (host:port strings, or unix socket paths). The client's
// connect/read timeout defaults to [DefaultTimeout]; override it with
// [Memcache.SetTimeout] if a caller needs different behavior.
func NewMemcache(servers ...string) *Memcache {
	c := memcache.New(servers...)
	c.Timeout = DefaultTimeout
	return &Memcache{client: c, timeout: DefaultTimeout}
}

// NewMemcacheFromClient wraps an already-configured *memcache.Client,
// for callers who want to supply their own pooling/selector/timeout
// configuration (spec §4.1: "callers may supply their own client").
func NewMemcacheFromClient(c *memcache.Client) *Memcache {
	return &Memcache{client: c, timeout: c.Timeout}
}

// SetTimeout overrides the per-call connect/read timeout used when ctx
// carries no deadline.
func (m *Memcache) SetTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = d
}

// withTimeout derives a per-call timeout from ctx's deadline (falling back
// to the configured baseline), applies it to the underlying client for the
// duration of fn, and restores the baseline afterward — all under mu, so
// concurrent callers (including noReply's background goroutines) never
// observe or clobber each other's timeout.
func (m *Memcache) withTimeout(ctx context.Context, fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	timeout := m.timeout
	if dl, ok := ctx.Deadline(); ok {
		if remaining := time.Until(dl); remaining > 0 {
			timeout = remaining
		}
	}

	m.client.Timeout = timeout
	defer func() { m.client.Timeout = m.timeout }()

	return fn()
}

type memcacheToken struct {
	item *memcache.Item
}

func (memcacheToken) casToken() {}

func (m *Memcache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var item *memcache.Item
	err := m.withTimeout(ctx, func() error {
		var getErr error
		item, getErr = m.client.Get(key)
		return getErr
	})
	switch {
	case errors.Is(err, memcache.ErrCacheMiss):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("memcache get %q: %w", key, err)
	}
	return item.Value, true, nil
}

func (m *Memcache) Gets(ctx context.Context, key string) ([]byte, CASToken, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, false, err
	}

	var item *memcache.Item
	err := m.withTimeout(ctx, func() error {
		var getErr error
		item, getErr = m.client.Get(key)
		return getErr
	})
	switch {
	case errors.Is(err, memcache.ErrCacheMiss):
		return nil, nil, false, nil
	case err != nil:
		return nil, nil, false, fmt.Errorf("memcache gets %q: %w", key, err)
	}
	return item.Value, memcacheToken{item: item}, true, nil
}

func (m *Memcache) Set(ctx context.Context, key string, value []byte, ttl time.Duration, noReply bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	item := &memcache.Item{Key: key, Value: cloneBytes(value), Expiration: ttlSeconds(ttl)}

	if noReply {
		go func() {
			_ = m.withTimeout(ctx, func() error { return m.client.Set(item) })
		}()
		return nil
	}

	if err := m.withTimeout(ctx, func() error { return m.client.Set(item) }); err != nil {
		return fmt.Errorf("memcache set %q: %w", key, err)
	}
	return nil
}

func (m *Memcache) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	item := &memcache.Item{Key: key, Value: cloneBytes(value), Expiration: ttlSeconds(ttl)}
	err := m.withTimeout(ctx, func() error { return m.client.Add(item) })
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, memcache.ErrNotStored):
		return false, nil
	default:
		return false, fmt.Errorf("memcache add %q: %w", key, err)
	}
}

func (m *Memcache) CompareAndSwap(ctx context.Context, key string, value []byte, token CASToken) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	tok, ok := token.(memcacheToken)
	if !ok || tok.item == nil || tok.item.Key != key {
		return false, fmt.Errorf("memcache cas %q: %w", key, errForeignToken)
	}
	tok.item.Value = cloneBytes(value)

	err := m.withTimeout(ctx, func() error { return m.client.CompareAndSwap(tok.item) })
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, memcache.ErrCASConflict), errors.Is(err, memcache.ErrNotStored):
		return false, nil
	default:
		return false, fmt.Errorf("memcache cas %q: %w", key, err)
	}
}

func (m *Memcache) Delete(ctx context.Context, key string, noReply bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if noReply {
		go func() {
			_ = m.withTimeout(ctx, func() error { return m.client.Delete(key) })
		}()
		return true, nil
	}

	err := m.withTimeout(ctx, func() error { return m.client.Delete(key) })
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, memcache.ErrCacheMiss):
		return false, nil
	default:
		return false, fmt.Errorf("memcache delete %q: %w", key, err)
	}
}

// ttlSeconds converts a time.Duration to memcache's int32-seconds
// Expiration field, clamping 0 (and negative durations) to "no expiry".
func ttlSeconds(ttl time.Duration) int32 {
	if ttl <= 0 {
		return 0
	}
	return int32(ttl / time.Second)
}

var errForeignToken = errors.New("cas token did not originate from this store/key")

var _ Store = (*Memcache)(nil)
