// Package bloom implements a memcache-backed Bloom filter supporting
// concurrent updates from multiple clients via optimistic concurrency
// control (compare-and-swap) with bounded retries.
//
// A Filter never has false negatives: once a value has been added (and no
// intervening Clear or concurrent loss of that specific write has
// occurred), Contains always reports it present. False positives are
// bounded by the configured false-positive rate p.
package bloom

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/brainix/bloom/internal/casretry"
	"github.com/brainix/bloom/internal/hashenc"
	"github.com/brainix/bloom/pkg/keys"
	"github.com/brainix/bloom/pkg/store"
)

// Defaults for [Options], per spec.
const (
	DefaultN = 1000
	DefaultP = 0.001
)

// maxCASAttempts bounds the CAS-retry loop every mutating operation runs
// through; see internal/casretry.
const maxCASAttempts = 3

// Options configures a new [Filter].
type Options struct {
	// N is the expected number of distinct elements. Default [DefaultN].
	N int
	// P is the target false-positive rate, in (0, 1). Default [DefaultP].
	P float64
	// Initial elements to insert once the filter is constructed and loaded.
	Initial []any
	// Store is the backing store. Defaults to a [store.Fake] when nil,
	// which is only useful for tests — production callers must supply a
	// real store (e.g. [store.NewMemcache]).
	Store store.Store
	// Key is the store key. A random key with prefix [keys.BloomPrefix] is
	// generated when empty. Any key with that prefix, generated or
	// supplied, is considered owned (eligible for deletion on
	// [Filter.Close]).
	Key string
}

// Filter is a handle onto a Bloom filter persisted in a [store.Store]. Two
// Filter instances constructed with the same Key and backing Store are two
// views of the same logical filter.
//
// Filter is not safe for concurrent use by multiple goroutines; if callers
// want to share one Filter value across goroutines they must serialize
// access themselves (the memcache-mediated concurrency this package
// provides is across *instances*, potentially on different machines, not
// across goroutines within one instance).
type Filter struct {
	store   store.Store
	key     string
	autoKey bool

	n int
	p float64
	m int
	k int

	bits  []byte
	token store.CASToken
}

// New constructs a Filter, loading existing state from the store (or
// seeding an all-zero bit array if key is absent), then applies any
// Options.Initial elements.
func New(ctx context.Context, opts Options) (*Filter, error) {
	n := opts.N
	if n == 0 {
		n = DefaultN
	}
	if n < 1 {
		return nil, &Error{Key: opts.Key, err: fmt.Errorf("n must be >= 1, got %d", n)}
	}

	p := opts.P
	if p == 0 {
		p = DefaultP
	}
	if p <= 0 || p >= 1 {
		return nil, &Error{Key: opts.Key, err: fmt.Errorf("p must be in (0, 1), got %v", p)}
	}

	s := opts.Store
	if s == nil {
		s = store.NewFake()
	}

	key := opts.Key
	if key == "" {
		key = keys.New(keys.BloomPrefix)
	}
	autoKey := keys.HasPrefix(key, keys.BloomPrefix)

	m, k := size(n, p)

	f := &Filter{
		store:   s,
		key:     key,
		autoKey: autoKey,
		n:       n,
		p:       p,
		m:       m,
		k:       k,
	}

	if err := f.load(ctx); err != nil {
		return nil, err
	}

	if len(opts.Initial) > 0 {
		if err := f.Update(ctx, opts.Initial...); err != nil {
			return nil, err
		}
	}

	return f, nil
}

// size derives (m, k) from (n, p) per spec: m_raw = ceil(-n*ln(p)/ln(2)^2),
// rounded up to a multiple of 8; k = ceil(floor(m/n)*ln(2)), where m/n is
// integer (floor) division — matching the original implementation's
// Python-2 integer-division behavior, which the reference offsets in the
// spec were computed against.
func size(n int, p float64) (m, k int) {
	ln2 := math.Log(2)
	mRaw := int(math.Ceil(-float64(n) * math.Log(p) / (ln2 * ln2)))
	pad := (8 - mRaw%8) % 8
	m = mRaw + pad
	k = int(math.Ceil(float64(m/n) * ln2))
	return m, k
}

// load reads the filter's bytes from the store, seeding an all-zero array
// if absent (spec §4.3 lifecycle).
func (f *Filter) load(ctx context.Context) error {
	value, token, ok, err := f.store.Gets(ctx, f.key)
	if err != nil {
		return &Error{Key: f.key, err: fmt.Errorf("loading: %w", err)}
	}
	if !ok {
		zero := make([]byte, f.m/8)
		if err := f.store.Set(ctx, f.key, zero, 0, false); err != nil {
			return &Error{Key: f.key, err: fmt.Errorf("seeding: %w", err)}
		}
		value, token, ok, err = f.store.Gets(ctx, f.key)
		if err != nil {
			return &Error{Key: f.key, err: fmt.Errorf("reloading after seed: %w", err)}
		}
		if !ok {
			return &Error{Key: f.key, err: fmt.Errorf("key vanished immediately after seeding")}
		}
	}

	f.bits = value
	f.token = token
	return nil
}

// Add is equivalent to Update(ctx, value).
func (f *Filter) Add(ctx context.Context, value any) error {
	return f.Update(ctx, value)
}

// Update inserts every value in values into the filter. The union of all
// their bit offsets is computed, the corresponding bits are set locally,
// and the result is persisted via the CAS-retry protocol (spec §4.3): on
// conflict, the mutation (a bit union, which is idempotent and monotone) is
// replayed against a freshly reloaded base.
func (f *Filter) Update(ctx context.Context, values ...any) error {
	offsets, err := f.offsetsFor(values...)
	if err != nil {
		return err
	}

	mutate := func(current []byte) []byte {
		next := make([]byte, len(current))
		copy(next, current)
		for _, off := range offsets {
			setBit(next, off)
		}
		return next
	}

	return f.mutate(ctx, mutate)
}

// Contains reports whether value's k bits are all set in the locally held
// bit array. It never touches the store.
func (f *Filter) Contains(value any) (bool, error) {
	offsets, err := f.offsetsFor(value)
	if err != nil {
		return false, err
	}
	for _, off := range offsets {
		if !testBit(f.bits, off) {
			return false, nil
		}
	}
	return true, nil
}

// Len returns an approximation of the number of distinct elements inserted,
// via the standard estimator floor(-(m/k)*ln(1 - x/m)) where x is the
// popcount of the bit array. This estimator is not monotone under union (it
// can both over- and under-estimate after a merge); see spec §9's Open
// Question. It is computed entirely from local state.
func (f *Filter) Len() int {
	x := popcount(f.bits)
	if x == 0 {
		return 0
	}
	if x >= f.m {
		// The estimator is undefined (ln(0)) at full saturation; report the
		// theoretical ceiling rather than propagating -Inf/NaN.
		return f.n
	}
	estimate := -(float64(f.m) / float64(f.k)) * math.Log(1-float64(x)/float64(f.m))
	return int(math.Floor(estimate))
}

// Clear resets every bit to 0, persisted via the same CAS-retry protocol as
// Update. Clear is idempotent, so replay on conflict is trivially safe.
func (f *Filter) Clear(ctx context.Context) error {
	mutate := func(current []byte) []byte {
		return make([]byte, len(current))
	}
	return f.mutate(ctx, mutate)
}

// Close removes the filter's key from the store if it carries
// [keys.BloomPrefix] (spec §3 lifecycle: owned keys are cleaned up on
// teardown). Go has no
// destructor equivalent to the original's __del__, so callers that want
// this cleanup must call Close explicitly, typically via defer.
func (f *Filter) Close(ctx context.Context) error {
	if !f.autoKey {
		return nil
	}
	_, err := f.store.Delete(ctx, f.key, false)
	if err != nil {
		return &Error{Key: f.key, err: fmt.Errorf("closing: %w", err)}
	}
	return nil
}

// Key returns the store key backing this filter.
func (f *Filter) Key() string { return f.key }

// N returns the configured expected element count.
func (f *Filter) N() int { return f.n }

// M returns the derived bit-array length.
func (f *Filter) M() int { return f.m }

// K returns the derived hash count.
func (f *Filter) K() int { return f.k }

// Bits returns a copy of the filter's locally held bit array.
func (f *Filter) Bits() []byte {
	out := make([]byte, len(f.bits))
	copy(out, f.bits)
	return out
}

// String implements fmt.Stringer.
func (f *Filter) String() string {
	return fmt.Sprintf("<BloomFilter key=%s>", f.key)
}

func (f *Filter) mutate(ctx context.Context, mutate func(current []byte) []byte) error {
	result, err := casretry.Do(ctx, f.store, f.key, func() []byte {
		return make([]byte, f.m/8)
	}, mutate, maxCASAttempts)
	if errors.Is(err, casretry.ErrExhausted) {
		return concurrentModificationErrorFrom(f.key, err)
	}
	if err != nil {
		return &Error{Key: f.key, err: err}
	}

	f.bits = result.Bytes
	f.token = result.Token
	return nil
}

func (f *Filter) offsetsFor(values ...any) ([]int, error) {
	seen := make(map[int]struct{})
	offsets := make([]int, 0, len(values)*f.k)
	for _, v := range values {
		encoded, err := hashenc.Canonicalize(v)
		if err != nil {
			return nil, &Error{Key: f.key, err: err}
		}
		for _, off := range hashenc.Offsets(encoded, f.k, f.m) {
			if _, ok := seen[off]; ok {
				continue
			}
			seen[off] = struct{}{}
			offsets = append(offsets, off)
		}
	}
	return offsets, nil
}

func concurrentModificationErrorFrom(key string, cause error) error {
	wrapped := concurrentModificationError(key)
	// Preserve the underlying casretry error in the chain for diagnostics
	// while still classifying as ErrConcurrentModification via errors.Is.
	return fmt.Errorf("%w (%w)", wrapped, cause)
}

// setBit sets the bit at offset i, MSB-first within each byte (spec §6:
// bit index i lives in byte i/8, at bit position 7-(i mod 8)).
func setBit(bits []byte, i int) {
	bits[i/8] |= 1 << (7 - uint(i%8))
}

// testBit reports whether the bit at offset i is set.
func testBit(bits []byte, i int) bool {
	return bits[i/8]&(1<<(7-uint(i%8))) != 0
}

func popcount(bits []byte) int {
	count := 0
	for _, b := range bits {
		for b != 0 {
			count += int(b & 1)
			b >>= 1
		}
	}
	return count
}
