// Package recency implements a bounded, deduplicating, insertion-ordered
// sequence ("recently consumed" set) persisted as a single JSON value in a
// [store.Store].
//
// A Queue is not safe for concurrent mutation across instances sharing a
// key; callers that need that must wrap mutations in an external
// [package memlock] lock.
package recency

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/brainix/bloom/pkg/keys"
	"github.com/brainix/bloom/pkg/store"
)

// DefaultMaxLen is the maxLen applied when Options.MaxLen is zero and
// Options.Unbounded is false.
const DefaultMaxLen = 1000

// Options configures a new [Queue].
type Options struct {
	// Store is the backing store. Defaults to a [store.Fake] when nil.
	Store store.Store
	// Key is the store key. A random key with prefix [keys.RecencyPrefix]
	// is generated when empty.
	Key string
	// MaxLen bounds the queue's length. Default [DefaultMaxLen]. Ignored
	// when Unbounded is true. Immutable after construction.
	MaxLen int
	// Unbounded, if true, means the queue never prunes regardless of
	// MaxLen.
	Unbounded bool
	// NoReply selects fire-and-forget persistence (Set/Delete with
	// noreply) over acknowledged writes. Default false (acknowledged).
	NoReply bool
}

// Queue is a handle onto a recency set persisted in a [store.Store].
//
// Queue is not safe for concurrent use by multiple goroutines.
type Queue struct {
	store     store.Store
	key       string
	maxLen    int
	unbounded bool
	noReply   bool

	items   []string
	members map[string]struct{}
}

// New constructs a Queue, loading existing state from the store (absence
// is treated as an empty sequence).
func New(ctx context.Context, opts Options) (*Queue, error) {
	maxLen := opts.MaxLen
	if maxLen == 0 && !opts.Unbounded {
		maxLen = DefaultMaxLen
	}

	s := opts.Store
	if s == nil {
		s = store.NewFake()
	}

	key := opts.Key
	if key == "" {
		key = keys.New(keys.RecencyPrefix)
	}

	q := &Queue{
		store:     s,
		key:       key,
		maxLen:    maxLen,
		unbounded: opts.Unbounded,
		noReply:   opts.NoReply,
		members:   make(map[string]struct{}),
	}

	if err := q.load(ctx); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Queue) load(ctx context.Context) error {
	value, ok, err := q.store.Get(ctx, q.key)
	if err != nil {
		return &Error{Key: q.key, err: fmt.Errorf("loading: %w", err)}
	}
	if !ok {
		value = []byte("[]")
	}

	var items []string
	if err := json.Unmarshal(value, &items); err != nil {
		return &Error{Key: q.key, err: fmt.Errorf("decoding persisted sequence: %w", err)}
	}

	if !q.unbounded && len(items) > q.maxLen {
		return persistedOverflowError(q.key)
	}

	q.items = items
	q.members = make(map[string]struct{}, len(items))
	for _, v := range items {
		q.members[v] = struct{}{}
	}
	return nil
}

// normalize coerces value to the string form used for membership and
// persistence, matching the original's treatment of ints/floats/bools as
// string-coercible scalars alongside native strings.
func normalize(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}

// Append adds value to the right of the sequence unless it is already a
// member (a no-op in that case), then prunes from the left until the
// length is within bound, then persists.
func (q *Queue) Append(ctx context.Context, value any) error {
	return q.Extend(ctx, value)
}

// Extend appends values in order, deduping against current membership and
// against earlier values in this same call while preserving
// first-occurrence order, prunes once, and persists once. If every value
// is already a member, this is a no-op (no store write).
func (q *Queue) Extend(ctx context.Context, values ...any) error {
	fresh := make([]string, 0, len(values))
	seenThisCall := make(map[string]struct{}, len(values))
	for _, v := range values {
		s := normalize(v)
		if _, ok := q.members[s]; ok {
			continue
		}
		if _, ok := seenThisCall[s]; ok {
			continue
		}
		seenThisCall[s] = struct{}{}
		fresh = append(fresh, s)
	}

	if len(fresh) == 0 {
		return nil
	}

	q.items = append(q.items, fresh...)
	for _, s := range fresh {
		q.members[s] = struct{}{}
	}
	q.prune()

	return q.persist(ctx)
}

// prune drops elements from the left until len(items) <= maxLen. No-op
// when unbounded.
func (q *Queue) prune() {
	if q.unbounded {
		return
	}
	for len(q.items) > q.maxLen {
		dropped := q.items[0]
		q.items = q.items[1:]
		delete(q.members, dropped)
	}
}

func (q *Queue) persist(ctx context.Context) error {
	if len(q.items) == 0 {
		if _, err := q.store.Delete(ctx, q.key, q.noReply); err != nil {
			return &Error{Key: q.key, err: fmt.Errorf("deleting: %w", err)}
		}
		return nil
	}

	encoded, err := json.Marshal(q.items)
	if err != nil {
		return &Error{Key: q.key, err: fmt.Errorf("encoding: %w", err)}
	}
	if err := q.store.Set(ctx, q.key, encoded, 0, q.noReply); err != nil {
		return &Error{Key: q.key, err: fmt.Errorf("persisting: %w", err)}
	}
	return nil
}

// Contains reports whether value (in its normalized string form) is
// currently a member.
func (q *Queue) Contains(value any) bool {
	_, ok := q.members[normalize(value)]
	return ok
}

// Len returns the current element count.
func (q *Queue) Len() int {
	return len(q.items)
}

// Clear empties the sequence and persists by deleting the key.
func (q *Queue) Clear(ctx context.Context) error {
	q.items = nil
	q.members = make(map[string]struct{})
	return q.persist(ctx)
}

// Key returns the store key backing this queue.
func (q *Queue) Key() string { return q.key }

// MaxLen returns the queue's configured maximum length. It has no
// unbounded representation; callers that need to know whether the queue
// prunes at all should also check Options.Unbounded at construction time.
func (q *Queue) MaxLen() int { return q.maxLen }

// SetMaxLen always fails with [ErrImmutableMaxLen]: a queue's maxLen is
// fixed for its lifetime and can never be changed after construction.
func (q *Queue) SetMaxLen(int) error {
	return immutableMaxLenError(q.key)
}

// String implements fmt.Stringer.
func (q *Queue) String() string {
	quoted := make([]string, len(q.items))
	for i, v := range q.items {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	body := fmt.Sprintf("[%s]", strings.Join(quoted, ", "))

	if q.unbounded {
		return fmt.Sprintf("RecentlyConsumed(%s, key=%s)", body, q.key)
	}
	return fmt.Sprintf("RecentlyConsumed(%s, key=%s, maxlen=%d)", body, q.key, q.maxLen)
}
