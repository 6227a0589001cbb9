package bloom

import (
	"errors"
	"fmt"
)

// ErrConcurrentModification is the sentinel every mutating operation's
// returned error wraps when every CAS attempt lost the race to a concurrent
// writer. It is retriable: calling the same operation again is always safe.
var ErrConcurrentModification = errors.New("bloom: concurrent modification, retries exhausted")

// Error carries diagnostic context for a failed operation: the key involved
// and whether a caller should consider retrying.
type Error struct {
	Key       string
	Retriable bool
	err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("bloom: key %q: %v", e.Key, e.err)
}

func (e *Error) Unwrap() error { return e.err }

func concurrentModificationError(key string) error {
	return &Error{Key: key, Retriable: true, err: ErrConcurrentModification}
}
