// Package medium defines the durable key-value medium that backs the entity
// store and the operation queue.
//
// A Medium is a synchronous, string-keyed store with per-key atomic writes
// and prefix enumeration. Implementations must report capacity exhaustion
// as ErrQuotaExceeded (possibly wrapped) so callers can tell "disk full"
// apart from other I/O failures.
package medium

import (
	"context"
	"errors"
)

// ErrQuotaExceeded reports that the medium rejected a write for capacity
// reasons. The write did not happen.
var ErrQuotaExceeded = errors.New("medium: quota exceeded")

// Medium is the durable storage contract.
type Medium interface {
	// Get returns the value stored at key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores val at key, replacing any previous value atomically.
	Set(ctx context.Context, key, val string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// Keys returns every key starting with prefix in ascending order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Swapper is implemented by media that can conditionally write a key.
//
// CompareAndSwap stores val at key only if the current state matches:
// when oldExists is false the key must be absent, otherwise its value must
// equal old. It reports whether the write happened.
type Swapper interface {
	CompareAndSwap(ctx context.Context, key, old string, oldExists bool, val string) (bool, error)
}

// IsQuotaExceeded reports whether err is (or wraps) ErrQuotaExceeded.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}
