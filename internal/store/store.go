// Package store provides the key/value persistence used for ledger records
// and cubegen job state. Backends are selected by configuration; all of them
// provide an atomic read-modify-write via Update so callers never lose
// concurrent updates to the same key.
package store

import (
	"context"
	"errors"
)

// UpdateFunc receives the current value (found reports whether the key
// exists) and returns the value to persist. Returning an error aborts the
// update without writing. The function may be invoked more than once when a
// backend retries an optimistic transaction, so it must be side-effect free
// up to its return values.
type UpdateFunc func(old []byte, found bool) ([]byte, error)

// Store is the capability interface over a key/value backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) (bool, error)
	Update(ctx context.Context, key string, fn UpdateFunc) error
}

// ErrTooMuchContention is returned when an optimistic update could not be
// committed after the configured number of retries.
var ErrTooMuchContention = errors.New("store: too much contention on key")
