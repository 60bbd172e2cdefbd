package domain

import (
	"context"
	"errors"
	"fmt"
)

// Service mutates per-user punit balances. Every accepted mutation persists
// the new balance together with exactly one new history entry as a single
// atomic write; rejected mutations leave the record untouched.
type Service interface {
	// Get returns the user's record, or nil when the user has none yet.
	// History is omitted unless includeHistory is set.
	Get(ctx context.Context, user string, includeHistory bool) (*LedgerRecord, error)
	Add(ctx context.Context, user string, req PunitsRequest) error
	Subtract(ctx context.Context, user string, req PunitsRequest) error
	Override(ctx context.Context, user string, req PunitsRequest) error
	// Delete removes the entire record; deleting an absent record is not an
	// error.
	Delete(ctx context.Context, user string) error
}

var (
	ErrInvalidUser       = errors.New("invalid_user")
	ErrInvalidTotalCount = errors.New("invalid_total_count")
)

// InsufficientError rejects a mutation that would drive the balance negative.
type InsufficientError struct {
	Required  int64
	Available int64
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("not enough processing units: required %d, available %d",
		e.Required, e.Available)
}
