// Package domain contains the progress-callback reconciliation contract.
package domain

import (
	"context"
	"errors"

	cubegendomain "github.com/geocubed/cubehub/internal/cubegen/domain"
)

// Service accumulates progress events pushed by running jobs and settles the
// final charge of a successfully finished job against the ledger. It is the
// only component permitted to debit the ledger for a job, and it does so at
// most once per job.
type Service interface {
	PutCallback(ctx context.Context, user, jobID string, event cubegendomain.ProgressEvent, email string) error
}

// ErrJobConfigNotFound reports a terminal callback for a job whose stored
// configuration no longer exists; nothing can be billed.
var ErrJobConfigNotFound = errors.New("job_config_not_found")
