package domain

import (
	"context"
	"errors"
	"fmt"

	estimatordomain "github.com/geocubed/cubehub/internal/estimator/domain"
)

// Service orchestrates cubegen job submission, status and deletion.
type Service interface {
	// Create runs the pre-flight cost check, persists the job and submits it
	// to the cluster. token is attached to the descriptor so the running job
	// can authenticate its progress callbacks.
	Create(ctx context.Context, user, email, token string, desc CubeDescriptor) (*CubegenResult, error)
	// Get merges cluster status, cluster logs and accumulated progress.
	Get(ctx context.Context, user, jobID string) (*JobInfo, error)
	// List resolves every cluster-visible job owned by user.
	List(ctx context.Context, user string) ([]JobInfo, error)
	// Estimate prices a descriptor without submitting anything.
	Estimate(desc CubeDescriptor) (*EstimateResult, error)
	Delete(ctx context.Context, user, jobID string) error
	DeleteAll(ctx context.Context, user string) error
}

// ErrSubmitTimeout reports a creation that timed out waiting for the job to
// leave the pending phase.
var ErrSubmitTimeout = errors.New("timed out waiting for job to start")

// QuotaError rejects a job whose estimated cost exceeds the caller's balance
// or the configured absolute ceiling.
type QuotaError struct {
	Required  int64
	Available int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("not enough processing units available: required %d, available %d",
		e.Required, e.Available)
}

// NewMissingInputError reports a descriptor naming no input source.
func NewMissingInputError() *estimatordomain.ValidationError {
	return &estimatordomain.ValidationError{
		Message: `either "input_config" or "input_configs" must be given`,
	}
}
