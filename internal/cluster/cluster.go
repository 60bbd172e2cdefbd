// Package cluster wraps the compute cluster behind the narrow contract the
// lifecycle manager consumes. The cluster runs opaque cubegen workloads; this
// package never interprets their content.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Job phases as reported by Status.
const (
	PhasePending   = "Pending"
	PhaseActive    = "Active"
	PhaseSucceeded = "Succeeded"
	PhaseFailed    = "Failed"
)

// JobSpec is one opaque unit of work.
type JobSpec struct {
	// Descriptor is the serialized cubegen request handed to the runner.
	Descriptor []byte
	Labels     map[string]string
}

// JobStatus is the cluster-reported state of a job.
type JobStatus struct {
	Phase          string     `json:"phase"`
	Active         int32      `json:"active"`
	Succeeded      bool       `json:"succeeded"`
	Failed         bool       `json:"failed"`
	StartTime      *time.Time `json:"start_time,omitempty"`
	CompletionTime *time.Time `json:"completion_time,omitempty"`
}

// Scheduler is the boundary contract to the compute cluster.
type Scheduler interface {
	Submit(ctx context.Context, jobID string, spec JobSpec) error
	Status(ctx context.Context, jobID string) (JobStatus, error)
	Logs(ctx context.Context, jobID string) ([]string, error)
	// List returns all job identities starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, jobID string) error
}

// ErrJobNotFound reports a job unknown to the cluster; callers must not
// conflate it with a cluster failure.
var ErrJobNotFound = errors.New("job not found")

// Error carries the upstream status code and reason of a cluster failure.
type Error struct {
	Code   int
	Reason string
	cause  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cluster error (%d %s)", e.Code, e.Reason)
}

func (e *Error) Unwrap() error { return e.cause }
