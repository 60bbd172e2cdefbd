// Package domain contains the cubegen job descriptor, its stored records and
// the lifecycle service contract.
package domain

import (
	"encoding/json"
	"time"

	"github.com/geocubed/cubehub/internal/cluster"
	estimatordomain "github.com/geocubed/cubehub/internal/estimator/domain"
)

// Job lifecycle states.
const (
	StateCreated        = "CREATED"
	StateSubmitted      = "SUBMITTED"
	StateRunning        = "RUNNING"
	StateFailedToSubmit = "FAILED_TO_SUBMIT"
	StateCompleted      = "COMPLETED"
	StateFailed         = "FAILED"
)

// Progress event senders.
const (
	SenderOnBegin      = "on_begin"
	SenderOnEnd        = "on_end"
	SenderIntermediate = "intermediate"
)

// DataStoreConfig identifies a data source or destination store.
type DataStoreConfig struct {
	StoreID     string                      `json:"store_id"`
	DataID      string                      `json:"data_id,omitempty"`
	OpenParams  map[string]any              `json:"open_params,omitempty"`
	StoreParams map[string]any              `json:"store_params,omitempty"`
	CostParams  *estimatordomain.CostParams `json:"cost_params,omitempty"`
}

// CallbackConfig tells the running job where to report progress.
type CallbackConfig struct {
	Endpoint    string `json:"endpoint"`
	AccessToken string `json:"access_token,omitempty"`
}

// CubeDescriptor is the declarative job request. Immutable once a job is
// created; used once for the pre-flight estimate and once, as the actually
// produced dataset descriptor, for final billing.
type CubeDescriptor struct {
	InputConfig    *DataStoreConfig           `json:"input_config,omitempty"`
	InputConfigs   []DataStoreConfig          `json:"input_configs,omitempty"`
	CubeConfig     estimatordomain.CubeConfig `json:"cube_config"`
	OutputConfig   DataStoreConfig            `json:"output_config"`
	CallbackConfig *CallbackConfig            `json:"callback_config,omitempty"`
}

// HasInput reports whether the descriptor names at least one input source.
func (d CubeDescriptor) HasInput() bool {
	return d.InputConfig != nil || len(d.InputConfigs) > 0
}

// ProgressState is the payload of a progress event. The running job may
// report any keys it likes; the whole payload is the audit trail, so unknown
// keys are stored and served back verbatim. Error marks a terminal failure
// when set on an on_end event.
type ProgressState struct {
	Error             string
	Progress          float64
	Message           string
	DatasetDescriptor *estimatordomain.DatasetDescriptor

	extra map[string]json.RawMessage
}

var _ json.Marshaler = ProgressState{}
var _ json.Unmarshaler = (*ProgressState)(nil)

func (s *ProgressState) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	take := func(key string, into any) error {
		v, ok := raw[key]
		if !ok {
			return nil
		}
		if err := json.Unmarshal(v, into); err != nil {
			return err
		}
		delete(raw, key)
		return nil
	}
	if err := take("error", &s.Error); err != nil {
		return err
	}
	if err := take("progress", &s.Progress); err != nil {
		return err
	}
	if err := take("message", &s.Message); err != nil {
		return err
	}
	if err := take("dataset_descriptor", &s.DatasetDescriptor); err != nil {
		return err
	}

	if len(raw) > 0 {
		s.extra = raw
	} else {
		s.extra = nil
	}
	return nil
}

func (s ProgressState) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(s.extra)+4)
	for k, v := range s.extra {
		out[k] = v
	}

	put := func(key string, value any) error {
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		out[key] = raw
		return nil
	}
	if s.Error != "" {
		if err := put("error", s.Error); err != nil {
			return nil, err
		}
	}
	if s.Progress != 0 {
		if err := put("progress", s.Progress); err != nil {
			return nil, err
		}
	}
	if s.Message != "" {
		if err := put("message", s.Message); err != nil {
			return nil, err
		}
	}
	if s.DatasetDescriptor != nil {
		if err := put("dataset_descriptor", s.DatasetDescriptor); err != nil {
			return nil, err
		}
	}
	return json.Marshal(out)
}

// ProgressEvent is one callback pushed by the running job.
type ProgressEvent struct {
	Sender    string         `json:"sender"`
	State     *ProgressState `json:"state"`
	Timestamp time.Time      `json:"timestamp"`
}

// ProgressRecord accumulates progress events in arrival order. Billed flips
// exactly once, inside the same write that appends the terminal event, so a
// duplicate on_end delivery can never double-charge.
type ProgressRecord struct {
	Progress []ProgressEvent `json:"progress"`
	Billed   bool            `json:"billed"`
}

// JobRecord is the job's original configuration as persisted at creation.
type JobRecord struct {
	JobID      string         `json:"job_id"`
	UserID     string         `json:"user_id"`
	Email      string         `json:"email"`
	Descriptor CubeDescriptor `json:"descriptor"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ProgressKey is the store key of a job's progress record.
func ProgressKey(user, jobID string) string { return user + "__" + jobID }

// ConfigKey is the store key of a job's immutable configuration.
func ConfigKey(user, jobID string) string { return user + "__" + jobID + "__cfg" }

// JobInfo merges the cluster-reported status and logs with the accumulated
// progress events.
type JobInfo struct {
	JobID    string            `json:"job_id"`
	Status   cluster.JobStatus `json:"status"`
	Logs     []string          `json:"logs,omitempty"`
	Progress []ProgressEvent   `json:"progress,omitempty"`
}

// CubegenResult is returned from a successful creation.
type CubegenResult struct {
	JobID  string                       `json:"job_id"`
	Status string                       `json:"status"`
	Cost   estimatordomain.CostEstimate `json:"cost"`
}

// EstimateResult is the response of the info (estimate-only) operation.
type EstimateResult struct {
	Size estimatordomain.SizeEstimate `json:"size"`
	Cost estimatordomain.CostEstimate `json:"cost"`
}
