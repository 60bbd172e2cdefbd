package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	callbackdomain "github.com/geocubed/cubehub/internal/callback/domain"
	cubegendomain "github.com/geocubed/cubehub/internal/cubegen/domain"
	estimatordomain "github.com/geocubed/cubehub/internal/estimator/domain"
	ledgerdomain "github.com/geocubed/cubehub/internal/ledger/domain"
	obsmetrics "github.com/geocubed/cubehub/internal/observability/metrics"
	"github.com/geocubed/cubehub/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Store      store.Store
	Estimator  estimatordomain.Service
	Ledger     ledgerdomain.Service
	Log        *zap.Logger
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	store      store.Store
	estimator  estimatordomain.Service
	ledger     ledgerdomain.Service
	log        *zap.Logger
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) callbackdomain.Service {
	return &Service{
		store:      p.Store,
		estimator:  p.Estimator,
		ledger:     p.Ledger,
		log:        p.Log.Named("callback.service"),
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) PutCallback(ctx context.Context, user, jobID string, event cubegendomain.ProgressEvent, email string) error {
	if event.State == nil {
		return estimatordomain.NewMissingKeyError("state")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	s.obsMetrics.RecordCallback(ctx, event.Sender)

	// The billed flag flips inside the same atomic write that appends the
	// terminal event, so a redelivered on_end is stored but never charges a
	// second time.
	shouldBill := false
	err := s.store.Update(ctx, cubegendomain.ProgressKey(user, jobID), func(old []byte, found bool) ([]byte, error) {
		shouldBill = false
		var record cubegendomain.ProgressRecord
		if found {
			if err := json.Unmarshal(old, &record); err != nil {
				return nil, err
			}
		}
		record.Progress = append(record.Progress, event)
		if event.Sender == cubegendomain.SenderOnEnd && event.State.Error == "" && !record.Billed {
			record.Billed = true
			shouldBill = true
		}
		return json.Marshal(record)
	})
	if err != nil {
		return err
	}

	if event.Sender != cubegendomain.SenderOnEnd {
		return nil
	}
	if event.State.Error != "" {
		s.log.Info("job reported terminal failure",
			zap.String("job_id", jobID),
			zap.String("error", event.State.Error),
		)
		return nil
	}
	if !shouldBill {
		s.log.Warn("duplicate terminal callback ignored for billing", zap.String("job_id", jobID))
		return nil
	}

	return s.bill(ctx, user, jobID, event, email)
}

// bill settles the final charge using the job's actual output descriptor.
func (s *Service) bill(ctx context.Context, user, jobID string, event cubegendomain.ProgressEvent, email string) error {
	raw, found, err := s.store.Get(ctx, cubegendomain.ConfigKey(user, jobID))
	if err != nil {
		return err
	}
	if !found {
		return callbackdomain.ErrJobConfigNotFound
	}
	var record cubegendomain.JobRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return err
	}

	if !record.Descriptor.HasInput() {
		return cubegendomain.NewMissingInputError()
	}
	if record.Descriptor.OutputConfig.CostParams == nil {
		return estimatordomain.NewMissingKeyError("output_config/cost_params")
	}
	params := *record.Descriptor.OutputConfig.CostParams

	var cost estimatordomain.CostEstimate
	if actual := event.State.DatasetDescriptor; actual != nil {
		cost, err = s.estimator.EstimateCost(actual, params)
	} else {
		// The job did not report its produced descriptor; fall back to the
		// originally requested grid.
		_, cost, err = s.estimator.Estimate(record.Descriptor.CubeConfig, params)
	}
	if err != nil {
		return err
	}
	if cost.TotalCount == 0 {
		return nil
	}

	target := strings.TrimSpace(email)
	if target == "" {
		target = record.Email
	}
	if err := s.ledger.Subtract(ctx, target, ledgerdomain.PunitsRequest{Punits: cost}); err != nil {
		// The billed flag is already set; failing here means the job stays
		// uncharged rather than risking a double debit on redelivery.
		s.log.Error("final debit failed",
			zap.String("job_id", jobID),
			zap.String("user", target),
			zap.Int64("total_count", cost.TotalCount),
			zap.Error(err),
		)
		return err
	}

	s.log.Info("job billed",
		zap.String("job_id", jobID),
		zap.String("user", target),
		zap.Int64("total_count", cost.TotalCount),
	)
	return nil
}
