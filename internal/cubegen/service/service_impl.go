package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/geocubed/cubehub/internal/cluster"
	"github.com/geocubed/cubehub/internal/config"
	cubegendomain "github.com/geocubed/cubehub/internal/cubegen/domain"
	estimatordomain "github.com/geocubed/cubehub/internal/estimator/domain"
	ledgerdomain "github.com/geocubed/cubehub/internal/ledger/domain"
	obsmetrics "github.com/geocubed/cubehub/internal/observability/metrics"
	"github.com/geocubed/cubehub/internal/store"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// startPollInterval paces the wait for a submitted job to leave Pending.
const startPollInterval = 500 * time.Millisecond

type Params struct {
	fx.In

	Store      store.Store
	Scheduler  cluster.Scheduler
	Estimator  estimatordomain.Service
	Ledger     ledgerdomain.Service
	Cfg        config.Config
	Log        *zap.Logger
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	store      store.Store
	scheduler  cluster.Scheduler
	estimator  estimatordomain.Service
	ledger     ledgerdomain.Service
	cfg        config.Config
	log        *zap.Logger
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) cubegendomain.Service {
	return &Service{
		store:      p.Store,
		scheduler:  p.Scheduler,
		estimator:  p.Estimator,
		ledger:     p.Ledger,
		cfg:        p.Cfg,
		log:        p.Log.Named("cubegen.service"),
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Create(ctx context.Context, user, email, token string, desc cubegendomain.CubeDescriptor) (*cubegendomain.CubegenResult, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return nil, ledgerdomain.ErrInvalidUser
	}
	if !desc.HasInput() {
		return nil, cubegendomain.NewMissingInputError()
	}

	costParams, err := resolveCostParams(desc)
	if err != nil {
		return nil, err
	}
	_, cost, err := s.estimator.Estimate(desc.CubeConfig, costParams)
	if err != nil {
		return nil, err
	}

	if cost.TotalCount > s.cfg.PunitsCeiling {
		return nil, &cubegendomain.QuotaError{
			Required:  cost.TotalCount,
			Available: s.cfg.PunitsCeiling,
		}
	}
	available := int64(0)
	if record, err := s.ledger.Get(ctx, email, false); err != nil {
		return nil, err
	} else if record != nil {
		available = record.Count
	}
	if cost.TotalCount > available {
		return nil, &cubegendomain.QuotaError{
			Required:  cost.TotalCount,
			Available: available,
		}
	}

	jobID := mintJobID(user)
	desc.CallbackConfig = &cubegendomain.CallbackConfig{
		Endpoint:    s.cfg.CallbackBaseURL + "/cubegens/" + jobID + "/callbacks",
		AccessToken: token,
	}

	record := cubegendomain.JobRecord{
		JobID:      jobID,
		UserID:     user,
		Email:      email,
		Descriptor: desc,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.persistJob(ctx, record); err != nil {
		return nil, err
	}

	if err := s.submitAndAwait(ctx, jobID, desc); err != nil {
		// Creation is all-or-nothing: a failed submission must not leave
		// job state behind.
		s.discardJob(ctx, user, jobID)
		s.obsMetrics.RecordSubmission(ctx, "failed")
		return nil, err
	}

	s.obsMetrics.RecordSubmission(ctx, "submitted")
	s.log.Info("cubegen created",
		zap.String("user", user),
		zap.String("job_id", jobID),
		zap.Int64("estimated_punits", cost.TotalCount),
	)
	return &cubegendomain.CubegenResult{
		JobID:  jobID,
		Status: cubegendomain.StateSubmitted,
		Cost:   cost,
	}, nil
}

func (s *Service) Get(ctx context.Context, user, jobID string) (*cubegendomain.JobInfo, error) {
	if !strings.HasPrefix(jobID, user+"-") {
		return nil, cluster.ErrJobNotFound
	}
	status, err := s.scheduler.Status(ctx, jobID)
	if err != nil {
		return nil, err
	}

	logs, err := s.scheduler.Logs(ctx, jobID)
	if err != nil {
		// Logs are an auxiliary view; their loss must not hide the status.
		s.log.Warn("cannot fetch job logs", zap.String("job_id", jobID), zap.Error(err))
		logs = nil
	}

	var progress []cubegendomain.ProgressEvent
	raw, found, err := s.store.Get(ctx, cubegendomain.ProgressKey(user, jobID))
	if err != nil {
		return nil, err
	}
	if found {
		var record cubegendomain.ProgressRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, err
		}
		progress = record.Progress
	}

	return &cubegendomain.JobInfo{
		JobID:    jobID,
		Status:   status,
		Logs:     logs,
		Progress: progress,
	}, nil
}

func (s *Service) List(ctx context.Context, user string) ([]cubegendomain.JobInfo, error) {
	ids, err := s.scheduler.List(ctx, user+"-")
	if err != nil {
		return nil, err
	}

	jobs := make([]cubegendomain.JobInfo, 0, len(ids))
	for _, id := range ids {
		info, err := s.Get(ctx, user, id)
		if errors.Is(err, cluster.ErrJobNotFound) {
			// Deleted between list and get.
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *info)
	}
	return jobs, nil
}

func (s *Service) Estimate(desc cubegendomain.CubeDescriptor) (*cubegendomain.EstimateResult, error) {
	if !desc.HasInput() {
		return nil, cubegendomain.NewMissingInputError()
	}
	costParams, err := resolveCostParams(desc)
	if err != nil {
		return nil, err
	}
	size, cost, err := s.estimator.Estimate(desc.CubeConfig, costParams)
	if err != nil {
		return nil, err
	}
	return &cubegendomain.EstimateResult{Size: size, Cost: cost}, nil
}

func (s *Service) Delete(ctx context.Context, user, jobID string) error {
	if !strings.HasPrefix(jobID, user+"-") {
		return cluster.ErrJobNotFound
	}
	return s.scheduler.Delete(ctx, jobID)
}

func (s *Service) DeleteAll(ctx context.Context, user string) error {
	ids, err := s.scheduler.List(ctx, user+"-")
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.scheduler.Delete(ctx, id); err != nil && !errors.Is(err, cluster.ErrJobNotFound) {
			return err
		}
	}
	return nil
}

func (s *Service) persistJob(ctx context.Context, record cubegendomain.JobRecord) error {
	cfg, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, cubegendomain.ConfigKey(record.UserID, record.JobID), cfg); err != nil {
		return err
	}
	empty, err := json.Marshal(cubegendomain.ProgressRecord{})
	if err != nil {
		return err
	}
	return s.store.Set(ctx, cubegendomain.ProgressKey(record.UserID, record.JobID), empty)
}

func (s *Service) discardJob(ctx context.Context, user, jobID string) {
	if _, err := s.store.Delete(ctx, cubegendomain.ConfigKey(user, jobID)); err != nil {
		s.log.Warn("cannot discard job config", zap.String("job_id", jobID), zap.Error(err))
	}
	if _, err := s.store.Delete(ctx, cubegendomain.ProgressKey(user, jobID)); err != nil {
		s.log.Warn("cannot discard job progress", zap.String("job_id", jobID), zap.Error(err))
	}
}

// submitAndAwait submits the job and waits, bounded by the configured submit
// timeout, until the cluster reports it out of the pending phase.
func (s *Service) submitAndAwait(ctx context.Context, jobID string, desc cubegendomain.CubeDescriptor) error {
	payload, err := json.Marshal(desc)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.SubmitTimeout)
	defer cancel()

	if err := s.scheduler.Submit(ctx, jobID, cluster.JobSpec{
		Descriptor: payload,
		Labels:     map[string]string{"cubehub/job-id": jobID},
	}); err != nil {
		return err
	}

	ticker := time.NewTicker(startPollInterval)
	defer ticker.Stop()
	for {
		status, err := s.scheduler.Status(ctx, jobID)
		if err != nil {
			return err
		}
		if status.Phase != cluster.PhasePending {
			return nil
		}
		select {
		case <-ctx.Done():
			return cubegendomain.ErrSubmitTimeout
		case <-ticker.C:
		}
	}
}

func resolveCostParams(desc cubegendomain.CubeDescriptor) (estimatordomain.CostParams, error) {
	if desc.OutputConfig.CostParams == nil {
		return estimatordomain.CostParams{}, estimatordomain.NewMissingKeyError("output_config/cost_params")
	}
	return *desc.OutputConfig.CostParams, nil
}

func mintJobID(user string) string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return user + "-" + suffix
}
