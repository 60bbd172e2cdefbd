package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/geocubed/cubehub/internal/ledger/domain"
	obsmetrics "github.com/geocubed/cubehub/internal/observability/metrics"
	"github.com/geocubed/cubehub/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyPrefix = "punits:"

type Params struct {
	fx.In

	Store      store.Store
	Log        *zap.Logger
	GenID      *snowflake.Node
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	store      store.Store
	log        *zap.Logger
	genID      *snowflake.Node
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		store:      p.Store,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		obsMetrics: p.ObsMetrics,
	}
}

func recordKey(user string) string { return keyPrefix + user }

func (s *Service) Get(ctx context.Context, user string, includeHistory bool) (*ledgerdomain.LedgerRecord, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return nil, ledgerdomain.ErrInvalidUser
	}

	raw, found, err := s.store.Get(ctx, recordKey(user))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	var record ledgerdomain.LedgerRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}
	if !includeHistory {
		record.History = nil
	}
	return &record, nil
}

func (s *Service) Add(ctx context.Context, user string, req ledgerdomain.PunitsRequest) error {
	return s.mutate(ctx, user, ledgerdomain.OpAdd, req)
}

func (s *Service) Subtract(ctx context.Context, user string, req ledgerdomain.PunitsRequest) error {
	return s.mutate(ctx, user, ledgerdomain.OpSubtract, req)
}

func (s *Service) Override(ctx context.Context, user string, req ledgerdomain.PunitsRequest) error {
	return s.mutate(ctx, user, ledgerdomain.OpOverride, req)
}

func (s *Service) Delete(ctx context.Context, user string) error {
	user = strings.TrimSpace(user)
	if user == "" {
		return ledgerdomain.ErrInvalidUser
	}
	_, err := s.store.Delete(ctx, recordKey(user))
	return err
}

// mutate applies one signed balance change through the store's atomic
// update, so concurrent debits for the same user cannot lose each other.
func (s *Service) mutate(ctx context.Context, user, op string, req ledgerdomain.PunitsRequest) error {
	user = strings.TrimSpace(user)
	if user == "" {
		return ledgerdomain.ErrInvalidUser
	}
	delta := req.Punits.TotalCount
	if delta <= 0 {
		return ledgerdomain.ErrInvalidTotalCount
	}

	err := s.store.Update(ctx, recordKey(user), func(old []byte, found bool) ([]byte, error) {
		var record ledgerdomain.LedgerRecord
		if found {
			if err := json.Unmarshal(old, &record); err != nil {
				return nil, err
			}
		}

		var next int64
		switch op {
		case ledgerdomain.OpAdd:
			next = record.Count + delta
		case ledgerdomain.OpSubtract:
			next = record.Count - delta
		case ledgerdomain.OpOverride:
			next = delta
		}
		if next < 0 {
			return nil, &ledgerdomain.InsufficientError{
				Required:  delta,
				Available: record.Count,
			}
		}

		entry := ledgerdomain.HistoryEntry{
			ID:        s.genID.Generate(),
			Timestamp: time.Now().UTC(),
			Op:        op,
			Payload:   req,
		}
		record.Count = next
		record.History = append([]ledgerdomain.HistoryEntry{entry}, record.History...)
		return json.Marshal(record)
	})
	if err != nil {
		return err
	}

	s.obsMetrics.RecordLedgerMutation(ctx, op)
	if op == ledgerdomain.OpSubtract {
		s.obsMetrics.RecordPunitsCharged(ctx, delta)
	}
	s.log.Info("ledger mutation accepted",
		zap.String("user", user),
		zap.String("op", op),
		zap.Int64("total_count", delta),
	)
	return nil
}
