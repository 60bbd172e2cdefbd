package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	callbackdomain "github.com/geocubed/cubehub/internal/callback/domain"
	cubegendomain "github.com/geocubed/cubehub/internal/cubegen/domain"
	estimatordomain "github.com/geocubed/cubehub/internal/estimator/domain"
	estimatorservice "github.com/geocubed/cubehub/internal/estimator/service"
	ledgerdomain "github.com/geocubed/cubehub/internal/ledger/domain"
	ledgerservice "github.com/geocubed/cubehub/internal/ledger/service"
	"github.com/geocubed/cubehub/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	svc    callbackdomain.Service
	ledger ledgerdomain.Service
	store  store.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	kv := store.NewMemory()
	log := zap.NewNop()
	ledger := ledgerservice.NewService(ledgerservice.Params{
		Store: kv,
		Log:   log,
		GenID: node,
	})
	svc := NewService(Params{
		Store:     kv,
		Estimator: estimatorservice.NewService(),
		Ledger:    ledger,
		Log:       log,
	})
	return &fixture{svc: svc, ledger: ledger, store: kv}
}

func costParams() *estimatordomain.CostParams {
	return &estimatordomain.CostParams{
		Scheme:               estimatordomain.SchemePunits,
		InputPixelsPerPunit:  262144,
		InputPunitsWeight:    1.0,
		OutputPixelsPerPunit: 262144,
		OutputPunitsWeight:   1.0,
	}
}

// seedJob stores a job configuration and an empty progress record, the state
// Create leaves behind.
func seedJob(t *testing.T, f *fixture, user, jobID, email string) {
	t.Helper()
	ctx := context.Background()

	record := cubegendomain.JobRecord{
		JobID:  jobID,
		UserID: user,
		Email:  email,
		Descriptor: cubegendomain.CubeDescriptor{
			InputConfig: &cubegendomain.DataStoreConfig{StoreID: "sentinelhub"},
			CubeConfig: estimatordomain.CubeConfig{
				VariableNames: []string{"B04", "B08"},
				BBox:          &[4]float64{0, 0, 20, 20},
				SpatialRes:    0.01,
				TimeRange:     &[2]string{"2023-01-01", "2023-01-14"},
				TimePeriod:    "1D",
			},
			OutputConfig: cubegendomain.DataStoreConfig{
				StoreID:    "s3",
				CostParams: costParams(),
			},
		},
		CreatedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(record)
	require.NoError(t, err)
	require.NoError(t, f.store.Set(ctx, cubegendomain.ConfigKey(user, jobID), raw))

	empty, err := json.Marshal(cubegendomain.ProgressRecord{})
	require.NoError(t, err)
	require.NoError(t, f.store.Set(ctx, cubegendomain.ProgressKey(user, jobID), empty))
}

func fund(t *testing.T, f *fixture, email string, amount int64) {
	t.Helper()
	require.NoError(t, f.ledger.Add(context.Background(), email, ledgerdomain.PunitsRequest{
		Punits: estimatordomain.CostEstimate{TotalCount: amount},
	}))
}

func balance(t *testing.T, f *fixture, email string) int64 {
	t.Helper()
	record, err := f.ledger.Get(context.Background(), email, false)
	require.NoError(t, err)
	if record == nil {
		return 0
	}
	return record.Count
}

func progressRecord(t *testing.T, f *fixture, user, jobID string) cubegendomain.ProgressRecord {
	t.Helper()
	raw, found, err := f.store.Get(context.Background(), cubegendomain.ProgressKey(user, jobID))
	require.NoError(t, err)
	require.True(t, found)
	var record cubegendomain.ProgressRecord
	require.NoError(t, json.Unmarshal(raw, &record))
	return record
}

func onEnd(desc *estimatordomain.DatasetDescriptor) cubegendomain.ProgressEvent {
	return cubegendomain.ProgressEvent{
		Sender: cubegendomain.SenderOnEnd,
		State:  &cubegendomain.ProgressState{Progress: 1.0, DatasetDescriptor: desc},
	}
}

func producedDescriptor() *estimatordomain.DatasetDescriptor {
	return &estimatordomain.DatasetDescriptor{
		DataID: "out.zarr",
		Dims:   map[string]int64{"time": 14, "lat": 5000, "lon": 2000},
		DataVars: map[string]estimatordomain.VariableDescriptor{
			"B04": {}, "B08": {},
		},
	}
}

func TestCallbackBillsOnTerminalSuccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedJob(t, f, "alice", "alice-1", "alice@example.org")
	fund(t, f, "alice@example.org", 100_000)

	require.NoError(t, f.svc.PutCallback(ctx, "alice", "alice-1", onEnd(producedDescriptor()), "alice@example.org"))

	// Billed against the actual 5000x2000 output: ceil(1e7/262144)=39, times
	// 14 steps and 2 variables.
	assert.Equal(t, int64(100_000-1092), balance(t, f, "alice@example.org"))

	record := progressRecord(t, f, "alice", "alice-1")
	assert.True(t, record.Billed)
	require.Len(t, record.Progress, 1)
	assert.Equal(t, cubegendomain.SenderOnEnd, record.Progress[0].Sender)
	assert.False(t, record.Progress[0].Timestamp.IsZero())
}

func TestCallbackDuplicateTerminalBillsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedJob(t, f, "alice", "alice-1", "alice@example.org")
	fund(t, f, "alice@example.org", 100_000)

	require.NoError(t, f.svc.PutCallback(ctx, "alice", "alice-1", onEnd(producedDescriptor()), "alice@example.org"))
	require.NoError(t, f.svc.PutCallback(ctx, "alice", "alice-1", onEnd(producedDescriptor()), "alice@example.org"))

	assert.Equal(t, int64(100_000-1092), balance(t, f, "alice@example.org"))

	// The duplicate event is still recorded.
	record := progressRecord(t, f, "alice", "alice-1")
	assert.Len(t, record.Progress, 2)
}

func TestCallbackTerminalFailureNeverBills(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedJob(t, f, "alice", "alice-1", "alice@example.org")
	fund(t, f, "alice@example.org", 100_000)

	event := onEnd(nil)
	event.State.Error = "worker crashed"

	require.NoError(t, f.svc.PutCallback(ctx, "alice", "alice-1", event, "alice@example.org"))

	assert.Equal(t, int64(100_000), balance(t, f, "alice@example.org"))
	record := progressRecord(t, f, "alice", "alice-1")
	assert.False(t, record.Billed)
	assert.Len(t, record.Progress, 1)
}

func TestCallbackIntermediateEventsAccumulate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedJob(t, f, "alice", "alice-1", "alice@example.org")
	fund(t, f, "alice@example.org", 100_000)

	begin := cubegendomain.ProgressEvent{
		Sender: cubegendomain.SenderOnBegin,
		State:  &cubegendomain.ProgressState{Message: "starting"},
	}
	mid := cubegendomain.ProgressEvent{
		Sender: cubegendomain.SenderIntermediate,
		State:  &cubegendomain.ProgressState{Progress: 0.5},
	}

	require.NoError(t, f.svc.PutCallback(ctx, "alice", "alice-1", begin, "alice@example.org"))
	require.NoError(t, f.svc.PutCallback(ctx, "alice", "alice-1", mid, "alice@example.org"))

	assert.Equal(t, int64(100_000), balance(t, f, "alice@example.org"))
	record := progressRecord(t, f, "alice", "alice-1")
	assert.False(t, record.Billed)
	require.Len(t, record.Progress, 2)
	assert.Equal(t, cubegendomain.SenderOnBegin, record.Progress[0].Sender)
	assert.Equal(t, cubegendomain.SenderIntermediate, record.Progress[1].Sender)
}

func TestCallbackMissingState(t *testing.T) {
	f := newFixture(t)
	seedJob(t, f, "alice", "alice-1", "alice@example.org")

	err := f.svc.PutCallback(context.Background(), "alice", "alice-1", cubegendomain.ProgressEvent{
		Sender: cubegendomain.SenderOnEnd,
	}, "alice@example.org")
	var verr *estimatordomain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "state")
}

func TestCallbackMissingJobConfig(t *testing.T) {
	f := newFixture(t)
	fund(t, f, "alice@example.org", 100_000)

	err := f.svc.PutCallback(context.Background(), "alice", "alice-unknown", onEnd(producedDescriptor()), "alice@example.org")
	assert.ErrorIs(t, err, callbackdomain.ErrJobConfigNotFound)
	assert.Equal(t, int64(100_000), balance(t, f, "alice@example.org"))
}

func TestCallbackFallsBackToRequestedGrid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedJob(t, f, "alice", "alice-1", "alice@example.org")
	fund(t, f, "alice@example.org", 100_000)

	// No produced descriptor: the charge derives from the requested cube
	// config, a 2048x2048 normalized grid with 14 steps and 2 variables.
	require.NoError(t, f.svc.PutCallback(ctx, "alice", "alice-1", onEnd(nil), "alice@example.org"))
	assert.Equal(t, int64(100_000-448), balance(t, f, "alice@example.org"))
}

func TestCallbackBillsConfiguredEmailWhenCallerEmpty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedJob(t, f, "alice", "alice-1", "alice@example.org")
	fund(t, f, "alice@example.org", 100_000)

	require.NoError(t, f.svc.PutCallback(ctx, "alice", "alice-1", onEnd(producedDescriptor()), ""))
	assert.Equal(t, int64(100_000-1092), balance(t, f, "alice@example.org"))
}

func TestCallbackDebitFailureKeepsBilledFlag(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedJob(t, f, "alice", "alice-1", "alice@example.org")
	fund(t, f, "alice@example.org", 100) // less than the 1092 charge

	err := f.svc.PutCallback(ctx, "alice", "alice-1", onEnd(producedDescriptor()), "alice@example.org")
	var insuff *ledgerdomain.InsufficientError
	require.ErrorAs(t, err, &insuff)

	// Undercharging is preferred over double charging: the billed flag stays
	// set, so a retry will not debit either.
	record := progressRecord(t, f, "alice", "alice-1")
	assert.True(t, record.Billed)
	require.NoError(t, f.svc.PutCallback(ctx, "alice", "alice-1", onEnd(producedDescriptor()), "alice@example.org"))
	assert.Equal(t, int64(100), balance(t, f, "alice@example.org"))
}

func TestCallbackStoresReportedStateVerbatim(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedJob(t, f, "alice", "alice-1", "alice@example.org")

	var event cubegendomain.ProgressEvent
	payload := []byte(`{"sender":"intermediate","state":{"progress":0.4,"worked":120,"total_work":300,"worker":"w-7"}}`)
	require.NoError(t, json.Unmarshal(payload, &event))

	require.NoError(t, f.svc.PutCallback(ctx, "alice", "alice-1", event, "alice@example.org"))

	// The running job may report keys beyond the ones we consume; the stored
	// record keeps them all.
	raw, found, err := f.store.Get(ctx, cubegendomain.ProgressKey("alice", "alice-1"))
	require.NoError(t, err)
	require.True(t, found)
	var stored struct {
		Progress []struct {
			State map[string]json.RawMessage `json:"state"`
		} `json:"progress"`
	}
	require.NoError(t, json.Unmarshal(raw, &stored))
	require.Len(t, stored.Progress, 1)
	state := stored.Progress[0].State
	assert.JSONEq(t, `0.4`, string(state["progress"]))
	assert.JSONEq(t, `120`, string(state["worked"]))
	assert.JSONEq(t, `300`, string(state["total_work"]))
	assert.JSONEq(t, `"w-7"`, string(state["worker"]))
}

func TestCallbackFreeSchemeNeverDebits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedJob(t, f, "alice", "alice-1", "alice@example.org")
	fund(t, f, "alice@example.org", 100_000)

	// Rewrite the stored descriptor to the free scheme.
	raw, found, err := f.store.Get(ctx, cubegendomain.ConfigKey("alice", "alice-1"))
	require.NoError(t, err)
	require.True(t, found)
	var record cubegendomain.JobRecord
	require.NoError(t, json.Unmarshal(raw, &record))
	record.Descriptor.OutputConfig.CostParams = &estimatordomain.CostParams{Scheme: estimatordomain.SchemeFree}
	raw, err = json.Marshal(record)
	require.NoError(t, err)
	require.NoError(t, f.store.Set(ctx, cubegendomain.ConfigKey("alice", "alice-1"), raw))

	require.NoError(t, f.svc.PutCallback(ctx, "alice", "alice-1", onEnd(producedDescriptor()), "alice@example.org"))
	assert.Equal(t, int64(100_000), balance(t, f, "alice@example.org"))
}
