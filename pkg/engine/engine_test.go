package engine_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudcost-tools/cost-sentinel/pkg/engine"
	"github.com/cloudcost-tools/cost-sentinel/pkg/history"
	"github.com/cloudcost-tools/cost-sentinel/pkg/model"
	"github.com/cloudcost-tools/cost-sentinel/pkg/notify"
	"github.com/cloudcost-tools/cost-sentinel/pkg/suppress"
	"github.com/cloudcost-tools/cost-sentinel/pkg/thresholds"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, webhookURL string, opts ...engine.Option) (*engine.Engine, history.Store) {
	t.Helper()

	store := thresholds.New(thresholds.Defaults(), thresholds.MatchFirst)
	tracker := suppress.New(suppress.Config{})

	var channels []notify.Channel
	if webhookURL != "" {
		channels = append(channels, notify.NewWebhookChannel(webhookURL, "", "", ""))
	}
	dispatcher := notify.NewDispatcher(channels, notify.Options{
		RatePerSecond: 1000,
		RetryBackoff:  time.Millisecond,
	}, discardLogger())
	t.Cleanup(dispatcher.Close)

	hist, err := history.NewJSONFile(filepath.Join(t.TempDir(), "history.json"))
	require.NoError(t, err)
	t.Cleanup(func() { hist.Close() })

	return engine.New(store, tracker, dispatcher, hist, discardLogger(), opts...), hist
}

func TestProcessAnomaly_EndToEnd(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	eng, hist := newTestEngine(t, server.URL)
	ctx := context.Background()

	rec, err := eng.ProcessAnomaly(ctx, model.AnomalyRecord{
		Service:      "BigQuery",
		AnomalyScore: 0.9,
		CostImpact:   75,
	})
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, model.TypeAnomaly, rec.Type)
	assert.Equal(t, model.SeverityHigh, rec.Severity)
	assert.Equal(t, model.StatusDelivered, rec.Outcome)
	assert.Equal(t, int32(1), hits.Load())

	stored, err := hist.Since(ctx, time.Hour)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, rec.ID, stored[0].ID)
}

func TestProcessAnomaly_BelowThresholdNoDispatch(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	eng, _ := newTestEngine(t, server.URL)

	rec, err := eng.ProcessAnomaly(context.Background(), model.AnomalyRecord{
		Service:      "BigQuery",
		AnomalyScore: 0.95,
		CostImpact:   10,
	})
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, int32(0), hits.Load())
}

func TestProcessAnomaly_CooldownSuppressesRepeat(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	eng, hist := newTestEngine(t, server.URL)
	ctx := context.Background()
	anomaly := model.AnomalyRecord{Service: "BigQuery", AnomalyScore: 0.9, CostImpact: 75}

	first, err := eng.ProcessAnomaly(ctx, anomaly)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := eng.ProcessAnomaly(ctx, anomaly)
	require.NoError(t, err)
	assert.Nil(t, second, "same key inside cooldown is suppressed")
	assert.Equal(t, int32(1), hits.Load())

	stored, err := hist.Since(ctx, time.Hour)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestProcessAnomaly_FailedSendKeepsKeyEligible(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	eng, hist := newTestEngine(t, server.URL)
	ctx := context.Background()
	anomaly := model.AnomalyRecord{Service: "BigQuery", AnomalyScore: 0.9, CostImpact: 75}

	rec, err := eng.ProcessAnomaly(ctx, anomaly)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.StatusFailed, rec.Outcome)

	stored, err := hist.Since(ctx, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, stored, "failed outcomes are not persisted by default")

	// The key was not put on cooldown, so the next attempt goes out.
	fail.Store(false)
	rec, err = eng.ProcessAnomaly(ctx, anomaly)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.StatusDelivered, rec.Outcome)
}

func TestProcessAnomaly_RecordFailuresOption(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	eng, hist := newTestEngine(t, server.URL, engine.WithFailureRecords())
	ctx := context.Background()

	rec, err := eng.ProcessAnomaly(ctx, model.AnomalyRecord{
		Service: "BigQuery", AnomalyScore: 0.9, CostImpact: 75,
	})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.StatusFailed, rec.Outcome)

	stored, err := hist.Since(ctx, time.Hour)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, model.StatusFailed, stored[0].Outcome)
}

func TestProcessBudget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	eng, _ := newTestEngine(t, server.URL)
	ctx := context.Background()

	rec, err := eng.ProcessBudget(ctx, model.BudgetConfig{Service: "all", BudgetLimit: 500}, 620)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.TypeBudgetExceeded, rec.Type)
	assert.Equal(t, model.SeverityCritical, rec.Severity)
	assert.InDelta(t, 120.0, rec.ExceededAmount, 0.001)

	rec, err = eng.ProcessBudget(ctx, model.BudgetConfig{Service: "all", BudgetLimit: 500}, 400)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestProcessDailyCosts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	eng, _ := newTestEngine(t, server.URL)

	recs := eng.ProcessDailyCosts(context.Background(), "Compute", []model.DailyCost{
		{Date: "2026-03-01", Cost: 100},
		{Date: "2026-03-02", Cost: 300},
		{Date: "2026-03-03", Cost: 900},
	})

	// Both pairs spike, but they share a suppression key, so only the first
	// dispatches.
	require.Len(t, recs, 1)
	assert.Equal(t, 300.0, recs[0].CurrentCost)
}

func TestProcessAnomalyBatch_SiblingIsolation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	eng, _ := newTestEngine(t, server.URL)

	recs := eng.ProcessAnomalyBatch(context.Background(), []model.AnomalyRecord{
		{Service: "BigQuery", AnomalyScore: 0.9, CostImpact: 75},
		{Service: "Compute"}, // missing numeric fields, never qualifies
		{Service: "Storage", AnomalyScore: 0.5, CostImpact: 60},
	})

	require.Len(t, recs, 2)
	assert.Equal(t, "BigQuery", recs[0].Service)
	assert.Equal(t, "Storage", recs[1].Service)
}

func TestProcess_ZeroChannelsStillRecords(t *testing.T) {
	eng, hist := newTestEngine(t, "")
	ctx := context.Background()

	rec, err := eng.ProcessAnomaly(ctx, model.AnomalyRecord{
		Service: "BigQuery", AnomalyScore: 0.9, CostImpact: 75,
	})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.StatusDelivered, rec.Outcome)

	stored, err := hist.Since(ctx, time.Hour)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}
