package server_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/cloudcost-tools/cost-sentinel/internal/server"
	"github.com/cloudcost-tools/cost-sentinel/pkg/engine"
	"github.com/cloudcost-tools/cost-sentinel/pkg/history"
	"github.com/cloudcost-tools/cost-sentinel/pkg/model"
	"github.com/cloudcost-tools/cost-sentinel/pkg/notify"
	"github.com/cloudcost-tools/cost-sentinel/pkg/suppress"
	"github.com/cloudcost-tools/cost-sentinel/pkg/thresholds"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *server.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := thresholds.New(thresholds.Defaults(), thresholds.MatchFirst)
	tracker := suppress.New(suppress.Config{})
	dispatcher := notify.NewDispatcher(nil, notify.Options{}, logger)
	t.Cleanup(dispatcher.Close)

	hist, err := history.NewJSONFile(filepath.Join(t.TempDir(), "history.json"))
	require.NoError(t, err)
	t.Cleanup(func() { hist.Close() })

	eng := engine.New(store, tracker, dispatcher, hist, logger)
	return server.NewServer(eng, hist, logger)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestPostAnomalies_Single(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/anomalies", model.AnomalyRecord{
		Service:      "BigQuery",
		AnomalyScore: 0.9,
		CostImpact:   75,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Processed int                   `json:"processed"`
		Alerts    []model.HistoryRecord `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Processed)
	require.Len(t, resp.Alerts, 1)
	assert.Equal(t, model.TypeAnomaly, resp.Alerts[0].Type)
	assert.Equal(t, model.SeverityHigh, resp.Alerts[0].Severity)
}

func TestPostAnomalies_Batch(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/anomalies", []model.AnomalyRecord{
		{Service: "BigQuery", AnomalyScore: 0.9, CostImpact: 75},
		{Service: "Compute", AnomalyScore: 0.3, CostImpact: 5},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Processed int                   `json:"processed"`
		Alerts    []model.HistoryRecord `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Processed)
	assert.Len(t, resp.Alerts, 1, "only the qualifying record alerts")
}

func TestPostAnomalies_BadPayload(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/anomalies", bytes.NewBufferString("{broken"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostCosts(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/costs", map[string]any{
		"service": "Compute",
		"daily_costs": []model.DailyCost{
			{Date: "2026-03-01", Cost: 100},
			{Date: "2026-03-02", Cost: 300},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Processed int                   `json:"processed"`
		Alerts    []model.HistoryRecord `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Processed)
	require.Len(t, resp.Alerts, 1)
	assert.Equal(t, model.TypeCostSpike, resp.Alerts[0].Type)
}

func TestPostBudgetCheck(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/budgets/check", map[string]any{
		"service":      "all",
		"budget_limit": 500,
		"current_cost": 620,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Alert *model.HistoryRecord `json:"alert"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Alert)
	assert.Equal(t, model.TypeBudgetExceeded, resp.Alert.Type)
	assert.Equal(t, model.SeverityCritical, resp.Alert.Severity)
}

func TestGetAlertsAndStats(t *testing.T) {
	srv := newTestServer(t)

	// Seed the ledger through the pipeline.
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/anomalies", model.AnomalyRecord{
		Service: "BigQuery", AnomalyScore: 0.9, CostImpact: 75,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/alerts?hours=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var alerts []model.HistoryRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alerts))
	require.Len(t, alerts, 1)
	assert.Equal(t, "BigQuery", alerts[0].Service)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats model.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalAlerts)
	assert.Equal(t, 1, stats.AlertTypes[model.TypeAnomaly])
}

func TestGetAlerts_InvalidHours(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/alerts?hours=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/alerts?hours=-3", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAlerts_EmptyLedgerIsArray(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/alerts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", string(bytes.TrimSpace(rec.Body.Bytes())))
}
