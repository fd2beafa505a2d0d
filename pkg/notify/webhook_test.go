package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloudcost-tools/cost-sentinel/pkg/model"
	"github.com/cloudcost-tools/cost-sentinel/pkg/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookChannel_Name(t *testing.T) {
	ch := notify.NewWebhookChannel("https://example.com/webhook", "", "", "")
	assert.Equal(t, "webhook", ch.Name())
}

func TestWebhookChannel_Send(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Cost-Sentinel/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, http.MethodPost, r.Method)

		err := json.NewDecoder(r.Body).Decode(&received)
		require.NoError(t, err)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ch := notify.NewWebhookChannel(server.URL, "", "", "")
	alert := model.Alert{
		Type:           model.TypeBudgetExceeded,
		Service:        "all",
		Severity:       model.SeverityCritical,
		Timestamp:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		CurrentCost:    620,
		BudgetLimit:    500,
		ExceededAmount: 120,
	}

	err := ch.Send(context.Background(), alert)
	require.NoError(t, err)
	assert.Equal(t, "Cost Sentinel", received["username"])
	assert.Equal(t, ":warning:", received["icon_emoji"])
	text, _ := received["text"].(string)
	assert.Contains(t, text, "Budget Exceeded Alert")
	assert.Contains(t, text, "$620.00")
	assert.Contains(t, text, "$120.00")
}

func TestWebhookChannel_Send_CustomIdentity(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ch := notify.NewWebhookChannel(server.URL, "cost-bot", ":money_with_wings:", "")
	err := ch.Send(context.Background(), model.Alert{Type: model.TypeAnomaly, Service: "BigQuery"})
	require.NoError(t, err)
	assert.Equal(t, "cost-bot", received["username"])
	assert.Equal(t, ":money_with_wings:", received["icon_emoji"])
}

func TestWebhookChannel_Send_WithHMAC(t *testing.T) {
	var signature string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature = r.Header.Get("X-Signature-256")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ch := notify.NewWebhookChannel(server.URL, "", "", "test-secret")
	err := ch.Send(context.Background(), model.Alert{Type: model.TypeAnomaly, Service: "BigQuery"})
	require.NoError(t, err)
	assert.True(t, len(signature) > 0)
	assert.Contains(t, signature, "sha256=")
}

func TestWebhookChannel_Send_NoHMAC(t *testing.T) {
	var hasSignature bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hasSignature = r.Header.Get("X-Signature-256") != ""
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ch := notify.NewWebhookChannel(server.URL, "", "", "")
	err := ch.Send(context.Background(), model.Alert{Type: model.TypeAnomaly, Service: "BigQuery"})
	require.NoError(t, err)
	assert.False(t, hasSignature)
}

func TestWebhookChannel_Send_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ch := notify.NewWebhookChannel(server.URL, "", "", "")
	err := ch.Send(context.Background(), model.Alert{Type: model.TypeAnomaly, Service: "BigQuery"})
	assert.Error(t, err)
}
