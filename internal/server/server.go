package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cloudcost-tools/cost-sentinel/pkg/engine"
	"github.com/cloudcost-tools/cost-sentinel/pkg/history"
	"github.com/cloudcost-tools/cost-sentinel/pkg/model"
)

// Server exposes the ingest and query API around the alert engine.
type Server struct {
	engine  *engine.Engine
	history history.Store
	mux     *http.ServeMux
	logger  *slog.Logger
}

// NewServer creates an API server.
func NewServer(eng *engine.Engine, hist history.Store, logger *slog.Logger) *Server {
	s := &Server{
		engine:  eng,
		history: hist,
		mux:     http.NewServeMux(),
		logger:  logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /api/v1/anomalies", s.handleAnomalies)
	s.mux.HandleFunc("POST /api/v1/costs", s.handleCosts)
	s.mux.HandleFunc("POST /api/v1/budgets/check", s.handleBudgetCheck)
	s.mux.HandleFunc("GET /api/v1/alerts", s.handleAlerts)
	s.mux.HandleFunc("GET /api/v1/stats", s.handleStats)
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleAnomalies accepts a single anomaly record or an array of them.
func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var recs []model.AnomalyRecord
	if err := decodeOneOrMany(r, &recs); err != nil {
		http.Error(w, "invalid anomaly payload", http.StatusBadRequest)
		return
	}

	dispatched := s.engine.ProcessAnomalyBatch(ctx, recs)
	writeJSON(w, map[string]any{
		"processed": len(recs),
		"alerts":    dispatched,
	})
}

type costsRequest struct {
	Service    string            `json:"service"`
	DailyCosts []model.DailyCost `json:"daily_costs"`
}

func (s *Server) handleCosts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var req costsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid cost payload", http.StatusBadRequest)
		return
	}

	dispatched := s.engine.ProcessDailyCosts(ctx, req.Service, req.DailyCosts)
	writeJSON(w, map[string]any{
		"processed": len(req.DailyCosts),
		"alerts":    dispatched,
	})
}

type budgetCheckRequest struct {
	Service     string  `json:"service"`
	BudgetLimit float64 `json:"budget_limit"`
	CurrentCost float64 `json:"current_cost"`
}

func (s *Server) handleBudgetCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var req budgetCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid budget payload", http.StatusBadRequest)
		return
	}

	record, err := s.engine.ProcessBudget(ctx,
		model.BudgetConfig{Service: req.Service, BudgetLimit: req.BudgetLimit},
		req.CurrentCost,
	)
	if err != nil {
		s.logger.Error("budget check", "service", req.Service, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"alert": record})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	hours := 24
	if h := r.URL.Query().Get("hours"); h != "" {
		parsed, err := strconv.Atoi(h)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid hours parameter", http.StatusBadRequest)
			return
		}
		hours = parsed
	}

	records, err := s.history.Since(ctx, time.Duration(hours)*time.Hour)
	if err != nil {
		s.logger.Error("query history", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []model.HistoryRecord{}
	}
	writeJSON(w, records)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	stats, err := s.history.Stats(ctx)
	if err != nil {
		s.logger.Error("aggregate history", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats)
}

// decodeOneOrMany decodes a JSON body that is either a single anomaly
// object or an array of them.
func decodeOneOrMany(r *http.Request, recs *[]model.AnomalyRecord) error {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return err
	}
	if len(raw) > 0 && raw[0] == '[' {
		return json.Unmarshal(raw, recs)
	}
	var one model.AnomalyRecord
	if err := json.Unmarshal(raw, &one); err != nil {
		return err
	}
	*recs = append(*recs, one)
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
