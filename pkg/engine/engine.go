// Package engine wires the alert pipeline together: a record is evaluated
// against the thresholds, gated by the suppression tracker, dispatched to
// the channels, and the outcome is written to the history ledger.
package engine

import (
	"context"
	"log/slog"

	"github.com/cloudcost-tools/cost-sentinel/pkg/evaluate"
	"github.com/cloudcost-tools/cost-sentinel/pkg/history"
	"github.com/cloudcost-tools/cost-sentinel/pkg/model"
	"github.com/cloudcost-tools/cost-sentinel/pkg/notify"
	"github.com/cloudcost-tools/cost-sentinel/pkg/suppress"
	"github.com/cloudcost-tools/cost-sentinel/pkg/thresholds"
)

// Engine is the alert evaluation and delivery pipeline. It is constructed
// once per process and passed by reference; all of its state lives in the
// suppression tracker and the history store, never in package globals.
// Safe for concurrent producers.
type Engine struct {
	thresholds *thresholds.Store
	evaluator  *evaluate.Evaluator
	tracker    *suppress.Tracker
	dispatcher *notify.Dispatcher
	history    history.Store
	logger     *slog.Logger

	// recordFailures additionally writes partially_failed and failed
	// outcomes to the ledger instead of delivered ones only.
	recordFailures bool
}

// Option customizes engine construction.
type Option func(*Engine)

// WithFailureRecords makes the engine append failed and partially failed
// dispatch outcomes to the history ledger as well as delivered ones.
func WithFailureRecords() Option {
	return func(e *Engine) { e.recordFailures = true }
}

// New assembles an engine from its collaborators.
func New(
	store *thresholds.Store,
	tracker *suppress.Tracker,
	dispatcher *notify.Dispatcher,
	hist history.Store,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		thresholds: store,
		evaluator:  evaluate.New(store),
		tracker:    tracker,
		dispatcher: dispatcher,
		history:    hist,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluator exposes the engine's pure evaluator, mainly for callers that
// want to inspect candidates without dispatching.
func (e *Engine) Evaluator() *evaluate.Evaluator {
	return e.evaluator
}

// ProcessAnomaly runs one detector record through the full pipeline. It
// returns the history record for a dispatched alert, or nil when no
// threshold matched or the candidate was suppressed.
func (e *Engine) ProcessAnomaly(ctx context.Context, rec model.AnomalyRecord) (*model.HistoryRecord, error) {
	return e.deliver(ctx, e.evaluator.CheckAnomalyRecord(rec))
}

// ProcessAnomalyBatch evaluates a batch of detector records. A record that
// fails to produce or deliver an alert never affects its siblings.
func (e *Engine) ProcessAnomalyBatch(ctx context.Context, recs []model.AnomalyRecord) []*model.HistoryRecord {
	var out []*model.HistoryRecord
	for _, rec := range recs {
		hr, err := e.ProcessAnomaly(ctx, rec)
		if err != nil {
			e.logger.Error("process anomaly", "service", rec.Service, "error", err)
			continue
		}
		if hr != nil {
			out = append(out, hr)
		}
	}
	return out
}

// ProcessCostSpike runs a current-vs-previous cost comparison through the
// pipeline.
func (e *Engine) ProcessCostSpike(ctx context.Context, service string, current, previous float64) (*model.HistoryRecord, error) {
	return e.deliver(ctx, e.evaluator.CheckCostSpike(current, previous, service))
}

// ProcessDailyCosts runs day-over-day spike checks across a daily series.
func (e *Engine) ProcessDailyCosts(ctx context.Context, service string, days []model.DailyCost) []*model.HistoryRecord {
	var out []*model.HistoryRecord
	for _, alert := range e.evaluator.CheckDailySeries(service, days) {
		hr, err := e.deliver(ctx, alert)
		if err != nil {
			e.logger.Error("process cost spike", "service", service, "error", err)
			continue
		}
		if hr != nil {
			out = append(out, hr)
		}
	}
	return out
}

// ProcessBudget checks a current cost against an external budget limit.
func (e *Engine) ProcessBudget(ctx context.Context, budget model.BudgetConfig, currentCost float64) (*model.HistoryRecord, error) {
	return e.deliver(ctx, e.evaluator.CheckBudgetExceeded(currentCost, budget.BudgetLimit, budget.Service))
}

// deliver takes a candidate through the suppression gate, the dispatcher
// and the ledger. Cooldown and rate-limit budget are consumed only when
// every configured channel delivered.
func (e *Engine) deliver(ctx context.Context, alert *model.Alert) (*model.HistoryRecord, error) {
	if alert == nil {
		return nil, nil
	}

	if !e.tracker.Begin(*alert) {
		e.logger.Debug("alert suppressed",
			"alert_key", alert.Key(), "severity", alert.Severity)
		return nil, nil
	}

	outcome := e.dispatcher.Send(ctx, *alert)
	delivered := outcome.Delivered()
	e.tracker.End(*alert, delivered)

	record := &model.HistoryRecord{
		Alert:    *alert,
		Outcome:  outcome.Status,
		Channels: outcome.Channels,
	}

	if delivered || e.recordFailures {
		if err := e.history.Append(ctx, record); err != nil {
			return record, err
		}
	}

	if delivered {
		e.logger.Info("alert sent",
			"type", alert.Type, "service", alert.Service, "severity", alert.Severity)
	}
	return record, nil
}
