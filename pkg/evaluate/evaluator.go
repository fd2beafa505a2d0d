// Package evaluate holds the pure decision logic turning cost and anomaly
// records into alert candidates. It has no side effects: suppression and
// delivery are handled downstream.
package evaluate

import (
	"time"

	"github.com/cloudcost-tools/cost-sentinel/pkg/model"
	"github.com/cloudcost-tools/cost-sentinel/pkg/thresholds"
)

// Evaluator checks incoming records against the configured thresholds and
// produces at most one alert candidate per check.
type Evaluator struct {
	store *thresholds.Store
	now   func() time.Time
}

// New creates an evaluator over an immutable threshold store.
func New(store *thresholds.Store) *Evaluator {
	return &Evaluator{store: store, now: time.Now}
}

// CheckCostSpike compares a current cost against the previous period. A zero
// previous cost yields no candidate since the percentage is undefined.
func (e *Evaluator) CheckCostSpike(current, previous float64, service string) *model.Alert {
	if previous == 0 {
		return nil
	}

	increase := current - previous
	pct := (increase / previous) * 100

	for _, th := range e.store.Match(model.TypeCostSpike, service) {
		if increase >= th.ThresholdAmount || pct >= th.ThresholdPercentage {
			severity := model.SeverityMedium
			if pct > 100 {
				severity = model.SeverityHigh
			}
			return &model.Alert{
				Type:                model.TypeCostSpike,
				Service:             service,
				Severity:            severity,
				Timestamp:           e.now().UTC(),
				CurrentCost:         current,
				PreviousCost:        previous,
				IncreaseAmount:      increase,
				IncreasePercentage:  pct,
				ThresholdAmount:     th.ThresholdAmount,
				ThresholdPercentage: th.ThresholdPercentage,
			}
		}
	}
	return nil
}

// CheckBudgetExceeded fires when the current cost is over the budget limit.
// The severity is always critical. A zero limit means no budget is set.
func (e *Evaluator) CheckBudgetExceeded(current, budgetLimit float64, service string) *model.Alert {
	if budgetLimit <= 0 || current <= budgetLimit {
		return nil
	}

	matched := e.store.Match(model.TypeBudgetExceeded, service)
	if len(matched) == 0 {
		return nil
	}

	return &model.Alert{
		Type:           model.TypeBudgetExceeded,
		Service:        service,
		Severity:       model.SeverityCritical,
		Timestamp:      e.now().UTC(),
		CurrentCost:    current,
		BudgetLimit:    budgetLimit,
		ExceededAmount: current - budgetLimit,
	}
}

// CheckAnomaly fires when the cost impact of a detected anomaly reaches a
// configured anomaly threshold. Scores above 0.8 escalate to high severity.
func (e *Evaluator) CheckAnomaly(service string, anomalyScore, costImpact float64) *model.Alert {
	for _, th := range e.store.Match(model.TypeAnomaly, service) {
		if costImpact >= th.ThresholdAmount {
			severity := model.SeverityMedium
			if anomalyScore > 0.8 {
				severity = model.SeverityHigh
			}
			return &model.Alert{
				Type:         model.TypeAnomaly,
				Service:      service,
				Severity:     severity,
				Timestamp:    e.now().UTC(),
				AnomalyScore: anomalyScore,
				CostImpact:   costImpact,
			}
		}
	}
	return nil
}

// CheckAnomalyRecord evaluates a full detector record. Missing numeric
// fields are zero values and simply fail to qualify; malformed records never
// abort evaluation.
func (e *Evaluator) CheckAnomalyRecord(rec model.AnomalyRecord) *model.Alert {
	alert := e.CheckAnomaly(rec.Service, rec.Score(), rec.CostImpact)
	if alert != nil && !rec.Timestamp.IsZero() {
		alert.Timestamp = rec.Timestamp.UTC()
	}
	return alert
}

// CheckDailySeries runs day-over-day spike checks across consecutive pairs
// of a daily cost series, oldest first. One qualifying pair yields one
// candidate; a pair that does not qualify never affects its siblings.
func (e *Evaluator) CheckDailySeries(service string, days []model.DailyCost) []*model.Alert {
	var alerts []*model.Alert
	for i := 1; i < len(days); i++ {
		if a := e.CheckCostSpike(days[i].Cost, days[i-1].Cost, service); a != nil {
			alerts = append(alerts, a)
		}
	}
	return alerts
}
