package model

import "time"

// AlertType classifies what condition produced an alert.
type AlertType string

const (
	TypeCostSpike      AlertType = "cost_spike"
	TypeBudgetExceeded AlertType = "budget_exceeded"
	TypeAnomaly        AlertType = "anomaly"
)

// Severity is the urgency tag derived from type-specific numeric rules.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
)

// ServiceAll is the wildcard threshold scope matching every service.
const ServiceAll = "all"

// Threshold is a single configured alerting limit. Thresholds are loaded
// once at startup and never mutated afterwards.
type Threshold struct {
	Service             string    `json:"service" yaml:"service"`
	AlertType           AlertType `json:"alert_type" yaml:"alert_type"`
	ThresholdAmount     float64   `json:"threshold_amount" yaml:"threshold_amount"`
	ThresholdPercentage float64   `json:"threshold_percentage" yaml:"threshold_percentage"`
	TimeWindowHours     int       `json:"time_window_hours" yaml:"time_window_hours"`
}

// Matches reports whether this threshold applies to the given type and
// service, honoring the "all" wildcard scope.
func (t Threshold) Matches(alertType AlertType, service string) bool {
	return t.AlertType == alertType && (t.Service == service || t.Service == ServiceAll)
}

// Alert is a candidate notification produced by the evaluator. Only the
// numeric fields relevant to its type are populated; the rest stay zero and
// are omitted from JSON.
type Alert struct {
	Type      AlertType `json:"type"`
	Service   string    `json:"service"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`

	// cost_spike
	CurrentCost         float64 `json:"current_cost,omitempty"`
	PreviousCost        float64 `json:"previous_cost,omitempty"`
	IncreaseAmount      float64 `json:"increase_amount,omitempty"`
	IncreasePercentage  float64 `json:"increase_percentage,omitempty"`
	ThresholdAmount     float64 `json:"threshold_amount,omitempty"`
	ThresholdPercentage float64 `json:"threshold_percentage,omitempty"`

	// budget_exceeded
	BudgetLimit    float64 `json:"budget_limit,omitempty"`
	ExceededAmount float64 `json:"exceeded_amount,omitempty"`

	// anomaly
	AnomalyScore float64 `json:"anomaly_score,omitempty"`
	CostImpact   float64 `json:"cost_impact,omitempty"`
}

// Key is the suppression identifier: alerts sharing a key share cooldown.
func (a Alert) Key() string {
	return string(a.Type) + ":" + a.Service
}

// DeliveryStatus summarizes how dispatch across all configured channels went.
type DeliveryStatus string

const (
	StatusDelivered       DeliveryStatus = "delivered"
	StatusPartiallyFailed DeliveryStatus = "partially_failed"
	StatusFailed          DeliveryStatus = "failed"
)

// ChannelResult is the outcome of one channel's delivery attempt.
type ChannelResult struct {
	Channel  string `json:"channel"`
	Success  bool   `json:"success"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// DeliveryOutcome aggregates per-channel results for a single alert.
type DeliveryOutcome struct {
	Status   DeliveryStatus  `json:"status"`
	Channels []ChannelResult `json:"channels,omitempty"`
}

// Delivered reports whether every configured channel succeeded.
func (o DeliveryOutcome) Delivered() bool {
	return o.Status == StatusDelivered
}

// HistoryRecord is an Alert plus its delivery outcome, as persisted in the
// alert ledger.
type HistoryRecord struct {
	ID string `json:"id"`
	Alert
	Outcome  DeliveryStatus  `json:"outcome"`
	Channels []ChannelResult `json:"channels,omitempty"`
}

// AnomalyRecord is an already-detected anomaly handed to the engine by an
// external detector. Either AnomalyScore or PercentageDiff may be set.
type AnomalyRecord struct {
	Service        string    `json:"service"`
	Date           string    `json:"date,omitempty"`
	CostImpact     float64   `json:"cost_impact"`
	Description    string    `json:"description,omitempty"`
	Severity       string    `json:"severity,omitempty"`
	Timestamp      time.Time `json:"timestamp,omitempty"`
	AnomalyScore   float64   `json:"anomaly_score,omitempty"`
	PercentageDiff float64   `json:"percentage_diff,omitempty"`
}

// Score normalizes the record's anomaly signal to [0, 1]. Detectors that
// report a percentage deviation instead of a score get it scaled so that a
// 100% deviation saturates at 1.0.
func (r AnomalyRecord) Score() float64 {
	if r.AnomalyScore > 0 {
		return r.AnomalyScore
	}
	pct := r.PercentageDiff
	if pct < 0 {
		pct = -pct
	}
	if pct >= 100 {
		return 1.0
	}
	return pct / 100
}

// DailyCost is one day's total for a service, used pairwise for spike checks.
type DailyCost struct {
	Date string  `json:"date"`
	Cost float64 `json:"cost"`
}

// BudgetConfig is an externally supplied spending limit for a service.
type BudgetConfig struct {
	Service     string  `json:"service"`
	BudgetLimit float64 `json:"budget_limit"`
}

// Stats aggregates the alert ledger.
type Stats struct {
	TotalAlerts int               `json:"total_alerts"`
	Alerts24h   int               `json:"alerts_24h"`
	Alerts7d    int               `json:"alerts_7d"`
	AlertTypes  map[AlertType]int `json:"alert_types"`
}
