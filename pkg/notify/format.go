package notify

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudcost-tools/cost-sentinel/pkg/model"
)

// FormatText renders the webhook message for an alert, one template per
// alert type with a generic fallback.
func FormatText(a model.Alert) string {
	switch a.Type {
	case model.TypeCostSpike:
		emoji := "⚠️"
		if a.Severity == model.SeverityCritical {
			emoji = "🚨"
		}
		return fmt.Sprintf(`%s *Cost Spike Alert*
*Service:* %s
*Current Cost:* $%.2f
*Previous Cost:* $%.2f
*Increase:* $%.2f (%.1f%%)
*Threshold:* $%.2f / %.1f%%
*Time:* %s`,
			emoji, a.Service, a.CurrentCost, a.PreviousCost,
			a.IncreaseAmount, a.IncreasePercentage,
			a.ThresholdAmount, a.ThresholdPercentage,
			formatTime(a.Timestamp))

	case model.TypeBudgetExceeded:
		return fmt.Sprintf(`🚨 *Budget Exceeded Alert*
*Service:* %s
*Current Cost:* $%.2f
*Budget Limit:* $%.2f
*Exceeded By:* $%.2f
*Time:* %s`,
			a.Service, a.CurrentCost, a.BudgetLimit, a.ExceededAmount,
			formatTime(a.Timestamp))

	case model.TypeAnomaly:
		emoji := "🚨"
		if a.Severity == model.SeverityMedium {
			emoji = "🔍"
		}
		return fmt.Sprintf(`%s *Anomaly Detected*
*Service:* %s
*Anomaly Score:* %.2f
*Cost Impact:* $%.2f
*Time:* %s`,
			emoji, a.Service, a.AnomalyScore, a.CostImpact,
			formatTime(a.Timestamp))

	default:
		details, _ := json.MarshalIndent(a, "", "  ")
		return fmt.Sprintf(`⚠️ *Alert: %s*
*Service:* %s
*Details:* %s
*Time:* %s`,
			TitleFor(a.Type), a.Service, details, formatTime(a.Timestamp))
	}
}

// FormatEmailSubject renders the subject line for an alert email.
func FormatEmailSubject(a model.Alert) string {
	return fmt.Sprintf("Cost Alert: %s", TitleFor(a.Type))
}

// FormatEmailBody renders the plain-text email body for an alert.
func FormatEmailBody(a model.Alert) string {
	switch a.Type {
	case model.TypeCostSpike:
		return fmt.Sprintf(`Cost Spike Alert

Service: %s
Current Cost: $%.2f
Previous Cost: $%.2f
Increase: $%.2f (%.1f%%)
Threshold: $%.2f / %.1f%%
Time: %s

Please review your cloud costs immediately.`,
			a.Service, a.CurrentCost, a.PreviousCost,
			a.IncreaseAmount, a.IncreasePercentage,
			a.ThresholdAmount, a.ThresholdPercentage,
			formatTime(a.Timestamp))

	case model.TypeBudgetExceeded:
		return fmt.Sprintf(`Budget Exceeded Alert

Service: %s
Current Cost: $%.2f
Budget Limit: $%.2f
Exceeded By: $%.2f
Time: %s

URGENT: Budget limit has been exceeded!`,
			a.Service, a.CurrentCost, a.BudgetLimit, a.ExceededAmount,
			formatTime(a.Timestamp))

	case model.TypeAnomaly:
		return fmt.Sprintf(`Anomaly Alert

Service: %s
Anomaly Score: %.2f
Cost Impact: $%.2f
Time: %s

Anomalous cost pattern detected.`,
			a.Service, a.AnomalyScore, a.CostImpact,
			formatTime(a.Timestamp))

	default:
		details, _ := json.MarshalIndent(a, "", "  ")
		return fmt.Sprintf(`Alert: %s

Service: %s
Details: %s
Time: %s`,
			TitleFor(a.Type), a.Service, details, formatTime(a.Timestamp))
	}
}

// TitleFor turns an alert type into a human heading, e.g. "cost_spike"
// becomes "Cost Spike".
func TitleFor(t model.AlertType) string {
	words := strings.Split(string(t), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func formatTime(ts time.Time) string {
	return ts.Format(time.RFC3339)
}
