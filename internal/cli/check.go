package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cloudcost-tools/cost-sentinel/pkg/model"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a one-shot evaluation over anomaly, cost and budget files",
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().String("anomalies", "", "JSON file with detected anomaly records")
	checkCmd.Flags().String("costs", "", "JSON file with per-service daily cost series")
	checkCmd.Flags().String("budgets", "", "JSON file with budget checks")
}

// costsFile maps service name to its daily cost series, oldest first.
type costsFile map[string][]model.DailyCost

// budgetsFile is a list of budget limits with the current spend to check.
type budgetsFile []struct {
	Service     string  `json:"service"`
	BudgetLimit float64 `json:"budget_limit"`
	CurrentCost float64 `json:"current_cost"`
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	anomaliesPath, _ := cmd.Flags().GetString("anomalies")
	costsPath, _ := cmd.Flags().GetString("costs")
	budgetsPath, _ := cmd.Flags().GetString("budgets")
	if anomaliesPath == "" && costsPath == "" && budgetsPath == "" {
		return fmt.Errorf("nothing to check: pass --anomalies, --costs or --budgets")
	}

	logger := newLogger(cfg)
	eng, _, cleanup, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	sent := 0

	if anomaliesPath != "" {
		var recs []model.AnomalyRecord
		if err := readJSONFile(anomaliesPath, &recs); err != nil {
			return err
		}
		dispatched := eng.ProcessAnomalyBatch(ctx, recs)
		fmt.Printf("Anomalies: %d processed, %d alert(s) dispatched\n", len(recs), len(dispatched))
		sent += len(dispatched)
	}

	if costsPath != "" {
		var costs costsFile
		if err := readJSONFile(costsPath, &costs); err != nil {
			return err
		}
		for service, days := range costs {
			dispatched := eng.ProcessDailyCosts(ctx, service, days)
			fmt.Printf("Costs[%s]: %d day(s), %d alert(s) dispatched\n", service, len(days), len(dispatched))
			sent += len(dispatched)
		}
	}

	if budgetsPath != "" {
		var budgets budgetsFile
		if err := readJSONFile(budgetsPath, &budgets); err != nil {
			return err
		}
		for _, b := range budgets {
			record, err := eng.ProcessBudget(ctx,
				model.BudgetConfig{Service: b.Service, BudgetLimit: b.BudgetLimit}, b.CurrentCost)
			if err != nil {
				logger.Error("budget check", "service", b.Service, "error", err)
				continue
			}
			if record != nil {
				fmt.Printf("Budget[%s]: exceeded by $%.2f, alert dispatched\n", b.Service, record.ExceededAmount)
				sent++
			}
		}
	}

	fmt.Printf("Done: %d alert(s) dispatched\n", sent)
	return nil
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
