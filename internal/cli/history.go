package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently dispatched alerts",
	RunE:  runHistory,
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate alert statistics",
	RunE:  runHistoryStats,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyStatsCmd)

	historyCmd.Flags().IntP("hours", "H", 24, "Window to show, in hours")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	hist, err := initHistory(cfg)
	if err != nil {
		return fmt.Errorf("init history: %w", err)
	}
	defer hist.Close()

	hours, _ := cmd.Flags().GetInt("hours")
	records, err := hist.Since(cmd.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		return fmt.Errorf("query history: %w", err)
	}

	if len(records) == 0 {
		fmt.Printf("No alerts in the last %dh.\n", hours)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "TIME\tTYPE\tSERVICE\tSEVERITY\tOUTCOME\n")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.Timestamp.Local().Format("2006-01-02 15:04:05"),
			r.Type, r.Service, r.Severity, r.Outcome,
		)
	}
	w.Flush()

	return nil
}

func runHistoryStats(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	hist, err := initHistory(cfg)
	if err != nil {
		return fmt.Errorf("init history: %w", err)
	}
	defer hist.Close()

	stats, err := hist.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("aggregate history: %w", err)
	}

	fmt.Printf("Total alerts:  %d\n", stats.TotalAlerts)
	fmt.Printf("Last 24h:      %d\n", stats.Alerts24h)
	fmt.Printf("Last 7d:       %d\n", stats.Alerts7d)

	if len(stats.AlertTypes) > 0 {
		fmt.Println("By type:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for t, count := range stats.AlertTypes {
			fmt.Fprintf(w, "  %s\t%d\n", t, count)
		}
		w.Flush()
	}

	return nil
}
