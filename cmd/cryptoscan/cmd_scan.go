package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/cryptoscan/internal/logger"
)

var scanDryRun bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a single scan cycle",
	Long: `Run one scan cycle and print a summary. Alerts are delivered to Telegram
unless --dry-run is set; in both cases they are marked and persisted.

Examples:
  cryptoscan scan --dry-run
  cryptoscan scan --config ./configs/config.yaml`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().BoolVar(&scanDryRun, "dry-run", false, "Log alerts instead of sending them to Telegram")
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, scanDryRun)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("Failed to close resources: %v", err)
		}
	}()

	if err := a.runCycle(ctx); err != nil {
		return err
	}
	report, _ := a.scanner.LastReport()

	out := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(out, "Started\t%s\n", report.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "Duration\t%s\n", report.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "Fetched\t%d\n", report.Fetched)
	fmt.Fprintf(out, "Malformed\t%d\n", report.Malformed)
	fmt.Fprintf(out, "Gated\t%d\n", report.Gated)
	fmt.Fprintf(out, "No history\t%d\n", report.NoHistory)
	fmt.Fprintf(out, "Tier 1\t%d\n", report.Tier1)
	fmt.Fprintf(out, "Alerts\t%d\n", report.Alerts)
	fmt.Fprintf(out, "Delivered\t%d\n", report.Delivered)
	for _, sym := range report.AlertedSym {
		fmt.Fprintf(out, "  %s\t\n", sym)
	}
	return out.Flush()
}
