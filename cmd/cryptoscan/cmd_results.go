package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/cryptoscan/internal/logger"
	"github.com/rewired-gh/cryptoscan/internal/storage"
)

var resultsSince time.Duration

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "List stored Tier 1 results",
	Long: `Print the Tier 1 results persisted by recent scan cycles, newest first.

Examples:
  cryptoscan results
  cryptoscan results --since 2h`,
	RunE: runResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
	resultsCmd.Flags().DurationVar(&resultsSince, "since", 24*time.Hour, "How far back to list results")
}

func runResults(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := storage.New(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	results, err := store.ScanResults(cmd.Context(), time.Now().Add(-resultsSince))
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Printf("No Tier 1 results in the last %v\n", resultsSince)
		return nil
	}

	out := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(out, "SCANNED\tSYMBOL\tPRICE\tCHANGE%\tRSI\tRVOL\tVWAP%")
	for _, r := range results {
		fmt.Fprintf(out, "%s\t%s\t%g\t%.2f\t%.1f\t%.2f\t%.2f\n",
			r.Snapshot.FetchedAt.Local().Format("01-02 15:04"),
			r.Symbol(),
			r.Snapshot.Price,
			r.Snapshot.PriceChangePct24h,
			r.Indicators.RSI,
			r.Indicators.RVOL,
			r.Indicators.VWAPDeltaPct,
		)
	}
	return out.Flush()
}
