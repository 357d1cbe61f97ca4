package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/cryptoscan/internal/logger"
)

var runDryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scan periodically until interrupted",
	Long: `Run a scan cycle every scanner.poll_interval inside the configured
schedule window. Cycle failures are reported to Telegram once per failure
streak, followed by a recovery notice.`,
	RunE: runService,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Log alerts instead of sending them to Telegram")
}

func runService(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, runDryRun)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("Failed to close resources: %v", err)
		}
	}()

	if cfg.Metrics.Enabled {
		go func() {
			if err := a.metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
				logger.Error("Metrics server failed: %v", err)
			}
		}()
	}

	if a.telegram != nil {
		a.telegram.ListenForCommands(ctx)
	}

	logger.Info("Starting scanner (interval: %v, window: %02d:00-%02d:00 %s, max alerts: %d)",
		cfg.Scanner.PollInterval,
		cfg.Schedule.StartHour,
		cfg.Schedule.EndHour,
		a.location,
		cfg.Thresholds.MaxAlertsPerScan,
	)

	ticker := time.NewTicker(cfg.Scanner.PollInterval)
	defer ticker.Stop()

	consecutiveFailures := 0

	handleCycleResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Scan cycle failed: %v", err)
			if consecutiveFailures == 1 && a.telegram != nil {
				if sendErr := a.telegram.SendError(ctx, err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
			return
		}
		if consecutiveFailures > 0 && a.telegram != nil {
			if sendErr := a.telegram.SendRecovery(ctx, consecutiveFailures); sendErr != nil {
				logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
			}
		}
		consecutiveFailures = 0
	}

	tick := func() {
		now := time.Now()
		if !cfg.Schedule.Active(now, a.location) {
			logger.Debug("Outside schedule window at %s, skipping cycle", now.In(a.location).Format("15:04 MST"))
			return
		}
		handleCycleResult(a.runCycle(ctx))
		a.prune(ctx, now)
	}

	logger.Debug("Running initial scan cycle")
	tick()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return nil
		case <-ticker.C:
			logger.Debug("Starting scheduled scan cycle")
			tick()
		}
	}
}

// runCycle bounds one cycle by scanner.cycle_timeout.
func (a *app) runCycle(ctx context.Context) error {
	cycleCtx, cancel := context.WithTimeout(ctx, a.cfg.Scanner.CycleTimeout)
	defer cancel()
	_, err := a.scanner.RunCycle(cycleCtx)
	return err
}

func (a *app) prune(ctx context.Context, now time.Time) {
	if a.cfg.Storage.Retention <= 0 {
		return
	}
	n, err := a.store.PruneAlerts(ctx, now.Add(-a.cfg.Storage.Retention))
	if err != nil {
		logger.Warn("Failed to prune alerts: %v", err)
		return
	}
	if n > 0 {
		logger.Debug("Pruned %d alerts older than %v", n, a.cfg.Storage.Retention)
	}
}
