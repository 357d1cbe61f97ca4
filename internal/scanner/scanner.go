package scanner

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/cryptoscan/internal/logger"
	"github.com/rewired-gh/cryptoscan/internal/metrics"
	"github.com/rewired-gh/cryptoscan/internal/models"
)

// MarketProvider lists tradable assets.
type MarketProvider interface {
	FetchMarkets(ctx context.Context) ([]models.MarketSnapshot, error)
}

// HistoryProvider returns a chronological candle series for an asset.
type HistoryProvider interface {
	FetchHistory(ctx context.Context, snap models.MarketSnapshot, lookback int) ([]models.Candle, error)
}

type SentimentProvider interface {
	FetchSentiment(ctx context.Context, symbol string) (models.SentimentSummary, error)
}

// CatalystProvider returns items ranked best first.
type CatalystProvider interface {
	FetchCatalysts(ctx context.Context, symbol, name string) ([]models.CatalystItem, error)
}

type Notifier interface {
	Notify(ctx context.Context, candidate models.AlertCandidate) error
}

type ResultStore interface {
	UpsertScanResults(ctx context.Context, results []models.ScanResult, at time.Time) error
	PersistAlert(ctx context.Context, rec models.AlertRecord) error
}

// Suppressor is the duplicate-alert cache as seen by Tier 2.
type Suppressor interface {
	ShouldSuppress(ctx context.Context, symbol string) bool
	TryMark(ctx context.Context, symbol string) bool
}

// Alert delivery results recorded in metrics.
const (
	AlertSent   = "sent"
	AlertFailed = "failed"
	AlertDryRun = "dry_run"
)

// Config wires a Scanner. Markets and History are required.
type Config struct {
	Thresholds models.FilterThresholds
	Tier1      *Tier1
	Tier2      *Tier2

	Markets  MarketProvider
	History  HistoryProvider
	Notifier Notifier
	Store    ResultStore
	Metrics  *metrics.Registry

	// HistoryBars is the Tier 1 lookback passed to History.
	HistoryBars  int
	FetchWorkers int
	Now          func() time.Time
}

// CycleReport summarises one scan cycle.
type CycleReport struct {
	StartedAt  time.Time
	Duration   time.Duration
	Fetched    int
	Malformed  int
	Gated      int
	NoHistory  int
	Tier1      int
	Alerts     int
	Delivered  int
	Failed     int
	AlertedSym []string
}

// Scanner runs the fetch, Tier 1, Tier 2, notify pipeline. RunCycle calls
// are serialised.
type Scanner struct {
	cfg Config

	runMu sync.Mutex

	mu      sync.RWMutex
	last    CycleReport
	lastErr error
	cycles  int
}

func New(cfg Config) (*Scanner, error) {
	if cfg.Markets == nil || cfg.History == nil {
		return nil, fmt.Errorf("scanner: market and history providers are required")
	}
	if cfg.Tier1 == nil || cfg.Tier2 == nil {
		return nil, fmt.Errorf("scanner: both tiers are required")
	}
	if cfg.HistoryBars <= 0 {
		cfg.HistoryBars = 100
	}
	if min := cfg.Tier1.Params().MinBars(); cfg.HistoryBars < min {
		cfg.HistoryBars = min
	}
	if cfg.FetchWorkers <= 0 {
		cfg.FetchWorkers = runtime.NumCPU()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scanner{cfg: cfg}, nil
}

// RunCycle executes one scan. Only a failed market listing fails the cycle;
// per-asset problems drop that asset and the cycle continues.
func (s *Scanner) RunCycle(ctx context.Context) (report CycleReport, err error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	report.StartedAt = s.cfg.Now()
	start := time.Now()
	defer func() {
		report.Duration = time.Since(start)
		s.cfg.Metrics.ObserveCycle(err, report.Duration)
		s.mu.Lock()
		s.last, s.lastErr = report, err
		s.cycles++
		s.mu.Unlock()
		if err == nil {
			log := logger.Component("scanner")
			log.Info().
				Int("fetched", report.Fetched).
				Int("tier1", report.Tier1).
				Int("alerts", report.Alerts).
				Int("delivered", report.Delivered).
				Int("failed", report.Failed).
				Dur("duration", report.Duration).
				Msg("Scan cycle completed")
		}
	}()

	logger.Info("Starting scan cycle")
	snaps, err := s.cfg.Markets.FetchMarkets(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to fetch markets: %w", err)
	}
	report.Fetched = len(snaps)
	logger.Info("Fetched %d market snapshots", len(snaps))

	gated := make([]models.MarketSnapshot, 0, len(snaps))
	for i := range snaps {
		snap := snaps[i]
		if err := snap.Validate(); err != nil {
			report.Malformed++
			logger.Warn("Dropping malformed snapshot %q: %v", snap.Symbol, err)
			continue
		}
		if rej := s.cfg.Tier1.PassesMarketGates(snap); rej != nil {
			report.Gated++
			s.cfg.Metrics.Reject("tier1", rej.Reason)
			continue
		}
		gated = append(gated, snap)
	}
	logger.Debug("%d of %d assets passed market gates", len(gated), report.Fetched)

	withHistory := s.fetchHistories(ctx, gated)
	report.NoHistory = len(gated) - len(withHistory)

	results, rejections := s.cfg.Tier1.Filter(ctx, withHistory)
	for _, rej := range rejections {
		s.cfg.Metrics.Reject("tier1", rej.Reason)
		logger.Debug("Tier 1: %v", rej)
	}
	report.Tier1 = len(results)
	s.cfg.Metrics.AddTier1(len(results))
	logger.Info("Tier 1 accepted %d of %d assets", len(results), len(withHistory))

	if s.cfg.Store != nil && len(results) > 0 {
		if err := s.cfg.Store.UpsertScanResults(ctx, results, report.StartedAt); err != nil {
			logger.Warn("Failed to persist scan results: %v", err)
		}
	}

	alerts := s.cfg.Tier2.Run(ctx, results)
	report.Alerts = len(alerts)
	if len(alerts) == 0 {
		logger.Info("No alerts this cycle")
	}
	for _, alert := range alerts {
		report.AlertedSym = append(report.AlertedSym, alert.Symbol())
		if s.deliver(ctx, alert) {
			report.Delivered++
		} else if s.cfg.Notifier != nil {
			report.Failed++
		}
	}

	return report, nil
}

// fetchHistories attaches history to each snapshot. Assets whose history
// cannot be fetched are dropped for this cycle.
func (s *Scanner) fetchHistories(ctx context.Context, snaps []models.MarketSnapshot) []models.MarketSnapshot {
	ok := make([]bool, len(snaps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.FetchWorkers)
	for i := range snaps {
		i := i
		g.Go(func() error {
			candles, err := s.cfg.History.FetchHistory(gctx, snaps[i], s.cfg.HistoryBars)
			if err != nil {
				if gctx.Err() != nil {
					s.cfg.Metrics.Reject("tier1", ReasonCancelled)
					return nil
				}
				logger.Warn("Skipping %s: history unavailable: %v", snaps[i].Symbol, err)
				s.cfg.Metrics.Reject("tier1", ReasonHistory)
				return nil
			}
			snaps[i].History = candles
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()

	out := make([]models.MarketSnapshot, 0, len(snaps))
	for i := range snaps {
		if ok[i] {
			out = append(out, snaps[i])
		}
	}
	return out
}

// deliver notifies and persists one claimed alert. The symbol is already
// marked, so a failed delivery stays suppressed for the window.
func (s *Scanner) deliver(ctx context.Context, alert models.AlertCandidate) bool {
	symbol := alert.Symbol()
	delivered := false
	switch {
	case s.cfg.Notifier == nil:
		s.cfg.Metrics.Alert(AlertDryRun)
		logger.Info("Dry run alert for %s (score %.1f, %s)", symbol, alert.Score.Score, alert.Score.Confidence)
	default:
		if err := s.cfg.Notifier.Notify(ctx, alert); err != nil {
			s.cfg.Metrics.Alert(AlertFailed)
			logger.Error("Failed to deliver alert for %s: %v", symbol, err)
		} else {
			delivered = true
			s.cfg.Metrics.Alert(AlertSent)
			logger.Info("Alert sent for %s (score %.1f, %s)", symbol, alert.Score.Score, alert.Score.Confidence)
		}
	}

	if s.cfg.Store == nil {
		return delivered
	}
	rec, err := models.NewAlertRecord(alert, delivered)
	if err != nil {
		logger.Warn("Failed to encode alert for %s: %v", symbol, err)
		return delivered
	}
	if err := s.cfg.Store.PersistAlert(ctx, rec); err != nil {
		logger.Warn("Failed to persist alert for %s: %v", symbol, err)
	}
	return delivered
}

// Status renders the last cycle for the /status command.
func (s *Scanner) Status(_ context.Context) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cycles == 0 {
		return "No scan cycle has completed yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Cycles run: %d\n", s.cycles)
	fmt.Fprintf(&b, "Last cycle: %s (%s)\n", s.last.StartedAt.UTC().Format("2006-01-02 15:04 MST"), s.last.Duration.Round(time.Millisecond))
	if s.lastErr != nil {
		fmt.Fprintf(&b, "Last error: %v\n", s.lastErr)
		return b.String()
	}
	fmt.Fprintf(&b, "Fetched %d, Tier 1 %d, alerts %d\n", s.last.Fetched, s.last.Tier1, s.last.Alerts)
	if len(s.last.AlertedSym) > 0 {
		fmt.Fprintf(&b, "Alerted: %s\n", strings.Join(s.last.AlertedSym, ", "))
	}
	return b.String()
}

// LastReport returns the most recent cycle report and its error.
func (s *Scanner) LastReport() (CycleReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.lastErr
}
