package scanner

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/cryptoscan/internal/dedup"
	"github.com/rewired-gh/cryptoscan/internal/indicators"
	"github.com/rewired-gh/cryptoscan/internal/metrics"
	"github.com/rewired-gh/cryptoscan/internal/models"
)

type cycleFixture struct {
	markets  *fakeMarkets
	history  *fakeHistory
	notifier *fakeNotifier
	store    *fakeStore
	cache    *dedup.Cache
	metrics  *metrics.Registry
}

func newCycleFixture(snaps ...models.MarketSnapshot) *cycleFixture {
	return &cycleFixture{
		markets:  &fakeMarkets{snaps: snaps},
		history:  newFakeHistory(60),
		notifier: &fakeNotifier{},
		store:    &fakeStore{},
		cache:    dedup.New(6*time.Hour, dedup.WithClock(func() time.Time { return testStart })),
		metrics:  metrics.New(),
	}
}

func (f *cycleFixture) scanner(t *testing.T, mutate func(*Config)) *Scanner {
	t.Helper()
	th := models.DefaultThresholds()
	tier1 := NewTier1(th, indicators.DefaultParams(), 4)
	cfg := Config{
		Thresholds: th,
		Tier1:      tier1,
		Tier2: NewTier2(Tier2Config{
			Thresholds: th,
			Params:     tier1.Params(),
			Score:      DefaultScoreParams(),
			Risk:       DefaultRiskParams(),
			Sentiment:  &fakeSentiment{},
			Dedup:      f.cache,
			Metrics:    f.metrics,
			Now:        func() time.Time { return testStart },
		}),
		Markets:     f.markets,
		History:     f.history,
		Notifier:    f.notifier,
		Store:       f.store,
		Metrics:     f.metrics,
		HistoryBars: 60,
		Now:         func() time.Time { return testStart },
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func TestNew_RequiresProviders(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestRunCycle_AlertsAndPersists(t *testing.T) {
	f := newCycleFixture(snapshotXYZ())
	s := f.scanner(t, nil)

	report, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Fetched)
	assert.Equal(t, 1, report.Tier1)
	assert.Equal(t, 1, report.Alerts)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, []string{"XYZ"}, f.notifier.sent)

	require.Len(t, f.store.results, 1)
	assert.Equal(t, "XYZ", f.store.results[0].Symbol())

	require.Len(t, f.store.alerts, 1)
	rec := f.store.alerts[0]
	assert.Equal(t, "XYZ", rec.Symbol)
	assert.True(t, rec.Notified)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, testStart, rec.Timestamp)

	var payload models.AlertCandidate
	require.NoError(t, json.Unmarshal(rec.Payload, &payload))
	assert.Equal(t, "XYZ", payload.Symbol())
	assert.Equal(t, models.ConfidenceHigh, payload.Score.Confidence)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Alerts.WithLabelValues(AlertSent)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Cycles.WithLabelValues("ok")))
	assert.Equal(t, []int{60}, f.history.lookbacks)
}

func TestRunCycle_SecondCycleIsSuppressed(t *testing.T) {
	f := newCycleFixture(snapshotXYZ())
	s := f.scanner(t, nil)

	_, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	report, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Tier1)
	assert.Equal(t, 0, report.Alerts)
	assert.Len(t, f.notifier.sent, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Suppressed))
}

func TestRunCycle_FailedDeliveryStaysMarked(t *testing.T) {
	f := newCycleFixture(snapshotXYZ())
	f.notifier.err = errProvider
	s := f.scanner(t, nil)

	report, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Alerts)
	assert.Equal(t, 0, report.Delivered)
	assert.Equal(t, 1, report.Failed)

	require.Len(t, f.store.alerts, 1)
	assert.False(t, f.store.alerts[0].Notified)
	assert.True(t, f.cache.ShouldSuppress(context.Background(), "XYZ"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Alerts.WithLabelValues(AlertFailed)))
}

func TestRunCycle_DryRun(t *testing.T) {
	f := newCycleFixture(snapshotXYZ())
	s := f.scanner(t, func(c *Config) { c.Notifier = nil })

	report, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Alerts)
	assert.Equal(t, 0, report.Delivered)
	assert.Equal(t, 0, report.Failed)
	require.Len(t, f.store.alerts, 1)
	assert.False(t, f.store.alerts[0].Notified)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Alerts.WithLabelValues(AlertDryRun)))
}

func TestRunCycle_IsolatesPerAssetFailures(t *testing.T) {
	malformed := named("BAD", 30_000_000)
	malformed.Price = math.NaN()
	gated := named("THIN", 1_000)

	f := newCycleFixture(
		named("AAA", 30_000_000),
		malformed,
		gated,
		named("NOHIST", 30_000_000),
		named("SHORT", 30_000_000),
		named("BBB", 25_000_000),
	)
	f.history.errs["NOHIST"] = errProvider
	f.history.series["SHORT"] = upTrend(10)
	s := f.scanner(t, nil)

	report, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, report.Fetched)
	assert.Equal(t, 1, report.Malformed)
	assert.Equal(t, 1, report.Gated)
	assert.Equal(t, 1, report.NoHistory)
	assert.Equal(t, 2, report.Tier1)
	assert.ElementsMatch(t, []string{"AAA", "BBB"}, f.notifier.sent)
	assert.Zero(t, f.history.calls["THIN"], "gated assets never fetch history")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Rejections.WithLabelValues("tier1", ReasonVolume)))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Rejections.WithLabelValues("tier1", ReasonHistory)))
}

func TestRunCycle_MarketFailureFailsCycle(t *testing.T) {
	f := newCycleFixture()
	f.markets.err = errProvider
	s := f.scanner(t, nil)

	_, err := s.RunCycle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errProvider)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Cycles.WithLabelValues("error")))

	status := s.Status(context.Background())
	assert.Contains(t, status, "Cycles run: 1")
	assert.Contains(t, status, "provider down")
}

func TestRunCycle_StoreFailureIsNotFatal(t *testing.T) {
	f := newCycleFixture(snapshotXYZ())
	f.store.err = errProvider
	s := f.scanner(t, nil)

	report, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)
}

func TestScanner_Status(t *testing.T) {
	f := newCycleFixture(snapshotXYZ())
	s := f.scanner(t, nil)

	assert.Equal(t, "No scan cycle has completed yet.", s.Status(context.Background()))

	_, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	status := s.Status(context.Background())
	assert.Contains(t, status, "Cycles run: 1")
	assert.Contains(t, status, "Fetched 1, Tier 1 1, alerts 1")
	assert.Contains(t, status, "Alerted: XYZ")

	report, lastErr := s.LastReport()
	assert.NoError(t, lastErr)
	assert.Equal(t, testStart, report.StartedAt)
}
