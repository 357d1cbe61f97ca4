package scanner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rewired-gh/cryptoscan/internal/models"
)

var testStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// upTrend builds a zigzag uptrend ending at 10.0 whose final bar trades three
// times the usual volume. With default parameters and 60 bars it yields
// RSI ~61.8, RVOL 3.0, VWAP delta ~1.31% and ATR ~0.070.
func upTrend(n int) []models.Candle {
	const up, down = 0.06, 0.04
	ups, downs := n/2, (n-1)/2
	price := 10.0 - float64(ups)*up + float64(downs)*down
	candles := make([]models.Candle, n)
	for i := 0; i < n; i++ {
		if i > 0 {
			if i%2 == 1 {
				price += up
			} else {
				price -= down
			}
		}
		vol := 1000.0
		if i == n-1 {
			vol = 3000
		}
		candles[i] = models.Candle{
			OpenTime: testStart.Add(time.Duration(i) * time.Hour),
			Open:     price,
			High:     price * 1.002,
			Low:      price * 0.998,
			Close:    price,
			Volume:   vol,
		}
	}
	return candles
}

// downTrend mirrors upTrend so the EMAs stack the wrong way.
func downTrend(n int) []models.Candle {
	candles := upTrend(n)
	out := make([]models.Candle, n)
	for i := range candles {
		c := candles[n-1-i]
		c.OpenTime = testStart.Add(time.Duration(i) * time.Hour)
		out[i] = c
	}
	return out
}

func snapshotXYZ() models.MarketSnapshot {
	return models.MarketSnapshot{
		ID:                "xyz",
		Symbol:            "XYZ",
		Name:              "XYZ Protocol",
		Price:             10.0,
		Volume24h:         20_000_000,
		MarketCap:         500_000_000,
		PriceChangePct24h: 5.0,
		FetchedAt:         testStart,
	}
}

func withHistory(s models.MarketSnapshot, candles []models.Candle) models.MarketSnapshot {
	s.History = candles
	return s
}

func named(symbol string, volume float64) models.MarketSnapshot {
	s := snapshotXYZ()
	s.ID = symbol
	s.Symbol = symbol
	s.Name = symbol + " Network"
	s.Volume24h = volume
	return s
}

type fakeMarkets struct {
	snaps []models.MarketSnapshot
	err   error
}

func (f *fakeMarkets) FetchMarkets(context.Context) ([]models.MarketSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.MarketSnapshot, len(f.snaps))
	copy(out, f.snaps)
	return out, nil
}

// fakeHistory serves upTrend(bars) unless the symbol is configured otherwise.
type fakeHistory struct {
	mu        sync.Mutex
	bars      int
	series    map[string][]models.Candle
	errs      map[string]error
	calls     map[string]int
	lookbacks []int
}

func newFakeHistory(bars int) *fakeHistory {
	return &fakeHistory{
		bars:   bars,
		series: make(map[string][]models.Candle),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

func (f *fakeHistory) FetchHistory(_ context.Context, snap models.MarketSnapshot, lookback int) ([]models.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[snap.Symbol]++
	f.lookbacks = append(f.lookbacks, lookback)
	if err, ok := f.errs[snap.Symbol]; ok {
		return nil, err
	}
	if s, ok := f.series[snap.Symbol]; ok {
		return s, nil
	}
	return upTrend(f.bars), nil
}

type fakeSentiment struct {
	mu       sync.Mutex
	bySymbol map[string]models.SentimentSummary
	errs     map[string]error
	calls    int
}

func (f *fakeSentiment) FetchSentiment(_ context.Context, symbol string) (models.SentimentSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.errs[symbol]; ok {
		return models.SentimentSummary{}, err
	}
	if s, ok := f.bySymbol[symbol]; ok {
		return s, nil
	}
	return bullish(50, 200), nil
}

func bullish(mentions int, engagement float64) models.SentimentSummary {
	return models.SentimentSummary{
		Available:  true,
		Score:      0.8,
		Label:      models.SentimentBullish,
		Mentions:   mentions,
		Engagement: engagement,
	}
}

type fakeCatalysts struct {
	items []models.CatalystItem
	err   error
}

func (f *fakeCatalysts) FetchCatalysts(context.Context, string, string) ([]models.CatalystItem, error) {
	return f.items, f.err
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, c models.AlertCandidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, c.Symbol())
	return nil
}

type fakeStore struct {
	mu      sync.Mutex
	results []models.ScanResult
	alerts  []models.AlertRecord
	err     error
}

func (f *fakeStore) UpsertScanResults(_ context.Context, results []models.ScanResult, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.results = append(f.results, results...)
	return nil
}

func (f *fakeStore) PersistAlert(_ context.Context, rec models.AlertRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.alerts = append(f.alerts, rec)
	return nil
}

var errProvider = errors.New("provider down")
