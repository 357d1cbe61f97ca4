// Package coingecko maps the CoinGecko public API onto market snapshots and
// hourly candle history.
package coingecko

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rewired-gh/cryptoscan/internal/httpclient"
	"github.com/rewired-gh/cryptoscan/internal/logger"
	"github.com/rewired-gh/cryptoscan/internal/models"
)

const DefaultBaseURL = "https://api.coingecko.com/api/v3"

// Options configures the client.
type Options struct {
	VsCurrency string
	PerPage    int
	Pages      int
}

// Client provides access to the CoinGecko API.
type Client struct {
	http       *httpclient.Client
	vsCurrency string
	perPage    int
	pages      int
	now        func() time.Time
}

// coinMarket is one row of /coins/markets. Numeric fields are pointers so a
// JSON null can be told apart from zero.
type coinMarket struct {
	ID                       string   `json:"id"`
	Symbol                   string   `json:"symbol"`
	Name                     string   `json:"name"`
	CurrentPrice             *float64 `json:"current_price"`
	MarketCap                *float64 `json:"market_cap"`
	TotalVolume              *float64 `json:"total_volume"`
	PriceChangePercentage24h *float64 `json:"price_change_percentage_24h"`
}

type marketChart struct {
	Prices       [][2]float64 `json:"prices"`
	TotalVolumes [][2]float64 `json:"total_volumes"`
}

// NewClient creates a CoinGecko client on top of the shared transport.
func NewClient(hc *httpclient.Client, opts Options) *Client {
	if opts.VsCurrency == "" {
		opts.VsCurrency = "usd"
	}
	if opts.PerPage <= 0 || opts.PerPage > 250 {
		opts.PerPage = 250
	}
	if opts.Pages <= 0 {
		opts.Pages = 1
	}
	return &Client{
		http:       hc,
		vsCurrency: opts.VsCurrency,
		perPage:    opts.PerPage,
		pages:      opts.Pages,
		now:        time.Now,
	}
}

// AuthHeaders returns the headers to pass to the transport for apiKey.
func AuthHeaders(apiKey string) map[string]string {
	if apiKey == "" {
		return nil
	}
	return map[string]string{"x-cg-demo-api-key": apiKey}
}

// FetchMarkets retrieves the configured number of pages ordered by market cap.
// Rows with missing numeric fields are dropped with a warning; a transport
// failure on any page fails the whole call.
func (c *Client) FetchMarkets(ctx context.Context) ([]models.MarketSnapshot, error) {
	var snapshots []models.MarketSnapshot
	seen := make(map[string]bool)

	for page := 1; page <= c.pages; page++ {
		var rows []coinMarket
		query := map[string]string{
			"vs_currency": c.vsCurrency,
			"order":       "market_cap_desc",
			"per_page":    strconv.Itoa(c.perPage),
			"page":        strconv.Itoa(page),
			"sparkline":   "false",
		}
		if err := c.http.GetJSON(ctx, "/coins/markets", query, &rows); err != nil {
			return nil, fmt.Errorf("failed to fetch markets page %d: %w", page, err)
		}

		fetchedAt := c.now()
		for _, row := range rows {
			snap, err := row.toSnapshot(fetchedAt)
			if err != nil {
				logger.Warn("Dropping market %q: %v", row.ID, err)
				continue
			}
			if seen[snap.Symbol] {
				// Tickers are not unique on CoinGecko; keep the larger cap, which comes first.
				logger.Debug("Duplicate symbol %s (%s) ignored", snap.Symbol, snap.ID)
				continue
			}
			seen[snap.Symbol] = true
			snapshots = append(snapshots, snap)
		}

		if len(rows) < c.perPage {
			break
		}
	}

	logger.Debug("Fetched %d market snapshots", len(snapshots))
	return snapshots, nil
}

func (m coinMarket) toSnapshot(fetchedAt time.Time) (models.MarketSnapshot, error) {
	fields := []struct {
		name string
		v    *float64
	}{
		{"current_price", m.CurrentPrice},
		{"total_volume", m.TotalVolume},
		{"market_cap", m.MarketCap},
		{"price_change_percentage_24h", m.PriceChangePercentage24h},
	}
	for _, f := range fields {
		if f.v == nil {
			return models.MarketSnapshot{}, fmt.Errorf("%w: %s is missing", models.ErrInvalidSnapshot, f.name)
		}
	}

	snap := models.MarketSnapshot{
		ID:                m.ID,
		Symbol:            strings.ToUpper(strings.TrimSpace(m.Symbol)),
		Name:              m.Name,
		Price:             *m.CurrentPrice,
		Volume24h:         *m.TotalVolume,
		MarketCap:         *m.MarketCap,
		PriceChangePct24h: *m.PriceChangePercentage24h,
		FetchedAt:         fetchedAt,
	}
	if err := snap.Validate(); err != nil {
		return models.MarketSnapshot{}, err
	}
	return snap, nil
}

// FetchHistory returns up to lookback hourly candles for snap, oldest first.
// CoinGecko only exposes closes, so high and low are approximated at ±0.1%
// and open is the previous close.
func (c *Client) FetchHistory(ctx context.Context, snap models.MarketSnapshot, lookback int) ([]models.Candle, error) {
	if snap.ID == "" {
		return nil, fmt.Errorf("history for %s: missing coin id", snap.Symbol)
	}
	if lookback <= 0 {
		return nil, nil
	}
	days := int(math.Ceil(float64(lookback)/24)) + 1

	var chart marketChart
	// 2-90 days yields hourly granularity.
	query := map[string]string{
		"vs_currency": c.vsCurrency,
		"days":        strconv.Itoa(days),
	}
	path := "/coins/" + url.PathEscape(snap.ID) + "/market_chart"
	if err := c.http.GetJSON(ctx, path, query, &chart); err != nil {
		return nil, fmt.Errorf("failed to fetch history for %s: %w", snap.Symbol, err)
	}

	candles := chartToCandles(chart)
	if len(candles) > lookback {
		candles = candles[len(candles)-lookback:]
	}
	return candles, nil
}

func chartToCandles(chart marketChart) []models.Candle {
	candles := make([]models.Candle, 0, len(chart.Prices))
	prevClose := 0.0
	for i, p := range chart.Prices {
		closePrice := p[1]
		if closePrice <= 0 || math.IsNaN(closePrice) {
			continue
		}
		volume := 0.0
		if i < len(chart.TotalVolumes) {
			volume = chart.TotalVolumes[i][1]
		}
		open := prevClose
		if open == 0 {
			open = closePrice
		}
		candles = append(candles, models.Candle{
			OpenTime: time.UnixMilli(int64(p[0])).UTC(),
			Open:     open,
			High:     closePrice * 1.001,
			Low:      closePrice * 0.999,
			Close:    closePrice,
			Volume:   volume,
		})
		prevClose = closePrice
	}
	return candles
}
