// Package models defines the core domain entities: market snapshots, indicator sets, and alerts.
package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrInvalidSnapshot marks a snapshot that a provider adapter could not map
// into the canonical record. Callers drop the asset and continue.
var ErrInvalidSnapshot = errors.New("invalid market snapshot")

// Candle is one OHLCV bar. Series are always chronological.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// MarketSnapshot is one asset at one point in time, as returned by a market-data provider.
// ID is the provider-specific asset identifier; Symbol is the uppercase canonical ticker.
type MarketSnapshot struct {
	ID                string    `json:"id"`
	Symbol            string    `json:"symbol"`
	Name              string    `json:"name"`
	Price             float64   `json:"price"`
	Volume24h         float64   `json:"volume_24h"`
	MarketCap         float64   `json:"market_cap"`
	PriceChangePct24h float64   `json:"price_change_pct_24h"`
	History           []Candle  `json:"history,omitempty"`
	FetchedAt         time.Time `json:"fetched_at"`
}

// Validate checks snapshot field constraints.
func (s *MarketSnapshot) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("%w: symbol must not be empty", ErrInvalidSnapshot)
	}
	if s.Symbol != strings.ToUpper(s.Symbol) {
		return fmt.Errorf("%w: symbol %q must be uppercase", ErrInvalidSnapshot, s.Symbol)
	}
	for name, v := range map[string]float64{
		"price":                s.Price,
		"volume_24h":           s.Volume24h,
		"market_cap":           s.MarketCap,
		"price_change_pct_24h": s.PriceChangePct24h,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s %s is not a finite number", ErrInvalidSnapshot, s.Symbol, name)
		}
	}
	if s.Price <= 0 {
		return fmt.Errorf("%w: %s price must be positive", ErrInvalidSnapshot, s.Symbol)
	}
	if s.Volume24h < 0 {
		return fmt.Errorf("%w: %s volume must not be negative", ErrInvalidSnapshot, s.Symbol)
	}
	if s.MarketCap < 0 {
		return fmt.Errorf("%w: %s market cap must not be negative", ErrInvalidSnapshot, s.Symbol)
	}
	for i := 1; i < len(s.History); i++ {
		if s.History[i].OpenTime.Before(s.History[i-1].OpenTime) {
			return fmt.Errorf("%w: %s history is not chronological at bar %d", ErrInvalidSnapshot, s.Symbol, i)
		}
	}
	return nil
}

// IndicatorSet holds the indicators derived from one snapshot's history.
// A set only exists when the history is long enough for every indicator.
type IndicatorSet struct {
	Close        float64 `json:"close"`
	RSI          float64 `json:"rsi"`
	EMA5         float64 `json:"ema_5"`
	EMA13        float64 `json:"ema_13"`
	EMA50        float64 `json:"ema_50"`
	EMAAligned   bool    `json:"ema_aligned"`
	VWAP         float64 `json:"vwap"`
	VWAPDeltaPct float64 `json:"vwap_delta_pct"`
	ATR          float64 `json:"atr"`
	ATRValid     bool    `json:"atr_valid"`
	RVOL         float64 `json:"rvol"`
	PumpReject   bool    `json:"pump_reject"`
	Bars         int     `json:"bars"`
}

// ScanResult is a snapshot that survived the Tier 1 filter.
type ScanResult struct {
	Snapshot   MarketSnapshot `json:"snapshot"`
	Indicators IndicatorSet   `json:"indicators"`
}

// Symbol returns the canonical ticker of the underlying snapshot.
func (r ScanResult) Symbol() string {
	return r.Snapshot.Symbol
}
