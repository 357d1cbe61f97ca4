package models

import (
	"math"
	"testing"
	"time"
)

func TestMarketSnapshotValidate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name     string
		snapshot MarketSnapshot
		wantErr  bool
	}{
		{
			name: "valid snapshot",
			snapshot: MarketSnapshot{
				ID:                "xyz-token",
				Symbol:            "XYZ",
				Name:              "XYZ Token",
				Price:             10,
				Volume24h:         20_000_000,
				MarketCap:         500_000_000,
				PriceChangePct24h: 5,
				History: []Candle{
					{OpenTime: now.Add(-time.Hour), Close: 9.9},
					{OpenTime: now, Close: 10},
				},
			},
			wantErr: false,
		},
		{
			name:     "empty symbol",
			snapshot: MarketSnapshot{Price: 1},
			wantErr:  true,
		},
		{
			name:     "lowercase symbol",
			snapshot: MarketSnapshot{Symbol: "xyz", Price: 1},
			wantErr:  true,
		},
		{
			name:     "zero price",
			snapshot: MarketSnapshot{Symbol: "XYZ"},
			wantErr:  true,
		},
		{
			name:     "NaN market cap",
			snapshot: MarketSnapshot{Symbol: "XYZ", Price: 1, MarketCap: math.NaN()},
			wantErr:  true,
		},
		{
			name:     "negative volume",
			snapshot: MarketSnapshot{Symbol: "XYZ", Price: 1, Volume24h: -5},
			wantErr:  true,
		},
		{
			name: "history out of order",
			snapshot: MarketSnapshot{
				Symbol: "XYZ",
				Price:  1,
				History: []Candle{
					{OpenTime: now},
					{OpenTime: now.Add(-time.Hour)},
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.snapshot.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("MarketSnapshot.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultThresholdsValid(t *testing.T) {
	if err := DefaultThresholds().Validate(); err != nil {
		t.Fatalf("default thresholds invalid: %v", err)
	}
}

func TestThresholdsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*FilterThresholds)
	}{
		{"inverted price band", func(th *FilterThresholds) { th.PriceMax = th.PriceMin }},
		{"inverted rsi band", func(th *FilterThresholds) { th.RSIMin, th.RSIMax = 70, 50 }},
		{"rsi above 100", func(th *FilterThresholds) { th.RSIMax = 120 }},
		{"inverted tier 2 rsi band", func(th *FilterThresholds) { th.Tier2RSIMin, th.Tier2RSIMax = 70, 60 }},
		{"negative tier 2 rvol", func(th *FilterThresholds) { th.Tier2RVOLMin = -1 }},
		{"sentiment above 1", func(th *FilterThresholds) { th.SentimentMin = 1.5 }},
		{"zero window", func(th *FilterThresholds) { th.DupSuppressionWindow = 0 }},
		{"zero alert cap", func(th *FilterThresholds) { th.MaxAlertsPerScan = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := DefaultThresholds()
			tt.mutate(&th)
			if err := th.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestCatalystSummary(t *testing.T) {
	if got := (CatalystSummary{}).Summary(); got != "No strong catalyst detected." {
		t.Errorf("empty summary = %q", got)
	}
	c := CatalystSummary{Best: &CatalystItem{Source: "CoinDesk", Title: "Mainnet launch"}, Count: 1}
	if got := c.Summary(); got != `CoinDesk: "Mainnet launch"` {
		t.Errorf("summary = %q", got)
	}
	c = CatalystSummary{Best: &CatalystItem{}}
	if got := c.Summary(); got != `News: "Update"` {
		t.Errorf("defaulted summary = %q", got)
	}
}
