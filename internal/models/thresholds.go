package models

import (
	"errors"
	"time"
)

// FilterThresholds is the static filter configuration. It is loaded once and
// read-only for the duration of a scan.
type FilterThresholds struct {
	PriceMin float64
	PriceMax float64

	VolumeMin float64

	MarketCapMin float64
	MarketCapMax float64

	ChangePctMin float64
	ChangePctMax float64

	RSIMin float64
	RSIMax float64

	RVOLMin             float64
	VWAPProximityMaxPct float64

	// Tier 2 re-checks the indicators it scores on with these bands.
	Tier2RSIMin  float64
	Tier2RSIMax  float64
	Tier2RVOLMin float64

	PumpWindow         int
	PumpSpikePct       float64
	PumpVolumeCap      float64
	PumpShrinkingCheck bool

	SentimentMin      float64
	MentionsMin       int
	EngagementMin     float64
	RequireInfluencer bool

	MemeKeywords []string

	DupSuppressionWindow time.Duration
	MaxAlertsPerScan     int
}

// DefaultThresholds returns the scanner's stock filter bands.
func DefaultThresholds() FilterThresholds {
	return FilterThresholds{
		PriceMin:             0.005,
		PriceMax:             50,
		VolumeMin:            15_000_000,
		MarketCapMin:         20_000_000,
		MarketCapMax:         2_000_000_000,
		ChangePctMin:         2,
		ChangePctMax:         20,
		RSIMin:               50,
		RSIMax:               70,
		RVOLMin:              2,
		VWAPProximityMaxPct:  2,
		Tier2RSIMin:          55,
		Tier2RSIMax:          70,
		Tier2RVOLMin:         2,
		PumpWindow:           12,
		PumpSpikePct:         50,
		PumpVolumeCap:        20_000_000,
		SentimentMin:         0.6,
		MentionsMin:          10,
		EngagementMin:        100,
		MemeKeywords:         []string{"meme", "doge", "shiba", "inu"},
		DupSuppressionWindow: 6 * time.Hour,
		MaxAlertsPerScan:     5,
	}
}

// Validate checks that every band is well-formed.
func (t FilterThresholds) Validate() error {
	if t.PriceMin < 0 || t.PriceMax <= t.PriceMin {
		return errors.New("price band must satisfy 0 <= price_min < price_max")
	}
	if t.VolumeMin < 0 {
		return errors.New("volume_min must not be negative")
	}
	if t.MarketCapMin < 0 || t.MarketCapMax <= t.MarketCapMin {
		return errors.New("market cap band must satisfy 0 <= mcap_min < mcap_max")
	}
	if t.ChangePctMax <= t.ChangePctMin {
		return errors.New("change_pct_min must be below change_pct_max")
	}
	if t.RSIMin < 0 || t.RSIMax > 100 || t.RSIMax <= t.RSIMin {
		return errors.New("rsi band must satisfy 0 <= rsi_min < rsi_max <= 100")
	}
	if t.RVOLMin < 0 {
		return errors.New("rvol_min must not be negative")
	}
	if t.Tier2RSIMin < 0 || t.Tier2RSIMax > 100 || t.Tier2RSIMax <= t.Tier2RSIMin {
		return errors.New("tier 2 rsi band must satisfy 0 <= tier2_rsi_min < tier2_rsi_max <= 100")
	}
	if t.Tier2RVOLMin < 0 {
		return errors.New("tier2_rvol_min must not be negative")
	}
	if t.VWAPProximityMaxPct <= 0 {
		return errors.New("vwap_proximity_max_pct must be positive")
	}
	if t.PumpWindow < 2 {
		return errors.New("pump_window must be at least 2")
	}
	if t.PumpSpikePct <= 0 {
		return errors.New("pump_spike_pct must be positive")
	}
	if t.SentimentMin < 0 || t.SentimentMin > 1 {
		return errors.New("sentiment_min must be between 0 and 1")
	}
	if t.MentionsMin < 0 || t.EngagementMin < 0 {
		return errors.New("mentions_min and engagement_min must not be negative")
	}
	if t.DupSuppressionWindow <= 0 {
		return errors.New("dup_suppression_window must be positive")
	}
	if t.MaxAlertsPerScan < 1 {
		return errors.New("max_alerts_per_scan must be at least 1")
	}
	return nil
}
