package scanner

import (
	"fmt"
	"math"
	"strings"

	"github.com/rewired-gh/cryptoscan/internal/models"
)

// Weights are the point contributions of each scoring rule.
type Weights struct {
	Momentum   float64
	RSI        float64
	EMA        float64
	VWAP       float64
	RVOL       float64
	Sentiment  float64
	Influencer float64
	Liquidity  float64
	MarketCap  float64
}

// ScoreParams configures the AI score.
type ScoreParams struct {
	Weights Weights

	// MomentumMin/Max bound the "healthy" 24h change, in percent.
	MomentumMin float64
	MomentumMax float64

	SentimentBullish float64

	LiquidityMin     float64
	MarketCapSafeMin float64
	MarketCapSafeMax float64
}

func DefaultScoreParams() ScoreParams {
	return ScoreParams{
		Weights: Weights{
			Momentum:   1.5,
			RSI:        1.5,
			EMA:        1.5,
			VWAP:       1.0,
			RVOL:       1.5,
			Sentiment:  1.5,
			Influencer: 1.0,
			Liquidity:  0.5,
			MarketCap:  0.5,
		},
		MomentumMin:      3,
		MomentumMax:      15,
		SentimentBullish: 0.6,
		LiquidityMin:     25_000_000,
		MarketCapSafeMin: 50_000_000,
		MarketCapSafeMax: 1_000_000_000,
	}
}

// Confidence labels a score.
func Confidence(score float64) string {
	switch {
	case score >= 7.5:
		return models.ConfidenceHigh
	case score >= 5:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

// ScoreCandidate computes the deterministic weighted-rule score. Rules are
// evaluated in a fixed order and the narrative lists the reasons of the
// rules that fired, in that order.
func ScoreCandidate(r models.ScanResult, sent models.SentimentSummary, th models.FilterThresholds, p ScoreParams) models.AIScore {
	w := p.Weights
	snap, ind := r.Snapshot, r.Indicators

	var total float64
	var reasons []string
	add := func(ok bool, weight float64, reason string) {
		if !ok || weight == 0 {
			return
		}
		total += weight
		reasons = append(reasons, reason)
	}

	add(snap.PriceChangePct24h >= p.MomentumMin && snap.PriceChangePct24h <= p.MomentumMax, w.Momentum,
		fmt.Sprintf("24h change %+.1f%% in momentum band", snap.PriceChangePct24h))
	add(ind.RSI >= th.RSIMin && ind.RSI <= th.RSIMax, w.RSI,
		fmt.Sprintf("RSI %.1f in accumulation band", ind.RSI))
	add(ind.EMAAligned, w.EMA, "EMA 5>13>50 aligned")
	add(math.Abs(ind.VWAPDeltaPct) <= th.VWAPProximityMaxPct, w.VWAP,
		fmt.Sprintf("price within %.2f%% of VWAP", math.Abs(ind.VWAPDeltaPct)))
	add(ind.RVOL >= th.RVOLMin, w.RVOL, fmt.Sprintf("RVOL %.1fx", ind.RVOL))
	add(sent.Available && sent.Score >= p.SentimentBullish, w.Sentiment,
		fmt.Sprintf("bullish sentiment %.2f", sent.Score))
	add(sent.InfluencerHit, w.Influencer, "influencer mention")
	add(snap.Volume24h >= p.LiquidityMin, w.Liquidity,
		fmt.Sprintf("deep liquidity (%.1fM volume)", snap.Volume24h/1e6))
	add(snap.MarketCap >= p.MarketCapSafeMin && snap.MarketCap <= p.MarketCapSafeMax, w.MarketCap,
		"market cap in safety band")

	score := math.Max(0, math.Min(10, total))
	return models.AIScore{
		Score:      score,
		Confidence: Confidence(score),
		Narrative:  strings.Join(reasons, "; "),
		Reasons:    reasons,
	}
}
