package scanner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/cryptoscan/internal/indicators"
	"github.com/rewired-gh/cryptoscan/internal/models"
)

// Tier 1 rejection reasons, in evaluation order.
const (
	ReasonPrice     = "price"
	ReasonVolume    = "volume"
	ReasonMarketCap = "market_cap"
	ReasonChange    = "change"
	ReasonHistory   = "history"
	ReasonRSI       = "rsi"
	ReasonRVOL      = "rvol"
	ReasonEMA       = "ema"
	ReasonVWAP      = "vwap"
	ReasonPump      = "pump"
	ReasonCancelled = "cancelled"
)

// Rejection explains why an asset failed a check.
type Rejection struct {
	Symbol string
	Reason string
	Detail string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s rejected (%s): %s", r.Symbol, r.Reason, r.Detail)
}

// Tier1 is the coarse filter. It is pure: the same snapshots and thresholds
// always produce the same accepted set.
type Tier1 struct {
	thresholds models.FilterThresholds
	params     indicators.Params
	workers    int
}

func NewTier1(thresholds models.FilterThresholds, params indicators.Params, workers int) *Tier1 {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	params.Pump = indicators.PumpParams{
		Window:    thresholds.PumpWindow,
		SpikePct:  thresholds.PumpSpikePct,
		VolumeCap: thresholds.PumpVolumeCap,
		Shrinking: thresholds.PumpShrinkingCheck,
	}
	return &Tier1{thresholds: thresholds, params: params, workers: workers}
}

// Params returns the indicator parameters, with pump settings taken from the thresholds.
func (t *Tier1) Params() indicators.Params {
	return t.params
}

func outside(v, lo, hi float64) bool {
	return v < lo || v > hi
}

// PassesMarketGates applies the snapshot-only checks (price, volume, market
// cap, 24h change). It needs no history.
func (t *Tier1) PassesMarketGates(s models.MarketSnapshot) *Rejection {
	th := t.thresholds
	switch {
	case outside(s.Price, th.PriceMin, th.PriceMax):
		return &Rejection{s.Symbol, ReasonPrice, fmt.Sprintf("price %g outside [%g, %g]", s.Price, th.PriceMin, th.PriceMax)}
	case s.Volume24h < th.VolumeMin:
		return &Rejection{s.Symbol, ReasonVolume, fmt.Sprintf("volume %g below %g", s.Volume24h, th.VolumeMin)}
	case outside(s.MarketCap, th.MarketCapMin, th.MarketCapMax):
		return &Rejection{s.Symbol, ReasonMarketCap, fmt.Sprintf("market cap %g outside [%g, %g]", s.MarketCap, th.MarketCapMin, th.MarketCapMax)}
	case outside(s.PriceChangePct24h, th.ChangePctMin, th.ChangePctMax):
		return &Rejection{s.Symbol, ReasonChange, fmt.Sprintf("24h change %g%% outside [%g, %g]", s.PriceChangePct24h, th.ChangePctMin, th.ChangePctMax)}
	}
	return nil
}

// indicatorGates are the bands an IndicatorSet must sit in.
type indicatorGates struct {
	rsiMin, rsiMax float64
	rvolMin        float64
	vwapMaxPct     float64
}

func (g indicatorGates) check(symbol string, ind models.IndicatorSet) *Rejection {
	switch {
	case outside(ind.RSI, g.rsiMin, g.rsiMax):
		return &Rejection{symbol, ReasonRSI, fmt.Sprintf("rsi %.2f outside [%g, %g]", ind.RSI, g.rsiMin, g.rsiMax)}
	case ind.RVOL < g.rvolMin:
		return &Rejection{symbol, ReasonRVOL, fmt.Sprintf("rvol %.2f below %g", ind.RVOL, g.rvolMin)}
	case !ind.EMAAligned:
		return &Rejection{symbol, ReasonEMA, fmt.Sprintf("ema %.6g/%.6g/%.6g not aligned", ind.EMA5, ind.EMA13, ind.EMA50)}
	case math.Abs(ind.VWAPDeltaPct) > g.vwapMaxPct:
		return &Rejection{symbol, ReasonVWAP, fmt.Sprintf("vwap delta %.2f%% beyond %g%%", ind.VWAPDeltaPct, g.vwapMaxPct)}
	case ind.PumpReject:
		return &Rejection{symbol, ReasonPump, "short-window spike on weak volume"}
	}
	return nil
}

func tier1Gates(th models.FilterThresholds) indicatorGates {
	return indicatorGates{rsiMin: th.RSIMin, rsiMax: th.RSIMax, rvolMin: th.RVOLMin, vwapMaxPct: th.VWAPProximityMaxPct}
}

func tier2Gates(th models.FilterThresholds) indicatorGates {
	return indicatorGates{rsiMin: th.Tier2RSIMin, rsiMax: th.Tier2RSIMax, rvolMin: th.Tier2RVOLMin, vwapMaxPct: th.VWAPProximityMaxPct}
}

// CheckIndicators applies the indicator checks to a computed set.
func (t *Tier1) CheckIndicators(symbol string, ind models.IndicatorSet) *Rejection {
	return tier1Gates(t.thresholds).check(symbol, ind)
}

// Evaluate runs every check in order and stops at the first failure.
func (t *Tier1) Evaluate(s models.MarketSnapshot) (models.ScanResult, *Rejection) {
	if rej := t.PassesMarketGates(s); rej != nil {
		return models.ScanResult{}, rej
	}
	ind, err := indicators.Compute(s.History, s.Volume24h, t.params)
	if err != nil {
		detail := err.Error()
		if !errors.Is(err, indicators.ErrInsufficientHistory) {
			detail = "indicator error: " + detail
		}
		return models.ScanResult{}, &Rejection{s.Symbol, ReasonHistory, detail}
	}
	if rej := t.CheckIndicators(s.Symbol, ind); rej != nil {
		return models.ScanResult{}, rej
	}
	return models.ScanResult{Snapshot: s, Indicators: ind}, nil
}

// Filter returns the accepted results in input order, plus every rejection.
func (t *Tier1) Filter(ctx context.Context, snapshots []models.MarketSnapshot) ([]models.ScanResult, []*Rejection) {
	type outcome struct {
		result models.ScanResult
		rej    *Rejection
	}
	outcomes := make([]outcome, len(snapshots))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers)
	for i := range snapshots {
		i := i
		g.Go(func() error {
			if gctx.Err() != nil {
				outcomes[i].rej = &Rejection{snapshots[i].Symbol, ReasonCancelled, gctx.Err().Error()}
				return nil
			}
			outcomes[i].result, outcomes[i].rej = t.Evaluate(snapshots[i])
			return nil
		})
	}
	_ = g.Wait()

	var accepted []models.ScanResult
	var rejected []*Rejection
	for _, o := range outcomes {
		if o.rej != nil {
			rejected = append(rejected, o.rej)
			continue
		}
		accepted = append(accepted, o.result)
	}
	return accepted, rejected
}
