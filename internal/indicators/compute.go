package indicators

import (
	"errors"
	"fmt"

	"github.com/rewired-gh/cryptoscan/internal/models"
)

// ErrInsufficientHistory means the series is too short for at least one
// indicator. It is not a failure: the asset is simply not yet eligible.
var ErrInsufficientHistory = errors.New("insufficient history")

// PumpParams configures the pump filter.
type PumpParams struct {
	Window    int
	SpikePct  float64
	VolumeCap float64
	// Shrinking also treats a last bar with less volume than the prior bar as weak volume.
	Shrinking bool
}

// PumpSpike reports whether (max-min)/min over the trailing window exceeds spikePct percent.
func PumpSpike(closes []float64, window int, spikePct float64) bool {
	n := len(closes)
	if window < 2 || n < window {
		return false
	}
	lo, hi := closes[n-window], closes[n-window]
	for _, c := range closes[n-window:] {
		if c < lo {
			lo = c
		}
		if c > hi {
			hi = c
		}
	}
	if lo <= 0 {
		return false
	}
	return (hi-lo)/lo*100 > spikePct
}

// PumpFilter flags a short-window spike that is not backed by volume, which
// is rejected rather than chased.
func PumpFilter(closes, volumes []float64, volume24h float64, p PumpParams) bool {
	if !PumpSpike(closes, p.Window, p.SpikePct) {
		return false
	}
	weak := volume24h < p.VolumeCap
	if p.Shrinking && len(volumes) >= 2 {
		weak = weak || volumes[len(volumes)-1] < volumes[len(volumes)-2]
	}
	return weak
}

// Params selects the periods used to build an IndicatorSet.
type Params struct {
	RSIPeriod    int
	ATRPeriod    int
	EMAFast      int
	EMAMid       int
	EMASlow      int
	VWAPWindow   int
	RVOLLookback int
	Pump         PumpParams
}

func DefaultParams() Params {
	return Params{
		RSIPeriod:    14,
		ATRPeriod:    14,
		EMAFast:      5,
		EMAMid:       13,
		EMASlow:      50,
		VWAPWindow:   24,
		RVOLLookback: 20,
		Pump: PumpParams{
			Window:    12,
			SpikePct:  50,
			VolumeCap: 20_000_000,
		},
	}
}

// MinBars is the shortest history for which Compute can succeed.
func (p Params) MinBars() int {
	n := p.EMASlow
	for _, m := range []int{p.EMAFast, p.EMAMid, p.RSIPeriod + 1, p.ATRPeriod + 1, p.RVOLLookback + 1} {
		if m > n {
			n = m
		}
	}
	return n
}

// Compute derives the full IndicatorSet from candles. It returns
// ErrInsufficientHistory when any indicator would be undefined.
func Compute(candles []models.Candle, volume24h float64, p Params) (models.IndicatorSet, error) {
	if len(candles) < p.MinBars() {
		return models.IndicatorSet{}, fmt.Errorf("%w: have %d bars, need %d", ErrInsufficientHistory, len(candles), p.MinBars())
	}

	n := len(candles)
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, c := range candles {
		highs[i], lows[i], closes[i], volumes[i] = c.High, c.Low, c.Close, c.Volume
	}

	rsi, ok := RSI(closes, p.RSIPeriod)
	if !ok {
		return models.IndicatorSet{}, fmt.Errorf("%w: rsi", ErrInsufficientHistory)
	}
	atr, ok := ATR(highs, lows, closes, p.ATRPeriod)
	if !ok {
		return models.IndicatorSet{}, fmt.Errorf("%w: atr", ErrInsufficientHistory)
	}
	ema5, ok5 := LastEMA(closes, p.EMAFast)
	ema13, ok13 := LastEMA(closes, p.EMAMid)
	ema50, ok50 := LastEMA(closes, p.EMASlow)
	if !ok5 || !ok13 || !ok50 {
		return models.IndicatorSet{}, fmt.Errorf("%w: ema", ErrInsufficientHistory)
	}
	rvol, ok := RVOL(volumes, p.RVOLLookback)
	if !ok {
		return models.IndicatorSet{}, fmt.Errorf("%w: rvol", ErrInsufficientHistory)
	}
	vwap, ok := RollingVWAP(highs, lows, closes, volumes, p.VWAPWindow)
	if !ok {
		return models.IndicatorSet{}, fmt.Errorf("%w: vwap has no volume", ErrInsufficientHistory)
	}

	last := closes[n-1]
	return models.IndicatorSet{
		Close:        last,
		RSI:          rsi,
		EMA5:         ema5,
		EMA13:        ema13,
		EMA50:        ema50,
		EMAAligned:   EMAAligned(ema5, ema13, ema50),
		VWAP:         vwap,
		VWAPDeltaPct: (last - vwap) / vwap * 100,
		ATR:          atr,
		ATRValid:     atr > 0,
		RVOL:         rvol,
		PumpReject:   PumpFilter(closes, volumes, volume24h, p.Pump),
		Bars:         n,
	}, nil
}
