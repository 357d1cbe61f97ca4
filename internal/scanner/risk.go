package scanner

import "github.com/rewired-gh/cryptoscan/internal/models"

// RiskParams configures stop, target and position sizing.
type RiskParams struct {
	ATRStopMult   float64
	ATRTargetMult float64

	// Used when ATR is unavailable, in percent of entry.
	FallbackStopPct   float64
	FallbackTargetPct float64

	AccountEquity   float64
	RiskPerTradePct float64
}

func DefaultRiskParams() RiskParams {
	return RiskParams{
		ATRStopMult:       1.5,
		ATRTargetMult:     3.0,
		FallbackStopPct:   2,
		FallbackTargetPct: 4,
		AccountEquity:     10_000,
		RiskPerTradePct:   1,
	}
}

// ComputeRisk derives stop loss, take profit and position size around entry,
// the quoted price the alert shows. The candle close stands in when entry is
// not positive. Position size is zero when the stop is not below entry.
func ComputeRisk(entry float64, ind models.IndicatorSet, p RiskParams) models.RiskPanel {
	if entry <= 0 {
		entry = ind.Close
	}
	panel := models.RiskPanel{Entry: entry}
	if ind.ATRValid && ind.ATR > 0 {
		panel.StopLoss = entry - p.ATRStopMult*ind.ATR
		panel.TakeProfit = entry + p.ATRTargetMult*ind.ATR
		panel.ATRBased = true
	} else {
		panel.StopLoss = entry * (1 - p.FallbackStopPct/100)
		panel.TakeProfit = entry * (1 + p.FallbackTargetPct/100)
	}

	riskPerUnit := entry - panel.StopLoss
	if riskPerUnit > 0 {
		panel.PositionSize = p.AccountEquity * p.RiskPerTradePct / 100 / riskPerUnit
	}
	panel.Notional = panel.PositionSize * entry
	return panel
}
