// Package indicators computes technical indicators from OHLCV series.
//
// Every function is pure: no I/O and no shared state. Functions that need a
// minimum history report validity through a second boolean return value
// instead of substituting a neutral default.
package indicators

import (
	"math"
)

// EMA returns the exponential moving average of series, one value per input
// element. The seed is the first element and k = 2/(period+1).
func EMA(series []float64, period int) []float64 {
	if len(series) == 0 || period < 1 {
		return nil
	}
	k := 2.0 / float64(period+1)
	out := make([]float64, len(series))
	out[0] = series[0]
	for i := 1; i < len(series); i++ {
		out[i] = series[i]*k + out[i-1]*(1-k)
	}
	return out
}

// LastEMA returns the final EMA value. It is valid only once the series holds
// at least period points.
func LastEMA(series []float64, period int) (float64, bool) {
	ema := EMA(series, period)
	if ema == nil {
		return 0, false
	}
	return ema[len(ema)-1], len(series) >= period
}

// RSI computes Wilder's relative strength index over closes.
// Needs at least period+1 points.
func RSI(closes []float64, period int) (float64, bool) {
	if period < 1 || len(closes) < period+1 {
		return 0, false
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	alpha := 1.0 / float64(period)
	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = avgGain*(1-alpha) + gain*alpha
		avgLoss = avgLoss*(1-alpha) + loss*alpha
	}

	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(high, low, prevClose float64) float64 {
	return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
}

// ATR computes Wilder's average true range. Needs at least period+1 bars.
func ATR(highs, lows, closes []float64, period int) (float64, bool) {
	n := len(closes)
	if period < 1 || n < period+1 || len(highs) != n || len(lows) != n {
		return 0, false
	}

	var atr float64
	for i := 1; i <= period; i++ {
		atr += TrueRange(highs[i], lows[i], closes[i-1])
	}
	atr /= float64(period)

	for i := period + 1; i < n; i++ {
		tr := TrueRange(highs[i], lows[i], closes[i-1])
		atr = (atr*float64(period-1) + tr) / float64(period)
	}
	return atr, true
}

func typicalPrice(high, low, close float64) float64 {
	return (high + low + close) / 3
}

// VWAP returns the cumulative volume-weighted average price at each bar.
// Bars before any volume has traded report the typical price.
func VWAP(highs, lows, closes, volumes []float64) []float64 {
	n := len(closes)
	if n == 0 || len(highs) != n || len(lows) != n || len(volumes) != n {
		return nil
	}
	out := make([]float64, n)
	var pv, vol float64
	for i := 0; i < n; i++ {
		tp := typicalPrice(highs[i], lows[i], closes[i])
		pv += tp * volumes[i]
		vol += volumes[i]
		if vol > 0 {
			out[i] = pv / vol
		} else {
			out[i] = tp
		}
	}
	return out
}

// RollingVWAP returns the VWAP of the trailing window bars. A window of zero
// or one longer than the series yields the cumulative VWAP over all bars.
func RollingVWAP(highs, lows, closes, volumes []float64, window int) (float64, bool) {
	n := len(closes)
	if n == 0 || len(highs) != n || len(lows) != n || len(volumes) != n {
		return 0, false
	}
	start := 0
	if window > 0 && window < n {
		start = n - window
	}
	var pv, vol float64
	for i := start; i < n; i++ {
		pv += typicalPrice(highs[i], lows[i], closes[i]) * volumes[i]
		vol += volumes[i]
	}
	if vol <= 0 {
		return 0, false
	}
	return pv / vol, true
}

// RVOL returns the latest volume divided by the mean of the preceding
// lookback volumes. Needs lookback+1 points and a non-zero mean.
func RVOL(volumes []float64, lookback int) (float64, bool) {
	n := len(volumes)
	if lookback < 1 || n < lookback+1 {
		return 0, false
	}
	var sum float64
	for _, v := range volumes[n-1-lookback : n-1] {
		sum += v
	}
	mean := sum / float64(lookback)
	if mean <= 0 {
		return 0, false
	}
	return volumes[n-1] / mean, true
}

// EMAAligned reports strict bullish stacking fast > mid > slow.
func EMAAligned(fast, mid, slow float64) bool {
	return fast > mid && mid > slow
}
