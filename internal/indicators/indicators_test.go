package indicators

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/cryptoscan/internal/models"
)

// risingCandles builds a zigzag uptrend ending at 10.0 whose final bar trades
// three times the usual volume.
func risingCandles(n int) []models.Candle {
	const up, down = 0.06, 0.04
	ups, downs := n/2, (n-1)/2
	price := 10.0 - float64(ups)*up + float64(downs)*down
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
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
			OpenTime: start.Add(time.Duration(i) * time.Hour),
			Open:     price,
			High:     price * 1.002,
			Low:      price * 0.998,
			Close:    price,
			Volume:   vol,
		}
	}
	return candles
}

func TestEMA_ConstantSeries(t *testing.T) {
	series := make([]float64, 30)
	for i := range series {
		series[i] = 42.5
	}
	for _, period := range []int{1, 5, 13, 50} {
		ema := EMA(series, period)
		require.Len(t, ema, len(series))
		for i, v := range ema {
			assert.InDelta(t, 42.5, v, 1e-12, "period %d index %d", period, i)
		}
	}
}

func TestEMA_KnownValues(t *testing.T) {
	ema := EMA([]float64{1, 2, 3}, 3)
	// k = 0.5
	assert.Equal(t, []float64{1, 1.5, 2.25}, ema)

	v, ok := LastEMA([]float64{1, 2}, 3)
	assert.False(t, ok, "shorter than period is computed but not valid")
	assert.InDelta(t, 1.5, v, 1e-12)

	v, ok = LastEMA([]float64{1, 2, 3}, 3)
	assert.True(t, ok)
	assert.InDelta(t, 2.25, v, 1e-12)

	assert.Nil(t, EMA(nil, 5))
}

func TestRSI(t *testing.T) {
	t.Run("insufficient history", func(t *testing.T) {
		_, ok := RSI(make([]float64, 14), 14)
		assert.False(t, ok)
	})

	t.Run("only gains is 100", func(t *testing.T) {
		closes := make([]float64, 20)
		for i := range closes {
			closes[i] = float64(i + 1)
		}
		rsi, ok := RSI(closes, 14)
		require.True(t, ok)
		assert.Equal(t, 100.0, rsi)
	})

	t.Run("only losses is 0", func(t *testing.T) {
		closes := make([]float64, 20)
		for i := range closes {
			closes[i] = float64(100 - i)
		}
		rsi, ok := RSI(closes, 14)
		require.True(t, ok)
		assert.InDelta(t, 0, rsi, 1e-12)
	})

	t.Run("flat series has no losses", func(t *testing.T) {
		rsi, ok := RSI([]float64{5, 5, 5, 5}, 3)
		require.True(t, ok)
		assert.Equal(t, 100.0, rsi)
	})

	t.Run("equal alternating moves", func(t *testing.T) {
		// +1 -1 +1 over period 2: avgGain = avgLoss after seed.
		rsi, ok := RSI([]float64{10, 11, 10}, 2)
		require.True(t, ok)
		assert.InDelta(t, 50, rsi, 1e-9)
	})
}

func TestRSI_Bounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		n := 15 + rng.Intn(200)
		closes := make([]float64, n)
		price := 1 + rng.Float64()*100
		for i := range closes {
			price *= 1 + (rng.Float64()-0.5)*0.2
			closes[i] = price
		}
		rsi, ok := RSI(closes, 14)
		require.True(t, ok)
		assert.GreaterOrEqual(t, rsi, 0.0)
		assert.LessOrEqual(t, rsi, 100.0)
	}
}

func TestATR(t *testing.T) {
	t.Run("insufficient history", func(t *testing.T) {
		_, ok := ATR(make([]float64, 10), make([]float64, 10), make([]float64, 10), 14)
		assert.False(t, ok)
	})

	t.Run("constant range", func(t *testing.T) {
		n := 30
		highs, lows, closes := make([]float64, n), make([]float64, n), make([]float64, n)
		for i := 0; i < n; i++ {
			highs[i], lows[i], closes[i] = 101, 99, 100
		}
		atr, ok := ATR(highs, lows, closes, 14)
		require.True(t, ok)
		assert.InDelta(t, 2, atr, 1e-12)
	})

	t.Run("gap dominates range", func(t *testing.T) {
		assert.Equal(t, 5.0, TrueRange(106, 105, 101))
		assert.Equal(t, 4.0, TrueRange(100, 96, 100))
	})

	t.Run("mismatched lengths", func(t *testing.T) {
		_, ok := ATR(make([]float64, 20), make([]float64, 19), make([]float64, 20), 14)
		assert.False(t, ok)
	})
}

func TestVWAP(t *testing.T) {
	highs := []float64{11, 12, 13}
	lows := []float64{9, 10, 11}
	closes := []float64{10, 11, 12}
	volumes := []float64{100, 0, 300}

	cum := VWAP(highs, lows, closes, volumes)
	require.Len(t, cum, 3)
	assert.InDelta(t, 10, cum[0], 1e-12)
	assert.InDelta(t, 10, cum[1], 1e-12)
	assert.InDelta(t, (10*100+12*300)/400.0, cum[2], 1e-12)

	last, ok := RollingVWAP(highs, lows, closes, volumes, 0)
	require.True(t, ok)
	assert.InDelta(t, cum[2], last, 1e-12)

	window, ok := RollingVWAP(highs, lows, closes, volumes, 2)
	require.True(t, ok)
	assert.InDelta(t, 12, window, 1e-12)

	_, ok = RollingVWAP(highs, lows, closes, []float64{0, 0, 0}, 2)
	assert.False(t, ok)
}

func TestRVOL(t *testing.T) {
	t.Run("latest equals average", func(t *testing.T) {
		volumes := []float64{100, 200, 300, 200}
		rvol, ok := RVOL(volumes, 3)
		require.True(t, ok)
		assert.InDelta(t, 1.0, rvol, 1e-12)
	})

	t.Run("excludes latest from mean", func(t *testing.T) {
		volumes := make([]float64, 21)
		for i := range volumes {
			volumes[i] = 1000
		}
		volumes[20] = 3000
		rvol, ok := RVOL(volumes, 20)
		require.True(t, ok)
		assert.InDelta(t, 3.0, rvol, 1e-12)
	})

	t.Run("insufficient history", func(t *testing.T) {
		_, ok := RVOL(make([]float64, 20), 20)
		assert.False(t, ok)
	})

	t.Run("zero mean", func(t *testing.T) {
		_, ok := RVOL([]float64{0, 0, 5}, 2)
		assert.False(t, ok)
	})
}

func TestEMAAligned(t *testing.T) {
	assert.True(t, EMAAligned(3, 2, 1))
	assert.False(t, EMAAligned(3, 3, 1))
	assert.False(t, EMAAligned(1, 2, 3))
	assert.False(t, EMAAligned(3, 1, 2))
}

func TestPumpFilter(t *testing.T) {
	flat := []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	spike := []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1.8}
	p := PumpParams{Window: 12, SpikePct: 50, VolumeCap: 20_000_000}

	assert.False(t, PumpFilter(flat, nil, 1_000, p))
	assert.True(t, PumpFilter(spike, nil, 1_000, p), "thin spike is rejected")
	assert.False(t, PumpFilter(spike, nil, 50_000_000, p), "spike backed by volume passes")

	p.Shrinking = true
	assert.True(t, PumpFilter(spike, []float64{500, 400}, 50_000_000, p), "shrinking volume is weak")
	assert.False(t, PumpFilter(spike, []float64{400, 500}, 50_000_000, p))

	assert.False(t, PumpSpike([]float64{1, 2}, 12, 50), "window longer than series")
}

func TestCompute_Scenario(t *testing.T) {
	set, err := Compute(risingCandles(60), 20_000_000, DefaultParams())
	require.NoError(t, err)

	assert.InDelta(t, 10.0, set.Close, 1e-9)
	assert.InDelta(t, 61.83, set.RSI, 0.01)
	assert.True(t, set.EMAAligned)
	assert.Greater(t, set.EMA5, set.EMA13)
	assert.Greater(t, set.EMA13, set.EMA50)
	assert.InDelta(t, 3.0, set.RVOL, 1e-9)
	assert.InDelta(t, 1.31, set.VWAPDeltaPct, 0.01)
	assert.True(t, set.ATRValid)
	assert.InDelta(t, 0.0701, set.ATR, 0.0001)
	assert.False(t, set.PumpReject)
	assert.Equal(t, 60, set.Bars)
}

func TestCompute_InsufficientHistory(t *testing.T) {
	_, err := Compute(risingCandles(10), 20_000_000, DefaultParams())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientHistory))

	// 49 bars still leaves the slow EMA undefined.
	_, err = Compute(risingCandles(49), 20_000_000, DefaultParams())
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestCompute_Deterministic(t *testing.T) {
	candles := risingCandles(80)
	a, err := Compute(candles, 1, DefaultParams())
	require.NoError(t, err)
	b, err := Compute(candles, 1, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.False(t, math.IsNaN(a.VWAP))
}

func TestParamsMinBars(t *testing.T) {
	assert.Equal(t, 50, DefaultParams().MinBars())
	p := DefaultParams()
	p.EMASlow = 10
	assert.Equal(t, 21, p.MinBars())
}
