package trading

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	assert.InDelta(t, 4.0, SMA(values, 3), 1e-9)
	assert.InDelta(t, 3.0, SMA(values, 5), 1e-9)
	assert.Zero(t, SMA(values, 6))
	assert.Zero(t, SMA(nil, 3))
}

func TestEMAConvergesToConstantSeries(t *testing.T) {
	values := make([]float64, 50)
	for i := range values {
		values[i] = 10
	}
	assert.InDelta(t, 10.0, EMA(values, 12), 1e-9)
}

func TestRSIBounds(t *testing.T) {
	rising := make([]float64, 30)
	falling := make([]float64, 30)
	for i := range rising {
		rising[i] = float64(i)
		falling[i] = float64(30 - i)
	}
	assert.InDelta(t, 100.0, RSI(rising, 14), 1e-9)
	assert.Less(t, RSI(falling, 14), 5.0)

	// Not enough data gives a neutral reading.
	assert.InDelta(t, 50.0, RSI([]float64{1, 2}, 14), 1e-9)
}

func TestMACDTrendSign(t *testing.T) {
	rising := make([]float64, 60)
	for i := range rising {
		rising[i] = 100 + float64(i)
	}
	macd := MACD(rising)
	assert.Greater(t, macd.MACD, 0.0)

	assert.Zero(t, MACD([]float64{1, 2, 3}).MACD)
}

func TestBollingerBands(t *testing.T) {
	flat := make([]float64, 25)
	for i := range flat {
		flat[i] = 50
	}
	b := Bollinger(flat)
	assert.InDelta(t, 50.0, b.Middle, 1e-9)
	assert.InDelta(t, 50.0, b.Upper, 1e-9)
	assert.InDelta(t, 0.0, b.Width, 1e-9)

	varied := append(flat[:20:20], 40, 60, 40, 60, 50)
	b = Bollinger(varied)
	assert.Greater(t, b.Upper, b.Middle)
	assert.Less(t, b.Lower, b.Middle)
	assert.Greater(t, b.Width, 0.0)
}

func TestATR(t *testing.T) {
	n := 20
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		highs[i] = 102
		lows[i] = 98
		closes[i] = 100
	}
	assert.InDelta(t, 4.0, ATR(highs, lows, closes, 14), 1e-9)
	assert.Zero(t, ATR(highs[:5], lows[:5], closes[:5], 14))
}
