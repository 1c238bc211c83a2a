package trading

import "math"

// Indicator windows follow the common defaults used by the signal engine.
const (
	rsiPeriod       = 14
	macdFastPeriod  = 12
	macdSlowPeriod  = 26
	macdSignalSpan  = 9
	bollingerPeriod = 20
	atrPeriod       = 14
)

// SMA returns the simple moving average of the last period values, or 0 when
// there is not enough data.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// EMA returns the exponential moving average with span period over the full
// series, seeded with the first value.
func EMA(values []float64, period int) float64 {
	if period <= 0 || len(values) == 0 {
		return 0
	}
	alpha := 2.0 / (float64(period) + 1)
	ema := values[0]
	for _, v := range values[1:] {
		ema = alpha*v + (1-alpha)*ema
	}
	return ema
}

// RSI returns the Wilder relative strength index over the closing series, or
// 50 when there is not enough data to form a view.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) <= period {
		return 50
	}
	var gains, losses float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACDResult carries the MACD line, its signal line, and the histogram.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD computes the 12/26/9 moving average convergence divergence.
func MACD(closes []float64) MACDResult {
	if len(closes) < macdSlowPeriod {
		return MACDResult{}
	}
	alphaFast := 2.0 / (float64(macdFastPeriod) + 1)
	alphaSlow := 2.0 / (float64(macdSlowPeriod) + 1)
	alphaSig := 2.0 / (float64(macdSignalSpan) + 1)

	fast, slow := closes[0], closes[0]
	signal := 0.0
	seeded := false
	for _, v := range closes[1:] {
		fast = alphaFast*v + (1-alphaFast)*fast
		slow = alphaSlow*v + (1-alphaSlow)*slow
		macd := fast - slow
		if !seeded {
			signal = macd
			seeded = true
		} else {
			signal = alphaSig*macd + (1-alphaSig)*signal
		}
	}
	macd := fast - slow
	return MACDResult{MACD: macd, Signal: signal, Histogram: macd - signal}
}

// BollingerResult carries the band levels around the middle SMA.
type BollingerResult struct {
	Upper  float64
	Middle float64
	Lower  float64
	// Width is (upper - lower) / middle, the squeeze measure.
	Width float64
}

// Bollinger computes 20-period bands at two standard deviations.
func Bollinger(closes []float64) BollingerResult {
	if len(closes) < bollingerPeriod {
		return BollingerResult{}
	}
	window := closes[len(closes)-bollingerPeriod:]
	mid := SMA(closes, bollingerPeriod)
	variance := 0.0
	for _, v := range window {
		variance += (v - mid) * (v - mid)
	}
	std := math.Sqrt(variance / float64(bollingerPeriod))
	upper := mid + 2*std
	lower := mid - 2*std
	width := 0.0
	if mid != 0 {
		width = (upper - lower) / mid
	}
	return BollingerResult{Upper: upper, Middle: mid, Lower: lower, Width: width}
}

// ATR computes the Wilder average true range over OHLC bars, or 0 when there
// is not enough data.
func ATR(highs, lows, closes []float64, period int) float64 {
	n := len(closes)
	if period <= 0 || n <= period || len(highs) != n || len(lows) != n {
		return 0
	}
	trueRange := func(i int) float64 {
		tr := highs[i] - lows[i]
		if hc := math.Abs(highs[i] - closes[i-1]); hc > tr {
			tr = hc
		}
		if lc := math.Abs(lows[i] - closes[i-1]); lc > tr {
			tr = lc
		}
		return tr
	}
	atr := 0.0
	for i := 1; i <= period; i++ {
		atr += trueRange(i)
	}
	atr /= float64(period)
	for i := period + 1; i < n; i++ {
		atr = (atr*float64(period-1) + trueRange(i)) / float64(period)
	}
	return atr
}
