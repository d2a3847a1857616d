// Package indicators computes technical indicators over close/high/low arrays.
// Warm-up positions that have no value are NaN; Enrich converts them to absent fields.
package indicators

import "math"

// Default indicator parameters
const (
	RSIPeriod        = 14
	RSIOverbought    = 70.0
	RSIOversold      = 30.0
	BollingerPeriod  = 20
	BollingerStdDev  = 2.0
	MACDFast         = 12
	MACDSlow         = 26
	MACDSignalPeriod = 9
	ATRPeriod        = 14
	StochKPeriod     = 14
	StochDPeriod     = 3
	VolumeMAPeriod   = 20
	VolumeSpikeRatio = 1.5
	TradingDays      = 252
)

// MovingAveragePeriods are the simple moving averages drawn on the price chart
var MovingAveragePeriods = []int{20, 50, 200}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// RSI computes Wilder's relative strength index. Series no longer than the
// period are reported as neutral (50) throughout.
func RSI(prices []float64, period int) []float64 {
	out := make([]float64, len(prices))
	if period <= 0 || len(prices) <= period {
		for i := range out {
			out[i] = 50
		}
		return out
	}

	var up, down float64
	for i := 1; i <= period; i++ {
		delta := prices[i] - prices[i-1]
		if delta >= 0 {
			up += delta
		} else {
			down -= delta
		}
	}
	up /= float64(period)
	down /= float64(period)

	seed := rsiValue(up, down)
	for i := 0; i <= period; i++ {
		out[i] = seed
	}

	for i := period + 1; i < len(prices); i++ {
		delta := prices[i] - prices[i-1]
		var upval, downval float64
		if delta > 0 {
			upval = delta
		} else {
			downval = -delta
		}
		up = (up*float64(period-1) + upval) / float64(period)
		down = (down*float64(period-1) + downval) / float64(period)
		out[i] = rsiValue(up, down)
	}

	return out
}

func rsiValue(up, down float64) float64 {
	if down == 0 {
		if up == 0 {
			return 50
		}
		return 100
	}
	rs := up / down
	return 100 - 100/(1+rs)
}

// SMA computes a simple moving average; the first period-1 positions are NaN
func SMA(prices []float64, period int) []float64 {
	out := nanSlice(len(prices))
	if period <= 0 || len(prices) < period {
		return out
	}

	sum := 0.0
	for i, p := range prices {
		sum += p
		if i >= period {
			sum -= prices[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA computes an exponential moving average seeded with the first price
func EMA(prices []float64, period int) []float64 {
	out := make([]float64, len(prices))
	if len(prices) == 0 {
		return out
	}

	multiplier := 2.0 / float64(period+1)
	out[0] = prices[0]
	for i := 1; i < len(prices); i++ {
		out[i] = (prices[i]-out[i-1])*multiplier + out[i-1]
	}
	return out
}

// Bands holds Bollinger band arrays
type Bands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Bollinger computes bands at stdDev population standard deviations around the SMA
func Bollinger(prices []float64, period int, stdDev float64) Bands {
	middle := SMA(prices, period)
	upper := nanSlice(len(prices))
	lower := nanSlice(len(prices))

	for i := range prices {
		if math.IsNaN(middle[i]) {
			continue
		}
		window := prices[i-period+1 : i+1]
		sd := populationStdDev(window, middle[i])
		upper[i] = middle[i] + stdDev*sd
		lower[i] = middle[i] - stdDev*sd
	}

	return Bands{Upper: upper, Middle: middle, Lower: lower}
}

func populationStdDev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// MACDResult holds the MACD line, its signal line and the histogram
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes fast/slow EMA convergence. Histories shorter than slow+signal
// yield zeros so the oscillator still renders as a flat line.
func MACD(prices []float64, fast, slow, signal int) MACDResult {
	n := len(prices)
	if n < slow+signal {
		return MACDResult{
			MACD:      make([]float64, n),
			Signal:    make([]float64, n),
			Histogram: make([]float64, n),
		}
	}

	emaFast := EMA(prices, fast)
	emaSlow := EMA(prices, slow)

	line := make([]float64, n)
	for i := range prices {
		line[i] = emaFast[i] - emaSlow[i]
	}
	sig := EMA(line, signal)

	hist := make([]float64, n)
	for i := range line {
		hist[i] = line[i] - sig[i]
	}

	return MACDResult{MACD: line, Signal: sig, Histogram: hist}
}

// Volatility returns annualized volatility of simple returns, in percent
func Volatility(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
	}
	if len(returns) == 0 {
		return 0
	}

	return populationStdDev(returns, mean(returns)) * math.Sqrt(TradingDays) * 100
}

// ATR computes the average true range as a rolling mean of true ranges
func ATR(high, low, close []float64, period int) []float64 {
	n := len(close)
	if len(high) != n || len(low) != n || n < period {
		return nanSlice(n)
	}

	tr := make([]float64, n)
	for i := range close {
		tr[i] = high[i] - low[i]
		if i == 0 {
			continue
		}
		tr[i] = math.Max(tr[i], math.Abs(high[i]-close[i-1]))
		tr[i] = math.Max(tr[i], math.Abs(low[i]-close[i-1]))
	}
	return SMA(tr, period)
}

// StochasticResult holds %K and %D arrays
type StochasticResult struct {
	K []float64
	D []float64
}

// Stochastic computes the stochastic oscillator
func Stochastic(high, low, close []float64, kPeriod, dPeriod int) StochasticResult {
	n := len(close)
	k := nanSlice(n)
	if len(high) != n || len(low) != n || n < kPeriod {
		return StochasticResult{K: k, D: nanSlice(n)}
	}

	for i := kPeriod - 1; i < n; i++ {
		lowest, highest := low[i], high[i]
		for j := i - kPeriod + 1; j <= i; j++ {
			lowest = math.Min(lowest, low[j])
			highest = math.Max(highest, high[j])
		}
		if highest == lowest {
			k[i] = 50
			continue
		}
		k[i] = 100 * (close[i] - lowest) / (highest - lowest)
	}

	d := nanSlice(n)
	for i := kPeriod - 1 + dPeriod - 1; i < n; i++ {
		d[i] = mean(k[i-dPeriod+1 : i+1])
	}

	return StochasticResult{K: k, D: d}
}

// Last returns the final value of values, or nil when it is absent
func Last(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	return valueAt(values, len(values)-1)
}

func valueAt(values []float64, i int) *float64 {
	if i < 0 || i >= len(values) {
		return nil
	}
	v := values[i]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
