package indicators

import (
	"math"
	"testing"
)

func approxEqual(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Abs(a-b) < 1e-9
}

func TestSMA(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name   string
		prices []float64
		period int
		want   []float64
	}{
		{
			name:   "3-day SMA",
			prices: []float64{10, 20, 30, 40, 50},
			period: 3,
			want:   []float64{nan, nan, 20, 30, 40},
		},
		{
			name:   "period equals length",
			prices: []float64{100, 200, 300},
			period: 3,
			want:   []float64{nan, nan, 200},
		},
		{
			name:   "period too long is all warm-up",
			prices: []float64{10, 20},
			period: 5,
			want:   []float64{nan, nan},
		},
		{
			name:   "period one echoes prices",
			prices: []float64{7, 8},
			period: 1,
			want:   []float64{7, 8},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SMA(tt.prices, tt.period)
			if len(got) != len(tt.want) {
				t.Fatalf("SMA() len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if !approxEqual(got[i], tt.want[i]) {
					t.Errorf("SMA()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestRSI(t *testing.T) {
	rising := make([]float64, 30)
	falling := make([]float64, 30)
	for i := range rising {
		rising[i] = 100 + float64(i)
		falling[i] = 100 - float64(i)
	}

	tests := []struct {
		name    string
		prices  []float64
		wantMin float64
		wantMax float64
	}{
		{name: "rising prices saturate at 100", prices: rising, wantMin: 100, wantMax: 100},
		{name: "falling prices bottom at 0", prices: falling, wantMin: 0, wantMax: 0},
		{name: "short history is neutral", prices: []float64{1, 2, 3}, wantMin: 50, wantMax: 50},
		{name: "flat prices are neutral", prices: make([]float64, 20), wantMin: 50, wantMax: 50},
		{
			name:    "mixed prices stay in range",
			prices:  []float64{44, 44.3, 44.1, 43.6, 44.3, 44.8, 45.1, 45.4, 45.8, 46.1, 45.9, 46.2, 45.6, 46.3, 46.3, 46, 46.4, 46.2, 45.6},
			wantMin: 0,
			wantMax: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RSI(tt.prices, RSIPeriod)
			if len(got) != len(tt.prices) {
				t.Fatalf("RSI() len = %d, want %d", len(got), len(tt.prices))
			}
			for i, v := range got {
				if v < tt.wantMin || v > tt.wantMax {
					t.Errorf("RSI()[%d] = %v, want in [%v, %v]", i, v, tt.wantMin, tt.wantMax)
				}
			}
		})
	}
}

func TestRSI_SeedFillsWarmup(t *testing.T) {
	prices := []float64{44, 44.3, 44.1, 43.6, 44.3, 44.8, 45.1, 45.4, 45.8, 46.1, 45.9, 46.2, 45.6, 46.3, 46.3, 46, 46.4}
	got := RSI(prices, RSIPeriod)
	for i := 1; i <= RSIPeriod; i++ {
		if got[i] != got[0] {
			t.Errorf("RSI()[%d] = %v, want seed %v", i, got[i], got[0])
		}
	}
}

func TestEMA(t *testing.T) {
	got := EMA([]float64{10, 20, 30}, 3)
	want := []float64{10, 15, 22.5}
	for i := range want {
		if !approxEqual(got[i], want[i]) {
			t.Errorf("EMA()[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if len(EMA(nil, 3)) != 0 {
		t.Error("EMA(nil) should be empty")
	}
}

func TestBollinger(t *testing.T) {
	t.Run("population standard deviation", func(t *testing.T) {
		bands := Bollinger([]float64{1, 2, 3, 4, 5}, 5, 2)
		if !approxEqual(bands.Middle[4], 3) {
			t.Errorf("Middle = %v, want 3", bands.Middle[4])
		}
		wantUpper := 3 + 2*math.Sqrt2
		if !approxEqual(bands.Upper[4], wantUpper) {
			t.Errorf("Upper = %v, want %v", bands.Upper[4], wantUpper)
		}
		if !math.IsNaN(bands.Lower[3]) {
			t.Errorf("Lower[3] = %v, want NaN during warm-up", bands.Lower[3])
		}
	})

	t.Run("flat prices collapse the bands", func(t *testing.T) {
		prices := make([]float64, 25)
		for i := range prices {
			prices[i] = 42
		}
		bands := Bollinger(prices, BollingerPeriod, BollingerStdDev)
		last := len(prices) - 1
		if bands.Upper[last] != 42 || bands.Lower[last] != 42 {
			t.Errorf("bands = (%v, %v), want (42, 42)", bands.Upper[last], bands.Lower[last])
		}
	})
}

func TestMACD(t *testing.T) {
	t.Run("short history yields zeros", func(t *testing.T) {
		prices := make([]float64, 34)
		for i := range prices {
			prices[i] = float64(i + 1)
		}
		got := MACD(prices, MACDFast, MACDSlow, MACDSignalPeriod)
		if len(got.MACD) != 34 || len(got.Signal) != 34 || len(got.Histogram) != 34 {
			t.Fatalf("MACD() lengths = %d/%d/%d, want 34", len(got.MACD), len(got.Signal), len(got.Histogram))
		}
		for i := range got.MACD {
			if got.MACD[i] != 0 || got.Signal[i] != 0 || got.Histogram[i] != 0 {
				t.Fatalf("MACD()[%d] not zero", i)
			}
		}
	})

	t.Run("rising prices give positive MACD", func(t *testing.T) {
		prices := make([]float64, 60)
		for i := range prices {
			prices[i] = 100 + float64(i)
		}
		got := MACD(prices, MACDFast, MACDSlow, MACDSignalPeriod)
		last := len(prices) - 1
		if got.MACD[last] <= 0 {
			t.Errorf("MACD last = %v, want > 0", got.MACD[last])
		}
		if !approxEqual(got.Histogram[last], got.MACD[last]-got.Signal[last]) {
			t.Errorf("Histogram = %v, want MACD - Signal", got.Histogram[last])
		}
	})
}

func TestVolatility(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		want   float64
	}{
		{name: "empty", prices: nil, want: 0},
		{name: "single price", prices: []float64{100}, want: 0},
		{name: "flat", prices: []float64{100, 100, 100}, want: 0},
		{name: "alternating ten percent", prices: []float64{100, 110, 99}, want: 0.1 * math.Sqrt(252) * 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Volatility(tt.prices)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("Volatility() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestATR(t *testing.T) {
	high := []float64{10, 11, 14}
	low := []float64{8, 9, 12}
	close := []float64{9, 10, 13}

	got := ATR(high, low, close, 2)
	if !math.IsNaN(got[0]) {
		t.Errorf("ATR()[0] = %v, want NaN", got[0])
	}
	if !approxEqual(got[1], 2) {
		t.Errorf("ATR()[1] = %v, want 2", got[1])
	}
	// third bar gaps up: true range is high - previous close = 4
	if !approxEqual(got[2], 3) {
		t.Errorf("ATR()[2] = %v, want 3", got[2])
	}
}

func TestStochastic(t *testing.T) {
	n := 20
	high, low, close := make([]float64, n), make([]float64, n), make([]float64, n)
	for i := 0; i < n; i++ {
		low[i] = float64(i)
		high[i] = float64(i) + 2
		close[i] = high[i]
	}

	got := Stochastic(high, low, close, StochKPeriod, StochDPeriod)
	last := n - 1
	if !approxEqual(got.K[last], 100) {
		t.Errorf("K = %v, want 100", got.K[last])
	}
	if !approxEqual(got.D[last], 100) {
		t.Errorf("D = %v, want 100", got.D[last])
	}
	if !math.IsNaN(got.D[StochKPeriod]) {
		t.Errorf("D[%d] = %v, want NaN during warm-up", StochKPeriod, got.D[StochKPeriod])
	}
}

func TestLast(t *testing.T) {
	if Last(nil) != nil {
		t.Error("Last(nil) should be nil")
	}
	if Last([]float64{1, math.NaN()}) != nil {
		t.Error("Last() of trailing NaN should be nil")
	}
	if v := Last([]float64{1, 2}); v == nil || *v != 2 {
		t.Errorf("Last() = %v, want 2", v)
	}
}
