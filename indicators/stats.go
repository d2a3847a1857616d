package indicators

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"technical-analyst/models"
)

func round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

func roundPtr(v *float64, places int32) *float64 {
	if v == nil {
		return nil
	}
	r := round(*v, places)
	return &r
}

// ComputeStats summarises an enriched series. info may be nil; when present its
// 52-week range and beta take precedence over values derived from the series.
func ComputeStats(ticker string, series models.Series, info *models.StockInfo, now time.Time) models.Stats {
	stats := models.Stats{
		Ticker:     ticker,
		Company:    ticker,
		DataPoints: len(series),
		Currency:   "USD",
		Sector:     "N/A",
		UpdatedAt:  now,
	}

	last, ok := series.Last()
	if !ok {
		return stats
	}

	closes := series.Closes()
	prevClose := last.Close
	if len(series) > 1 {
		prevClose = series[len(series)-2].Close
	}
	change := 0.0
	if prevClose != 0 {
		change = (last.Close - prevClose) / prevClose * 100
	}

	stats.LastPrice = round(last.Close, 2)
	stats.LastDate = last.DateString()
	stats.Change1D = round(change, 2)
	stats.Volume = last.Volume
	stats.AvgVolume = last.Volume
	if len(series) >= VolumeMAPeriod {
		stats.AvgVolume = int64(mean(series.Tail(VolumeMAPeriod).Volumes()))
	}

	stats.RSI = roundPtr(last.RSI, 1)
	stats.MA20 = roundPtr(last.MA20, 2)
	stats.MA50 = roundPtr(last.MA50, 2)
	stats.MA200 = roundPtr(last.MA200, 2)
	stats.Volatility = round(Volatility(closes), 1)

	highs, lows := series.Highs(), series.Lows()
	stats.ATR = roundPtr(Last(ATR(highs, lows, closes, ATRPeriod)), 2)
	stoch := Stochastic(highs, lows, closes, StochKPeriod, StochDPeriod)
	stats.StochK = roundPtr(Last(stoch.K), 1)
	stats.StochD = roundPtr(Last(stoch.D), 1)

	stats.High52W, stats.Low52W = highs[0], lows[0]
	for i := range highs {
		stats.High52W = math.Max(stats.High52W, highs[i])
		stats.Low52W = math.Min(stats.Low52W, lows[i])
	}

	if info != nil {
		if info.Name != "" {
			stats.Company = info.Name
		}
		if info.Currency != "" {
			stats.Currency = info.Currency
		}
		if info.Sector != "" {
			stats.Sector = info.Sector
		}
		if info.FiftyTwoWeekHigh > 0 {
			stats.High52W = info.FiftyTwoWeekHigh
		}
		if info.FiftyTwoWeekLow > 0 {
			stats.Low52W = info.FiftyTwoWeekLow
		}
		stats.Beta = info.Beta
	}
	stats.High52W = round(stats.High52W, 2)
	stats.Low52W = round(stats.Low52W, 2)

	return stats
}
