package indicators

import "technical-analyst/models"

// Enrich returns a copy of series with every per-bar indicator field populated.
// Positions still inside an indicator's warm-up window are left nil.
func Enrich(series models.Series) models.Series {
	out := make(models.Series, len(series))
	copy(out, series)
	if len(out) == 0 {
		return out
	}

	closes := out.Closes()
	rsi := RSI(closes, RSIPeriod)
	ma20 := SMA(closes, MovingAveragePeriods[0])
	ma50 := SMA(closes, MovingAveragePeriods[1])
	ma200 := SMA(closes, MovingAveragePeriods[2])
	bands := Bollinger(closes, BollingerPeriod, BollingerStdDev)
	macd := MACD(closes, MACDFast, MACDSlow, MACDSignalPeriod)

	for i := range out {
		b := &out[i]
		b.RSI = valueAt(rsi, i)
		b.MA20 = valueAt(ma20, i)
		b.MA50 = valueAt(ma50, i)
		b.MA200 = valueAt(ma200, i)
		b.BBUpper = valueAt(bands.Upper, i)
		b.BBMiddle = valueAt(bands.Middle, i)
		b.BBLower = valueAt(bands.Lower, i)
		b.MACD = valueAt(macd.MACD, i)
		b.MACDSignal = valueAt(macd.Signal, i)
		b.MACDHist = valueAt(macd.Histogram, i)
	}

	return out
}
