package main

import (
	"time"

	"technical-analyst/e2e/mocks"
)

// seedInstruments adds fixture tickers on top of the mock defaults:
// SHORT has too few bars for RSI and MACD, FLAT never moves.
func seedInstruments(m *mocks.MockServer) {
	end := time.Date(2024, 6, 28, 20, 0, 0, 0, time.UTC)

	m.SetInstrument(mocks.Instrument{
		Meta: mocks.ChartMeta{
			Symbol: "SHORT", Currency: "USD", ExchangeName: "NMS", FullExchangeName: "NasdaqGS",
			InstrumentType: "EQUITY", LongName: "Short History Corp",
		},
		Bars: dailyBars(end, []float64{10, 10.5, 10.2, 10.8, 11.1, 10.9, 11.4, 11.2}),
	})

	flat := make([]float64, 120)
	for i := range flat {
		flat[i] = 50
	}
	m.SetInstrument(mocks.Instrument{
		Meta: mocks.ChartMeta{
			Symbol: "FLAT", Currency: "EUR", ExchangeName: "PAR", FullExchangeName: "Paris",
			InstrumentType: "EQUITY", LongName: "Flat Line SA",
		},
		Bars: dailyBars(end, flat),
	})
}

func dailyBars(end time.Time, closes []float64) []mocks.Bar {
	bars := make([]mocks.Bar, len(closes))
	start := end.AddDate(0, 0, -(len(closes) - 1))
	for i, c := range closes {
		bars[i] = mocks.Bar{
			Timestamp: start.AddDate(0, 0, i).Unix(),
			Open:      c,
			High:      c * 1.01,
			Low:       c * 0.99,
			Close:     c,
			Volume:    500000,
		}
	}
	return bars
}
