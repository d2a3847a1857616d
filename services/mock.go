package services

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"technical-analyst/models"
)

var mockCompanies = map[string]string{
	"AAPL":   "Apple Inc.",
	"MSFT":   "Microsoft Corp.",
	"GOOGL":  "Alphabet Inc.",
	"AMZN":   "Amazon.com Inc.",
	"META":   "Meta Platforms Inc.",
	"TSLA":   "Tesla Inc.",
	"NVDA":   "NVIDIA Corp.",
	"TTE.PA": "TotalEnergies SE",
}

// MockSource generates deterministic daily bars. The same ticker always yields
// the same walk, so pages and tests are reproducible offline.
type MockSource struct {
	now func() time.Time
}

// NewMockSource creates a MockSource anchored on the current day
func NewMockSource() *MockSource {
	return &MockSource{now: time.Now}
}

func (m *MockSource) Name() string  { return "mock" }
func (m *MockSource) Priority() int { return PriorityMock }

func tickerHash(ticker string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(ticker))
	return h.Sum64()
}

// MockBasePrice is the deterministic anchor price for ticker
func MockBasePrice(ticker string) float64 {
	return float64(50 + tickerHash(ticker)%150)
}

// History returns period.Days business-day bars ending today. The interval is
// ignored; the walk is always daily.
func (m *MockSource) History(ctx context.Context, ticker string, period models.Period) (models.Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	days := period.Days
	if days <= 0 {
		days = 180
	}
	dates := businessDays(m.now(), days)

	seed := tickerHash(ticker)
	r := rand.New(rand.NewPCG(seed, seed%10000))
	price := MockBasePrice(ticker)

	series := make(models.Series, len(dates))
	for i, date := range dates {
		price *= math.Exp(0.0005 + 0.015*r.NormFloat64())
		open := price * (1 + 0.005*r.NormFloat64())
		high := price * (1 + math.Abs(0.01*r.NormFloat64()))
		low := price * (1 - math.Abs(0.01*r.NormFloat64()))

		series[i] = models.Bar{
			Date:   date,
			Open:   open,
			High:   math.Max(high, math.Max(open, price)),
			Low:    math.Min(low, math.Min(open, price)),
			Close:  price,
			Volume: 1_000_000 + r.Int64N(9_000_000),
		}
	}
	return series, nil
}

// Info returns a synthetic profile
func (m *MockSource) Info(ctx context.Context, ticker string) (*models.StockInfo, error) {
	name, ok := mockCompanies[ticker]
	if !ok {
		name = ticker + " Corporation"
	}
	currency := "USD"
	if strings.HasSuffix(ticker, ".PA") {
		currency = "EUR"
	}
	return &models.StockInfo{
		Symbol:   ticker,
		Name:     name,
		Sector:   "Technology",
		Currency: currency,
		Source:   "mock",
	}, nil
}

// businessDays returns n weekdays ending at or before end, ascending, at midnight UTC
func businessDays(end time.Time, n int) []time.Time {
	day := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	out := make([]time.Time, n)
	for i := n - 1; i >= 0; {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			out[i] = day
			i--
		}
		day = day.AddDate(0, 0, -1)
	}
	return out
}
