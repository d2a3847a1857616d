package services

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"technical-analyst/models"
)

// alpacaMarketData is the subset of *marketdata.Client the source uses
type alpacaMarketData interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// AlpacaSource reads bars from the Alpaca market data API
type AlpacaSource struct {
	client   alpacaMarketData
	feed     string
	breakers *CircuitBreakerRegistry
	retry    RetryConfig
	now      func() time.Time
}

// NewAlpacaSource creates a new AlpacaSource instance
func NewAlpacaSource(apiKey, apiSecret, dataURL, feed string, breakers *CircuitBreakerRegistry) *AlpacaSource {
	client := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   dataURL,
	})

	return &AlpacaSource{
		client:   client,
		feed:     feed,
		breakers: breakers,
		retry:    DefaultRetryConfig,
		now:      time.Now,
	}
}

func (s *AlpacaSource) Name() string  { return BreakerAlpaca }
func (s *AlpacaSource) Priority() int { return PriorityAlpaca }

// alpacaTimeFrame maps a period interval to an Alpaca bar timeframe
func alpacaTimeFrame(interval string) (marketdata.TimeFrame, error) {
	switch interval {
	case "1m":
		return marketdata.OneMin, nil
	case "5m":
		return marketdata.NewTimeFrame(5, marketdata.Min), nil
	case "1d":
		return marketdata.OneDay, nil
	case "1wk":
		return marketdata.OneWeek, nil
	case "1mo":
		return marketdata.OneMonth, nil
	default:
		return marketdata.TimeFrame{}, fmt.Errorf("interval %q: %w", interval, ErrNotSupported)
	}
}

// History returns adjusted bars covering the period
func (s *AlpacaSource) History(ctx context.Context, ticker string, period models.Period) (models.Series, error) {
	timeframe, err := alpacaTimeFrame(period.Interval)
	if err != nil {
		return nil, err
	}

	return WithCircuitBreaker(ctx, s.breakers, BreakerAlpaca, func() (models.Series, error) {
		var series models.Series

		err := WithRetry(ctx, s.retry, func() error {
			end := s.now()
			// Intraday windows need a few calendar days of slack to span weekends.
			days := period.Days
			if days < 4 {
				days = 4
			}
			start := end.AddDate(0, 0, -days)

			bars, err := s.client.GetBars(ticker, marketdata.GetBarsRequest{
				TimeFrame:  timeframe,
				Start:      start,
				End:        end,
				Adjustment: marketdata.All,
				Feed:       marketdata.Feed(s.feed),
			})
			if err != nil {
				return fmt.Errorf("failed to get bars for %s: %w", ticker, err)
			}
			if len(bars) == 0 {
				return fmt.Errorf("%s: no bars: %w", ticker, ErrTickerNotFound)
			}

			series = make(models.Series, 0, len(bars))
			for _, bar := range bars {
				series = append(series, models.Bar{
					Date:   bar.Timestamp.UTC(),
					Open:   bar.Open,
					High:   bar.High,
					Low:    bar.Low,
					Close:  bar.Close,
					Volume: int64(bar.Volume),
				})
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		return series, nil
	})
}

// Info is not offered by the market data API
func (s *AlpacaSource) Info(ctx context.Context, ticker string) (*models.StockInfo, error) {
	return nil, fmt.Errorf("alpaca info for %s: %w", ticker, ErrNotSupported)
}
