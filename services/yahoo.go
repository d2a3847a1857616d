package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"technical-analyst/models"
)

// DefaultYahooBaseURL is the public chart API host
const DefaultYahooBaseURL = "https://query1.finance.yahoo.com"

// YahooSource reads history and instrument metadata from the Yahoo Finance v8 chart API
type YahooSource struct {
	baseURL    string
	httpClient *http.Client
	breakers   *CircuitBreakerRegistry
	retry      RetryConfig
}

// NewYahooSource creates a YahooSource. An empty baseURL uses DefaultYahooBaseURL.
func NewYahooSource(baseURL string, timeout time.Duration, breakers *CircuitBreakerRegistry) *YahooSource {
	if baseURL == "" {
		baseURL = DefaultYahooBaseURL
	}
	return &YahooSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		breakers:   breakers,
		retry:      DefaultRetryConfig,
	}
}

func (y *YahooSource) Name() string  { return BreakerYahoo }
func (y *YahooSource) Priority() int { return PriorityYahoo }

// yahooChartResponse is the v8 chart payload
type yahooChartResponse struct {
	Chart struct {
		Result []yahooChartResult `json:"result"`
		Error  *yahooError        `json:"error"`
	} `json:"chart"`
}

type yahooError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type yahooChartResult struct {
	Meta       yahooChartMeta `json:"meta"`
	Timestamp  []int64        `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*int64   `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

type yahooChartMeta struct {
	Symbol             string  `json:"symbol"`
	Currency           string  `json:"currency"`
	ExchangeName       string  `json:"exchangeName"`
	FullExchangeName   string  `json:"fullExchangeName"`
	InstrumentType     string  `json:"instrumentType"`
	LongName           string  `json:"longName"`
	ShortName          string  `json:"shortName"`
	RegularMarketPrice float64 `json:"regularMarketPrice"`
	FiftyTwoWeekHigh   float64 `json:"fiftyTwoWeekHigh"`
	FiftyTwoWeekLow    float64 `json:"fiftyTwoWeekLow"`
}

// History fetches bars for the period's range and interval
func (y *YahooSource) History(ctx context.Context, ticker string, period models.Period) (models.Series, error) {
	return WithCircuitBreaker(ctx, y.breakers, BreakerYahoo, func() (models.Series, error) {
		var series models.Series

		err := WithRetry(ctx, y.retry, func() error {
			result, err := y.fetchChart(ctx, ticker, period.Key, period.Interval)
			if err != nil {
				return err
			}
			series = result.bars()
			return nil
		})
		if err != nil {
			return nil, err
		}

		return series, nil
	})
}

// Info maps chart metadata to instrument info. The chart API carries no sector or
// fundamentals, so those stay empty for the stats layer to default.
func (y *YahooSource) Info(ctx context.Context, ticker string) (*models.StockInfo, error) {
	return WithCircuitBreaker(ctx, y.breakers, BreakerYahoo, func() (*models.StockInfo, error) {
		var info *models.StockInfo

		err := WithRetry(ctx, y.retry, func() error {
			result, err := y.fetchChart(ctx, ticker, "5d", "1d")
			if err != nil {
				return err
			}
			m := result.Meta
			name := m.LongName
			if name == "" {
				name = m.ShortName
			}
			if name == "" {
				name = ticker
			}
			info = &models.StockInfo{
				Symbol:           ticker,
				Name:             name,
				Currency:         m.Currency,
				Exchange:         m.FullExchangeName,
				FiftyTwoWeekHigh: m.FiftyTwoWeekHigh,
				FiftyTwoWeekLow:  m.FiftyTwoWeekLow,
				Source:           BreakerYahoo,
			}
			if info.Exchange == "" {
				info.Exchange = m.ExchangeName
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		return info, nil
	})
}

func (y *YahooSource) fetchChart(ctx context.Context, ticker, rng, interval string) (*yahooChartResult, error) {
	params := url.Values{}
	params.Set("range", rng)
	params.Set("interval", interval)
	params.Set("includeAdjustedClose", "true")
	reqURL := fmt.Sprintf("%s/v8/finance/chart/%s?%s", y.baseURL, url.PathEscape(ticker), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create chart request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Accept", "application/json")

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chart: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read chart response: %w", err)
	}

	var chart yahooChartResponse
	decodeErr := json.Unmarshal(body, &chart)

	if chart.Chart.Error != nil {
		if chart.Chart.Error.Code == "Not Found" || resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%s: %s: %w", ticker, chart.Chart.Error.Description, ErrTickerNotFound)
		}
		return nil, fmt.Errorf("chart API error: %s", chart.Chart.Error.Description)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", ticker, ErrTickerNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart API returned status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode chart response: %w", decodeErr)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, fmt.Errorf("%s: empty chart result: %w", ticker, ErrNoData)
	}

	return &chart.Chart.Result[0], nil
}

// bars converts the columnar payload, preferring adjusted closes and skipping
// rows with no close.
func (r *yahooChartResult) bars() models.Series {
	if len(r.Indicators.Quote) == 0 {
		return nil
	}
	q := r.Indicators.Quote[0]
	var adj []*float64
	if len(r.Indicators.AdjClose) > 0 {
		adj = r.Indicators.AdjClose[0].AdjClose
	}

	at := func(col []*float64, i int) *float64 {
		if i < len(col) {
			return col[i]
		}
		return nil
	}

	series := make(models.Series, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		closePtr := at(adj, i)
		if closePtr == nil {
			closePtr = at(q.Close, i)
		}
		if closePtr == nil {
			continue
		}
		c := *closePtr

		bar := models.Bar{
			Date:  time.Unix(ts, 0).UTC(),
			Open:  c,
			High:  c,
			Low:   c,
			Close: c,
		}
		if v := at(q.Open, i); v != nil {
			bar.Open = *v
		}
		if v := at(q.High, i); v != nil {
			bar.High = *v
		}
		if v := at(q.Low, i); v != nil {
			bar.Low = *v
		}
		if i < len(q.Volume) && q.Volume[i] != nil {
			bar.Volume = *q.Volume[i]
		}
		series = append(series, bar)
	}
	return series
}
