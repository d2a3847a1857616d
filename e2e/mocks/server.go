// Package mocks provides HTTP mock servers for the market data APIs used in E2E tests.
package mocks

import (
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockServer serves canned Yahoo chart and Alpaca bar responses.
type MockServer struct {
	mu     sync.RWMutex
	server *httptest.Server

	// Response configurations
	instruments map[string]Instrument
	end         time.Time

	// Error injection
	yahooError  error
	alpacaError error

	// Request tracking for assertions
	requestLog []RequestLog
}

// RequestLog records incoming requests for test assertions.
type RequestLog struct {
	Method string
	Path   string
	Query  string
}

// NewMockServer creates a new mock server with default instruments.
func NewMockServer() *MockServer {
	m := NewMockHandler()
	m.server = httptest.NewServer(m)
	return m
}

// NewMockHandler creates the handler without starting a listener, for
// callers that serve it themselves.
func NewMockHandler() *MockServer {
	m := &MockServer{
		instruments: make(map[string]Instrument),
		requestLog:  make([]RequestLog, 0),
	}
	m.setDefaults()
	return m
}

// URL returns the mock server's base URL.
func (m *MockServer) URL() string {
	if m.server == nil {
		return ""
	}
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockServer) Close() {
	if m.server != nil {
		m.server.Close()
	}
}

// ServeHTTP implements http.Handler to route requests to appropriate mock handlers.
func (m *MockServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requestLog = append(m.requestLog, RequestLog{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
	})
	m.mu.Unlock()
	drain(r)

	path := r.URL.Path

	switch {
	case strings.HasPrefix(path, "/v8/finance/chart/"):
		m.handleChart(w, r)
	case strings.HasPrefix(path, "/v2/stocks") && strings.HasSuffix(path, "/bars"):
		m.handleAlpacaBars(w, r)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// GetRequestLog returns all logged requests for assertions.
func (m *MockServer) GetRequestLog() []RequestLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RequestLog{}, m.requestLog...)
}

// CountRequests returns how many logged requests have the given path prefix.
func (m *MockServer) CountRequests(prefix string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.requestLog {
		if strings.HasPrefix(r.Path, prefix) {
			n++
		}
	}
	return n
}

// ClearRequestLog clears the request log.
func (m *MockServer) ClearRequestLog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestLog = make([]RequestLog, 0)
}

// SetInstrument registers or replaces a ticker.
func (m *MockServer) SetInstrument(inst Instrument) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instruments[strings.ToUpper(inst.Meta.Symbol)] = inst
}

// RemoveInstrument makes a ticker unknown.
func (m *MockServer) RemoveInstrument(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.instruments, strings.ToUpper(symbol))
}

// SetYahooError makes every chart request fail with a 500.
func (m *MockServer) SetYahooError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.yahooError = err
}

// SetAlpacaError makes every bars request fail with a 500.
func (m *MockServer) SetAlpacaError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alpacaError = err
}

func (m *MockServer) setDefaults() {
	m.end = time.Date(2024, 6, 28, 20, 0, 0, 0, time.UTC)

	defaults := []Instrument{
		{
			Meta: ChartMeta{
				Symbol: "AAPL", Currency: "USD", ExchangeName: "NMS", FullExchangeName: "NasdaqGS",
				InstrumentType: "EQUITY", LongName: "Apple Inc.", ShortName: "Apple",
			},
			BasePrice: 190,
		},
		{
			Meta: ChartMeta{
				Symbol: "MSFT", Currency: "USD", ExchangeName: "NMS", FullExchangeName: "NasdaqGS",
				InstrumentType: "EQUITY", LongName: "Microsoft Corporation",
			},
			BasePrice: 420,
		},
		{
			Meta: ChartMeta{
				Symbol: "MC.PA", Currency: "EUR", ExchangeName: "PAR", FullExchangeName: "Paris",
				InstrumentType: "EQUITY", LongName: "LVMH Moët Hennessy Louis Vuitton",
			},
			BasePrice: 720,
		},
	}
	for _, inst := range defaults {
		m.instruments[inst.Meta.Symbol] = inst
	}
}

// rangeDays maps the chart API range parameter to a bar count
func rangeDays(rng string) int {
	switch rng {
	case "1d":
		return 1
	case "5d":
		return 5
	case "1mo":
		return 22
	case "3mo":
		return 63
	case "1y":
		return 252
	case "2y", "5y", "max":
		return 504
	}
	return 126
}

func (m *MockServer) lookup(symbol string) (Instrument, time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instruments[strings.ToUpper(symbol)]
	return inst, m.end, ok
}

func (m *MockServer) handleChart(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	err := m.yahooError
	m.mu.RUnlock()

	var resp chartResponse
	w.Header().Set("Content-Type", "application/json")

	if err != nil {
		resp.Chart.Error = &chartError{Code: "Internal", Description: err.Error()}
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(resp)
		return
	}

	symbol := strings.TrimPrefix(r.URL.Path, "/v8/finance/chart/")
	inst, end, ok := m.lookup(symbol)
	if !ok {
		resp.Chart.Error = &chartError{Code: "Not Found", Description: "No data found, symbol may be delisted"}
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(resp)
		return
	}

	bars := inst.Bars
	if len(bars) == 0 {
		bars = generateDefaultBars(inst.BasePrice, rangeDays(r.URL.Query().Get("range")), end)
	}

	var result chartResult
	result.Meta = inst.Meta
	result.Indicators.Quote = make([]struct {
		Open   []float64 `json:"open"`
		High   []float64 `json:"high"`
		Low    []float64 `json:"low"`
		Close  []float64 `json:"close"`
		Volume []int64   `json:"volume"`
	}, 1)
	result.Indicators.AdjClose = make([]struct {
		AdjClose []float64 `json:"adjclose"`
	}, 1)

	q := &result.Indicators.Quote[0]
	hi, lo := 0.0, math.MaxFloat64
	for _, b := range bars {
		result.Timestamp = append(result.Timestamp, b.Timestamp)
		q.Open = append(q.Open, b.Open)
		q.High = append(q.High, b.High)
		q.Low = append(q.Low, b.Low)
		q.Close = append(q.Close, b.Close)
		q.Volume = append(q.Volume, b.Volume)
		result.Indicators.AdjClose[0].AdjClose = append(result.Indicators.AdjClose[0].AdjClose, b.Close)
		hi = math.Max(hi, b.High)
		lo = math.Min(lo, b.Low)
	}
	if len(bars) > 0 {
		result.Meta.RegularMarketPrice = bars[len(bars)-1].Close
		result.Meta.FiftyTwoWeekHigh = hi
		result.Meta.FiftyTwoWeekLow = lo
	}

	resp.Chart.Result = []chartResult{result}
	json.NewEncoder(w).Encode(resp)
}

func (m *MockServer) handleAlpacaBars(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	err := m.alpacaError
	m.mu.RUnlock()

	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Symbols come either from the query or the path
	var symbols []string
	if s := r.URL.Query().Get("symbols"); s != "" {
		symbols = strings.Split(s, ",")
	} else {
		parts := strings.Split(r.URL.Path, "/")
		for i, p := range parts {
			if p == "stocks" && i+1 < len(parts) {
				symbols = []string{parts[i+1]}
				break
			}
		}
	}

	out := make(map[string][]AlpacaBar)
	for _, symbol := range symbols {
		inst, end, ok := m.lookup(symbol)
		if !ok {
			continue
		}
		bars := inst.Bars
		if len(bars) == 0 {
			bars = generateDefaultBars(inst.BasePrice, rangeDays(""), end)
		}
		rows := make([]AlpacaBar, len(bars))
		for i, b := range bars {
			rows[i] = AlpacaBar{
				Timestamp: time.Unix(b.Timestamp, 0).UTC().Format(time.RFC3339),
				Open:      b.Open,
				High:      b.High,
				Low:       b.Low,
				Close:     b.Close,
				Volume:    b.Volume,
			}
		}
		out[symbol] = rows
	}

	resp := map[string]interface{}{
		"bars":            out,
		"next_page_token": nil,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// generateDefaultBars builds count daily bars ending at end. Prices follow a
// slow sine wave around base so indicators have something to react to.
func generateDefaultBars(base float64, count int, end time.Time) []Bar {
	bars := make([]Bar, count)
	start := end.AddDate(0, 0, -(count - 1))
	for i := 0; i < count; i++ {
		price := base * (1 + 0.08*math.Sin(float64(i)/9) + 0.0004*float64(i))
		bars[i] = Bar{
			Timestamp: start.AddDate(0, 0, i).Unix(),
			Open:      price * 0.995,
			High:      price * 1.01,
			Low:       price * 0.985,
			Close:     price,
			Volume:    1000000 + int64(i%10)*25000,
		}
	}
	return bars
}

// drain discards a request body so keep-alive connections can be reused
func drain(r *http.Request) {
	if r.Body != nil {
		io.Copy(io.Discard, r.Body)
	}
}
