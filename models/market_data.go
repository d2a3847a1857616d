package models

import (
	"sort"
	"time"
)

// DateLayout is the calendar format used for bar dates on the wire and in charts
const DateLayout = "2006-01-02"

// DateTimeLayout labels intraday bars, where several share a calendar day
const DateTimeLayout = "2006-01-02 15:04"

// Bar represents one OHLCV sample plus optional indicator enrichment
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`

	MA20       *float64 `json:"ma20,omitempty"`
	MA50       *float64 `json:"ma50,omitempty"`
	MA200      *float64 `json:"ma200,omitempty"`
	BBUpper    *float64 `json:"bbUpper,omitempty"`
	BBMiddle   *float64 `json:"bbMiddle,omitempty"`
	BBLower    *float64 `json:"bbLower,omitempty"`
	RSI        *float64 `json:"rsi,omitempty"`
	MACD       *float64 `json:"macd,omitempty"`
	MACDSignal *float64 `json:"macdSignal,omitempty"`
	MACDHist   *float64 `json:"macdHist,omitempty"`
}

// Up reports whether the bar closed at or above its open
func (b Bar) Up() bool {
	return b.Close >= b.Open
}

// DateString returns the bar date in DateLayout
func (b Bar) DateString() string {
	return b.Date.Format(DateLayout)
}

// Series is an ordered sequence of bars, ascending by date
type Series []Bar

// Closes returns the close prices of the series
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.Close
	}
	return out
}

// Opens returns the open prices of the series
func (s Series) Opens() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.Open
	}
	return out
}

// Highs returns the high prices of the series
func (s Series) Highs() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.High
	}
	return out
}

// Lows returns the low prices of the series
func (s Series) Lows() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.Low
	}
	return out
}

// Volumes returns the volumes of the series
func (s Series) Volumes() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = float64(b.Volume)
	}
	return out
}

// Dates returns the bar dates formatted with DateLayout, or DateTimeLayout
// when the series is intraday
func (s Series) Dates() []string {
	layout := DateLayout
	if s.Intraday() {
		layout = DateTimeLayout
	}
	out := make([]string, len(s))
	for i, b := range s {
		out[i] = b.Date.Format(layout)
	}
	return out
}

// Intraday reports whether two bars fall on the same calendar day
func (s Series) Intraday() bool {
	for i := 1; i < len(s); i++ {
		if s[i].DateString() == s[i-1].DateString() {
			return true
		}
	}
	return false
}

// Last returns the most recent bar and false when the series is empty
func (s Series) Last() (Bar, bool) {
	if len(s) == 0 {
		return Bar{}, false
	}
	return s[len(s)-1], true
}

// Sorted returns a copy of the series ordered by ascending date
func (s Series) Sorted() Series {
	out := make(Series, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Tail returns at most the last n bars
func (s Series) Tail(n int) Series {
	if n >= len(s) {
		return s
	}
	return s[len(s)-n:]
}

// Quote is the live price summary served by /api/quote/{ticker}
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	Volume        int64     `json:"volume"`
	Timestamp     time.Time `json:"timestamp"`
	Source        string    `json:"source,omitempty"`
}

// SuggestionItem is one row returned by /api/search
type SuggestionItem struct {
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
	Market string `json:"market"`
}

// StockInfo holds descriptive data about a listed instrument
type StockInfo struct {
	Symbol           string  `json:"symbol"`
	Name             string  `json:"name"`
	Sector           string  `json:"sector"`
	Industry         string  `json:"industry,omitempty"`
	Currency         string  `json:"currency"`
	Exchange         string  `json:"exchange,omitempty"`
	MarketCap        float64 `json:"marketCap"`
	PERatio          float64 `json:"peRatio"`
	DividendYield    float64 `json:"dividendYield"`
	Beta             float64 `json:"beta"`
	FiftyTwoWeekHigh float64 `json:"fiftyTwoWeekHigh"`
	FiftyTwoWeekLow  float64 `json:"fiftyTwoWeekLow"`
	Source           string  `json:"source"`
}
