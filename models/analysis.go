package models

import "time"

// SignalLevel is the severity used to colour a signal badge
type SignalLevel string

const (
	SignalSuccess SignalLevel = "success"
	SignalWarning SignalLevel = "warning"
	SignalDanger  SignalLevel = "danger"
)

// Signal is a buy/sell/trend hint derived from the latest indicator values
type Signal struct {
	Title       string      `json:"title"`
	Level       SignalLevel `json:"level"`
	Value       *float64    `json:"value,omitempty"`
	Description string      `json:"description"`
}

// Stats summarises a series for the analysis page header
type Stats struct {
	Ticker     string    `json:"ticker"`
	Company    string    `json:"company"`
	LastPrice  float64   `json:"lastPrice"`
	LastDate   string    `json:"lastDate"`
	Change1D   float64   `json:"change1d"`
	Volume     int64     `json:"volume"`
	AvgVolume  int64     `json:"avgVolume"`
	RSI        *float64  `json:"rsi"`
	MA20       *float64  `json:"ma20"`
	MA50       *float64  `json:"ma50"`
	MA200      *float64  `json:"ma200"`
	ATR        *float64  `json:"atr"`
	StochK     *float64  `json:"stochK"`
	StochD     *float64  `json:"stochD"`
	Volatility float64   `json:"volatility"`
	DataPoints int       `json:"dataPoints"`
	High52W    float64   `json:"high52w"`
	Low52W     float64   `json:"low52w"`
	Beta       float64   `json:"beta"`
	Currency   string    `json:"currency"`
	Sector     string    `json:"sector"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// SourceStatus reports the health of one market-data source
type SourceStatus struct {
	Name      string `json:"name"`
	Priority  int    `json:"priority"`
	Enabled   bool   `json:"enabled"`
	Available bool   `json:"available"`
	Errors    int    `json:"errors"`
	Successes int64  `json:"successes"`
}
