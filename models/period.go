package models

import "strings"

// Period describes a history window selectable from the UI
type Period struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Interval string `json:"interval"`
	// Days is the number of business days the mock source generates for the window
	Days int `json:"-"`
}

// DefaultPeriod is used when a request carries no or an unknown period
const DefaultPeriod = "6mo"

var periods = []Period{
	{Key: "1d", Label: "1 Day", Interval: "1m", Days: 1},
	{Key: "5d", Label: "5 Days", Interval: "5m", Days: 5},
	{Key: "1mo", Label: "1 Month", Interval: "1d", Days: 30},
	{Key: "3mo", Label: "3 Months", Interval: "1d", Days: 90},
	{Key: "6mo", Label: "6 Months", Interval: "1d", Days: 180},
	{Key: "1y", Label: "1 Year", Interval: "1d", Days: 365},
	{Key: "2y", Label: "2 Years", Interval: "1d", Days: 730},
	{Key: "5y", Label: "5 Years", Interval: "1wk", Days: 1825},
	{Key: "max", Label: "Max", Interval: "1mo", Days: 3650},
}

// Periods returns every known period in ascending length
func Periods() []Period {
	out := make([]Period, len(periods))
	copy(out, periods)
	return out
}

// ChartPeriods returns the subset offered on the analysis page
func ChartPeriods() []Period {
	var out []Period
	for _, p := range periods {
		switch p.Key {
		case "1mo", "3mo", "6mo", "1y", "2y":
			out = append(out, p)
		}
	}
	return out
}

// LookupPeriod finds a period by key
func LookupPeriod(key string) (Period, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, p := range periods {
		if p.Key == key {
			return p, true
		}
	}
	return Period{}, false
}

// ParsePeriod returns the period for key, falling back to DefaultPeriod
func ParsePeriod(key string) Period {
	if p, ok := LookupPeriod(key); ok {
		return p
	}
	p, _ := LookupPeriod(DefaultPeriod)
	return p
}
