// Package format turns raw market numbers and dates into display strings.
package format

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// NotAvailable is rendered for missing values
const NotAvailable = "N/A"

// Number formats v with a K/M/B magnitude suffix and two decimals.
// A nil value renders as NotAvailable.
func Number(v *float64) string {
	if v == nil {
		return NotAvailable
	}
	return Float(*v)
}

// Float is the non-pointer form of Number
func Float(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NotAvailable
	}

	abs := math.Abs(v)
	switch {
	case abs >= 1e9:
		return fmt.Sprintf("%.2fB", v/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%.2fM", v/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%.2fK", v/1e3)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

// Volume formats a share count with a magnitude suffix
func Volume(v int64) string {
	return Float(float64(v))
}

// Percent formats a percentage with an explicit sign, e.g. "+1.23%"
func Percent(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NotAvailable
	}
	if v == 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%+.2f%%", v)
}

// Price formats a monetary amount with two decimals
func Price(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Date formats t as an ISO calendar date
func Date(t time.Time) string {
	if t.IsZero() {
		return NotAvailable
	}
	return t.Format("2006-01-02")
}

// LongDate formats t as day/month/year, the dashboard's display format
func LongDate(t time.Time) string {
	if t.IsZero() {
		return NotAvailable
	}
	return t.Format("02/01/2006")
}
