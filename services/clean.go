package services

import (
	"math"
	"sort"

	"technical-analyst/models"
)

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// CleanSeries drops bars without a usable close, fills missing OHLC from the
// close, sorts ascending and keeps the last bar seen for a duplicated timestamp.
func CleanSeries(series models.Series) models.Series {
	out := make(models.Series, 0, len(series))
	for _, b := range series {
		if b.Date.IsZero() || !finite(b.Close) || b.Close <= 0 {
			continue
		}
		if !finite(b.Open) || b.Open <= 0 {
			b.Open = b.Close
		}
		if !finite(b.High) || b.High <= 0 {
			b.High = math.Max(b.Open, b.Close)
		}
		if !finite(b.Low) || b.Low <= 0 {
			b.Low = math.Min(b.Open, b.Close)
		}
		if b.Volume < 0 {
			b.Volume = 0
		}
		out = append(out, b)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })

	deduped := out[:0]
	for i, b := range out {
		if i+1 < len(out) && out[i+1].Date.Equal(b.Date) {
			continue
		}
		deduped = append(deduped, b)
	}
	return deduped
}
