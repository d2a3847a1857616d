package chart

import (
	"technical-analyst/models"
)

type movingAverage struct {
	name  string
	color string
	width float64
	get   func(models.Bar) *float64
}

var movingAverages = []movingAverage{
	{"MA20", ColorMA20, 1.5, func(b models.Bar) *float64 { return b.MA20 }},
	{"MA50", ColorMA50, 1.5, func(b models.Bar) *float64 { return b.MA50 }},
	{"MA200", ColorMA200, 2, func(b models.Bar) *float64 { return b.MA200 }},
}

// Price builds the candlestick chart with moving averages, Bollinger bands
// and a volume panel. Moving-average and band traces are included when any
// bar carries a value, since their warm-up bars are always empty.
func Price(series models.Series, opts Options) (*Spec, error) {
	if len(series) == 0 {
		return nil, ErrEmptySeries
	}

	dates := series.Dates()
	traces := []Trace{{
		Type:       "candlestick",
		Name:       opts.Ticker,
		X:          dates,
		Open:       series.Opens(),
		High:       series.Highs(),
		Low:        series.Lows(),
		Close:      series.Closes(),
		Increasing: &Direction{Line: Line{Color: ColorUp}, FillColor: ColorUp},
		Decreasing: &Direction{Line: Line{Color: ColorDown}, FillColor: ColorDown},
	}}

	for _, ma := range movingAverages {
		values := column(series, ma.get)
		if !anyPresent(values) {
			continue
		}
		traces = append(traces, Trace{
			Type: "scatter",
			Mode: "lines",
			Name: ma.name,
			X:    dates,
			Y:    values,
			Line: &Line{Color: ma.color, Width: ma.width},
		})
	}

	upper := column(series, func(b models.Bar) *float64 { return b.BBUpper })
	lower := column(series, func(b models.Bar) *float64 { return b.BBLower })
	if anyPresent(upper) && anyPresent(lower) {
		traces = append(traces,
			Trace{
				Type: "scatter",
				Mode: "lines",
				Name: "BB Upper",
				X:    dates,
				Y:    upper,
				Line: &Line{Color: ColorBollinger, Width: 1, Dash: "dash"},
			},
			Trace{
				Type:      "scatter",
				Mode:      "lines",
				Name:      "BB Lower",
				X:         dates,
				Y:         lower,
				Line:      &Line{Color: ColorBollinger, Width: 1, Dash: "dash"},
				Fill:      "tonexty",
				FillColor: ColorBandFill,
			},
		)
	}

	volumes := make([]*float64, len(series))
	colors := make([]string, len(series))
	for i, b := range series {
		volumes[i] = ptr(float64(b.Volume))
		colors[i] = VolumeColor(b)
	}
	traces = append(traces, Trace{
		Type:       "bar",
		Name:       "Volume",
		X:          dates,
		Y:          volumes,
		YAxis:      "y2",
		Marker:     &Marker{Color: colors},
		ShowLegend: boolPtr(false),
	})

	layout := baseLayout(opts.Ticker+" - Price", PriceHeight, opts.Theme)
	layout.ShowLegend = true
	layout.Legend = &Legend{Orientation: "h", X: 0, Y: 1.02}
	layout.YAxis.Title = &Title{Text: "Price"}
	layout.YAxis.Domain = []float64{0.30, 1}
	vol := Axis{
		Title:     &Title{Text: "Volume"},
		Domain:    []float64{0, 0.25},
		GridColor: layout.YAxis.GridColor,
		ShowGrid:  boolPtr(false),
	}
	layout.YAxis2 = &vol

	return &Spec{Traces: traces, Layout: layout, Config: baseConfig(opts.Ticker, opts)}, nil
}
