package chart

import (
	"technical-analyst/models"
)

// RSI builds the oscillator chart with overbought and oversold bands.
// The series yields ErrNoChart when its first bar has no RSI value.
func RSI(series models.Series, opts Options) (*Spec, error) {
	if len(series) == 0 {
		return nil, ErrEmptySeries
	}
	if series[0].RSI == nil {
		return nil, ErrNoChart
	}

	dates := series.Dates()
	traces := []Trace{{
		Type: "scatter",
		Mode: "lines",
		Name: "RSI",
		X:    dates,
		Y:    column(series, func(b models.Bar) *float64 { return b.RSI }),
		Line: &Line{Color: ColorRSI, Width: 2},
	}}

	layout := baseLayout("RSI (14)", OscillatorHeight, opts.Theme)
	layout.YAxis.Range = []float64{0, 100}
	layout.Shapes = []Shape{
		band(70, 100, ColorOverbought),
		band(0, 30, ColorOversold),
	}
	first := dates[0]
	layout.Annotations = []Annotation{
		{X: first, Y: 85, Text: "Overbought", ShowArrow: false, XAnchor: "left", Font: &Font{Color: ColorDown, Size: 10}},
		{X: first, Y: 15, Text: "Oversold", ShowArrow: false, XAnchor: "left", Font: &Font{Color: ColorUp, Size: 10}},
	}

	return &Spec{Traces: traces, Layout: layout, Config: baseConfig(opts.Ticker, opts)}, nil
}

func band(y0, y1 float64, fill string) Shape {
	return Shape{
		Type:      "rect",
		XRef:      "paper",
		YRef:      "y",
		X0:        0,
		X1:        1,
		Y0:        y0,
		Y1:        y1,
		FillColor: fill,
		Layer:     "below",
		Line:      &Line{Width: 0},
	}
}

// MACD builds the MACD line, signal line and sign-coloured histogram.
// The series yields ErrNoChart when its first bar lacks MACD or signal values.
func MACD(series models.Series, opts Options) (*Spec, error) {
	if len(series) == 0 {
		return nil, ErrEmptySeries
	}
	if series[0].MACD == nil || series[0].MACDSignal == nil {
		return nil, ErrNoChart
	}

	dates := series.Dates()
	hist := make([]*float64, len(series))
	colors := make([]string, len(series))
	for i, b := range series {
		v := 0.0
		switch {
		case b.MACDHist != nil:
			v = *b.MACDHist
		case b.MACD != nil && b.MACDSignal != nil:
			v = *b.MACD - *b.MACDSignal
		}
		hist[i] = ptr(v)
		colors[i] = HistogramColor(v)
	}

	traces := []Trace{
		{
			Type: "scatter",
			Mode: "lines",
			Name: "MACD",
			X:    dates,
			Y:    column(series, func(b models.Bar) *float64 { return b.MACD }),
			Line: &Line{Color: ColorMACD, Width: 2},
		},
		{
			Type: "scatter",
			Mode: "lines",
			Name: "Signal",
			X:    dates,
			Y:    column(series, func(b models.Bar) *float64 { return b.MACDSignal }),
			Line: &Line{Color: ColorSignal, Width: 2},
		},
		{
			Type:   "bar",
			Name:   "Histogram",
			X:      dates,
			Y:      hist,
			Marker: &Marker{Color: colors},
		},
	}

	layout := baseLayout("MACD (12, 26, 9)", OscillatorHeight, opts.Theme)
	layout.ShowLegend = true
	layout.YAxis.ZeroLine = true
	layout.YAxis.ZeroLineColor = opts.Theme.Palette().Font

	return &Spec{Traces: traces, Layout: layout, Config: baseConfig(opts.Ticker, opts)}, nil
}
