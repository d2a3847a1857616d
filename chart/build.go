package chart

import (
	"fmt"
	"strings"

	"technical-analyst/models"
)

// Chart heights in pixels
const (
	PriceHeight      = 600
	OscillatorHeight = 250
)

var (
	drawingTools   = []string{"drawline", "drawopenpath", "drawclosedpath", "drawcircle", "drawrect", "eraseshape"}
	removedButtons = []string{"lasso2d", "select2d"}
)

// Build dispatches to the builder for kind
func Build(kind Kind, series models.Series, opts Options) (*Spec, error) {
	switch kind {
	case KindPrice:
		return Price(series, opts)
	case KindRSI:
		return RSI(series, opts)
	case KindMACD:
		return MACD(series, opts)
	}
	return nil, fmt.Errorf("unknown chart kind %q", kind)
}

func baseLayout(title string, height int, theme Theme) Layout {
	p := theme.Palette()
	return Layout{
		Title:     Title{Text: title},
		Height:    height,
		XAxis:     Axis{Type: "date", GridColor: p.Grid, RangeSlider: &RangeSlider{Visible: false}},
		YAxis:     Axis{GridColor: p.Grid},
		HoverMode: "x unified",
		DragMode:  "zoom",
		PaperBG:   p.Paper,
		PlotBG:    p.Plot,
		Font:      Font{Color: p.Font},
		Margin:    Margin{L: 50, R: 50, T: 50, B: 40},
	}
}

func baseConfig(ticker string, opts Options) Config {
	name := strings.ToUpper(strings.TrimSpace(ticker))
	if name == "" {
		name = "chart"
	}
	return Config{
		Responsive:             true,
		DisplayModeBar:         true,
		DisplayLogo:            false,
		ScrollZoom:             true,
		ModeBarButtonsToAdd:    append([]string(nil), drawingTools...),
		ModeBarButtonsToRemove: append([]string(nil), removedButtons...),
		ToImageButtonOptions: ImageOptions{
			Format:   "png",
			Filename: name + "_" + opts.now().Format(models.DateLayout),
			Width:    1200,
			Height:   800,
			Scale:    2,
		},
	}
}

func ptr(v float64) *float64 {
	return &v
}

func boolPtr(v bool) *bool {
	return &v
}

// column extracts one optional field across the series
func column(series models.Series, get func(models.Bar) *float64) []*float64 {
	out := make([]*float64, len(series))
	for i, b := range series {
		out[i] = get(b)
	}
	return out
}

func anyPresent(values []*float64) bool {
	for _, v := range values {
		if v != nil {
			return true
		}
	}
	return false
}
