// Package chart assembles declarative chart specifications from enriched series.
// The output is a Plotly-compatible JSON document: traces, layout and config.
package chart

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNoChart means the series lacks the fields a chart kind needs; callers skip the chart
	ErrNoChart = errors.New("no chart: required indicator values are absent")
	// ErrEmptySeries means there is nothing to render; callers show an inline message
	ErrEmptySeries = errors.New("no data to display")
)

// Kind identifies one of the chart builders
type Kind string

const (
	KindPrice Kind = "price"
	KindRSI   Kind = "rsi"
	KindMACD  Kind = "macd"
)

// Kinds lists every chart kind in page order
var Kinds = []Kind{KindPrice, KindRSI, KindMACD}

// ParseKind resolves a kind name; empty input selects the price chart
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindPrice:
		return KindPrice, nil
	case KindRSI:
		return KindRSI, nil
	case KindMACD:
		return KindMACD, nil
	}
	return "", fmt.Errorf("unknown chart kind %q", s)
}

// ContainerID is the DOM id a chart kind renders into
func (k Kind) ContainerID() string {
	return string(k) + "-chart"
}

// Options control presentation details that do not depend on the data
type Options struct {
	Ticker string
	Theme  Theme
	Now    time.Time
}

func (o Options) now() time.Time {
	if o.Now.IsZero() {
		return time.Now()
	}
	return o.Now
}

// Spec is a complete chart document
type Spec struct {
	Traces []Trace `json:"traces"`
	Layout Layout  `json:"layout"`
	Config Config  `json:"config"`
}

// Trace is one data series in a chart
type Trace struct {
	Type  string     `json:"type"`
	Mode  string     `json:"mode,omitempty"`
	Name  string     `json:"name"`
	X     []string   `json:"x"`
	Y     []*float64 `json:"y,omitempty"`
	Open  []float64  `json:"open,omitempty"`
	High  []float64  `json:"high,omitempty"`
	Low   []float64  `json:"low,omitempty"`
	Close []float64  `json:"close,omitempty"`

	YAxis      string     `json:"yaxis,omitempty"`
	Line       *Line      `json:"line,omitempty"`
	Marker     *Marker    `json:"marker,omitempty"`
	Fill       string     `json:"fill,omitempty"`
	FillColor  string     `json:"fillcolor,omitempty"`
	Increasing *Direction `json:"increasing,omitempty"`
	Decreasing *Direction `json:"decreasing,omitempty"`
	Opacity    float64    `json:"opacity,omitempty"`
	ShowLegend *bool      `json:"showlegend,omitempty"`
}

// Line styles a line trace or shape outline
type Line struct {
	Color string  `json:"color,omitempty"`
	Width float64 `json:"width,omitempty"`
	Dash  string  `json:"dash,omitempty"`
}

// Marker carries per-point colours for bar traces
type Marker struct {
	Color []string `json:"color"`
}

// Direction styles the rising or falling candles
type Direction struct {
	Line      Line   `json:"line"`
	FillColor string `json:"fillcolor,omitempty"`
}

// Layout describes axes, decorations and theme of a chart
type Layout struct {
	Title       Title        `json:"title"`
	Height      int          `json:"height,omitempty"`
	XAxis       Axis         `json:"xaxis"`
	YAxis       Axis         `json:"yaxis"`
	YAxis2      *Axis        `json:"yaxis2,omitempty"`
	Shapes      []Shape      `json:"shapes,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`
	ShowLegend  bool         `json:"showlegend"`
	Legend      *Legend      `json:"legend,omitempty"`
	HoverMode   string       `json:"hovermode,omitempty"`
	DragMode    string       `json:"dragmode,omitempty"`
	PaperBG     string       `json:"paper_bgcolor,omitempty"`
	PlotBG      string       `json:"plot_bgcolor,omitempty"`
	Font        Font         `json:"font"`
	Margin      Margin       `json:"margin"`
}

// Title is a chart or axis title
type Title struct {
	Text string `json:"text"`
}

// Axis configures one axis
type Axis struct {
	Title         *Title       `json:"title,omitempty"`
	Type          string       `json:"type,omitempty"`
	Domain        []float64    `json:"domain,omitempty"`
	Range         []float64    `json:"range,omitempty"`
	GridColor     string       `json:"gridcolor,omitempty"`
	ZeroLine      bool         `json:"zeroline"`
	ZeroLineColor string       `json:"zerolinecolor,omitempty"`
	RangeSlider   *RangeSlider `json:"rangeslider,omitempty"`
	Side          string       `json:"side,omitempty"`
	ShowGrid      *bool        `json:"showgrid,omitempty"`
}

// RangeSlider toggles the x-axis range slider
type RangeSlider struct {
	Visible bool `json:"visible"`
}

// Shape is a line or rectangle drawn over the plot
type Shape struct {
	Type      string  `json:"type"`
	XRef      string  `json:"xref,omitempty"`
	YRef      string  `json:"yref,omitempty"`
	X0        any     `json:"x0"`
	X1        any     `json:"x1"`
	Y0        any     `json:"y0"`
	Y1        any     `json:"y1"`
	FillColor string  `json:"fillcolor,omitempty"`
	Opacity   float64 `json:"opacity,omitempty"`
	Layer     string  `json:"layer,omitempty"`
	Line      *Line   `json:"line,omitempty"`
}

// Annotation is a text label placed at data or paper coordinates
type Annotation struct {
	X         any     `json:"x"`
	Y         any     `json:"y"`
	XRef      string  `json:"xref,omitempty"`
	YRef      string  `json:"yref,omitempty"`
	Text      string  `json:"text"`
	ShowArrow bool    `json:"showarrow"`
	ArrowHead int     `json:"arrowhead,omitempty"`
	XAnchor   string  `json:"xanchor,omitempty"`
	Font      *Font   `json:"font,omitempty"`
	BGColor   string  `json:"bgcolor,omitempty"`
	Opacity   float64 `json:"opacity,omitempty"`
}

// Font is a text style
type Font struct {
	Color  string `json:"color,omitempty"`
	Size   int    `json:"size,omitempty"`
	Family string `json:"family,omitempty"`
}

// Legend positions the legend
type Legend struct {
	Orientation string  `json:"orientation,omitempty"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
}

// Margin sets plot margins in pixels
type Margin struct {
	L int `json:"l"`
	R int `json:"r"`
	T int `json:"t"`
	B int `json:"b"`
}

// Config controls interaction with a rendered chart
type Config struct {
	Responsive             bool         `json:"responsive"`
	DisplayModeBar         bool         `json:"displayModeBar"`
	DisplayLogo            bool         `json:"displaylogo"`
	ScrollZoom             bool         `json:"scrollZoom"`
	ModeBarButtonsToAdd    []string     `json:"modeBarButtonsToAdd,omitempty"`
	ModeBarButtonsToRemove []string     `json:"modeBarButtonsToRemove,omitempty"`
	ToImageButtonOptions   ImageOptions `json:"toImageButtonOptions"`
}

// ImageOptions configures raster export
type ImageOptions struct {
	Format   string `json:"format"`
	Filename string `json:"filename"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Scale    int    `json:"scale"`
}
