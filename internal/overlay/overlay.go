// Package overlay adds user markers and annotations on top of a rendered chart
// and handles the chart's pointer interactions.
package overlay

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"technical-analyst/chart"
	"technical-analyst/internal/render"
)

// Mode decides how a new marker combines with what is already drawn
type Mode int

const (
	// ModeAppend keeps the chart's own shapes and every earlier marker
	ModeAppend Mode = iota
	// ModeReplace makes each add replace the chart's whole shape list
	ModeReplace
)

// ParseMode maps "append" / "replace" to a Mode, defaulting to append
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), "replace") {
		return ModeReplace
	}
	return ModeAppend
}

func (m Mode) String() string {
	if m == ModeReplace {
		return "replace"
	}
	return "append"
}

// Marker styling
const (
	MarkerColor     = "#FF5722"
	AnnotationColor = "#2c3e50"
	// ZoomStep is the value-axis scale factor applied per wheel notch
	ZoomStep = 1.2
)

// Point is a (date, value) position on the chart
type Point struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// Overlay manages user markers on one chart container
type Overlay struct {
	engine    render.Engine
	container string
	mode      Mode

	mu          sync.Mutex
	base        *chart.Layout
	shapes      []chart.Shape
	annotations []chart.Annotation
	last        *Point
	unsubscribe []func()
}

// New creates an overlay for container
func New(engine render.Engine, container string, mode Mode) *Overlay {
	return &Overlay{engine: engine, container: container, mode: mode}
}

// Container returns the chart container the overlay draws on
func (o *Overlay) Container() string { return o.container }

// Mode returns the shape policy
func (o *Overlay) Mode() Mode { return o.mode }

// baseLayout captures the chart's own shapes and annotations on first use;
// callers hold mu
func (o *Overlay) baseLayout() (*chart.Layout, error) {
	if o.base != nil {
		return o.base, nil
	}
	layout, err := o.engine.Layout(o.container)
	if err != nil {
		return nil, err
	}
	o.base = &layout
	return o.base, nil
}

func (o *Overlay) addShape(s chart.Shape) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	base, err := o.baseLayout()
	if err != nil {
		return err
	}
	var shapes []chart.Shape
	if o.mode == ModeReplace {
		shapes = []chart.Shape{s}
		o.shapes = shapes
	} else {
		o.shapes = append(o.shapes, s)
		shapes = append(append([]chart.Shape(nil), base.Shapes...), o.shapes...)
	}
	return o.engine.Relayout(o.container, render.LayoutUpdate{Shapes: &shapes})
}

// AddHorizontalLine marks a value across the full width of the chart
func (o *Overlay) AddHorizontalLine(value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("invalid marker value %v", value)
	}
	return o.addShape(chart.Shape{
		Type: "line",
		XRef: "paper",
		YRef: "y",
		X0:   0,
		X1:   1,
		Y0:   value,
		Y1:   value,
		Line: &chart.Line{Color: MarkerColor, Width: 2, Dash: "dash"},
	})
}

// AddVerticalLine marks a date across the full height of the chart
func (o *Overlay) AddVerticalLine(date string) error {
	if strings.TrimSpace(date) == "" {
		return fmt.Errorf("marker date is required")
	}
	return o.addShape(chart.Shape{
		Type: "line",
		XRef: "x",
		YRef: "paper",
		X0:   date,
		X1:   date,
		Y0:   0,
		Y1:   1,
		Line: &chart.Line{Color: MarkerColor, Width: 2, Dash: "dot"},
	})
}

// AddAnnotation places text with an arrow at (date, value)
func (o *Overlay) AddAnnotation(date string, value float64, text string) error {
	if strings.TrimSpace(date) == "" || strings.TrimSpace(text) == "" {
		return fmt.Errorf("annotation needs a date and text")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	base, err := o.baseLayout()
	if err != nil {
		return err
	}
	a := chart.Annotation{
		X:         date,
		Y:         value,
		XRef:      "x",
		YRef:      "y",
		Text:      text,
		ShowArrow: true,
		ArrowHead: 2,
		Font:      &chart.Font{Color: AnnotationColor, Size: 12},
		BGColor:   "rgba(255,255,255,0.8)",
	}
	var annotations []chart.Annotation
	if o.mode == ModeReplace {
		annotations = []chart.Annotation{a}
		o.annotations = annotations
	} else {
		o.annotations = append(o.annotations, a)
		annotations = append(append([]chart.Annotation(nil), base.Annotations...), o.annotations...)
	}
	return o.engine.Relayout(o.container, render.LayoutUpdate{Annotations: &annotations})
}

// Clear removes every user marker and restores the chart's own decorations
func (o *Overlay) Clear() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.shapes, o.annotations = nil, nil
	if o.base == nil {
		return nil
	}
	shapes := append([]chart.Shape(nil), o.base.Shapes...)
	annotations := append([]chart.Annotation(nil), o.base.Annotations...)
	return o.engine.Relayout(o.container, render.LayoutUpdate{Shapes: &shapes, Annotations: &annotations})
}

// Markers returns the user shapes and annotations currently drawn
func (o *Overlay) Markers() ([]chart.Shape, []chart.Annotation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]chart.Shape(nil), o.shapes...), append([]chart.Annotation(nil), o.annotations...)
}

// ExportImage exports the chart as PNG
func (o *Overlay) ExportImage(ctx context.Context) ([]byte, error) {
	return o.engine.ExportImage(ctx, o.container)
}

// Screenshot captures element, or the whole page when element is empty
func (o *Overlay) Screenshot(ctx context.Context, element string) ([]byte, error) {
	if element == "" {
		element = render.PageElement
	}
	return o.engine.Capture(ctx, element)
}

// LastPoint returns the most recently clicked position
func (o *Overlay) LastPoint() (Point, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return Point{}, false
	}
	return *o.last, true
}

// Bind subscribes to the chart's pointer events: click records the point used
// by context-menu actions, double click resets zoom, wheel zooms a chart whose
// value axis has a fixed range.
func (o *Overlay) Bind() error {
	bindings := []struct {
		event render.EventType
		fn    render.Handler
	}{
		{render.EventClick, o.onClick},
		{render.EventDoubleClick, o.onDoubleClick},
		{render.EventWheel, o.onWheel},
	}

	o.Unbind()
	subs := make([]func(), 0, len(bindings))
	for _, b := range bindings {
		unsubscribe, err := o.engine.On(o.container, b.event, b.fn)
		if err != nil {
			for _, u := range subs {
				u()
			}
			return fmt.Errorf("failed to bind %s on %s: %w", b.event, o.container, err)
		}
		subs = append(subs, unsubscribe)
	}

	o.mu.Lock()
	o.unsubscribe = subs
	o.mu.Unlock()
	return nil
}

// Unbind drops the event subscriptions
func (o *Overlay) Unbind() {
	o.mu.Lock()
	subs := o.unsubscribe
	o.unsubscribe = nil
	o.mu.Unlock()
	for _, u := range subs {
		u()
	}
}

// Reset forgets markers and the captured base layout, for a re-created chart
func (o *Overlay) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.base = nil
	o.shapes, o.annotations = nil, nil
	o.last = nil
}

func (o *Overlay) onClick(ev render.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.last = &Point{Date: ev.X, Value: ev.Y}
}

func (o *Overlay) onDoubleClick(render.Event) {
	_ = o.engine.Relayout(o.container, render.LayoutUpdate{AutoRange: true})
}

func (o *Overlay) onWheel(ev render.Event) {
	if ev.Delta == 0 {
		return
	}
	layout, err := o.engine.Layout(o.container)
	if err != nil || len(layout.YAxis.Range) != 2 {
		return
	}
	lo, hi := layout.YAxis.Range[0], layout.YAxis.Range[1]
	center := (lo + hi) / 2
	if ev.Y > lo && ev.Y < hi {
		center = ev.Y
	}
	factor := ZoomStep
	if ev.Delta < 0 {
		factor = 1 / ZoomStep
	}
	rng := []float64{center - (center-lo)*factor, center + (hi-center)*factor}
	_ = o.engine.Relayout(o.container, render.LayoutUpdate{YRange: rng})
}
