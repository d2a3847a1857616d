// Package render defines the boundary to the chart rendering engine and an
// in-memory engine that retains chart state per container.
package render

import (
	"context"
	"errors"

	"technical-analyst/chart"
)

var (
	// ErrUnknownContainer is returned for operations on a container with no chart
	ErrUnknownContainer = errors.New("no chart in container")
	// ErrExportUnavailable is returned when the engine has no raster exporter
	ErrExportUnavailable = errors.New("image export unavailable")
)

// PageElement names the whole page for Capture
const PageElement = "body"

// EventType is a pointer interaction the engine reports
type EventType string

const (
	EventWheel       EventType = "wheel"
	EventDoubleClick EventType = "dblclick"
	EventClick       EventType = "click"
)

// ParseEventType validates an event name coming off the wire
func ParseEventType(s string) (EventType, bool) {
	switch EventType(s) {
	case EventWheel, EventDoubleClick, EventClick:
		return EventType(s), true
	}
	return "", false
}

// Event is a pointer interaction on a chart. X is the date under the pointer,
// Y the value, Delta the wheel movement (negative zooms in).
type Event struct {
	Type      EventType `json:"type"`
	Container string    `json:"container"`
	X         string    `json:"x,omitempty"`
	Y         float64   `json:"y,omitempty"`
	Delta     float64   `json:"delta,omitempty"`
}

// Handler receives dispatched events
type Handler func(Event)

// LayoutUpdate is a partial layout merged into a live chart. Nil fields are
// left unchanged.
type LayoutUpdate struct {
	Shapes      *[]chart.Shape      `json:"shapes,omitempty"`
	Annotations *[]chart.Annotation `json:"annotations,omitempty"`
	YRange      []float64           `json:"yRange,omitempty"`
	AutoRange   bool                `json:"autoRange,omitempty"`
	Theme       chart.Theme         `json:"theme,omitempty"`
}

// Engine is what the page session needs from a chart renderer
type Engine interface {
	// Create renders spec into container, replacing whatever was there
	Create(container string, spec *chart.Spec) error
	// Patch swaps the chart data, keeping the live layout
	Patch(container string, traces []chart.Trace) error
	Relayout(container string, update LayoutUpdate) error
	Resize(container string) error
	Dispose(container string) error
	Layout(container string) (chart.Layout, error)
	// ShowError replaces the container's content with an inline error panel
	ShowError(container, message string) error
	// On subscribes to events on container; the returned func unsubscribes
	On(container string, event EventType, h Handler) (func(), error)
	ExportImage(ctx context.Context, container string) ([]byte, error)
	Capture(ctx context.Context, element string) ([]byte, error)
}

// Exporter rasterises chart specs
type Exporter interface {
	Export(ctx context.Context, specs []chart.Spec, opts chart.ImageOptions) ([]byte, error)
}
