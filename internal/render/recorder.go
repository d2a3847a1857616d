package render

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"technical-analyst/chart"
)

// ContainerState is what a container currently shows
type ContainerState struct {
	Spec     *chart.Spec `json:"spec,omitempty"`
	Error    string      `json:"error,omitempty"`
	Disposed bool        `json:"disposed,omitempty"`
	Version  int         `json:"version"`
	Resizes  int         `json:"-"`
}

// Listener is told about every state change, after it has been applied
type Listener func(container string, state ContainerState)

type subscription struct {
	id int
	fn Handler
}

type container struct {
	state      ContainerState
	baseYRange []float64
	handlers   map[EventType][]subscription
}

// Recorder is an in-memory Engine. It keeps the retained state of every chart
// so a page can be re-sent to the browser, inspected in tests or rasterised.
type Recorder struct {
	mu         sync.Mutex
	containers map[string]*container
	exporter   Exporter
	listener   Listener
	nextSub    int
}

var _ Engine = (*Recorder)(nil)

// NewRecorder creates a recorder; exporter may be nil
func NewRecorder(exporter Exporter) *Recorder {
	return &Recorder{
		containers: make(map[string]*container),
		exporter:   exporter,
	}
}

// SetListener installs the change listener
func (r *Recorder) SetListener(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listener = l
}

func (r *Recorder) get(id string) *container {
	c, ok := r.containers[id]
	if !ok {
		c = &container{handlers: make(map[EventType][]subscription)}
		r.containers[id] = c
	}
	return c
}

func (r *Recorder) chart(id string) (*container, error) {
	c, ok := r.containers[id]
	if !ok || c.state.Spec == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContainer, id)
	}
	return c, nil
}

// changed bumps the version and returns a notifier to call once unlocked
func (r *Recorder) changed(id string, c *container) func() {
	c.state.Version++
	l := r.listener
	if l == nil {
		return func() {}
	}
	st := copyState(c.state)
	return func() { l(id, st) }
}

// Create renders spec into container
func (r *Recorder) Create(id string, spec *chart.Spec) error {
	if spec == nil {
		return fmt.Errorf("nil chart spec for %s", id)
	}
	r.mu.Lock()
	c := r.get(id)
	cp := copySpec(*spec)
	c.state.Spec = &cp
	c.state.Error = ""
	c.state.Disposed = false
	c.baseYRange = append([]float64(nil), spec.Layout.YAxis.Range...)
	notify := r.changed(id, c)
	r.mu.Unlock()
	notify()
	return nil
}

// Patch replaces the chart's traces
func (r *Recorder) Patch(id string, traces []chart.Trace) error {
	r.mu.Lock()
	c, err := r.chart(id)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	c.state.Spec.Traces = append([]chart.Trace(nil), traces...)
	notify := r.changed(id, c)
	r.mu.Unlock()
	notify()
	return nil
}

// Relayout merges update into the chart's layout
func (r *Recorder) Relayout(id string, update LayoutUpdate) error {
	r.mu.Lock()
	c, err := r.chart(id)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	l := &c.state.Spec.Layout
	if update.Shapes != nil {
		l.Shapes = append([]chart.Shape(nil), (*update.Shapes)...)
	}
	if update.Annotations != nil {
		l.Annotations = append([]chart.Annotation(nil), (*update.Annotations)...)
	}
	if update.AutoRange {
		l.YAxis.Range = append([]float64(nil), c.baseYRange...)
	}
	if len(update.YRange) == 2 {
		l.YAxis.Range = []float64{update.YRange[0], update.YRange[1]}
	}
	if update.Theme != "" {
		l.ApplyTheme(update.Theme)
	}
	notify := r.changed(id, c)
	r.mu.Unlock()
	notify()
	return nil
}

// Resize records a resize request
func (r *Recorder) Resize(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.chart(id)
	if err != nil {
		return err
	}
	c.state.Resizes++
	return nil
}

// Dispose drops the chart and its subscriptions
func (r *Recorder) Dispose(id string) error {
	r.mu.Lock()
	c, ok := r.containers[id]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.containers, id)
	c.state = ContainerState{Disposed: true, Version: c.state.Version}
	notify := r.changed(id, c)
	r.mu.Unlock()
	notify()
	return nil
}

// Layout returns a copy of the live layout
func (r *Recorder) Layout(id string) (chart.Layout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.chart(id)
	if err != nil {
		return chart.Layout{}, err
	}
	return copySpec(*c.state.Spec).Layout, nil
}

// ShowError replaces the container's chart with an error message
func (r *Recorder) ShowError(id, message string) error {
	r.mu.Lock()
	c := r.get(id)
	c.state.Spec = nil
	c.state.Error = message
	c.state.Disposed = false
	notify := r.changed(id, c)
	r.mu.Unlock()
	notify()
	return nil
}

// On subscribes h to event on a rendered chart
func (r *Recorder) On(id string, event EventType, h Handler) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.chart(id)
	if err != nil {
		return nil, err
	}
	r.nextSub++
	sub := subscription{id: r.nextSub, fn: h}
	c.handlers[event] = append(c.handlers[event], sub)

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		subs := c.handlers[event]
		for i, s := range subs {
			if s.id == sub.id {
				c.handlers[event] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}, nil
}

// Dispatch delivers ev to the handlers subscribed on its container
func (r *Recorder) Dispatch(ev Event) error {
	r.mu.Lock()
	c, err := r.chart(ev.Container)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	subs := append([]subscription(nil), c.handlers[ev.Type]...)
	r.mu.Unlock()

	for _, s := range subs {
		s.fn(ev)
	}
	return nil
}

// ExportImage rasterises one chart with its own export options
func (r *Recorder) ExportImage(ctx context.Context, id string) ([]byte, error) {
	r.mu.Lock()
	c, err := r.chart(id)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	spec := copySpec(*c.state.Spec)
	exporter := r.exporter
	r.mu.Unlock()

	if exporter == nil {
		return nil, ErrExportUnavailable
	}
	return exporter.Export(ctx, []chart.Spec{spec}, spec.Config.ToImageButtonOptions)
}

// Capture rasterises element: a single chart container, or every chart
// stacked in container order for PageElement
func (r *Recorder) Capture(ctx context.Context, element string) ([]byte, error) {
	if element == PageElement || element == "" {
		r.mu.Lock()
		ids := r.chartIDs()
		specs := make([]chart.Spec, 0, len(ids))
		for _, id := range ids {
			specs = append(specs, copySpec(*r.containers[id].state.Spec))
		}
		exporter := r.exporter
		r.mu.Unlock()

		if exporter == nil {
			return nil, ErrExportUnavailable
		}
		if len(specs) == 0 {
			return nil, fmt.Errorf("%w: nothing rendered", ErrUnknownContainer)
		}
		opts := specs[0].Config.ToImageButtonOptions
		opts.Height *= len(specs)
		return exporter.Export(ctx, specs, opts)
	}
	return r.ExportImage(ctx, element)
}

// chartIDs lists containers holding a chart; callers hold mu
func (r *Recorder) chartIDs() []string {
	ids := make([]string, 0, len(r.containers))
	for id, c := range r.containers {
		if c.state.Spec != nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// State returns the state of one container
func (r *Recorder) State(id string) (ContainerState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.containers[id]
	if !ok {
		return ContainerState{}, false
	}
	return copyState(c.state), true
}

// Snapshot returns the state of every container, for embedding in a page
func (r *Recorder) Snapshot() map[string]ContainerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]ContainerState, len(r.containers))
	for id, c := range r.containers {
		out[id] = copyState(c.state)
	}
	return out
}

// Containers lists every container id in order
func (r *Recorder) Containers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.containers))
	for id := range r.containers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func copyState(st ContainerState) ContainerState {
	if st.Spec != nil {
		cp := copySpec(*st.Spec)
		st.Spec = &cp
	}
	return st
}

// copySpec copies the parts of a spec the recorder mutates
func copySpec(s chart.Spec) chart.Spec {
	s.Traces = append([]chart.Trace(nil), s.Traces...)
	s.Layout.Shapes = append([]chart.Shape(nil), s.Layout.Shapes...)
	s.Layout.Annotations = append([]chart.Annotation(nil), s.Layout.Annotations...)
	s.Layout.YAxis.Range = append([]float64(nil), s.Layout.YAxis.Range...)
	return s
}
