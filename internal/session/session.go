// Package session holds the state of one open dashboard page: the current
// ticker and period, its charts, overlays, live price loop and search box.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"technical-analyst/chart"
	"technical-analyst/internal/analysis"
	"technical-analyst/internal/livepoll"
	"technical-analyst/internal/overlay"
	"technical-analyst/internal/render"
	"technical-analyst/internal/search"
	"technical-analyst/models"
	"technical-analyst/observability"
)

// ErrClosed is returned by operations on a closed session
var ErrClosed = errors.New("session closed")

// RenderFailedText is shown in a container whose chart could not be drawn
const RenderFailedText = "Chart could not be rendered"

// Outcome of rendering one container
type Outcome string

const (
	OutcomeRendered Outcome = "rendered"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeEmpty    Outcome = "empty"
	OutcomeFailed   Outcome = "failed"
)

// Reports produces analysis reports and their charts
type Reports interface {
	Analyze(ctx context.Context, ticker, period string) (*analysis.Report, error)
	Chart(report *analysis.Report, kind chart.Kind, opts chart.Options) (*chart.Spec, error)
}

// Message is pushed to the browser side of the session
type Message struct {
	Type        string                 `json:"type"`
	Container   string                 `json:"container,omitempty"`
	State       *render.ContainerState `json:"state,omitempty"`
	Suggestions []search.Row           `json:"suggestions,omitempty"`
	Text        string                 `json:"text,omitempty"`
	Index       *int                   `json:"index,omitempty"`
	Target      string                 `json:"target,omitempty"`
	Quote       *QuoteMessage          `json:"quote,omitempty"`
}

// QuoteMessage is the live price patch
type QuoteMessage struct {
	Ticker  string `json:"ticker"`
	Price   string `json:"price"`
	Percent string `json:"percent"`
	Class   string `json:"class"`
}

// Message types
const (
	MessageChart       = "chart"
	MessageSuggestions = "suggestions"
	MessageNoResults   = "no_results"
	MessageHide        = "hide"
	MessageHighlight   = "highlight"
	MessageNavigate    = "navigate"
	MessageQuote       = "quote"
)

// Sink receives messages for the browser
type Sink interface {
	Send(msg Message)
}

// Deps are shared by every session of a store
type Deps struct {
	Reports      Reports
	Quotes       livepoll.QuoteFetcher
	Searcher     search.Searcher
	Exporter     render.Exporter
	OverlayMode  overlay.Mode
	PollInterval time.Duration
	Debounce     time.Duration
	Clock        search.Clock
	Metrics      *observability.Metrics
}

// Session is one page session
type Session struct {
	id   string
	deps Deps

	ctx    context.Context
	cancel context.CancelFunc

	engine *render.Recorder
	search *search.Controller

	mu       sync.Mutex
	ticker   string
	period   string
	loading  bool
	theme    chart.Theme
	report   *analysis.Report
	overlays map[string]*overlay.Overlay
	poller   *livepoll.Poller
	sink     Sink
	lastSeen time.Time
	closed   bool
	now      func() time.Time
}

func newSession(id string, deps Deps, theme chart.Theme, now func() time.Time) *Session {
	if deps.Metrics == nil {
		deps.Metrics = observability.GetMetrics()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:       id,
		deps:     deps,
		ctx:      ctx,
		cancel:   cancel,
		engine:   render.NewRecorder(deps.Exporter),
		period:   models.DefaultPeriod,
		theme:    theme,
		overlays: make(map[string]*overlay.Overlay),
		now:      now,
		lastSeen: now(),
	}
	s.engine.SetListener(func(container string, state render.ContainerState) {
		s.send(Message{Type: MessageChart, Container: container, State: &state})
	})
	if deps.Searcher != nil {
		s.search = search.New(deps.Searcher, searchView{s}, search.Config{
			Debounce: deps.Debounce,
			Clock:    deps.Clock,
			Metrics:  deps.Metrics,
		})
	}
	return s
}

// ID returns the session id
func (s *Session) ID() string { return s.id }

// Context is cancelled when the session closes
func (s *Session) Context() context.Context { return s.ctx }

// Engine returns the session's chart engine
func (s *Session) Engine() *render.Recorder { return s.engine }

// Search returns the search controller, nil when the store has no searcher
func (s *Session) Search() *search.Controller { return s.search }

// Ticker returns the ticker on display
func (s *Session) Ticker() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticker
}

// Period returns the period on display
func (s *Session) Period() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.period
}

// Loading reports whether a navigation is in progress
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Theme returns the session's theme
func (s *Session) Theme() chart.Theme {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.theme
}

// Report returns the report on display, nil before the first navigation
func (s *Session) Report() *analysis.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// Polling reports whether the live price loop is running
func (s *Session) Polling() bool {
	s.mu.Lock()
	p := s.poller
	s.mu.Unlock()
	return p != nil && p.Running()
}

// Attach routes messages to sink, replacing any previous one
func (s *Session) Attach(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
	s.lastSeen = s.now()
}

// Detach stops routing messages if sink is the current one
func (s *Session) Detach(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sink == sink {
		s.sink = nil
	}
}

func (s *Session) send(msg Message) {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink != nil {
		sink.Send(msg)
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = s.now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Navigate shows ticker over period. The previous page state is torn down
// first; a failed analysis leaves an error panel in the price container.
func (s *Session) Navigate(ctx context.Context, ticker, period string) (*analysis.Report, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	p := models.ParsePeriod(period)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.ticker = ticker
	s.period = p.Key
	s.loading = true
	s.lastSeen = s.now()
	theme := s.theme
	s.mu.Unlock()

	s.teardown()
	if s.search != nil {
		s.search.SetPeriod(p.Key)
	}

	report, err := s.deps.Reports.Analyze(ctx, ticker, p.Key)

	s.mu.Lock()
	s.loading = false
	if err == nil {
		s.report = report
	}
	s.mu.Unlock()

	if err != nil {
		observability.WithSession(s.id).Warn("analysis failed", "ticker", ticker, "period", p.Key, "error", err)
		s.engine.ShowError(chart.KindPrice.ContainerID(), fmt.Sprintf("Could not analyse %s: %v", ticker, err))
		return nil, err
	}

	opts := chart.Options{Ticker: report.Ticker, Theme: theme}
	for _, kind := range chart.Kinds {
		container := kind.ContainerID()
		if s.Render(container, func() (*chart.Spec, error) {
			return s.deps.Reports.Chart(report, kind, opts)
		}) == OutcomeRendered {
			s.attachOverlay(container)
		}
	}

	s.startPoller(report.Ticker)
	return report, nil
}

// teardown stops the poller and disposes every chart. It runs without mu
// held because both the poller and the engine report back through send.
func (s *Session) teardown() {
	s.mu.Lock()
	p := s.poller
	s.poller = nil
	overlays := s.overlays
	s.overlays = make(map[string]*overlay.Overlay)
	s.report = nil
	s.mu.Unlock()

	if p != nil {
		p.Stop()
	}
	for _, ov := range overlays {
		ov.Unbind()
	}
	for _, id := range s.engine.Containers() {
		s.engine.Dispose(id)
	}
}

// Render builds a chart and shows it in container. Empty data and any error or
// panic from build or the engine become an inline error in that container;
// ErrNoChart leaves the container untouched.
func (s *Session) Render(container string, build func() (*chart.Spec, error)) (outcome Outcome) {
	log := observability.WithSession(s.id)
	defer func() {
		if r := recover(); r != nil {
			log.Error("chart rendering panicked", "container", container, "panic", r)
			s.engine.ShowError(container, RenderFailedText)
			outcome = OutcomeFailed
		}
	}()

	spec, err := build()
	switch {
	case errors.Is(err, chart.ErrNoChart):
		return OutcomeSkipped
	case errors.Is(err, chart.ErrEmptySeries):
		s.engine.ShowError(container, chart.ErrEmptySeries.Error())
		return OutcomeEmpty
	case err != nil:
		log.Warn("chart build failed", "container", container, "error", err)
		s.engine.ShowError(container, RenderFailedText)
		return OutcomeFailed
	}

	if err := s.engine.Create(container, spec); err != nil {
		log.Warn("chart create failed", "container", container, "error", err)
		s.engine.ShowError(container, RenderFailedText)
		return OutcomeFailed
	}
	return OutcomeRendered
}

func (s *Session) attachOverlay(container string) {
	ov := overlay.New(s.engine, container, s.deps.OverlayMode)
	if err := ov.Bind(); err != nil {
		observability.WithSession(s.id).Warn("failed to bind overlay", "container", container, "error", err)
		return
	}
	s.mu.Lock()
	s.overlays[container] = ov
	s.mu.Unlock()
}

func (s *Session) startPoller(ticker string) {
	if s.deps.Quotes == nil {
		return
	}
	p := livepoll.New(s.deps.Quotes, livepoll.DisplayFunc(s.showQuote), ticker, s.deps.PollInterval, s.deps.Metrics)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.ticker != ticker {
		return
	}
	s.poller = p
	p.Start(s.ctx)
}

func (s *Session) showQuote(u livepoll.Update) {
	s.send(Message{Type: MessageQuote, Quote: &QuoteMessage{
		Ticker:  u.Ticker,
		Price:   u.Price,
		Percent: u.Percent,
		Class:   string(u.Class),
	}})
}

// Overlay returns the overlay of a rendered container
func (s *Session) Overlay(container string) (*overlay.Overlay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	ov, ok := s.overlays[container]
	if !ok {
		return nil, fmt.Errorf("%w: %s", render.ErrUnknownContainer, container)
	}
	return ov, nil
}

// Dispatch delivers a pointer event from the browser to the chart engine
func (s *Session) Dispatch(ev render.Event) error {
	s.touch()
	return s.engine.Dispatch(ev)
}

// SetTheme switches every chart between the light and dark palettes
func (s *Session) SetTheme(theme chart.Theme) {
	s.mu.Lock()
	s.theme = theme
	s.mu.Unlock()

	for _, id := range s.engine.Containers() {
		if st, ok := s.engine.State(id); ok && st.Spec != nil {
			s.engine.Relayout(id, render.LayoutUpdate{Theme: theme})
		}
	}
}

// Close tears the session down. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.teardown()
	s.mu.Lock()
	s.sink = nil
	s.mu.Unlock()

	if s.search != nil {
		s.search.Close()
	}
	s.cancel()
}

// Closed reports whether Close has been called
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// searchView forwards search controller output to the session sink
type searchView struct {
	s *Session
}

func (v searchView) ShowSuggestions(rows []search.Row) {
	v.s.send(Message{Type: MessageSuggestions, Suggestions: rows})
}

func (v searchView) ShowNoResults(text string) {
	v.s.send(Message{Type: MessageNoResults, Text: text})
}

func (v searchView) Hide() {
	v.s.send(Message{Type: MessageHide})
}

func (v searchView) Highlight(index int) {
	v.s.send(Message{Type: MessageHighlight, Index: &index})
}

func (v searchView) Navigate(target string) {
	v.s.send(Message{Type: MessageNavigate, Target: target})
}
