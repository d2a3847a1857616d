// Package search implements the ticker search box: debounced suggestion
// lookups, keyboard and pointer highlight, and navigation to the analysis page.
package search

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"technical-analyst/models"
	"technical-analyst/observability"
)

// DefaultDebounce is the quiet time after the last keystroke before searching
const DefaultDebounce = 300 * time.Millisecond

// MinQueryLength is the shortest trimmed query that triggers a search
const MinQueryLength = 2

// NoResultsText is shown when a search returns nothing
const NoResultsText = "No results"

// State of the suggestion panel
type State int

const (
	Idle State = iota
	Debouncing
	Showing
)

func (s State) String() string {
	switch s {
	case Debouncing:
		return "debouncing"
	case Showing:
		return "showing"
	default:
		return "idle"
	}
}

// Keys handled by Key
const (
	KeyEnter     = "Enter"
	KeyEscape    = "Escape"
	KeyArrowDown = "ArrowDown"
	KeyArrowUp   = "ArrowUp"
)

// Searcher looks up suggestions
type Searcher interface {
	Search(ctx context.Context, query string) ([]models.SuggestionItem, error)
}

// Row is one suggestion with its position in the panel
type Row struct {
	Index  int    `json:"index"`
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
	Market string `json:"market"`
}

// View renders the controller's output
type View interface {
	ShowSuggestions(rows []Row)
	ShowNoResults(text string)
	Hide()
	Highlight(index int)
	Navigate(target string)
}

// Timer is a pending callback
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Config holds controller settings
type Config struct {
	Debounce time.Duration
	Period   string
	Clock    Clock
	Metrics  *observability.Metrics
}

// AnalyseURL is the deep link to the analysis page; the ticker is upper-cased
func AnalyseURL(ticker, period string) string {
	if period == "" {
		period = models.DefaultPeriod
	}
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	return "/analyse?ticker=" + url.QueryEscape(ticker) + "&period=" + url.QueryEscape(period)
}

// Controller is the search-suggestion state machine
type Controller struct {
	searcher Searcher
	view     View
	clock    Clock
	debounce time.Duration
	metrics  *observability.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	state     State
	value     string
	period    string
	timer     Timer
	gen       uint64 // bumps on every keystroke so a stopped timer that already fired is ignored
	seq       uint64 // latest issued request
	rows      []Row
	highlight int
}

// New creates a controller
func New(searcher Searcher, view View, cfg Config) *Controller {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	if cfg.Period == "" {
		cfg.Period = models.DefaultPeriod
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.GetMetrics()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		searcher:  searcher,
		view:      view,
		clock:     cfg.Clock,
		debounce:  cfg.Debounce,
		metrics:   cfg.Metrics,
		ctx:       ctx,
		cancel:    cancel,
		period:    cfg.Period,
		highlight: -1,
	}
}

// Input records a keystroke and restarts the debounce timer
func (c *Controller) Input(value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = value
	c.stopTimerLocked()
	c.gen++
	gen := c.gen
	c.timer = c.clock.AfterFunc(c.debounce, func() { c.fire(gen) })
	c.state = Debouncing
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) fire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	query := strings.TrimSpace(c.value)
	if len([]rune(query)) < MinQueryLength {
		c.resetLocked()
		c.mu.Unlock()
		c.metrics.RecordSearch("skipped")
		c.view.Hide()
		return
	}
	c.seq++
	seq := c.seq
	c.wg.Add(1)
	c.mu.Unlock()

	c.metrics.RecordSearch("issued")
	go c.run(seq, query)
}

func (c *Controller) run(seq uint64, query string) {
	defer c.wg.Done()

	items, err := c.searcher.Search(c.ctx, query)
	if err != nil {
		if c.ctx.Err() != nil {
			return
		}
		observability.Warn("search suggestions failed", "query", query, "error", err)
		c.metrics.RecordSearch("error")
		items = nil
	}

	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		c.metrics.RecordSearch("stale")
		observability.Debug("discarding stale suggestions", "query", query, "seq", seq)
		return
	}
	rows := make([]Row, len(items))
	for i, it := range items {
		rows[i] = Row{Index: i, Ticker: it.Ticker, Name: it.Name, Market: it.Market}
	}
	c.rows = rows
	c.highlight = -1
	c.state = Showing
	c.mu.Unlock()

	if len(rows) == 0 {
		c.view.ShowNoResults(NoResultsText)
		return
	}
	c.view.ShowSuggestions(rows)
}

// resetLocked returns to Idle and drops anything in flight; callers hold mu
func (c *Controller) resetLocked() {
	c.stopTimerLocked()
	c.gen++
	c.seq++
	c.state = Idle
	c.rows = nil
	c.highlight = -1
}

// Key handles a key press in the search box
func (c *Controller) Key(key string) {
	switch key {
	case KeyEnter:
		c.Enter()
	case KeyEscape:
		c.Dismiss()
	case KeyArrowDown:
		c.moveHighlight(1)
	case KeyArrowUp:
		c.moveHighlight(-1)
	}
}

// Enter navigates to the analysis page for the typed ticker, skipping the debounce
func (c *Controller) Enter() {
	c.mu.Lock()
	ticker := strings.ToUpper(strings.TrimSpace(c.value))
	period := c.period
	c.resetLocked()
	c.mu.Unlock()

	c.view.Hide()
	if ticker == "" {
		return
	}
	c.view.Navigate(AnalyseURL(ticker, period))
}

// Dismiss handles Escape and clicks outside the box: back to Idle
func (c *Controller) Dismiss() {
	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()
	c.view.Hide()
}

func (c *Controller) moveHighlight(delta int) {
	c.mu.Lock()
	if c.state != Showing || len(c.rows) == 0 {
		c.mu.Unlock()
		return
	}
	h := c.highlight + delta
	if h >= len(c.rows) {
		h = len(c.rows) - 1
	}
	if h < -1 {
		h = -1
	}
	c.highlight = h
	c.mu.Unlock()
	c.view.Highlight(h)
}

// Hover highlights the row under the pointer
func (c *Controller) Hover(index int) {
	c.mu.Lock()
	if c.state != Showing || index < 0 || index >= len(c.rows) {
		c.mu.Unlock()
		return
	}
	c.highlight = index
	c.mu.Unlock()
	c.view.Highlight(index)
}

// Select navigates to the ticker of row index
func (c *Controller) Select(index int) bool {
	c.mu.Lock()
	if index < 0 || index >= len(c.rows) {
		c.mu.Unlock()
		return false
	}
	ticker := c.rows[index].Ticker
	period := c.period
	c.value = ticker
	c.resetLocked()
	c.mu.Unlock()

	c.view.Hide()
	c.view.Navigate(AnalyseURL(ticker, period))
	return true
}

// SelectHighlighted selects the highlighted row, if any
func (c *Controller) SelectHighlighted() bool {
	c.mu.Lock()
	h := c.highlight
	c.mu.Unlock()
	return c.Select(h)
}

// SetPeriod changes the period used for navigation
func (c *Controller) SetPeriod(period string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if period != "" {
		c.period = period
	}
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Rows returns the rows on display
func (c *Controller) Rows() []Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Row(nil), c.rows...)
}

// Highlighted returns the highlighted row index, -1 for none
func (c *Controller) Highlighted() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.highlight
}

// Wait blocks until in-flight searches have finished
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Flush runs a pending debounced search immediately and waits for every
// in-flight search to finish
func (c *Controller) Flush() {
	c.mu.Lock()
	pending := c.timer != nil
	c.stopTimerLocked()
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	if pending {
		c.fire(gen)
	}
	c.wg.Wait()
}

// Close stops the timer and cancels in-flight searches
func (c *Controller) Close() {
	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}
