// Package livepoll refreshes the displayed price of a ticker on a fixed interval.
package livepoll

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"technical-analyst/format"
	"technical-analyst/models"
	"technical-analyst/observability"
)

// DefaultInterval between quote refreshes
const DefaultInterval = 30 * time.Second

// Class is the colour class applied to the change field
type Class string

const (
	ClassPositive Class = "positive"
	ClassNegative Class = "negative"
	ClassNeutral  Class = "neutral"
)

// ClassFor maps a change to its colour class; zero is neutral
func ClassFor(changePercent float64) Class {
	switch {
	case changePercent > 0:
		return ClassPositive
	case changePercent < 0:
		return ClassNegative
	default:
		return ClassNeutral
	}
}

// QuoteFetcher returns the latest quote for a ticker
type QuoteFetcher interface {
	Quote(ctx context.Context, ticker string) (*models.Quote, error)
}

// Update is what a successful tick displays
type Update struct {
	Ticker  string
	Price   string
	Percent string
	Class   Class
	Quote   models.Quote
}

// Display receives price updates
type Display interface {
	ShowQuote(u Update)
}

// DisplayFunc adapts a function to Display
type DisplayFunc func(Update)

// ShowQuote calls f(u)
func (f DisplayFunc) ShowQuote(u Update) { f(u) }

// NewUpdate formats q for display
func NewUpdate(ticker string, q models.Quote) Update {
	return Update{
		Ticker:  ticker,
		Price:   format.Price(decimal.NewFromFloat(q.Price)),
		Percent: format.Percent(q.ChangePercent),
		Class:   ClassFor(q.ChangePercent),
		Quote:   q,
	}
}

// Poller fetches one quote per interval until stopped
type Poller struct {
	fetcher  QuoteFetcher
	display  Display
	ticker   string
	interval time.Duration
	metrics  *observability.Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a poller for ticker; a non-positive interval uses DefaultInterval
func New(fetcher QuoteFetcher, display Display, ticker string, interval time.Duration, metrics *observability.Metrics) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if metrics == nil {
		metrics = observability.GetMetrics()
	}
	return &Poller{
		fetcher:  fetcher,
		display:  display,
		ticker:   ticker,
		interval: interval,
		metrics:  metrics,
	}
}

// Ticker returns the ticker being polled
func (p *Poller) Ticker() string { return p.ticker }

// Start begins polling in the background; the first fetch happens one
// interval after Start. Starting a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(p.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.Tick(ctx)
		}
	}
}

// Stop cancels polling and waits for the loop to exit. Safe to call more than once.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is active
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done != nil
}

// Tick performs one fetch. A failure is logged and leaves the display as it was.
func (p *Poller) Tick(ctx context.Context) bool {
	q, err := p.fetcher.Quote(ctx, p.ticker)
	if err != nil || q == nil {
		if ctx.Err() != nil {
			return false
		}
		p.metrics.RecordLivePollTick("error")
		observability.WithTicker(p.ticker).Warn("live price refresh failed", "error", err)
		return false
	}
	p.metrics.RecordLivePollTick("ok")
	p.display.ShowQuote(NewUpdate(p.ticker, *q))
	return true
}
