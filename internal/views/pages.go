package views

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/a-h/templ"

	"technical-analyst/chart"
	"technical-analyst/config"
	"technical-analyst/format"
	"technical-analyst/internal/analysis"
	"technical-analyst/internal/app"
	"technical-analyst/internal/livepoll"
	"technical-analyst/internal/render"
	"technical-analyst/internal/session"
	"technical-analyst/internal/settings"
	"technical-analyst/models"
)

// analyseHref links a ticker to its analysis page
func analyseHref(ticker, period string) string {
	q := url.Values{}
	q.Set("ticker", ticker)
	if period != "" {
		q.Set("period", period)
	}
	return "/analyse?" + q.Encode()
}

// HomePage lists the portfolio markets, the popular tickers and the periods
func HomePage(portfolios *config.Portfolios) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.raw(`<h1>Technical Analyst</h1><section class="markets"><h2>Markets</h2><ul>`)
		for _, m := range portfolios.Markets {
			w.raw(`<li><a`)
			w.attr("href", "/portefeuille?market="+url.QueryEscape(m.Key))
			w.raw(`>`)
			w.text(m.Label)
			w.raw(`</a> `)
			w.textf("(%d)", len(m.Tickers))
			w.raw(`</li>`)
		}
		w.raw(`</ul></section><section class="popular"><h2>Popular</h2><ul>`)
		for _, ticker := range portfolios.Popular {
			w.raw(`<li><a`)
			w.attr("href", analyseHref(ticker, ""))
			w.raw(`>`)
			w.text(ticker)
			w.raw(`</a>`)
			if h, _, ok := portfolios.Lookup(ticker); ok {
				w.raw(` `)
				w.text(h.Name)
			}
			w.raw(`</li>`)
		}
		w.raw(`</ul></section><section class="periods"><h2>Periods</h2><ul>`)
		for _, p := range models.Periods() {
			w.raw(`<li`)
			w.attr("data-period", p.Key)
			w.raw(`>`)
			w.text(p.Label)
			w.raw(`</li>`)
		}
		w.raw(`</ul></section>`)
		return w.err
	})
}

// AnalysePage renders the stats header, signal badges and one container per
// chart kind. Built charts are embedded as JSON, failed ones as an error panel.
func AnalysePage(report *analysis.Report, charts []ChartSlot) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		st := report.Stats

		w.raw(`<header class="analysis-header"><h1>`)
		w.text(report.Ticker)
		w.raw(`</h1>`)
		if st.Company != "" {
			w.raw(`<p class="company">`)
			w.text(st.Company)
			w.raw(`</p>`)
		}
		w.raw(`<p class="price"><span id="live-price">`)
		w.textf("%.2f", st.LastPrice)
		w.raw(`</span> <span id="live-change"`)
		w.attr("class", string(livepoll.ClassFor(st.Change1D)))
		w.raw(`>`)
		w.text(format.Percent(st.Change1D))
		w.raw(`</span></p></header>`)

		w.raw(`<nav class="periods">`)
		for _, p := range models.ChartPeriods() {
			w.raw(`<a`)
			w.attr("href", analyseHref(report.Ticker, p.Key))
			if p.Key == report.Period.Key {
				w.attr("class", "active")
			}
			w.raw(`>`)
			w.text(p.Label)
			w.raw(`</a>`)
		}
		w.raw(`</nav>`)

		w.component(ctx, statsTable(st))
		w.component(ctx, signalList(report.Signals))

		w.raw(`<section class="charts">`)
		for _, slot := range charts {
			w.component(ctx, ChartContainer(slot))
		}
		w.raw(`</section>`)
		return w.err
	})
}

// AnalyseError is the analysis page body when the report could not be built
func AnalyseError(ticker string, err error) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.raw(`<h1>`)
		w.text(ticker)
		w.raw(`</h1>`)
		w.component(ctx, ErrorState(fmt.Sprintf("Could not analyse %s: %v", ticker, err)))
		return w.err
	})
}

type statRow struct {
	label, value string
}

func statsTable(st models.Stats) templ.Component {
	rows := []statRow{
		{"Last date", st.LastDate},
		{"Volume", format.Volume(st.Volume)},
		{"Avg volume", format.Volume(st.AvgVolume)},
		{"RSI", format.Number(st.RSI)},
		{"MA 20", format.Number(st.MA20)},
		{"MA 50", format.Number(st.MA50)},
		{"MA 200", format.Number(st.MA200)},
		{"ATR", format.Number(st.ATR)},
		{"Stoch %K", format.Number(st.StochK)},
		{"Stoch %D", format.Number(st.StochD)},
		{"Volatility", format.Percent(st.Volatility)},
		{"52w high", format.Float(st.High52W)},
		{"52w low", format.Float(st.Low52W)},
		{"Data points", fmt.Sprint(st.DataPoints)},
	}
	if st.Sector != "" {
		rows = append(rows, statRow{"Sector", st.Sector})
	}
	if st.Currency != "" {
		rows = append(rows, statRow{"Currency", st.Currency})
	}
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.raw(`<table class="stats"><tbody>`)
		for _, r := range rows {
			w.raw(`<tr><th>`)
			w.text(r.label)
			w.raw(`</th><td>`)
			w.text(r.value)
			w.raw(`</td></tr>`)
		}
		w.raw(`</tbody></table>`)
		return w.err
	})
}

func signalList(signals []models.Signal) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		if len(signals) == 0 {
			return nil
		}
		w.raw(`<ul class="signals">`)
		for _, s := range signals {
			w.raw(`<li`)
			w.attr("class", joinClasses("signal", "signal-"+string(s.Level)))
			w.raw(`><strong>`)
			w.text(s.Title)
			w.raw(`</strong>`)
			if s.Value != nil {
				w.raw(` <span class="value">`)
				w.text(format.Number(s.Value))
				w.raw(`</span>`)
			}
			w.raw(` <span class="description">`)
			w.text(s.Description)
			w.raw(`</span></li>`)
		}
		w.raw(`</ul>`)
		return w.err
	})
}

// ChartSlot is what one chart container shows: a spec, an error text, or
// nothing when the kind has no chart
type ChartSlot struct {
	Kind  chart.Kind
	Spec  *chart.Spec
	Error string
}

// SlotsFromEngine reads the chart containers of a session engine
func SlotsFromEngine(engine *render.Recorder) []ChartSlot {
	slots := make([]ChartSlot, 0, len(chart.Kinds))
	for _, kind := range chart.Kinds {
		slot := ChartSlot{Kind: kind}
		if st, ok := engine.State(kind.ContainerID()); ok {
			slot.Spec, slot.Error = st.Spec, st.Error
		}
		slots = append(slots, slot)
	}
	return slots
}

// SlotsFromResults turns freshly built charts into slots
func SlotsFromResults(results []analysis.ChartResult) []ChartSlot {
	slots := make([]ChartSlot, 0, len(results))
	for _, res := range results {
		slot := ChartSlot{Kind: res.Kind, Spec: res.Spec}
		switch {
		case res.Err == nil:
		case errors.Is(res.Err, chart.ErrNoChart):
			slot.Spec = nil
		case errors.Is(res.Err, chart.ErrEmptySeries):
			slot.Spec, slot.Error = nil, res.Err.Error()
		default:
			slot.Spec, slot.Error = nil, session.RenderFailedText
		}
		slots = append(slots, slot)
	}
	return slots
}

// ChartContainer renders one chart slot. A slot with neither spec nor error
// renders nothing.
func ChartContainer(slot ChartSlot) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		if slot.Spec == nil && slot.Error == "" {
			return nil
		}
		w := &writer{w: out}
		id := slot.Kind.ContainerID()
		w.raw(`<div data-chart-container`)
		w.attr("id", id)
		w.attr("class", "chart chart-"+string(slot.Kind))
		w.raw(`>`)
		if slot.Error != "" {
			w.component(ctx, ErrorState(slot.Error))
		}
		w.raw(`</div>`)
		if slot.Error == "" {
			w.component(ctx, templ.JSONScript(id+"-spec", slot.Spec))
		}
		return w.err
	})
}

// PortfolioPage renders the market tabs and the quote table
func PortfolioPage(view *app.PortfolioView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.raw(`<h1>`)
		w.text(view.Market.Label)
		w.raw(`</h1><nav class="markets">`)
		for _, key := range view.Markets {
			w.raw(`<a`)
			w.attr("href", "/portefeuille?market="+url.QueryEscape(key))
			if key == view.Market.Key {
				w.attr("class", "active")
			}
			w.raw(`>`)
			w.text(key)
			w.raw(`</a>`)
		}
		w.raw(`</nav>`)
		w.component(ctx, quoteTable(view.Rows))
		return w.err
	})
}

// DashboardPage renders popular tickers, source health and cache stats
func DashboardPage(view *app.DashboardView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.raw(`<h1>Dashboard</h1><section><h2>Popular</h2>`)
		w.component(ctx, quoteTable(view.Popular))
		w.raw(`</section><section><h2>Sources</h2><table class="sources"><thead><tr>`,
			`<th>Source</th><th>Priority</th><th>Status</th><th>Successes</th><th>Errors</th></tr></thead><tbody>`)
		for _, s := range view.Sources {
			status := "available"
			switch {
			case !s.Enabled:
				status = "disabled"
			case !s.Available:
				status = "unavailable"
			}
			w.raw(`<tr><td>`)
			w.text(s.Name)
			w.raw(`</td><td>`)
			w.textf("%d", s.Priority)
			w.raw(`</td><td`)
			w.attr("class", "status-"+status)
			w.raw(`>`)
			w.text(status)
			w.raw(`</td><td>`)
			w.textf("%d", s.Successes)
			w.raw(`</td><td>`)
			w.textf("%d", s.Errors)
			w.raw(`</td></tr>`)
		}
		w.raw(`</tbody></table></section><section><h2>Cache</h2><p class="cache">`)
		w.textf("%s: %d/%d entries, %d memory hits, %d store hits, %d misses",
			view.Cache.Backend, view.Cache.MemoryEntries, view.Cache.MemoryCapacity,
			view.Cache.MemoryHits, view.Cache.StoreHits, view.Cache.Misses)
		w.raw(`</p><p class="sessions">`)
		w.textf("%d open sessions", view.Sessions)
		w.raw(`</p></section>`)
		return w.err
	})
}

func quoteTable(rows []app.QuoteRow) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.raw(`<table class="quotes"><thead><tr><th>Ticker</th><th>Name</th><th>Price</th><th>Change</th><th>Volume</th></tr></thead><tbody>`)
		for _, r := range rows {
			w.raw(`<tr><td><a`)
			w.attr("href", analyseHref(r.Ticker, ""))
			w.raw(`>`)
			w.text(r.Ticker)
			w.raw(`</a></td><td>`)
			w.text(r.Name)
			w.raw(`</td>`)
			if r.Quote == nil {
				w.raw(`<td colspan="3" class="row-error">`)
				w.text(r.Error)
				w.raw(`</td></tr>`)
				continue
			}
			w.raw(`<td>`)
			w.textf("%.2f", r.Quote.Price)
			w.raw(`</td><td`)
			w.attr("class", string(livepoll.ClassFor(r.Quote.ChangePercent)))
			w.raw(`>`)
			w.text(format.Percent(r.Quote.ChangePercent))
			w.raw(`</td><td>`)
			w.text(format.Volume(r.Quote.Volume))
			w.raw(`</td></tr>`)
		}
		w.raw(`</tbody></table>`)
		return w.err
	})
}

// QuoteFragment is the HTMX fragment returned by /api/quote/{ticker}
func QuoteFragment(q *models.Quote) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.raw(`<span class="quote"`)
		w.attr("data-ticker", q.Symbol)
		w.raw(`><span class="price">`)
		w.textf("%.2f", q.Price)
		w.raw(`</span> <span`)
		w.attr("class", string(livepoll.ClassFor(q.ChangePercent)))
		w.raw(`>`)
		w.text(format.Percent(q.ChangePercent))
		w.raw(`</span></span>`)
		return w.err
	})
}

// SettingsPage shows the preference toggle and the masked provider credentials
func SettingsPage(prefs settings.Preferences, creds map[settings.ServiceName]*settings.MaskedCredentials) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.raw(`<h1>Settings</h1><section><h2>Display</h2><p>Dark mode: `)
		if prefs.DarkMode {
			w.raw(`on`)
		} else {
			w.raw(`off`)
		}
		w.raw(`</p></section><section><h2>Data providers</h2>`)
		for _, svc := range settings.KnownServices {
			c := creds[svc]
			w.raw(`<form class="credentials" hx-put="/api/settings/credentials/`)
			w.text(string(svc))
			w.raw(`" hx-swap="none"><h3>`)
			w.text(string(svc))
			w.raw(`</h3>`)
			if c != nil && c.IsConfigured {
				w.raw(`<p class="configured">Key `)
				w.text(c.APIKey)
				w.raw(`</p>`)
			} else {
				w.raw(`<p class="not-configured">Not configured</p>`)
			}
			w.raw(`<input name="api_key" placeholder="API key"><input name="api_secret" type="password" placeholder="API secret">`,
				`<input name="base_url" placeholder="Data URL"><input name="feed" placeholder="Feed">`,
				`<button type="submit">Save</button></form>`)
		}
		w.raw(`</section>`)
		return w.err
	})
}
