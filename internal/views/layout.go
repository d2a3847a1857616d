// Package views renders the dashboard pages and HTMX fragments as templ components.
package views

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"technical-analyst/chart"
)

// Page carries what every page needs besides its body
type Page struct {
	Title     string
	Theme     chart.Theme
	SessionID string
	Active    string
}

var navItems = []struct {
	Key, Href, Label string
}{
	{"home", "/", "Home"},
	{"portfolio", "/portefeuille", "Portfolios"},
	{"dashboard", "/dashboard", "Dashboard"},
}

// writer accumulates the first write error so markup can be emitted without
// checking every call
type writer struct {
	w   io.Writer
	err error
}

func (w *writer) raw(parts ...string) {
	for _, p := range parts {
		if w.err != nil {
			return
		}
		_, w.err = io.WriteString(w.w, p)
	}
}

func (w *writer) text(s string) {
	w.raw(templ.EscapeString(s))
}

func (w *writer) textf(format string, args ...any) {
	w.text(fmt.Sprintf(format, args...))
}

func (w *writer) attr(name, value string) {
	w.raw(" ", name, `="`, templ.EscapeString(value), `"`)
}

func (w *writer) component(ctx context.Context, c templ.Component) {
	if w.err != nil || c == nil {
		return
	}
	w.err = c.Render(ctx, w.w)
}

// Layout wraps body in the page shell: head, theme class, navigation and
// the search box bound to the page session.
func Layout(p Page, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		theme := p.Theme
		if theme == "" {
			theme = chart.ThemeLight
		}
		pal := theme.Palette()

		w.raw("<!DOCTYPE html>\n<html lang=\"en\"")
		w.attr("data-theme", string(theme))
		w.raw("><head><meta charset=\"utf-8\"><meta name=\"viewport\" content=\"width=device-width, initial-scale=1\"><title>")
		w.text(p.Title)
		w.raw(" | Technical Analyst</title>")
		w.raw("<script src=\"https://unpkg.com/htmx.org@1.9.12\"></script>")
		w.raw("<script src=\"https://cdn.plot.ly/plotly-2.35.2.min.js\"></script>")
		w.raw("<style>body{background:", pal.Paper, ";color:", pal.Font, ";font-family:system-ui,sans-serif;margin:0}",
			".nav{display:flex;gap:1rem;padding:.75rem 1.5rem;border-bottom:1px solid ", pal.Grid, "}",
			".nav a.active{font-weight:600}.main{padding:1.5rem}",
			".positive{color:#26a69a}.negative{color:#ef5350}.neutral{color:inherit}",
			".error-panel{border:1px solid #ef5350;padding:1rem;border-radius:4px}",
			".suggestions{position:absolute;background:", pal.Paper, ";border:1px solid ", pal.Grid, "}",
			".suggestions .highlighted{background:", pal.Grid, "}</style>")
		w.raw("</head><body")
		w.attr("class", "theme-"+string(theme))
		w.attr("data-session", p.SessionID)
		w.raw("><nav class=\"nav\">")
		for _, item := range navItems {
			w.raw("<a")
			w.attr("href", item.Href)
			if item.Key == p.Active {
				w.attr("class", "active")
			}
			w.raw(">")
			w.text(item.Label)
			w.raw("</a>")
		}
		w.raw("<div class=\"search\"><input id=\"search-input\" type=\"search\" autocomplete=\"off\" placeholder=\"Search a ticker\">",
			"<div id=\"suggestions\" class=\"suggestions\" hidden></div></div>")
		w.raw("<label class=\"theme-toggle\"><input id=\"dark-mode\" type=\"checkbox\"")
		if theme == chart.ThemeDark {
			w.raw(" checked")
		}
		w.raw("> Dark mode</label></nav><main class=\"main\">")
		w.component(ctx, body)
		w.raw("</main>")
		w.raw(sessionScript)
		w.raw("</body></html>")
		return w.err
	})
}

// sessionScript connects the page to its session websocket. The server owns
// every behaviour; the browser only forwards input and applies messages.
const sessionScript = `<script>
(function(){
  var sid = document.body.dataset.session;
  var input = document.getElementById("search-input");
  var panel = document.getElementById("suggestions");
  var dark = document.getElementById("dark-mode");
  dark.addEventListener("change", function(){
    fetch("/api/preferences", {method:"PUT", headers:{"Content-Type":"application/json"}, body: JSON.stringify({darkMode: dark.checked})})
      .then(function(){ location.reload(); });
  });
  document.querySelectorAll("[data-chart-container]").forEach(function(el){
    var src = document.getElementById(el.id + "-spec");
    if (!src) return;
    var spec = JSON.parse(src.textContent);
    el.plotted = Plotly.newPlot(el, spec.traces, spec.layout, spec.config);
  });
  if (!sid) return;
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var ws = new WebSocket(proto + location.host + "/ws/session/" + sid);
  function send(m){ if (ws.readyState === 1) ws.send(JSON.stringify(m)); }
  input.addEventListener("input", function(){ send({type:"input", value: input.value}); });
  input.addEventListener("keydown", function(e){
    if (["Enter","Escape","ArrowDown","ArrowUp"].indexOf(e.key) >= 0) { e.preventDefault(); send({type:"key", key: e.key}); }
  });
  document.addEventListener("click", function(e){ if (!panel.contains(e.target) && e.target !== input) send({type:"dismiss"}); });
  document.querySelectorAll("[data-chart-container]").forEach(function(el){
    var id = el.id;
    el.addEventListener("dblclick", function(){ send({type:"event", event:{type:"dblclick", container:id}}); });
    el.addEventListener("wheel", function(e){ send({type:"event", event:{type:"wheel", container:id, delta:e.deltaY}}); }, {passive:true});
    if (!el.plotted) return;
    el.plotted.then(function(gd){
      gd.on("plotly_click", function(d){
        var p = d.points && d.points[0];
        if (!p) return;
        var y = Number(p.y !== undefined ? p.y : p.close);
        send({type:"event", event:{type:"click", container:id, x:String(p.x), y:isNaN(y) ? 0 : y}});
      });
    });
  });
  ws.onmessage = function(ev){
    var m = JSON.parse(ev.data);
    switch (m.type) {
    case "suggestions":
      panel.innerHTML = "";
      m.suggestions.forEach(function(r){
        var row = document.createElement("div");
        row.className = "suggestion"; row.dataset.index = r.index;
        row.textContent = r.ticker + " " + r.name + " " + r.market;
        row.addEventListener("mouseenter", function(){ send({type:"hover", index:r.index}); });
        row.addEventListener("click", function(){ send({type:"select", index:r.index}); });
        panel.appendChild(row);
      });
      panel.hidden = false; break;
    case "no_results":
      panel.textContent = m.text; panel.hidden = false; break;
    case "hide":
      panel.hidden = true; break;
    case "highlight":
      panel.querySelectorAll(".suggestion").forEach(function(r){ r.classList.toggle("highlighted", Number(r.dataset.index) === m.index); });
      break;
    case "navigate":
      location.href = m.target; break;
    case "quote":
      var p = document.getElementById("live-price"), c = document.getElementById("live-change");
      if (p) p.textContent = m.quote.price;
      if (c) { c.textContent = m.quote.percent; c.className = m.quote.class; }
      break;
    case "chart":
      var el = document.getElementById(m.container);
      if (!el) break;
      if (m.state.error) { el.innerHTML = "<div class='error-panel'></div>"; el.firstChild.textContent = m.state.error; }
      else if (m.state.spec) { Plotly.react(el, m.state.spec.traces, m.state.spec.layout, m.state.spec.config); }
      else if (m.state.disposed) { Plotly.purge(el); }
      break;
    }
  };
})();
</script>`

// ErrorState renders an inline error panel
func ErrorState(message string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.raw(`<div class="error-panel" role="alert">`)
		w.text(message)
		w.raw(`</div>`)
		return w.err
	})
}

func joinClasses(classes ...string) string {
	out := classes[:0:0]
	for _, c := range classes {
		if c != "" {
			out = append(out, c)
		}
	}
	return strings.Join(out, " ")
}
