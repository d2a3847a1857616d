package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"technical-analyst/chart"
	"technical-analyst/config"
	"technical-analyst/internal/app"
	"technical-analyst/internal/client"
	"technical-analyst/internal/session"
	"technical-analyst/internal/settings"
	"technical-analyst/models"
	"technical-analyst/observability"
	"technical-analyst/services"
)

// testConfig returns a test configuration
func testConfig() *config.Config {
	return config.NewTestConfig()
}

// testApp creates an App over the mock source with a file-backed settings store
func testApp(t *testing.T) *app.App {
	t.Helper()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	fetcher := services.NewFetcher(services.DefaultFetcherConfig, nil, nil, metrics, services.NewMockSource())
	store, err := settings.NewStore(t.TempDir(), "test-passphrase")
	if err != nil {
		t.Fatalf("failed to create settings store: %v", err)
	}
	a := app.New(testConfig(), fetcher, nil, store, app.Options{
		Breakers: services.NewCircuitBreakerRegistry(services.DefaultCircuitBreakerConfig),
		Metrics:  metrics,
	})
	t.Cleanup(func() { a.Shutdown(context.Background()) })
	return a
}

// testRouter creates a Chi router with test config for testing
func testRouter(application *app.App) http.Handler {
	cfg := testConfig()
	handler := NewHandler(application, cfg)
	return NewRouter(handler, cfg)
}

func do(t *testing.T, router http.Handler, method, target string, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

var sessionAttr = regexp.MustCompile(`data-session="([^"]+)"`)

func TestHandler_Pages(t *testing.T) {
	a := testApp(t)
	router := testRouter(a)

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantBody   []string
	}{
		{"index", "/", http.StatusOK, []string{"Technical Analyst", "/portefeuille?market=US"}},
		{"index.html", "/index.html", http.StatusOK, []string{"Technical Analyst"}},
		{"analyse", "/analyse?ticker=aapl&period=3mo", http.StatusOK, []string{"<h1>AAPL</h1>", `id="price-chart-spec"`, `id="rsi-chart"`}},
		{"analyse bad symbol", "/analyse?ticker=A$B", http.StatusBadRequest, []string{"invalid symbol format"}},
		{"portfolio default", "/portefeuille", http.StatusOK, []string{`class="quotes"`}},
		{"portfolio unknown", "/portefeuille?market=MARS", http.StatusNotFound, []string{"error-panel"}},
		{"dashboard", "/dashboard", http.StatusOK, []string{"<h1>Dashboard</h1>", "mock"}},
		{"settings", "/settings", http.StatusOK, []string{"<h1>Settings</h1>", "Not configured"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodGet, tt.target, "")
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
				t.Errorf("Content-Type = %s, want text/html", ct)
			}
			for _, want := range tt.wantBody {
				if !strings.Contains(w.Body.String(), want) {
					t.Errorf("body missing %q", want)
				}
			}
			if !sessionAttr.MatchString(w.Body.String()) {
				t.Error("page carries no session id")
			}
		})
	}
}

func TestHandler_AnalyseRedirect(t *testing.T) {
	w := do(t, testRouter(testApp(t)), http.MethodGet, "/analyse", "")
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/" {
		t.Errorf("status = %d location = %q, want redirect to /", w.Code, w.Header().Get("Location"))
	}
}

func TestHandler_AnalyseOpensSession(t *testing.T) {
	a := testApp(t)
	w := do(t, testRouter(a), http.MethodGet, "/analyse?ticker=MSFT", "")

	m := sessionAttr.FindStringSubmatch(w.Body.String())
	if m == nil {
		t.Fatal("no session id in page")
	}
	s, ok := a.Sessions().Get(m[1])
	if !ok {
		t.Fatalf("session %s not found", m[1])
	}
	if s.Ticker() != "MSFT" || s.Period() != models.DefaultPeriod {
		t.Errorf("session at %s/%s, want MSFT/%s", s.Ticker(), s.Period(), models.DefaultPeriod)
	}
	if !s.Polling() {
		t.Error("live price loop not started")
	}
}

func TestHandler_Search(t *testing.T) {
	router := testRouter(testApp(t))

	tests := []struct {
		target    string
		wantFirst string
		wantMax   int
	}{
		{"/api/search?q=aap", "AAPL", 10},
		{"/api/search?q=a", "", 0},
		{"/api/search?q=a&limit=1", "", 0},
		{"/api/search?q=micro&limit=1", "MSFT", 1},
	}

	for _, tt := range tests {
		w := do(t, router, http.MethodGet, tt.target, "")
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d", tt.target, w.Code)
			continue
		}
		var resp SearchResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Errorf("%s: invalid JSON %q", tt.target, w.Body.String())
			continue
		}
		items := resp.Suggestions
		if items == nil {
			t.Errorf("%s: body = null, want a list", tt.target)
		}
		if len(items) > tt.wantMax {
			t.Errorf("%s: %d items, want at most %d", tt.target, len(items), tt.wantMax)
		}
		if tt.wantFirst != "" && (len(items) == 0 || items[0].Ticker != tt.wantFirst) {
			t.Errorf("%s: items = %v, want first %s", tt.target, items, tt.wantFirst)
		}
	}
}

func TestHandler_SearchWithClient(t *testing.T) {
	srv := httptest.NewServer(testRouter(testApp(t)))
	defer srv.Close()

	c := client.New(srv.URL, nil)

	items, err := c.Search(context.Background(), "aap")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(items) == 0 || items[0].Ticker != "AAPL" {
		t.Errorf("Search(aap) = %+v, want AAPL first", items)
	}

	items, err = c.Search(context.Background(), "zzzzzz")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Errorf("Search(zzzzzz) = %#v, want empty list", items)
	}

	q, err := c.Quote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}
	if q.Symbol != "AAPL" {
		t.Errorf("Quote().Symbol = %s, want AAPL", q.Symbol)
	}
}

func TestHandler_Quote(t *testing.T) {
	router := testRouter(testApp(t))

	t.Run("json", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/api/quote/aapl", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var q models.Quote
		if err := json.Unmarshal(w.Body.Bytes(), &q); err != nil {
			t.Fatal(err)
		}
		if q.Symbol != "AAPL" || q.Price <= 0 {
			t.Errorf("quote = %+v", q)
		}
	})

	t.Run("htmx fragment", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/api/quote/AAPL", "", "HX-Request", "true")
		if !strings.Contains(w.Header().Get("Content-Type"), "text/html") {
			t.Errorf("Content-Type = %s", w.Header().Get("Content-Type"))
		}
		if !strings.Contains(w.Body.String(), `data-ticker="AAPL"`) {
			t.Errorf("body = %s", w.Body.String())
		}
	})

	t.Run("invalid symbol", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/api/quote/TOOLONGSYMBOL1", "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestHandler_Chart(t *testing.T) {
	router := testRouter(testApp(t))

	tests := []struct {
		target     string
		wantStatus int
	}{
		{"/api/chart/AAPL", http.StatusOK},
		{"/api/chart/AAPL?kind=rsi&period=1y", http.StatusOK},
		{"/api/chart/AAPL?kind=macd", http.StatusOK},
		{"/api/chart/AAPL?kind=volume", http.StatusBadRequest},
		{"/api/chart/a$b", http.StatusBadRequest},
	}

	for _, tt := range tests {
		w := do(t, router, http.MethodGet, tt.target, "")
		if w.Code != tt.wantStatus {
			t.Errorf("%s: status = %d, want %d", tt.target, w.Code, tt.wantStatus)
			continue
		}
		if tt.wantStatus != http.StatusOK {
			continue
		}
		var spec chart.Spec
		if err := json.Unmarshal(w.Body.Bytes(), &spec); err != nil {
			t.Errorf("%s: invalid spec: %v", tt.target, err)
			continue
		}
		if len(spec.Traces) == 0 {
			t.Errorf("%s: spec has no traces", tt.target)
		}
	}
}

func TestHandler_System(t *testing.T) {
	a := testApp(t)
	router := testRouter(a)

	w := do(t, router, http.MethodGet, "/api/system/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", w.Code)
	}
	var health app.Health
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "ok" || health.Services["settings"] != "file" {
		t.Errorf("health = %+v", health)
	}

	w = do(t, router, http.MethodGet, "/api/test/nvda", "")
	var check app.TickerCheck
	if err := json.Unmarshal(w.Body.Bytes(), &check); err != nil {
		t.Fatal(err)
	}
	if !check.OK || check.Ticker != "NVDA" {
		t.Errorf("ticker check = %+v", check)
	}

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		w = do(t, router, method, "/api/system/clear_cache", "")
		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"cleared"`) {
			t.Errorf("%s clear_cache = %d %s", method, w.Code, w.Body.String())
		}
	}
}

func TestHandler_Preferences(t *testing.T) {
	a := testApp(t)
	router := testRouter(a)
	s := a.Sessions().Create(a.Theme())

	w := do(t, router, http.MethodPut, "/api/preferences", `{"darkMode": true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d: %s", w.Code, w.Body.String())
	}
	if !a.Settings().DarkMode() {
		t.Error("preference not saved")
	}
	if s.Theme() != chart.ThemeDark {
		t.Errorf("open session theme = %v, want dark", s.Theme())
	}

	w = do(t, router, http.MethodGet, "/api/preferences", "")
	if strings.TrimSpace(w.Body.String()) != `{"darkMode":true}` {
		t.Errorf("GET body = %s", w.Body.String())
	}

	w = do(t, router, http.MethodPut, "/api/preferences", `{"darkMode": "maybe"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid body status = %d, want 400", w.Code)
	}
}

func TestHandler_Credentials(t *testing.T) {
	a := testApp(t)
	router := testRouter(a)

	w := do(t, router, http.MethodPut, "/api/settings/credentials/alpaca", `{"api_key": "PKTEST1234", "api_secret": "secret-5678"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d: %s", w.Code, w.Body.String())
	}

	// blank fields keep their stored value
	w = do(t, router, http.MethodPut, "/api/settings/credentials/alpaca", `{"feed": "sip"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("merge PUT status = %d", w.Code)
	}
	creds := a.Settings().Credentials(settings.ServiceAlpaca)
	if creds == nil || creds.APIKey != "PKTEST1234" || creds.Feed != "sip" {
		t.Errorf("stored credentials = %+v", creds)
	}

	w = do(t, router, http.MethodGet, "/api/settings/", "")
	if strings.Contains(w.Body.String(), "PKTEST1234") || !strings.Contains(w.Body.String(), "****1234") {
		t.Errorf("GET settings not masked: %s", w.Body.String())
	}

	w = do(t, router, http.MethodPut, "/api/settings/credentials/openai", `{"api_key": "x"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown service status = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodDelete, "/api/settings/credentials/alpaca", "")
	if w.Code != http.StatusOK || a.Settings().IsConfigured(settings.ServiceAlpaca) {
		t.Errorf("DELETE status = %d configured = %v", w.Code, a.Settings().IsConfigured(settings.ServiceAlpaca))
	}

	w = do(t, router, http.MethodPost, "/api/settings/credentials/alpaca/test", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("test unconfigured status = %d, want 404", w.Code)
	}
}

func TestHandler_Overlay(t *testing.T) {
	a := testApp(t)
	router := testRouter(a)
	s := a.Sessions().Create(a.Theme())
	if _, err := s.Navigate(context.Background(), "AAPL", "6mo"); err != nil {
		t.Fatal(err)
	}
	base := "/api/session/" + s.ID() + "/overlay/"

	w := do(t, router, http.MethodPost, base+"last", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("last without click = %d, want 404", w.Code)
	}

	w = do(t, router, http.MethodPost, base+"hline", `{"value": 150}`)
	if w.Code != http.StatusOK {
		t.Fatalf("hline status = %d: %s", w.Code, w.Body.String())
	}
	var got struct {
		Container string        `json:"container"`
		Shapes    []chart.Shape `json:"shapes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Container != "price-chart" || len(got.Shapes) != 1 {
		t.Errorf("hline result = %+v", got)
	}

	w = do(t, router, http.MethodPost, base+"vline", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("vline without date = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodPost, base+"export", `{"container": "rsi-chart"}`)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Errorf("export = %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("export body is not a PNG")
	}

	w = do(t, router, http.MethodPost, base+"clear", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"shapes":[]`) {
		t.Errorf("clear = %d %s", w.Code, w.Body.String())
	}

	tests := []struct {
		target     string
		body       string
		wantStatus int
	}{
		{"/api/session/nope/overlay/clear", "", http.StatusNotFound},
		{base + "clear", `{"container": "volume-chart"}`, http.StatusNotFound},
		{base + "rotate", "", http.StatusNotFound},
		{base + "hline", `{"value":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if w := do(t, router, http.MethodPost, tt.target, tt.body); w.Code != tt.wantStatus {
			t.Errorf("POST %s %s = %d, want %d", tt.target, tt.body, w.Code, tt.wantStatus)
		}
	}
}

func TestHandler_SessionSocket(t *testing.T) {
	a := testApp(t)
	srv := httptest.NewServer(testRouter(a))
	defer srv.Close()

	s := a.Sessions().Create(a.Theme())
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/session/" + s.ID()

	if _, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/session/missing", nil); err == nil {
		t.Error("dial to unknown session succeeded")
	} else if resp != nil && resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want 404", resp.StatusCode)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}

	if err := conn.WriteJSON(map[string]string{"type": "input", "value": "aap"}); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg session.Message
	for msg.Type != session.MessageSuggestions {
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("no suggestions received: %v", err)
		}
	}
	if len(msg.Suggestions) == 0 || msg.Suggestions[0].Ticker != "AAPL" {
		t.Errorf("suggestions = %+v", msg.Suggestions)
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := a.Sessions().Get(s.ID()); !ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("session still open after socket closed")
}

func TestHandler_SessionSocketClick(t *testing.T) {
	a := testApp(t)
	srv := httptest.NewServer(testRouter(a))
	defer srv.Close()
	router := testRouter(a)

	s := a.Sessions().Create(a.Theme())
	if _, err := s.Navigate(context.Background(), "AAPL", "6mo"); err != nil {
		t.Fatal(err)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/session/"+s.ID(), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	click := `{"type":"event","event":{"type":"click","container":"price-chart","x":"2024-06-28","y":182.5}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(click)); err != nil {
		t.Fatal(err)
	}

	base := "/api/session/" + s.ID() + "/overlay/"
	var w *httptest.ResponseRecorder
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w = do(t, router, http.MethodPost, base+"last", ""); w.Code == http.StatusOK {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if w.Code != http.StatusOK {
		t.Fatalf("last after click = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "2024-06-28") || !strings.Contains(w.Body.String(), "182.5") {
		t.Errorf("last = %s", w.Body.String())
	}

	w = do(t, router, http.MethodPost, base+"vline", "")
	if w.Code != http.StatusOK {
		t.Errorf("vline from clicked point = %d: %s", w.Code, w.Body.String())
	}
}

func TestValidateSymbol(t *testing.T) {
	h := NewHandler(nil, testConfig())

	tests := []struct {
		symbol  string
		wantErr bool
	}{
		{"AAPL", false},
		{"MC.PA", false},
		{"BTC-USD", false},
		{"^FCHI", false},
		{"EURUSD=X", false},
		{"", true},
		{"aapl", true},
		{"A B", true},
		{"ABCDEFGHIJKLM", true},
	}

	for _, tt := range tests {
		if err := h.ValidateSymbol(tt.symbol); (err != nil) != tt.wantErr {
			t.Errorf("ValidateSymbol(%q) error = %v, wantErr %v", tt.symbol, err, tt.wantErr)
		}
	}
}

func TestParseLimitParam(t *testing.T) {
	h := NewHandler(nil, testConfig())

	tests := []struct {
		query string
		want  int
	}{
		{"", 10},
		{"?limit=3", 3},
		{"?limit=0", 10},
		{"?limit=-2", 10},
		{"?limit=abc", 10},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/search"+tt.query, nil)
		if got := h.ParseLimitParam(req, 10); got != tt.want {
			t.Errorf("ParseLimitParam(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}
