package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"technical-analyst/chart"
	"technical-analyst/config"
	"technical-analyst/internal/app"
	"technical-analyst/internal/session"
	"technical-analyst/internal/settings"
	"technical-analyst/internal/views"
	"technical-analyst/models"
	"technical-analyst/observability"
	"technical-analyst/services"
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9.^=-]+$`)

// Handler handles HTTP requests
type Handler struct {
	app       *app.App
	cfg       *config.Config
	validator *settings.Validator
}

// NewHandler creates a new Handler
func NewHandler(application *app.App, cfg *config.Config) *Handler {
	return &Handler{app: application, cfg: cfg, validator: settings.NewValidator(nil)}
}

// page renders body inside the layout. A new page session is opened for the
// search box and live updates unless s is given.
func (h *Handler) page(w http.ResponseWriter, r *http.Request, status int, p views.Page, s *session.Session, body templ.Component) {
	if s == nil {
		s = h.app.Sessions().Create(h.app.Theme())
	}
	p.SessionID = s.ID()
	p.Theme = s.Theme()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := views.Layout(p, body).Render(r.Context(), w); err != nil {
		observability.WithContext(r.Context()).Error("failed to render page", "title", p.Title, "error", err)
	}
}

// HandleIndex serves the home page
func (h *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	h.page(w, r, http.StatusOK, views.Page{Title: "Home", Active: "home"}, nil, views.HomePage(h.app.Portfolios()))
}

// HandleAnalyse serves the analysis page of ?ticker over ?period. The page
// session navigates to the ticker so overlays and the live price loop are
// bound before the browser connects.
func (h *Handler) HandleAnalyse(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("ticker")))
	if ticker == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	p := views.Page{Title: ticker}
	if err := h.ValidateSymbol(ticker); err != nil {
		h.page(w, r, http.StatusBadRequest, p, nil, views.AnalyseError(ticker, err))
		return
	}

	s := h.app.Sessions().Create(h.app.Theme())
	report, err := s.Navigate(r.Context(), ticker, r.URL.Query().Get("period"))
	if err != nil {
		h.page(w, r, statusFor(err), p, s, views.AnalyseError(ticker, err))
		return
	}
	h.page(w, r, http.StatusOK, p, s, views.AnalysePage(report, views.SlotsFromEngine(s.Engine())))
}

// HandlePortfolio serves the quotes of ?market
func (h *Handler) HandlePortfolio(w http.ResponseWriter, r *http.Request) {
	p := views.Page{Title: "Portfolios", Active: "portfolio"}
	view, err := h.app.Portfolio(r.Context(), r.URL.Query().Get("market"))
	if err != nil {
		h.page(w, r, statusFor(err), p, nil, views.ErrorState(err.Error()))
		return
	}
	p.Title = view.Market.Label
	h.page(w, r, http.StatusOK, p, nil, views.PortfolioPage(view))
}

// HandleDashboard serves popular tickers with source and cache health
func (h *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	view := h.app.Dashboard(r.Context())
	h.page(w, r, http.StatusOK, views.Page{Title: "Dashboard", Active: "dashboard"}, nil, views.DashboardPage(view))
}

// HandleSettingsPage renders the settings page
func (h *Handler) HandleSettingsPage(w http.ResponseWriter, r *http.Request) {
	store := h.app.Settings()
	body := views.SettingsPage(store.Preferences(), store.MaskedCredentials())
	if isHTMXRequest(r) {
		h.htmlResponse(w, body, r)
		return
	}
	h.page(w, r, http.StatusOK, views.Page{Title: "Settings"}, nil, body)
}

// SearchResponse is the body of /api/search
type SearchResponse struct {
	Suggestions []models.SuggestionItem `json:"suggestions"`
}

// HandleSearch returns ticker suggestions for ?q, at most ?limit
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	items := h.app.Search(r.URL.Query().Get("q"))
	if limit := h.ParseLimitParam(r, len(items)); limit < len(items) {
		items = items[:limit]
	}
	if items == nil {
		items = []models.SuggestionItem{}
	}
	h.jsonResponse(w, SearchResponse{Suggestions: items})
}

// HandleQuote returns the latest quote, as an HTML fragment for HTMX requests
func (h *Handler) HandleQuote(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(chi.URLParam(r, "ticker"))
	if err := h.ValidateSymbol(ticker); err != nil {
		h.fail(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	q, err := h.app.Quote(r.Context(), ticker)
	if err != nil {
		h.fail(w, r, err.Error(), statusFor(err))
		return
	}

	if isHTMXRequest(r) {
		h.htmlResponse(w, views.QuoteFragment(q), r)
		return
	}
	h.jsonResponse(w, q)
}

// HandleChart returns one chart spec. A kind without a chart answers 204,
// an empty series 422.
func (h *Handler) HandleChart(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(chi.URLParam(r, "ticker"))
	if err := h.ValidateSymbol(ticker); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	kind, err := chart.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	spec, err := h.app.Chart(r.Context(), ticker, r.URL.Query().Get("period"), kind)
	switch {
	case errors.Is(err, chart.ErrNoChart):
		w.WriteHeader(http.StatusNoContent)
		return
	case errors.Is(err, chart.ErrEmptySeries):
		h.jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	case err != nil:
		h.jsonError(w, err.Error(), statusFor(err))
		return
	}
	h.jsonResponse(w, spec)
}

// HandleHealth returns the health status of the application
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := h.app.Health(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if health.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(health)
}

// HandleTestTicker runs a full fetch of one ticker for diagnostics
func (h *Handler) HandleTestTicker(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(chi.URLParam(r, "ticker"))
	if err := h.ValidateSymbol(ticker); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.jsonResponse(w, h.app.TestTicker(r.Context(), ticker))
}

// HandleClearCache drops every cached history, info and report
func (h *Handler) HandleClearCache(w http.ResponseWriter, r *http.Request) {
	n, err := h.app.ClearCache(r.Context())
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonResponse(w, map[string]interface{}{"status": "cleared", "entries": n})
}

// HandleGetPreferences returns the persisted preferences
func (h *Handler) HandleGetPreferences(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, h.app.Settings().Preferences())
}

// HandleUpdatePreferences saves the dark mode preference and re-themes every
// open session
func (h *Handler) HandleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req settings.Preferences
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.fail(w, r, "Invalid JSON request", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			h.fail(w, r, "Failed to parse form", http.StatusBadRequest)
			return
		}
		dark, err := strconv.ParseBool(r.FormValue("darkMode"))
		if err != nil {
			h.fail(w, r, "darkMode must be a boolean", http.StatusBadRequest)
			return
		}
		req.DarkMode = dark
	}

	if err := h.app.SetDarkMode(req.DarkMode); err != nil {
		h.fail(w, r, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonResponse(w, h.app.Settings().Preferences())
}

// HandleGetSettings returns masked provider credentials
func (h *Handler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	store := h.app.Settings()
	if isHTMXRequest(r) {
		h.htmlResponse(w, views.SettingsPage(store.Preferences(), store.MaskedCredentials()), r)
		return
	}
	h.jsonResponse(w, store.MaskedCredentials())
}

// HandleUpdateCredentials stores credentials for {service}. Blank fields keep
// their stored value. Data sources pick the change up on restart.
func (h *Handler) HandleUpdateCredentials(w http.ResponseWriter, r *http.Request) {
	service, err := settings.ParseService(chi.URLParam(r, "service"))
	if err != nil {
		h.fail(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	var req settings.Credentials
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.fail(w, r, "Invalid JSON request", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			h.fail(w, r, "Failed to parse form", http.StatusBadRequest)
			return
		}
		req.APIKey = r.FormValue("api_key")
		req.APISecret = r.FormValue("api_secret")
		req.BaseURL = r.FormValue("base_url")
		req.Feed = r.FormValue("feed")
	}
	req.Service = service

	store := h.app.Settings()
	if req.APIKey == "" && req.APISecret == "" && req.BaseURL == "" && req.Feed == "" {
		h.settingsResult(w, r, map[string]string{"status": "no changes", "service": string(service)})
		return
	}

	// Merge with existing credentials to preserve fields not being updated
	if existing := store.Credentials(service); existing != nil {
		if req.APIKey == "" {
			req.APIKey = existing.APIKey
		}
		if req.APISecret == "" {
			req.APISecret = existing.APISecret
		}
		if req.BaseURL == "" {
			req.BaseURL = existing.BaseURL
		}
		if req.Feed == "" {
			req.Feed = existing.Feed
		}
	}

	if err := store.SetCredentials(&req); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, settings.ErrInvalidCredentials) {
			status = http.StatusBadRequest
		}
		h.fail(w, r, err.Error(), status)
		return
	}
	h.settingsResult(w, r, map[string]string{"status": "saved", "service": string(service)})
}

// HandleTestCredentials checks the stored credentials of {service} against the provider
func (h *Handler) HandleTestCredentials(w http.ResponseWriter, r *http.Request) {
	service, err := settings.ParseService(chi.URLParam(r, "service"))
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	creds := h.app.Settings().Credentials(service)
	if creds == nil {
		h.jsonError(w, "Service not configured", http.StatusNotFound)
		return
	}

	result, err := h.validator.Validate(r.Context(), creds)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonResponse(w, result)
}

// HandleDeleteCredentials removes the credentials of {service}
func (h *Handler) HandleDeleteCredentials(w http.ResponseWriter, r *http.Request) {
	service, err := settings.ParseService(chi.URLParam(r, "service"))
	if err != nil {
		h.fail(w, r, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.app.Settings().DeleteCredentials(service); err != nil {
		h.fail(w, r, err.Error(), http.StatusInternalServerError)
		return
	}
	h.settingsResult(w, r, map[string]string{"status": "deleted", "service": string(service)})
}

func (h *Handler) settingsResult(w http.ResponseWriter, r *http.Request, result map[string]string) {
	if isHTMXRequest(r) {
		store := h.app.Settings()
		h.htmlResponse(w, views.SettingsPage(store.Preferences(), store.MaskedCredentials()), r)
		return
	}
	h.jsonResponse(w, result)
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrTickerNotFound), errors.Is(err, services.ErrNoData), errors.Is(err, app.ErrUnknownMarket):
		return http.StatusNotFound
	case errors.Is(err, services.ErrSourceUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	}
	return http.StatusInternalServerError
}

func isHTMXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// htmlResponse renders a templ component as HTML
func (h *Handler) htmlResponse(w http.ResponseWriter, component templ.Component, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	component.Render(r.Context(), w)
}

// htmlError renders an error state as HTML
func (h *Handler) htmlError(w http.ResponseWriter, message string, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	views.ErrorState(message).Render(r.Context(), w)
}

// fail answers with an inline error panel for HTMX requests and a JSON error otherwise
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, status int) {
	if isHTMXRequest(r) {
		h.htmlError(w, message, r)
		return
	}
	h.jsonError(w, message, status)
}

// ValidateSymbol validates a ticker symbol
func (h *Handler) ValidateSymbol(symbol string) error {
	return ValidateSymbol(symbol)
}

// ValidateSymbol reports whether symbol looks like an upper-case ticker
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol is required")
	}

	if len(symbol) > 12 {
		return fmt.Errorf("symbol too long (max 12 characters)")
	}

	if !symbolPattern.MatchString(symbol) {
		return fmt.Errorf("invalid symbol format (alphanumeric, dots, dashes, ^ and = only)")
	}

	return nil
}

// ParseLimitParam parses the limit query parameter
func (h *Handler) ParseLimitParam(r *http.Request, defaultLimit int) int {
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			return l
		}
	}
	return defaultLimit
}

func (h *Handler) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
