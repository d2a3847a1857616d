// Package client talks to the dashboard's JSON API for search suggestions and quotes.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"technical-analyst/models"
)

// MinQueryLength is the shortest trimmed query that is sent to the server
const MinQueryLength = 2

// DefaultTimeout bounds a single request when no http.Client is supplied
const DefaultTimeout = 10 * time.Second

// Client is a thin wrapper over /api/search and /api/quote. It never retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the server at baseURL; httpClient may be nil
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type searchResponse struct {
	Suggestions []models.SuggestionItem `json:"suggestions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Search returns suggestions for query. Queries shorter than MinQueryLength
// after trimming return an empty list without a request.
func (c *Client) Search(ctx context.Context, query string) ([]models.SuggestionItem, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < MinQueryLength {
		return []models.SuggestionItem{}, nil
	}

	var resp searchResponse
	if err := c.get(ctx, "/api/search?"+url.Values{"q": {query}}.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("failed to search %q: %w", query, err)
	}
	if resp.Suggestions == nil {
		resp.Suggestions = []models.SuggestionItem{}
	}
	return resp.Suggestions, nil
}

// Quote returns the latest quote for ticker
func (c *Client) Quote(ctx context.Context, ticker string) (*models.Quote, error) {
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return nil, fmt.Errorf("ticker is required")
	}

	var q models.Quote
	if err := c.get(ctx, "/api/quote/"+url.PathEscape(ticker), &q); err != nil {
		return nil, fmt.Errorf("failed to fetch quote for %s: %w", ticker, err)
	}
	return &q, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("server returned status %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
