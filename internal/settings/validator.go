package settings

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultAlpacaDataURL is probed when credentials carry no base URL
const DefaultAlpacaDataURL = "https://data.alpaca.markets"

// ValidationResult is the outcome of probing a provider with stored credentials
type ValidationResult struct {
	Service  ServiceName   `json:"service"`
	Valid    bool          `json:"valid"`
	Message  string        `json:"message"`
	Duration time.Duration `json:"duration_ms"`
}

// Validator checks credentials against the provider's API
type Validator struct {
	client *http.Client
}

// NewValidator creates a validator; client may be nil
func NewValidator(client *http.Client) *Validator {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Validator{client: client}
}

// Validate probes the provider. Provider failures are reported in the result;
// the error is only for unusable input.
func (v *Validator) Validate(ctx context.Context, creds *Credentials) (*ValidationResult, error) {
	if creds == nil {
		return nil, errors.New("credentials cannot be nil")
	}

	start := time.Now()
	result := &ValidationResult{Service: creds.Service}

	var err error
	switch creds.Service {
	case ServiceAlpaca:
		err = v.validateAlpaca(ctx, creds)
	default:
		err = fmt.Errorf("%w: %s", ErrInvalidService, creds.Service)
	}

	result.Duration = time.Since(start)
	if err != nil {
		result.Message = err.Error()
		return result, nil
	}
	result.Valid = true
	result.Message = "Connection successful"
	return result, nil
}

func (v *Validator) validateAlpaca(ctx context.Context, creds *Credentials) error {
	if creds.APIKey == "" {
		return errors.New("API key is required")
	}
	if creds.APISecret == "" {
		return errors.New("API secret is required")
	}

	baseURL := strings.TrimRight(creds.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultAlpacaDataURL
	}
	feed := creds.Feed
	if feed == "" {
		feed = "iex"
	}

	q := url.Values{"symbols": {"AAPL"}, "feed": {feed}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v2/stocks/bars/latest?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("APCA-API-KEY-ID", creds.APIKey)
	req.Header.Set("APCA-API-SECRET-KEY", creds.APISecret)

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errors.New("invalid API credentials")
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}
