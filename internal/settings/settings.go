// Package settings persists user preferences and market-data credentials in an
// encrypted file.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"technical-analyst/observability"
)

var (
	// ErrInvalidService is returned for credentials of an unknown service
	ErrInvalidService = errors.New("unknown service")
	// ErrInvalidCredentials is returned for incomplete credentials
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ServiceName identifies a market-data provider that takes credentials
type ServiceName string

const (
	ServiceAlpaca ServiceName = "alpaca"
)

// KnownServices lists every service credentials can be stored for
var KnownServices = []ServiceName{ServiceAlpaca}

// ParseService validates a service name from a request
func ParseService(s string) (ServiceName, error) {
	for _, known := range KnownServices {
		if string(known) == s {
			return known, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidService, s)
}

// Preferences are the user's display preferences
type Preferences struct {
	DarkMode bool `json:"darkMode"`
}

// Credentials holds the key pair for one provider
type Credentials struct {
	Service   ServiceName `json:"service"`
	APIKey    string      `json:"api_key,omitempty"`
	APISecret string      `json:"api_secret,omitempty"`
	BaseURL   string      `json:"base_url,omitempty"`
	Feed      string      `json:"feed,omitempty"`
}

// Validate checks the credentials are complete
func (c *Credentials) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil", ErrInvalidCredentials)
	}
	if _, err := ParseService(string(c.Service)); err != nil {
		return err
	}
	if c.APIKey == "" || c.APISecret == "" {
		return fmt.Errorf("%w: API key and secret are required", ErrInvalidCredentials)
	}
	return nil
}

// MaskedCredentials is Credentials with the secrets masked
type MaskedCredentials struct {
	Service      ServiceName `json:"service"`
	APIKey       string      `json:"api_key,omitempty"`
	APISecret    string      `json:"api_secret,omitempty"`
	BaseURL      string      `json:"base_url,omitempty"`
	Feed         string      `json:"feed,omitempty"`
	IsConfigured bool        `json:"is_configured"`
}

// Settings is the persisted document
type Settings struct {
	Preferences Preferences                  `json:"preferences"`
	Credentials map[ServiceName]*Credentials `json:"credentials"`
}

func newDefaultSettings() *Settings {
	return &Settings{
		Credentials: make(map[ServiceName]*Credentials),
	}
}

// Store manages the settings document. A Store without a file path keeps
// everything in memory.
type Store struct {
	mu       sync.RWMutex
	filePath string
	settings *Settings
	crypto   *Crypto
}

// NewStore opens the store in dataDir, defaulting to ~/.technical-analyst.
// An unreadable existing file is logged and replaced by defaults on next save.
func NewStore(dataDir string, passphrase string) (*Store, error) {
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".technical-analyst")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create settings directory: %w", err)
	}

	crypto, err := NewCrypto(passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize crypto: %w", err)
	}

	store := &Store{
		filePath: filepath.Join(dataDir, "settings.enc"),
		crypto:   crypto,
		settings: newDefaultSettings(),
	}

	if err := store.load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		observability.Warn("failed to load settings, using defaults", "path", store.filePath, "error", err)
	}

	return store, nil
}

// NewMemoryStore creates a store that never touches disk
func NewMemoryStore() *Store {
	return &Store{settings: newDefaultSettings()}
}

// Path returns the backing file, empty for a memory store
func (s *Store) Path() string {
	return s.filePath
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	decrypted, err := s.crypto.Decrypt(data)
	if err != nil {
		return fmt.Errorf("failed to decrypt settings: %w", err)
	}

	settings := newDefaultSettings()
	if err := json.Unmarshal(decrypted, settings); err != nil {
		return fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	if settings.Credentials == nil {
		settings.Credentials = make(map[ServiceName]*Credentials)
	}

	s.settings = settings
	return nil
}

// Save persists settings to the encrypted file
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.filePath == "" {
		return nil
	}

	data, err := json.Marshal(s.settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	encrypted, err := s.crypto.Encrypt(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt settings: %w", err)
	}

	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, encrypted, 0600); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		return fmt.Errorf("failed to replace settings file: %w", err)
	}

	return nil
}

// Preferences returns the display preferences
func (s *Store) Preferences() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.Preferences
}

// DarkMode reports the theme preference
func (s *Store) DarkMode() bool {
	return s.Preferences().DarkMode
}

// SetPreferences replaces and persists the display preferences
func (s *Store) SetPreferences(p Preferences) error {
	s.mu.Lock()
	s.settings.Preferences = p
	s.mu.Unlock()

	return s.Save()
}

// SetDarkMode persists the theme preference
func (s *Store) SetDarkMode(dark bool) error {
	s.mu.Lock()
	s.settings.Preferences.DarkMode = dark
	s.mu.Unlock()

	return s.Save()
}

// Credentials returns a copy of the credentials for service, nil when absent
func (s *Store) Credentials(service ServiceName) *Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.settings.Credentials[service]; ok {
		cp := *c
		return &cp
	}
	return nil
}

// SetCredentials validates and stores credentials
func (s *Store) SetCredentials(c *Credentials) error {
	if err := c.Validate(); err != nil {
		return err
	}

	cp := *c
	s.mu.Lock()
	s.settings.Credentials[c.Service] = &cp
	s.mu.Unlock()

	return s.Save()
}

// DeleteCredentials removes the credentials for service
func (s *Store) DeleteCredentials(service ServiceName) error {
	s.mu.Lock()
	delete(s.settings.Credentials, service)
	s.mu.Unlock()

	return s.Save()
}

// IsConfigured reports whether service has an API key stored
func (s *Store) IsConfigured(service ServiceName) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.settings.Credentials[service]
	return ok && c.APIKey != ""
}

// MaskedCredentials returns every known service with secrets masked
func (s *Store) MaskedCredentials() map[ServiceName]*MaskedCredentials {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[ServiceName]*MaskedCredentials, len(KnownServices))
	for _, service := range KnownServices {
		masked := &MaskedCredentials{Service: service}
		if c, ok := s.settings.Credentials[service]; ok {
			masked.APIKey = maskString(c.APIKey)
			masked.APISecret = maskString(c.APISecret)
			masked.BaseURL = c.BaseURL
			masked.Feed = c.Feed
			masked.IsConfigured = c.APIKey != "" || c.APISecret != ""
		}
		result[service] = masked
	}
	return result
}

// maskString masks a string showing only the last 4 characters
func maskString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}
