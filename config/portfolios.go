package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed portfolios.yaml
var defaultPortfolios []byte

// Holding is one ticker listed in a portfolio
type Holding struct {
	Ticker string `yaml:"ticker"`
	Name   string `yaml:"name"`
}

// Market is a named group of holdings
type Market struct {
	Key     string    `yaml:"key"`
	Label   string    `yaml:"label"`
	Tickers []Holding `yaml:"tickers"`
}

// Portfolios is the catalogue shown on the home and portfolio pages
type Portfolios struct {
	Markets []Market `yaml:"markets"`
	Popular []string `yaml:"popular"`
}

// LoadPortfolios reads the catalogue from path, or the embedded default when path is empty
func LoadPortfolios(path string) (*Portfolios, error) {
	data := defaultPortfolios
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read portfolios file: %w", err)
		}
	}
	return ParsePortfolios(data)
}

// ParsePortfolios decodes and validates a YAML catalogue
func ParsePortfolios(data []byte) (*Portfolios, error) {
	var p Portfolios
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse portfolios: %w", err)
	}
	if len(p.Markets) == 0 {
		return nil, fmt.Errorf("portfolios must define at least one market")
	}

	seen := make(map[string]bool, len(p.Markets))
	for i := range p.Markets {
		m := &p.Markets[i]
		m.Key = strings.ToUpper(strings.TrimSpace(m.Key))
		if m.Key == "" {
			return nil, fmt.Errorf("market %d has no key", i)
		}
		if seen[m.Key] {
			return nil, fmt.Errorf("duplicate market %q", m.Key)
		}
		seen[m.Key] = true
		if m.Label == "" {
			m.Label = m.Key
		}
		for j := range m.Tickers {
			m.Tickers[j].Ticker = strings.ToUpper(strings.TrimSpace(m.Tickers[j].Ticker))
		}
	}
	for i := range p.Popular {
		p.Popular[i] = strings.ToUpper(strings.TrimSpace(p.Popular[i]))
	}

	return &p, nil
}

// Market returns the market with key, matched case-insensitively
func (p *Portfolios) Market(key string) (Market, bool) {
	key = strings.ToUpper(strings.TrimSpace(key))
	for _, m := range p.Markets {
		if m.Key == key {
			return m, true
		}
	}
	return Market{}, false
}

// Default returns the first market in the catalogue
func (p *Portfolios) Default() Market {
	return p.Markets[0]
}

// Lookup finds the holding for ticker in any market
func (p *Portfolios) Lookup(ticker string) (Holding, string, bool) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	for _, m := range p.Markets {
		for _, h := range m.Tickers {
			if h.Ticker == ticker {
				return h, m.Key, true
			}
		}
	}
	return Holding{}, "", false
}
