// Package analytics fetches storefront traffic metrics for a date range from
// an external analytics backend.
package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DateLayout is the YYYY-MM-DD form every provider accepts.
const DateLayout = "2006-01-02"

// PageStat is one row of the top pages report.
type PageStat struct {
	Page          string  `json:"page"`
	Views         int64   `json:"views"`
	AvgTimeOnPage float64 `json:"avg_time_on_page"`
}

// Metrics are the aggregated values for one date range.
type Metrics struct {
	PageViews          float64    `json:"page_views"`
	Sessions           float64    `json:"sessions"`
	Users              float64    `json:"users"`
	BounceRate         float64    `json:"bounce_rate"`
	AvgSessionDuration float64    `json:"avg_session_duration"`
	ConversionRate     float64    `json:"conversion_rate"`
	TopPages           []PageStat `json:"top_pages,omitempty"`
}

// Provider fetches metrics for the inclusive range [start, end]. It returns
// nil and no error when the range has no data.
type Provider interface {
	Fetch(ctx context.Context, start, end string) (*Metrics, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider string       `yaml:"provider" mapstructure:"provider"`
	GA4      GA4Config    `yaml:"ga4" mapstructure:"ga4"`
	Influx   InfluxConfig `yaml:"influx" mapstructure:"influx"`
}

// Provider names.
const (
	ProviderGA4    = "ga4"
	ProviderInflux = "influx"
)

// New opens the provider named by cfg, or returns nil when none is configured.
func New(ctx context.Context, cfg Config) (Provider, error) {
	switch cfg.Provider {
	case ProviderGA4:
		if cfg.GA4.PropertyID == "" {
			return nil, nil
		}
		p, err := NewGA4Provider(ctx, cfg.GA4)
		if err != nil {
			return nil, err
		}
		return p, nil
	case ProviderInflux:
		if cfg.Influx.URL == "" {
			return nil, nil
		}
		return NewInfluxProvider(cfg.Influx), nil
	case "":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown analytics provider: %s", cfg.Provider)
}

// FormatDate renders t as YYYY-MM-DD in UTC.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// StaticProvider serves fixed metrics per range. It backs tests and offline
// demos.
type StaticProvider struct {
	mu      sync.Mutex
	windows map[string]*Metrics
	calls   []string

	// Err, when set, is returned by every Fetch.
	Err error
}

// NewStaticProvider creates an empty static provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{windows: make(map[string]*Metrics)}
}

// Set registers the metrics returned for [start, end].
func (s *StaticProvider) Set(start, end string, m *Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows[start+"/"+end] = m
}

// Fetch returns the registered metrics, or nil when none are set.
func (s *StaticProvider) Fetch(ctx context.Context, start, end string) (*Metrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, start+"/"+end)
	if s.Err != nil {
		return nil, s.Err
	}
	m, ok := s.windows[start+"/"+end]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

// Calls returns the ranges requested so far.
func (s *StaticProvider) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}
