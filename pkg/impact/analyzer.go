// Package impact measures how storefront traffic moved around a config change.
package impact

import (
	"context"
	"fmt"
	"time"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/analytics"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/log"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/telemetry"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/types"
	"golang.org/x/sync/errgroup"
)

// Default window sizes in days.
const (
	DefaultDaysBefore = 7
	DefaultDaysAfter  = 7
)

// Window is an inclusive date range.
type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// PercentChange holds the relative movement of each metric.
type PercentChange struct {
	PageViews          float64 `json:"page_views"`
	Sessions           float64 `json:"sessions"`
	Users              float64 `json:"users"`
	BounceRate         float64 `json:"bounce_rate"`
	AvgSessionDuration float64 `json:"avg_session_duration"`
	ConversionRate     float64 `json:"conversion_rate"`
}

// Report compares traffic before and after a change.
type Report struct {
	ConfigKey       string             `json:"config_key"`
	ChangeTimestamp string             `json:"change_timestamp"`
	BeforeWindow    Window             `json:"before_window"`
	AfterWindow     Window             `json:"after_window"`
	BeforeMetrics   *analytics.Metrics `json:"before_metrics"`
	AfterMetrics    *analytics.Metrics `json:"after_metrics"`
	PercentChange   PercentChange      `json:"percent_change"`
}

// RecordSource resolves config records. configstore.Store satisfies it.
type RecordSource interface {
	Record(key string) (types.ConfigRecord, bool)
	Latest() (types.ConfigRecord, bool)
}

// Analyzer computes impact reports from a metrics provider.
type Analyzer struct {
	provider analytics.Provider
	records  RecordSource
	logger   log.Logger
	metrics  *telemetry.Metrics
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithRecords sets the record source used by MeasureLatest.
func WithRecords(r RecordSource) Option {
	return func(a *Analyzer) {
		a.records = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

// WithMetrics sets the operational metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(a *Analyzer) {
		a.metrics = m
	}
}

// NewAnalyzer creates an Analyzer. A nil provider makes every measurement
// report no data.
func NewAnalyzer(provider analytics.Provider, opts ...Option) *Analyzer {
	a := &Analyzer{
		provider: provider,
		logger:   log.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.WithComponent("impact-analyzer")
	return a
}

// Configured reports whether a provider is wired.
func (a *Analyzer) Configured() bool {
	return a.provider != nil
}

// Windows returns the before and after ranges for a change at t.
func Windows(t time.Time, daysBefore, daysAfter int) (Window, Window) {
	t = t.UTC()
	before := Window{
		Start: analytics.FormatDate(t.AddDate(0, 0, -daysBefore)),
		End:   analytics.FormatDate(t.AddDate(0, 0, -1)),
	}
	after := Window{
		Start: analytics.FormatDate(t),
		End:   analytics.FormatDate(t.AddDate(0, 0, daysAfter)),
	}
	return before, after
}

// Measure fetches both windows concurrently. It returns nil when the provider
// is missing, fails, or has no data for either window.
func (a *Analyzer) Measure(ctx context.Context, key string, changeTime time.Time, daysBefore, daysAfter int) (*Report, error) {
	if err := checkDays(daysBefore, daysAfter); err != nil {
		return nil, err
	}
	if a.provider == nil {
		return nil, nil
	}
	defer a.metrics.ObserveDuration("impact", time.Now())

	beforeWin, afterWin := Windows(changeTime, daysBefore, daysAfter)

	var before, after *analytics.Metrics
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := a.provider.Fetch(gctx, beforeWin.Start, beforeWin.End)
		before = m
		return err
	})
	g.Go(func() error {
		m, err := a.provider.Fetch(gctx, afterWin.Start, afterWin.End)
		after = m
		return err
	})
	if err := g.Wait(); err != nil {
		a.logger.Warn("Failed to fetch impact metrics", log.Str("key", key), log.Err(err))
		return nil, nil
	}
	if before == nil || after == nil {
		a.logger.Debug("Insufficient data to measure impact", log.Str("key", key))
		return nil, nil
	}

	return &Report{
		ConfigKey:       key,
		ChangeTimestamp: types.FormatTimestamp(changeTime),
		BeforeWindow:    beforeWin,
		AfterWindow:     afterWin,
		BeforeMetrics:   before,
		AfterMetrics:    after,
		PercentChange: PercentChange{
			PageViews:          Percent(before.PageViews, after.PageViews),
			Sessions:           Percent(before.Sessions, after.Sessions),
			Users:              Percent(before.Users, after.Users),
			BounceRate:         Percent(before.BounceRate, after.BounceRate),
			AvgSessionDuration: Percent(before.AvgSessionDuration, after.AvgSessionDuration),
			ConversionRate:     Percent(before.ConversionRate, after.ConversionRate),
		},
	}, nil
}

// MeasureLatest measures the change to key, or to the most recently updated
// record when key is empty.
func (a *Analyzer) MeasureLatest(ctx context.Context, key string, daysBefore, daysAfter int) (*Report, error) {
	if err := checkDays(daysBefore, daysAfter); err != nil {
		return nil, err
	}
	if a.records == nil {
		return nil, types.NewError(types.KindConfigurationMissing, "impact", "no config records available")
	}
	var (
		rec types.ConfigRecord
		ok  bool
	)
	if key == "" {
		rec, ok = a.records.Latest()
		if !ok {
			return nil, types.NewError(types.KindNotFound, "impact", "No configuration changes found")
		}
	} else {
		rec, ok = a.records.Record(key)
		if !ok {
			return nil, types.NewError(types.KindNotFound, "impact", "Config key not found: "+key)
		}
	}
	return a.Measure(ctx, rec.Key, rec.UpdatedAt, daysBefore, daysAfter)
}

func checkDays(daysBefore, daysAfter int) error {
	if daysBefore <= 0 || daysAfter <= 0 {
		return types.NewError(types.KindValidationFailed, "impact",
			fmt.Sprintf("window lengths must be positive (before=%d, after=%d)", daysBefore, daysAfter))
	}
	return nil
}

// Percent returns ((after-before)/before)*100, or 0 when before is 0.
func Percent(before, after float64) float64 {
	if before == 0 {
		return 0
	}
	return (after - before) / before * 100
}
