package analytics

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
)

// InfluxConfig configures the InfluxDB provider. Traffic is expected as one
// measurement with page_views, sessions, users, bounce_rate,
// avg_session_duration and conversion_rate fields.
type InfluxConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	Token       string `yaml:"token" mapstructure:"token"`
	Org         string `yaml:"org" mapstructure:"org"`
	Bucket      string `yaml:"bucket" mapstructure:"bucket"`
	Measurement string `yaml:"measurement" mapstructure:"measurement"`
}

// InfluxProvider aggregates traffic points stored in InfluxDB.
type InfluxProvider struct {
	client influxdb2.Client
	cfg    InfluxConfig
}

// NewInfluxProvider creates a client. Call Close when done.
func NewInfluxProvider(cfg InfluxConfig) *InfluxProvider {
	if cfg.Bucket == "" {
		cfg.Bucket = "storefront-analytics"
	}
	if cfg.Measurement == "" {
		cfg.Measurement = "storefront_traffic"
	}
	return &InfluxProvider{client: influxdb2.NewClient(cfg.URL, cfg.Token), cfg: cfg}
}

// Close releases the client.
func (p *InfluxProvider) Close() {
	p.client.Close()
}

// influxQuery builds a Flux query aggregating fields over [start, end] days.
func influxQuery(bucket, measurement, start, stop, fn string, fields []string) string {
	filter := ""
	for i, f := range fields {
		if i > 0 {
			filter += " or "
		}
		filter += fmt.Sprintf(`r._field == "%s"`, f)
	}
	return fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: %s, stop: %s)
		  |> filter(fn: (r) => r._measurement == "%s")
		  |> filter(fn: (r) => %s)
		  |> group(columns: ["_field"])
		  |> %s()
	`, bucket, start, stop, measurement, filter, fn)
}

// Fetch sums count fields and averages rate fields over [start, end].
func (p *InfluxProvider) Fetch(ctx context.Context, start, end string) (*Metrics, error) {
	startT, err := time.Parse(DateLayout, start)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	endT, err := time.Parse(DateLayout, end)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	rangeStart := startT.Format(time.RFC3339)
	rangeStop := endT.AddDate(0, 0, 1).Format(time.RFC3339)

	queryAPI := p.client.QueryAPI(p.cfg.Org)
	values := make(map[string]float64)

	for fn, fields := range map[string][]string{
		"sum":  {"page_views", "sessions", "users"},
		"mean": {"bounce_rate", "avg_session_duration", "conversion_rate"},
	} {
		result, err := queryAPI.Query(ctx, influxQuery(p.cfg.Bucket, p.cfg.Measurement, rangeStart, rangeStop, fn, fields))
		if err != nil {
			return nil, fmt.Errorf("InfluxDB query failed: %w", err)
		}
		for result.Next() {
			record := result.Record()
			if v, ok := toFloat(record.Value()); ok {
				values[record.Field()] = v
			}
		}
		if result.Err() != nil {
			return nil, fmt.Errorf("error reading InfluxDB results: %w", result.Err())
		}
		result.Close()
	}

	if len(values) == 0 {
		return nil, nil
	}
	return &Metrics{
		PageViews:          values["page_views"],
		Sessions:           values["sessions"],
		Users:              values["users"],
		BounceRate:         values["bounce_rate"],
		AvgSessionDuration: values["avg_session_duration"],
		ConversionRate:     values["conversion_rate"],
	}, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
