package types

import (
	"strings"
	"time"
)

// TimestampLayout is how updated_at values are written to the store table.
// It matches the ISO-8601 form with millisecond precision and a Z suffix.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ConfigRecord is one versioned entry in the configuration store.
type ConfigRecord struct {
	Key       string    `json:"key" yaml:"key"`
	Value     string    `json:"value" yaml:"value"`
	Version   int       `json:"version" yaml:"version"`
	UpdatedBy string    `json:"updated_by" yaml:"updated_by"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Category returns the first dotted segment of the key ("seo" for "seo.siteUrl").
func (r ConfigRecord) Category() string {
	if i := strings.Index(r.Key, "."); i > 0 {
		return r.Key[:i]
	}
	return r.Key
}

// FormatTimestamp renders t in the store's timestamp layout (UTC).
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a store timestamp. RFC3339 values with or without
// fractional seconds are accepted.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
}

// UpdateResult is returned by a config update.
type UpdateResult struct {
	Success         bool         `json:"success"`
	Record          ConfigRecord `json:"record"`
	PreviousVersion int          `json:"previous_version"`
	Error           string       `json:"error,omitempty"`
}

// KeyValue is one entry of a batch update.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// BatchResult is returned by a batch update.
type BatchResult struct {
	Success bool           `json:"success"`
	Count   int            `json:"count"`
	Records []ConfigRecord `json:"records,omitempty"`
	Error   string         `json:"error,omitempty"`
}
