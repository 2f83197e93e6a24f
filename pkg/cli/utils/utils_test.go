package utils

import (
	"testing"
	"time"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAssignments(t *testing.T) {
	got, err := ParseAssignments([]string{"seo.title=Lab Essentials", "theme.color=#003366", "hero.subtitle=a=b", "empty="})
	require.NoError(t, err)
	assert.Equal(t, []types.KeyValue{
		{Key: "seo.title", Value: "Lab Essentials"},
		{Key: "theme.color", Value: "#003366"},
		{Key: "hero.subtitle", Value: "a=b"},
		{Key: "empty", Value: ""},
	}, got)

	_, err = ParseAssignments([]string{"novalue"})
	assert.Error(t, err)
	_, err = ParseAssignments([]string{"=x"})
	assert.Error(t, err)
}

func TestParseSince(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"7d", 7 * 24 * time.Hour, false},
		{"36h", 36 * time.Hour, false},
		{"90m", 90 * time.Minute, false},
		{"-1d", 0, true},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSince(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatAge(t *testing.T) {
	now := time.Date(2025, 10, 28, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "unknown", FormatAge(time.Time{}, now))
	assert.Equal(t, "just now", FormatAge(now.Add(-10*time.Second), now))
	assert.Equal(t, "5m", FormatAge(now.Add(-5*time.Minute), now))
	assert.Equal(t, "3h", FormatAge(now.Add(-3*time.Hour), now))
	assert.Equal(t, "2d", FormatAge(now.Add(-49*time.Hour), now))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcdefg...", Truncate("abcdefghijklmnop", 10))
}
