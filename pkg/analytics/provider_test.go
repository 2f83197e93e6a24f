package analytics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider()
	p.Set("2025-10-01", "2025-10-07", &Metrics{PageViews: 100})

	m, err := p.Fetch(context.Background(), "2025-10-01", "2025-10-07")
	require.NoError(t, err)
	assert.Equal(t, 100.0, m.PageViews)

	m, err = p.Fetch(context.Background(), "2025-11-01", "2025-11-07")
	require.NoError(t, err)
	assert.Nil(t, m)

	p.Err = errors.New("quota exceeded")
	_, err = p.Fetch(context.Background(), "2025-10-01", "2025-10-07")
	assert.Error(t, err)
	assert.Len(t, p.Calls(), 3)
}

func TestNewWithoutProvider(t *testing.T) {
	p, err := New(context.Background(), Config{})
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = New(context.Background(), Config{Provider: ProviderGA4})
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = New(context.Background(), Config{Provider: "mixpanel"})
	assert.Error(t, err)
}

func TestFormatDate(t *testing.T) {
	ts := time.Date(2025, 10, 29, 23, 30, 0, 0, time.FixedZone("PDT", -7*3600))
	assert.Equal(t, "2025-10-30", FormatDate(ts))
}

func TestInfluxQuery(t *testing.T) {
	q := influxQuery("b", "m", "2025-10-01T00:00:00Z", "2025-10-08T00:00:00Z", "sum", []string{"page_views", "sessions"})
	assert.True(t, strings.Contains(q, `r._field == "page_views" or r._field == "sessions"`))
	assert.True(t, strings.Contains(q, "|> sum()"))
	assert.True(t, strings.Contains(q, `range(start: 2025-10-01T00:00:00Z, stop: 2025-10-08T00:00:00Z)`))
}
