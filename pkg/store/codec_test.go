package store

import (
	"testing"
	"time"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeWritesHeaderInColumnOrder(t *testing.T) {
	data, err := Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, "key,value,updated_by,updated_at,version\n", string(data))
}

func TestEncodeDecodePreservesAwkwardValues(t *testing.T) {
	ts := time.Date(2025, 10, 29, 15, 0, 0, 123_000_000, time.UTC)
	in := []types.ConfigRecord{
		{Key: "seo.description", Value: "Lab gear, \"fast\" shipping\nworldwide", Version: 2, UpdatedBy: "ops@example.com", UpdatedAt: ts},
		{Key: "features.enabled", Value: "true", Version: 1, UpdatedBy: "system", UpdatedAt: ts},
	}

	data, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, in[0].Value, out[0].Value)
	assert.Equal(t, in[0].Version, out[0].Version)
	assert.True(t, ts.Equal(out[0].UpdatedAt))
	assert.Equal(t, "features.enabled", out[1].Key)
}

func TestDecodeLocatesColumnsByName(t *testing.T) {
	data := []byte("version,key,updated_at,updated_by,value\n3,security.rateLimit.api.maxRequests,2025-10-29T15:00:00.000Z,ops@example.com,60\n")

	out, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "security.rateLimit.api.maxRequests", out[0].Key)
	assert.Equal(t, "60", out[0].Value)
	assert.Equal(t, 3, out[0].Version)
	assert.Equal(t, "ops@example.com", out[0].UpdatedBy)
}

func TestDecodeEmptyInput(t *testing.T) {
	out, err := Decode([]byte{})
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = Decode([]byte("key,value,updated_by,updated_at,version\n"))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDecodeRejectsMalformedTables(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing key column", "value,version\nx,1\n"},
		{"duplicate key", "key,value,version\na,1,1\na,2,1\n"},
		{"bad version", "key,value,version\na,1,zero\n"},
		{"non-positive version", "key,value,version\na,1,0\n"},
		{"bad timestamp", "key,value,updated_at\na,1,yesterday\n"},
		{"unterminated quote", "key,value\na,\"open\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestDecodeDefaultsMissingVersion(t *testing.T) {
	out, err := Decode([]byte("key,value\nseo.siteUrl,https://example.com\n"))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].Version)
	assert.True(t, out[0].UpdatedAt.IsZero())
}
