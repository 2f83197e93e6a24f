package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickFirstNonEmpty(t *testing.T) {
	tests := []struct {
		name     string
		values   []string
		expected string
	}{
		{
			name:     "first non-empty value",
			values:   []string{"first", "second", "third"},
			expected: "first",
		},
		{
			name:     "empty first value",
			values:   []string{"", "second", "third"},
			expected: "second",
		},
		{
			name:     "all empty values",
			values:   []string{"", "", ""},
			expected: "",
		},
		{
			name:     "no values",
			values:   []string{},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := PickFirstNonEmpty(tt.values...)
			if result != tt.expected {
				t.Errorf("PickFirstNonEmpty() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestSafeKeyTimestamp(t *testing.T) {
	assert.Equal(t, "2025-10-29T15-00-00-123Z", SafeKeyTimestamp("2025-10-29T15:00:00.123Z"))
}

func TestWriteUniqueNeverOverwrites(t *testing.T) {
	dir := t.TempDir()

	first, err := WriteUnique(dir, "config-pre-restore", ".csv", []byte("one"))
	require.NoError(t, err)
	second, err := WriteUnique(dir, "config-pre-restore", ".csv", []byte("two"))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))
	data, err = os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestFilesWithExt(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.csv", "a.CSV", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.csv"), 0o755))

	files, err := FilesWithExt(dir, ".csv")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.CSV"), filepath.Join(dir, "b.csv")}, files)

	files, err = FilesWithExt(filepath.Join(dir, "missing"), ".csv")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestSplitName(t *testing.T) {
	stem, ext := SplitName("/data/config_store/config.csv")
	assert.Equal(t, "config", stem)
	assert.Equal(t, ".csv", ext)
}
