package store

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/types"
)

// Column names of the store table, in the order they are written.
const (
	ColumnKey       = "key"
	ColumnValue     = "value"
	ColumnUpdatedBy = "updated_by"
	ColumnUpdatedAt = "updated_at"
	ColumnVersion   = "version"
)

// Header is the header row written by Encode.
var Header = []string{ColumnKey, ColumnValue, ColumnUpdatedBy, ColumnUpdatedAt, ColumnVersion}

// Encode renders records as a CSV table with a header row. Values containing
// commas, quotes or newlines are quoted so they round-trip through Decode.
func Encode(records []types.ConfigRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.Key,
			r.Value,
			r.UpdatedBy,
			types.FormatTimestamp(r.UpdatedAt),
			strconv.Itoa(r.Version),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write record %s: %w", r.Key, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a store table. Columns are located by header name so their
// order in the file does not matter. Empty input yields no records.
func Decode(data []byte) ([]types.ConfigRecord, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []types.ConfigRecord{}, nil
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, required := range []string{ColumnKey, ColumnValue} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	field := func(row []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	records := []types.ConfigRecord{}
	seen := make(map[string]int)
	line := 1
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}

		rec := types.ConfigRecord{
			Key:       strings.TrimSpace(field(row, ColumnKey)),
			Value:     field(row, ColumnValue),
			UpdatedBy: field(row, ColumnUpdatedBy),
		}
		if rec.Key == "" {
			return nil, fmt.Errorf("line %d: empty key", line)
		}
		if prev, dup := seen[rec.Key]; dup {
			return nil, fmt.Errorf("line %d: duplicate key %q (first seen on line %d)", line, rec.Key, prev)
		}
		seen[rec.Key] = line

		if v := strings.TrimSpace(field(row, ColumnVersion)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return nil, fmt.Errorf("line %d: invalid version %q for key %q", line, v, rec.Key)
			}
			rec.Version = n
		} else {
			rec.Version = 1
		}

		if ts := strings.TrimSpace(field(row, ColumnUpdatedAt)); ts != "" {
			t, err := types.ParseTimestamp(ts)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid updated_at %q for key %q: %w", line, ts, rec.Key, err)
			}
			rec.UpdatedAt = t.UTC()
		}

		records = append(records, rec)
	}
	return records, nil
}
