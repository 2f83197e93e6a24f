package audit

import (
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/store"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/utils"
)

// HistoryEntry is a value of one key as found in a local backup copy.
type HistoryEntry struct {
	Value     string    `json:"value"`
	UpdatedBy string    `json:"updated_by"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
	Source    string    `json:"source"`
}

var localCopyName = regexp.MustCompile(`-(\d{4}-\d{2}-\d{2})-(\d{6})(?:-|\.)`)

// BackupHistory scans local backup copies in dir, newest file first, and
// returns the value key had in each. Unreadable files are skipped.
func BackupHistory(dir, key string) ([]HistoryEntry, error) {
	files, err := utils.FilesWithExt(dir, ".csv")
	if err != nil {
		return nil, err
	}
	var out []HistoryEntry
	for i := len(files) - 1; i >= 0; i-- {
		data, err := os.ReadFile(files[i])
		if err != nil {
			continue
		}
		records, err := store.Decode(data)
		if err != nil {
			continue
		}
		for _, rec := range records {
			if rec.Key != key {
				continue
			}
			entry := HistoryEntry{
				Value:     rec.Value,
				UpdatedBy: rec.UpdatedBy,
				UpdatedAt: rec.UpdatedAt,
				Version:   rec.Version,
				Source:    filepath.Base(files[i]),
			}
			if m := localCopyName.FindStringSubmatch(filepath.Base(files[i])); m != nil {
				if t, err := time.Parse("2006-01-02150405", m[1]+m[2]); err == nil {
					entry.UpdatedAt = t
				}
			}
			out = append(out, entry)
			break
		}
	}
	return out, nil
}
