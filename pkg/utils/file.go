package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// SplitName splits a file name into stem and extension ("config", ".csv").
func SplitName(path string) (string, string) {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext), ext
}

// WriteUnique creates dir/<name><ext> exclusively and writes data to it. If
// the name is taken a short random suffix is appended, so an existing file is
// never overwritten. It returns the path written.
func WriteUnique(dir, name, ext string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	candidate := filepath.Join(dir, name+ext)
	for attempt := 0; attempt < 5; attempt++ {
		f, err := os.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			candidate = filepath.Join(dir, fmt.Sprintf("%s-%s%s", name, uuid.NewString()[:8], ext))
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create %s: %w", candidate, err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(candidate)
			return "", fmt.Errorf("failed to write %s: %w", candidate, err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			os.Remove(candidate)
			return "", fmt.Errorf("failed to sync %s: %w", candidate, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("failed to close %s: %w", candidate, err)
		}
		return candidate, nil
	}
	return "", fmt.Errorf("failed to find a free file name for %s%s in %s", name, ext, dir)
}

// FilesWithExt returns the files directly inside dir whose extension is one
// of exts, sorted by name. A missing directory yields no files.
func FilesWithExt(dir string, exts ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, want := range exts {
			if ext == strings.ToLower(want) {
				files = append(files, filepath.Join(dir, e.Name()))
				break
			}
		}
	}
	sort.Strings(files)
	return files, nil
}
