package objstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/types"
)

const metaSuffix = ".meta.json"

// LocalStore implements Store on a directory. Object metadata and tags are
// kept in a JSON sidecar next to each object.
type LocalStore struct {
	root string
}

type localMeta struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Tags        []Tag             `json:"tags,omitempty"`
}

// NewLocalStore creates a directory-backed store rooted at root.
func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, types.NewError(types.KindConfigurationMissing, "open", "local backup directory not configured")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// Bucket returns the root directory.
func (l *LocalStore) Bucket() string {
	return l.root
}

// URL returns the file:// locator of key.
func (l *LocalStore) URL(key string) string {
	return "file://" + filepath.ToSlash(l.path(key))
}

func (l *LocalStore) path(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

// Put writes data and its sidecar.
func (l *LocalStore) Put(ctx context.Context, key string, data []byte, opts PutOptions) error {
	full := l.path(key)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	meta, err := json.Marshal(localMeta{
		ContentType: opts.ContentType,
		Metadata:    normalizeMetadata(opts.Metadata),
		Tags:        opts.Tags,
	})
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := os.WriteFile(full+metaSuffix, meta, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// Get reads key and its sidecar.
func (l *LocalStore) Get(ctx context.Context, key string) ([]byte, *ObjectInfo, error) {
	info, err := l.Head(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(l.path(key))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, info, nil
}

// Head stats key and loads its sidecar. A missing sidecar yields empty metadata.
func (l *LocalStore) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	full := l.path(key)
	st, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, types.WrapError(types.KindNotFound, "head", err, "object not found: %s", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}

	info := &ObjectInfo{Key: key, Size: st.Size(), LastModified: st.ModTime().UTC(), Metadata: map[string]string{}}
	raw, err := os.ReadFile(full + metaSuffix)
	if errors.Is(err, fs.ErrNotExist) {
		return info, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	var meta localMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if meta.Metadata != nil {
		info.Metadata = meta.Metadata
	}
	return info, nil
}

// List walks the directory under prefix, skipping sidecars.
func (l *LocalStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, metaSuffix) {
			return nil
		}
		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		st, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, ObjectInfo{Key: key, Size: st.Size(), LastModified: st.ModTime().UTC()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", l.root, err)
	}
	return objects, nil
}
