// Package objstore abstracts the remote object store that holds configuration
// backups. S3 is the production backend; GCS and a local directory are
// alternatives, and Memory backs tests.
package objstore

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// Tag is one object tag. Order is preserved when tags are encoded.
type Tag struct {
	Key   string
	Value string
}

// EncodeTags renders tags in the URL query form S3 expects.
func EncodeTags(tags []Tag) string {
	parts := make([]string, 0, len(tags))
	for _, t := range tags {
		parts = append(parts, url.QueryEscape(t.Key)+"="+url.QueryEscape(t.Value))
	}
	return strings.Join(parts, "&")
}

// PutOptions controls how an object is written.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
	Tags        []Tag
	// Encrypt requests server-side encryption at rest.
	Encrypt bool
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	Metadata     map[string]string
}

// Store is implemented by every backend. Missing objects are reported with
// an error matching types.ErrNotFound.
type Store interface {
	Put(ctx context.Context, key string, data []byte, opts PutOptions) error
	Get(ctx context.Context, key string) ([]byte, *ObjectInfo, error)
	Head(ctx context.Context, key string) (*ObjectInfo, error)
	// List returns every object under prefix in backend order.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// Bucket names the destination for results and logs.
	Bucket() string
	// URL renders a locator for key, e.g. s3://bucket/key.
	URL(key string) string
}

// normalizeMetadata lowercases keys the way S3 and GCS report them back.
func normalizeMetadata(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[strings.ToLower(k)] = v
	}
	return out
}

// Provider names.
const (
	ProviderS3    = "s3"
	ProviderGCS   = "gcs"
	ProviderLocal = "local"
)

// Config selects and configures a backend.
type Config struct {
	Provider string    `yaml:"provider" mapstructure:"provider"`
	S3       S3Config  `yaml:"s3" mapstructure:"s3"`
	GCS      GCSConfig `yaml:"gcs" mapstructure:"gcs"`
	LocalDir string    `yaml:"local_dir" mapstructure:"local_dir"`
}

// Configured reports whether cfg names a usable destination.
func (c Config) Configured() bool {
	switch c.Provider {
	case ProviderS3:
		return c.S3.Bucket != ""
	case ProviderGCS:
		return c.GCS.Bucket != ""
	case ProviderLocal:
		return c.LocalDir != ""
	}
	return false
}

// New opens the backend named by cfg. It returns nil and no error when no
// destination is configured, so callers can degrade to "feature unavailable".
func New(ctx context.Context, cfg Config) (Store, error) {
	if !cfg.Configured() {
		return nil, nil
	}
	var (
		st  Store
		err error
	)
	switch cfg.Provider {
	case ProviderS3:
		st, err = NewS3Store(ctx, cfg.S3)
	case ProviderGCS:
		st, err = NewGCSStore(ctx, cfg.GCS)
	default:
		st, err = NewLocalStore(cfg.LocalDir)
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}
