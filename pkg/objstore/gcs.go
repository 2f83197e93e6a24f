package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/types"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/version"
)

// GCSConfig configures the Google Cloud Storage backend.
type GCSConfig struct {
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
	Endpoint        string `yaml:"endpoint" mapstructure:"endpoint"`
}

// GCSStore implements Store on a GCS bucket. GCS has no object tags, so tags
// are stored as "tag-" prefixed metadata.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore creates a GCS client.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, types.NewError(types.KindConfigurationMissing, "open", "GCS backup bucket not configured")
	}

	opts := []option.ClientOption{option.WithUserAgent(version.UserAgent())}
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); os.IsNotExist(err) {
			return nil, types.WrapError(types.KindConfigurationMissing, "open", err,
				"service account key not found at path: %s", cfg.CredentialsFile)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket}, nil
}

// Close releases the client.
func (g *GCSStore) Close() error {
	return g.client.Close()
}

// Bucket returns the bucket name.
func (g *GCSStore) Bucket() string {
	return g.bucket
}

// URL returns the gs:// locator of key.
func (g *GCSStore) URL(key string) string {
	return fmt.Sprintf("gs://%s/%s", g.bucket, key)
}

// Put uploads data. Objects are always encrypted at rest by GCS.
func (g *GCSStore) Put(ctx context.Context, key string, data []byte, opts PutOptions) error {
	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = opts.ContentType
	w.CacheControl = "no-cache, no-store, must-revalidate"
	w.Metadata = make(map[string]string, len(opts.Metadata)+len(opts.Tags))
	for k, v := range opts.Metadata {
		w.Metadata[k] = v
	}
	for _, t := range opts.Tags {
		w.Metadata["tag-"+t.Key] = t.Value
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write gs://%s/%s: %w", g.bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", key, err)
	}
	return nil
}

// Get downloads key along with its metadata.
func (g *GCSStore) Get(ctx context.Context, key string) ([]byte, *ObjectInfo, error) {
	info, err := g.Head(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	r, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, nil, g.mapError("get", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read gs://%s/%s: %w", g.bucket, key, err)
	}
	info.Size = int64(len(data))
	return data, info, nil
}

// Head returns the object's attributes.
func (g *GCSStore) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	attrs, err := g.client.Bucket(g.bucket).Object(key).Attrs(ctx)
	if err != nil {
		return nil, g.mapError("head", key, err)
	}
	return &ObjectInfo{
		Key:          key,
		Size:         attrs.Size,
		LastModified: attrs.Updated,
		Metadata:     normalizeMetadata(attrs.Metadata),
	}, nil
}

// List iterates every object under prefix.
func (g *GCSStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list gs://%s/%s: %w", g.bucket, prefix, err)
		}
		objects = append(objects, ObjectInfo{
			Key:          attrs.Name,
			Size:         attrs.Size,
			LastModified: attrs.Updated,
		})
	}
	return objects, nil
}

func (g *GCSStore) mapError(op, key string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return types.WrapError(types.KindNotFound, op, err, "object not found: gs://%s/%s", g.bucket, key)
	}
	return fmt.Errorf("failed to %s gs://%s/%s: %w", op, g.bucket, key, err)
}
