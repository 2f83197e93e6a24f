package objstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/types"
)

// MemoryStore is an in-memory Store for tests. The Err fields inject
// failures into the matching operation.
type MemoryStore struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string]memoryObject
	now     func() time.Time

	PutErr  error
	GetErr  error
	HeadErr error
	ListErr error
}

type memoryObject struct {
	data []byte
	info ObjectInfo
	opts PutOptions
}

// NewMemoryStore creates an empty store named bucket.
func NewMemoryStore(bucket string) *MemoryStore {
	return &MemoryStore{bucket: bucket, objects: make(map[string]memoryObject), now: time.Now}
}

// Bucket returns the bucket name.
func (m *MemoryStore) Bucket() string { return m.bucket }

// URL returns a mem:// locator.
func (m *MemoryStore) URL(key string) string {
	return fmt.Sprintf("mem://%s/%s", m.bucket, key)
}

// Put stores a copy of data.
func (m *MemoryStore) Put(ctx context.Context, key string, data []byte, opts PutOptions) error {
	if m.PutErr != nil {
		return m.PutErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{
		data: append([]byte(nil), data...),
		info: ObjectInfo{
			Key:          key,
			Size:         int64(len(data)),
			LastModified: m.now().UTC(),
			Metadata:     normalizeMetadata(opts.Metadata),
		},
		opts: opts,
	}
	return nil
}

// PutObject seeds an object with explicit metadata and modification time.
func (m *MemoryStore) PutObject(key string, data []byte, metadata map[string]string, modified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{
		data: append([]byte(nil), data...),
		info: ObjectInfo{Key: key, Size: int64(len(data)), LastModified: modified, Metadata: normalizeMetadata(metadata)},
	}
}

// Get returns a copy of the object.
func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, *ObjectInfo, error) {
	if m.GetErr != nil {
		return nil, nil, m.GetErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, nil, types.NewError(types.KindNotFound, "get", "object not found: "+key)
	}
	info := obj.info
	return append([]byte(nil), obj.data...), &info, nil
}

// Head returns the object's info.
func (m *MemoryStore) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	if m.HeadErr != nil {
		return nil, m.HeadErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, types.NewError(types.KindNotFound, "head", "object not found: "+key)
	}
	info := obj.info
	return &info, nil
}

// List returns objects under prefix.
func (m *MemoryStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ObjectInfo
	for k, obj := range m.objects {
		if strings.HasPrefix(k, prefix) {
			info := obj.info
			info.Metadata = nil
			out = append(out, info)
		}
	}
	return out, nil
}

// Options returns the PutOptions the object was last written with.
func (m *MemoryStore) Options(key string) (PutOptions, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj.opts, ok
}
