package store

import (
	"context"
	"errors"
	"sync"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/types"
)

// MemoryStorage is an in-memory Storage for tests.
type MemoryStorage struct {
	mu     sync.RWMutex
	data   []byte
	exists bool

	// FailWrites makes Write and AtomicReplace return WriteErr.
	FailWrites bool
	WriteErr   error
}

// NewMemoryStorage creates a storage holding data. A nil slice means the
// store does not exist yet.
func NewMemoryStorage(data []byte) *MemoryStorage {
	m := &MemoryStorage{}
	if data != nil {
		m.data = append([]byte(nil), data...)
		m.exists = true
	}
	return m
}

// Location returns a fixed pseudo path.
func (m *MemoryStorage) Location() string {
	return "memory://config.csv"
}

// Read returns a copy of the stored bytes.
func (m *MemoryStorage) Read(ctx context.Context) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.exists {
		return nil, types.NewError(types.KindNotFound, "read", "store not initialised")
	}
	return append([]byte(nil), m.data...), nil
}

// Write replaces the stored bytes.
func (m *MemoryStorage) Write(ctx context.Context, data []byte) error {
	return m.set(data)
}

// AtomicReplace replaces the stored bytes.
func (m *MemoryStorage) AtomicReplace(ctx context.Context, data []byte) error {
	return m.set(data)
}

func (m *MemoryStorage) set(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		if m.WriteErr != nil {
			return m.WriteErr
		}
		return errors.New("memory storage: write failed")
	}
	m.data = append([]byte(nil), data...)
	m.exists = true
	return nil
}

// Remove drops the stored bytes so the store no longer exists.
func (m *MemoryStorage) Remove(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		if m.WriteErr != nil {
			return m.WriteErr
		}
		return errors.New("memory storage: remove failed")
	}
	m.data = nil
	m.exists = false
	return nil
}

// Exists reports whether the store has been written.
func (m *MemoryStorage) Exists() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.exists
}

// Bytes returns the current content, for assertions.
func (m *MemoryStorage) Bytes() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]byte(nil), m.data...)
}
