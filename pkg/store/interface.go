// Package store persists the configuration table. The Storage interface keeps
// call sites independent of the backing medium; FileStorage is the production
// implementation and MemoryStorage backs tests.
package store

import "context"

// Storage defines the byte-level persistence operations for the live store.
type Storage interface {
	// Read returns the full persisted content. A missing store yields an
	// error matching types.ErrNotFound.
	Read(ctx context.Context) ([]byte, error)

	// Write overwrites the persisted content in place.
	Write(ctx context.Context, data []byte) error

	// AtomicReplace swaps the persisted content so that concurrent readers see
	// either the old or the new bytes, never a mix.
	AtomicReplace(ctx context.Context, data []byte) error

	// Remove deletes the persisted content. Removing a missing store is not
	// an error.
	Remove(ctx context.Context) error

	// Location identifies the store for logs and backups (a file path for
	// FileStorage).
	Location() string
}

// Limits bounds the size of keys and values accepted by the store.
type Limits struct {
	MaxValueBytes    int `yaml:"max_value_bytes" mapstructure:"max_value_bytes"`
	MaxKeyNameLength int `yaml:"max_key_name_length" mapstructure:"max_key_name_length"`
}

// DefaultLimits returns the limits applied when none are configured.
func DefaultLimits() Limits {
	return Limits{MaxValueBytes: 1 << 16, MaxKeyNameLength: 256}
}
