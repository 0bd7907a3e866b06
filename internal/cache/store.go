package cache

import (
	"context"
	"strings"
)

// Store persists one named slot holding the serialized cache.
// Read returns nil data and no error when the slot has never been written.
type Store interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// NewStore creates a postgres-backed slot when databaseURL is set, a file slot
// under dir otherwise, and an in-memory slot when both are empty.
func NewStore(ctx context.Context, databaseURL, dir, slot string) (Store, error) {
	if strings.TrimSpace(databaseURL) != "" {
		return NewPostgresStore(ctx, databaseURL, slot)
	}
	if strings.TrimSpace(dir) == "" {
		return NewMemoryStore(), nil
	}
	return NewFileStore(dir, slot)
}
