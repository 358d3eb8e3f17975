package audit

import (
	"context"
	"encoding/json"
	"fmt"
)

// RawStorage is the narrow capability a storage-backed audit destination
// needs: a single Put of an already-marshaled record. StorageBackend does
// no encryption of its own; Server wires it to an adapter that writes
// through the barrier's EncryptPut under the "audit" subkey.
type RawStorage interface {
	Put(ctx context.Context, key string, value []byte) error
}

// StorageBackend persists audit entries as individual records in the
// storage backend under a fixed prefix, the "storage-backed flag" option
// the configuration surface (§6) names as an alternative to, or alongside,
// the file backend.
type StorageBackend struct {
	storage RawStorage
	prefix  string
}

// NewStorageBackend returns a backend writing under prefix (default
// "core/audit/" if empty).
func NewStorageBackend(storage RawStorage, prefix string) *StorageBackend {
	if prefix == "" {
		prefix = "core/audit/"
	}
	return &StorageBackend{storage: storage, prefix: prefix}
}

// Name identifies this backend in error messages and metrics.
func (sb *StorageBackend) Name() string { return "storage:" + sb.prefix }

// Write stores entry as a single record keyed by its id.
func (sb *StorageBackend) Write(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal entry %s: %w", entry.ID, err)
	}
	if err := sb.storage.Put(ctx, sb.prefix+entry.ID, data); err != nil {
		return fmt.Errorf("audit: failed to store entry %s: %w", entry.ID, err)
	}
	return nil
}
