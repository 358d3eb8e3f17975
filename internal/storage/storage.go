// Package storage defines the opaque byte-addressed key-value contract that
// the barrier writes ciphertext through, and the three interchangeable
// backends that satisfy it: in-memory, embedded B-tree (bbolt), and an
// embedded log-structured merge store.
//
// Backends never inspect values; they store and return exactly the bytes
// given to them. Keys use '/' as a conventional path separator but backends
// treat them as opaque strings.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by backends that choose to surface a missing key
// as an error internally; callers at the Backend interface level never see
// it; Get returns (nil, false, nil) for an absent key instead.
var ErrNotFound = errors.New("storage: key not found")

// ErrClosed is returned by any operation attempted after Close.
var ErrClosed = errors.New("storage: backend closed")

// Backend is the storage contract every secrets engine and the barrier
// consume. It has no transaction requirement; the request pipeline
// guarantees single-writer semantics at the level each backend is used.
type Backend interface {
	// Get returns the value stored at key. The second return value is false
	// if the key is absent; that is not an error condition.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores value at key, overwriting any existing value. Last writer
	// wins; there is no compare-and-swap at this layer.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns the key suffixes of all entries whose key begins with
	// prefix, in lexicographic order, with prefix stripped from each result
	// so callers can paginate deterministically.
	List(ctx context.Context, prefix string) ([]string, error)

	// Close releases any resources the backend holds (file handles, open
	// database connections). Once closed a backend must reject calls.
	Close() error
}
