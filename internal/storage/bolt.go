package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	bolt "go.etcd.io/bbolt"
)

// boltBucket is the single bucket every key lives in; zvault keys are
// already path-namespaced ("core/mounts", "secret/data/foo"), so there is no
// need for bbolt's own bucket hierarchy.
var boltBucket = []byte("zvault")

// BoltBackend is the embedded B-tree backend, suited to small-to-medium
// vaults that want single-file durability without an external database.
type BoltBackend struct {
	db *bolt.DB
}

// NewBoltBackend opens (creating if necessary) a bbolt database file named
// "zvault.db" inside dataDir.
func NewBoltBackend(dataDir string) (*BoltBackend, error) {
	path := filepath.Join(dataDir, "zvault.db")
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}
	return &BoltBackend{db: db}, nil
}

func (b *BoltBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(boltBucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		value = make([]byte, len(v))
		copy(value, v)
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("bolt get failed: %w", err)
	}
	return value, value != nil, nil
}

func (b *BoltBackend) Put(_ context.Context, key string, value []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("bolt put failed: %w", err)
	}
	return nil
}

func (b *BoltBackend) Delete(_ context.Context, key string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("bolt delete failed: %w", err)
	}
	return nil
}

func (b *BoltBackend) List(_ context.Context, prefix string) ([]string, error) {
	var suffixes []string
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(boltBucket).Cursor()
		prefixBytes := []byte(prefix)
		for k, _ := c.Seek(prefixBytes); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			suffixes = append(suffixes, strings.TrimPrefix(string(k), prefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bolt list failed: %w", err)
	}
	// bbolt's cursor already walks keys in byte order, but bucket iteration
	// order is only guaranteed within the cursor's own pass; sort defensively
	// so callers get the ordering guarantee regardless of bbolt internals.
	sort.Strings(suffixes)
	return suffixes, nil
}

func (b *BoltBackend) Close() error {
	return b.db.Close()
}
