// Package barrier implements the encryption layer every storage byte passes
// through, and the seal controller that is the sole holder of the root key
// in cleartext. The two types live in one package on purpose: raw_put and
// raw_get are only ever called by SealController, and keeping them
// unexported methods of Barrier means the compiler, not a convention,
// enforces that engines and the request pipeline cannot reach them.
package barrier

import (
	"context"
	"fmt"
	"sync"

	"github.com/zvault/zvault/internal/crypto"
	"github.com/zvault/zvault/internal/storage"
)

// Barrier wraps a storage.Backend so that every write is ciphertext and
// every read is an authenticated decryption. It holds the in-memory root
// key once unsealed and refuses all operations while sealed.
type Barrier struct {
	mu      sync.RWMutex
	backend storage.Backend
	root    *crypto.KeyMaterial // nil while sealed
}

// New wraps backend in a Barrier that starts sealed.
func New(backend storage.Backend) *Barrier {
	return &Barrier{backend: backend}
}

// installRootKey injects the root key into the barrier, called only by
// SealController after a successful unseal.
func (b *Barrier) installRootKey(root *crypto.KeyMaterial) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.root = root
}

// clearRootKey zeroizes and drops the in-memory root key, called only by
// SealController on seal.
func (b *Barrier) clearRootKey() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.root != nil {
		b.root.Destroy()
	}
	b.root = nil
}

// rootKeyBytes returns the root key bytes for subkey derivation. Called
// only by SealController, which already holds the UNSEALED invariant by
// the time it calls this.
func (b *Barrier) rootKeyBytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.root == nil {
		return nil
	}
	return b.root.Bytes()
}

// IsSealed reports whether the barrier currently holds no root key.
func (b *Barrier) IsSealed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.root == nil
}

// sealingKeyLocked returns the key bytes to seal/open under: subkey if provided,
// the root key otherwise. Caller must hold at least a read lock.
func (b *Barrier) sealingKeyLocked(subkey *crypto.KeyMaterial) ([]byte, error) {
	if b.root == nil {
		return nil, ErrSealed
	}
	if subkey != nil {
		return subkey.Bytes(), nil
	}
	return b.root.Bytes(), nil
}

// EncryptPut seals plaintext under the root key, or under subkey if one is
// given for engine-local use, and writes the resulting record to storage.
func (b *Barrier) EncryptPut(ctx context.Context, key string, plaintext []byte, subkey *crypto.KeyMaterial) error {
	b.mu.RLock()
	sealKey, err := b.sealingKeyLocked(subkey)
	b.mu.RUnlock()
	if err != nil {
		return err
	}
	record, err := crypto.Seal(sealKey, plaintext)
	if err != nil {
		return fmt.Errorf("barrier: failed to seal record: %w", err)
	}
	if err := b.backend.Put(ctx, key, record); err != nil {
		return fmt.Errorf("barrier: storage put failed: %w", err)
	}
	return nil
}

// DecryptGet reads and authenticates the record at key. The second return
// value is false when the key is absent; a tag failure is reported as
// ErrCorruption, distinct from absence.
func (b *Barrier) DecryptGet(ctx context.Context, key string, subkey *crypto.KeyMaterial) ([]byte, bool, error) {
	b.mu.RLock()
	sealKey, err := b.sealingKeyLocked(subkey)
	b.mu.RUnlock()
	if err != nil {
		return nil, false, err
	}
	record, ok, err := b.backend.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("barrier: storage get failed: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	plaintext, err := crypto.Open(sealKey, record)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrCorruption, err)
	}
	return plaintext, true, nil
}

// Delete removes the record at key. It still requires the barrier to be
// unsealed, matching the spec's "every operation fails while sealed" rule.
func (b *Barrier) Delete(ctx context.Context, key string) error {
	b.mu.RLock()
	sealed := b.root == nil
	b.mu.RUnlock()
	if sealed {
		return ErrSealed
	}
	if err := b.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("barrier: storage delete failed: %w", err)
	}
	return nil
}

// List returns the key suffixes under prefix. Sealed barriers reject list
// the same as every other operation.
func (b *Barrier) List(ctx context.Context, prefix string) ([]string, error) {
	b.mu.RLock()
	sealed := b.root == nil
	b.mu.RUnlock()
	if sealed {
		return nil, ErrSealed
	}
	suffixes, err := b.backend.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("barrier: storage list failed: %w", err)
	}
	return suffixes, nil
}

// rawPut writes bytes directly to storage, bypassing encryption entirely.
// Unexported: only SealController, in this same package, may call it. It
// is used for the encrypted-root-key record (already ciphertext by the
// time it reaches here) and for seal configuration metadata.
func (b *Barrier) rawPut(ctx context.Context, key string, value []byte) error {
	if err := b.backend.Put(ctx, key, value); err != nil {
		return fmt.Errorf("barrier: raw put failed: %w", err)
	}
	return nil
}

// rawGet reads bytes directly from storage, bypassing decryption.
// Unexported for the same reason as rawPut.
func (b *Barrier) rawGet(ctx context.Context, key string) ([]byte, bool, error) {
	value, ok, err := b.backend.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("barrier: raw get failed: %w", err)
	}
	return value, ok, nil
}
