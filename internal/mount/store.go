package mount

import (
	"context"

	"github.com/zvault/zvault/internal/barrier"
	"github.com/zvault/zvault/internal/crypto"
)

// EngineStore implements engine.KeyValueStore by prefixing every key with
// the engine's mount path and sealing every record under the engine's
// per-type subkey, so two engines (or two mounts of the same engine type)
// never share ciphertext keyspace or key material.
type EngineStore struct {
	b      *barrier.Barrier
	prefix string
	subkey *crypto.KeyMaterial
}

func (s *EngineStore) Put(ctx context.Context, key string, plaintext []byte) error {
	return s.b.EncryptPut(ctx, s.prefix+key, plaintext, s.subkey)
}

func (s *EngineStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.b.DecryptGet(ctx, s.prefix+key, s.subkey)
}

func (s *EngineStore) Delete(ctx context.Context, key string) error {
	return s.b.Delete(ctx, s.prefix+key)
}

func (s *EngineStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.b.List(ctx, s.prefix+prefix)
}
