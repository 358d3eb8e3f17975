package engine

import "context"

// KeyValueStore is the narrow, prefix-scoped view of the barrier each
// mounted engine receives: ordinary encrypt_put/decrypt_get/delete/list,
// already rooted at the engine's own mount path and sealed under its own
// per-engine subkey. Engines never see the barrier, the seal controller,
// or any other mount's keyspace.
type KeyValueStore interface {
	Put(ctx context.Context, key string, plaintext []byte) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}
