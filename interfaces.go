package zvault

import (
	"context"

	"github.com/zvault/zvault/internal/audit"
	"github.com/zvault/zvault/internal/engine"
	"github.com/zvault/zvault/internal/storage"
)

// StorageBackend is the opaque byte-addressed key-value store the barrier
// sits on top of (§4.1): get/put/delete/list over byte keys, no
// transaction requirement, single-writer semantics assumed at the request
// pipeline level. zvault ships three implementations (in-memory, bbolt,
// hand-rolled LSM); StorageBackend is exported so an integrator can supply
// their own.
type StorageBackend = storage.Backend

// AuditBackend is one pluggable audit sink (§4.10): write(entry) -> ok or
// error. zvault ships file, SQLite, and storage-backed implementations,
// selected through Config's AuditFilePaths, AuditSQLitePath, and
// AuditStorageBacked; Server has no option for adding a backend of
// another kind.
type AuditBackend = audit.Backend

// Engine is the trait-based dispatch surface every mounted secrets engine
// implements (§4, §9's "trait-based engine dispatch"). KV-v2 and transit
// are the two engines this repository ships; the PKI and database
// dynamic-credential engines the spec names as external collaborators
// would implement this same interface.
type Engine = engine.Engine

// AutoUnsealProvider wraps and unwraps the encoded Shamir shares of the
// unseal key using an external key management service, so Server.Unseal
// can submit them itself instead of an operator, the convenience
// SPEC_FULL.md §C.1 adds over the spec's manual-unseal baseline. Manual
// Shamir unseal (§4.4) remains the default; configuring an
// AutoUnsealProvider is opt-in.
type AutoUnsealProvider interface {
	// Name identifies the provider in logs and status output (e.g.
	// "awskms", "vault-transit").
	Name() string

	// WrapRootKey encrypts the given bytes (the JSON-encoded Shamir shares
	// of the unseal key) under the external KMS key. Server.Unseal calls
	// it once, on the first run, and stores the wrapped blob directly in
	// the storage backend.
	WrapRootKey(ctx context.Context, rootKey []byte) (wrapped []byte, err error)

	// UnwrapRootKey reverses WrapRootKey, called at startup instead of
	// waiting on SubmitShare when an AutoUnsealProvider is configured.
	UnwrapRootKey(ctx context.Context, wrapped []byte) (rootKey []byte, err error)
}
