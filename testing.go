package zvault

// This file provides test helpers for callers exercising Server end to
// end without a production storage backend or KMS, the teacher's
// testing.go pattern (in-memory fakes exported alongside the package
// they fake) applied to zvault's own dependencies.

import (
	"context"
	"fmt"
	"sync"

	"github.com/zvault/zvault/internal/crypto"
)

// NewTestServer builds a Server over an in-memory storage backend,
// initializes the barrier with a 2-of-2 Shamir split, submits both
// shares, and returns the unsealed Server along with its root token and
// raw shares. Intended for unit tests and examples; never for
// production, since the shares never leave the process.
func NewTestServer(opts ...Option) (srv *Server, rootToken string, shares []crypto.Share, err error) {
	cfg := *DefaultConfig()
	cfg.StorageBackend = "memory"
	cfg.AuditFilePaths = nil
	cfg.AuditStorageBacked = true

	srv, err = NewServer(cfg, opts...)
	if err != nil {
		return nil, "", nil, err
	}

	ctx := context.Background()
	result, err := srv.Initialize(ctx, 2, 2)
	if err != nil {
		return nil, "", nil, fmt.Errorf("zvault: initializing test server: %w", err)
	}
	for _, share := range result.Shares {
		if _, err := srv.SubmitShare(ctx, share); err != nil {
			return nil, "", nil, fmt.Errorf("zvault: unsealing test server: %w", err)
		}
	}
	return srv, result.RootToken, result.Shares, nil
}

// InMemoryAutoUnsealProvider is a fake KMS for exercising the
// auto-unseal path (WithAutoUnsealProvider) in tests, without talking to
// AWS KMS or Vault transit. Wrapping is a reversible XOR against a fixed
// in-process key, not real cryptography.
type InMemoryAutoUnsealProvider struct {
	mu  sync.Mutex
	key byte
}

// NewInMemoryAutoUnsealProvider returns a fake auto-unseal provider
// suitable only for tests.
func NewInMemoryAutoUnsealProvider() *InMemoryAutoUnsealProvider {
	return &InMemoryAutoUnsealProvider{key: 0x5a}
}

// Name implements AutoUnsealProvider.
func (p *InMemoryAutoUnsealProvider) Name() string { return "in-memory-test" }

// WrapRootKey implements AutoUnsealProvider by XOR-ing every byte
// against a fixed key, reversible by UnwrapRootKey.
func (p *InMemoryAutoUnsealProvider) WrapRootKey(ctx context.Context, plaintext []byte) ([]byte, error) {
	return p.xor(plaintext), nil
}

// UnwrapRootKey implements AutoUnsealProvider.
func (p *InMemoryAutoUnsealProvider) UnwrapRootKey(ctx context.Context, wrapped []byte) ([]byte, error) {
	return p.xor(wrapped), nil
}

func (p *InMemoryAutoUnsealProvider) xor(data []byte) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ p.key
	}
	return out
}
