// Package zvault is the root package of the secrets-management service:
// it wires storage, the encryption barrier, the seal lifecycle, the
// token and policy engine, the mount router with its secrets engines,
// the lease manager, the audit log, and the request pipeline into one
// Server (§4, §4.11). Subsystems live under internal/ in their own
// packages; this file is assembly, not logic.
package zvault

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zvault/zvault/internal/audit"
	"github.com/zvault/zvault/internal/autounseal"
	"github.com/zvault/zvault/internal/barrier"
	"github.com/zvault/zvault/internal/crypto"
	"github.com/zvault/zvault/internal/engine"
	kvengine "github.com/zvault/zvault/internal/engine/kv"
	transitengine "github.com/zvault/zvault/internal/engine/transit"
	"github.com/zvault/zvault/internal/lease"
	"github.com/zvault/zvault/internal/mount"
	"github.com/zvault/zvault/internal/pipeline"
	"github.com/zvault/zvault/internal/security"
	"github.com/zvault/zvault/internal/storage"
	"github.com/zvault/zvault/internal/token"
)

// Server is the assembled vault: one barrier over one storage backend,
// one seal controller, one token store, one mount router, one lease
// manager, one audit log, and the pipeline that ties auth, policy,
// dispatch, and audit together for every request.
//
// Server is safe for concurrent use; every exported method delegates to
// a component that already guards its own state.
type Server struct {
	cfg Config

	storage storage.Backend
	barrier *barrier.Barrier
	seal    *barrier.SealController
	tokens  *token.Store
	policy  *token.PolicyStore
	router  *mount.Router
	leases  *lease.Manager
	audit   *audit.Log
	pipe    *pipeline.Pipeline

	logger *slog.Logger

	cancelScanner     context.CancelFunc
	storageAuditWired bool
	bootstrapApplied  bool
}

// NewServer assembles a Server from cfg and opts, applying options over
// cfg before validating (the teacher's ApplyOptions-then-Validate
// order). It does not initialize or unseal the barrier; call Status,
// Initialize, and SubmitShare (or configure an AutoUnsealProvider and
// call Unseal) before routing requests.
func NewServer(cfg Config, opts ...Option) (*Server, error) {
	if err := ApplyOptions(&cfg, opts); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if !cfg.DisableMlock {
		if err := security.LockProcessMemory(); err != nil {
			logger.Warn("memory lock unavailable, secrets may be swappable", "error", err)
		}
	}

	backend, err := newStorageBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening storage backend: %w", err)
	}

	b := barrier.New(backend)
	tokens := token.NewStore(b)

	seal, err := barrier.NewSealController(context.Background(), b, tokens)
	if err != nil {
		return nil, fmt.Errorf("constructing seal controller: %w", err)
	}
	seal.SetMetrics(cfg.MetricsCollector)

	router := mount.New(b, seal)
	router.RegisterFactory(EngineTypeKV, func(store engine.KeyValueStore, entry mount.Entry) (engine.Engine, error) {
		return kvengine.New(store), nil
	})
	router.RegisterFactory(EngineTypeTransit, func(store engine.KeyValueStore, entry mount.Entry) (engine.Engine, error) {
		return transitengine.New(store), nil
	})

	policy := token.NewPolicyStore(b)

	leases := lease.New(b)
	leases.SetMetrics(cfg.MetricsCollector)
	leases.SetRevoker(func(ctx context.Context, enginePath string, revocationData map[string]any) error {
		resolved, err := router.Resolve(enginePath)
		if err != nil {
			return err
		}
		_, err = resolved.Engine.Handle(ctx, engine.Request{
			Operation: engine.OpDelete,
			Subpath:   "lease-revoke",
			Data:      revocationData,
		})
		return err
	})
	router.SetLeaseRevoker(leases)
	tokens.SetLeaseRevoker(leases)

	auditLog, err := newAuditLog(cfg, b)
	if err != nil {
		return nil, fmt.Errorf("configuring audit log: %w", err)
	}

	pipe := pipeline.New(b, tokens, policy, router, auditLog, logger)
	pipe.SetMetrics(cfg.MetricsCollector)

	return &Server{
		cfg:     cfg,
		storage: backend,
		barrier: b,
		seal:    seal,
		tokens:  tokens,
		policy:  policy,
		router:  router,
		leases:  leases,
		audit:   auditLog,
		pipe:    pipe,
		logger:  logger,
	}, nil
}

func newStorageBackend(cfg Config) (storage.Backend, error) {
	switch cfg.StorageBackend {
	case "memory":
		return storage.NewMemoryBackend(), nil
	case "bolt":
		return storage.NewBoltBackend(cfg.StoragePath)
	case "lsm":
		return storage.NewLSMBackend(cfg.StoragePath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func newAuditLog(cfg Config, b *barrier.Barrier) (*audit.Log, error) {
	hmacKey, err := audit.NewHMACKey()
	if err != nil {
		return nil, fmt.Errorf("generating audit HMAC key: %w", err)
	}
	log := audit.New(hmacKey)

	for _, path := range cfg.AuditFilePaths {
		backend, err := audit.NewFileBackend(path)
		if err != nil {
			return nil, fmt.Errorf("opening audit file backend %q: %w", path, err)
		}
		log.AddBackend(backend)
	}
	if cfg.AuditSQLitePath != "" {
		backend, err := audit.NewSQLiteBackend(cfg.AuditSQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening audit sqlite backend: %w", err)
		}
		log.AddBackend(backend)
	}
	return log, nil
}

// wireStorageBackedAudit adds the storage-backed audit destination once
// the seal controller can hand out the "audit" subkey, i.e. after the
// barrier has been unsealed. Called lazily from Handle's first
// unsealed request rather than at construction time, since
// NewServer runs before Initialize/SubmitShare.
func (s *Server) wireStorageBackedAudit() {
	if !s.cfg.AuditStorageBacked || s.storageAuditWired || s.barrier.IsSealed() {
		return
	}
	s.audit.AddBackend(audit.NewStorageBackend(barrierRawStorage{b: s.barrier, seal: s.seal}, "core/audit/"))
	s.storageAuditWired = true
}

// barrierRawStorage adapts the barrier's EncryptPut to audit.RawStorage's
// single Put method, storing audit records through the same encrypted
// barrier every other record goes through rather than introducing a
// bypass path.
type barrierRawStorage struct {
	b    *barrier.Barrier
	seal *barrier.SealController
}

func (s barrierRawStorage) Put(ctx context.Context, key string, value []byte) error {
	subkey, err := s.seal.Subkey("audit")
	if err != nil {
		return err
	}
	return s.b.EncryptPut(ctx, key, value, subkey)
}

const bootstrapAppliedKey = "core/bootstrap/applied"

// wireBootstrapManifest applies cfg.BootstrapManifestPath the first time
// it observes the vault unsealed, persisting a marker record so a
// restart (or a later reseal/unseal cycle) never re-applies it — mounts
// are not idempotent to re-register and policies created twice would
// silently overwrite operator edits made in between. A no-op when no
// manifest is configured.
func (s *Server) wireBootstrapManifest(ctx context.Context) {
	if s.cfg.BootstrapManifestPath == "" || s.bootstrapApplied || s.barrier.IsSealed() {
		return
	}
	if _, ok, err := s.barrier.DecryptGet(ctx, bootstrapAppliedKey, nil); err == nil && ok {
		s.bootstrapApplied = true
		return
	}
	if err := applyBootstrapManifest(ctx, s, s.cfg.BootstrapManifestPath); err != nil {
		s.logger.Error("bootstrap manifest failed", "error", err)
		return
	}
	if err := s.barrier.EncryptPut(ctx, bootstrapAppliedKey, []byte("1"), nil); err != nil {
		s.logger.Error("recording bootstrap manifest marker failed", "error", err)
		return
	}
	s.bootstrapApplied = true
}

// Status reports the seal controller's current state. Reachable while
// sealed (§4.11's administrative-path carve-out).
func (s *Server) Status() barrier.Status {
	return s.seal.Status()
}

// Initialize creates the root key and an unseal key, splits the unseal
// key into n Shamir shares with threshold t, and returns the shares and a
// root token. Reachable only
// while uninitialized.
func (s *Server) Initialize(ctx context.Context, n, t int) (*barrier.InitResult, error) {
	return s.seal.Initialize(ctx, n, t)
}

// SubmitShare feeds one Shamir share toward unsealing. Reachable only
// while sealed.
func (s *Server) SubmitShare(ctx context.Context, share crypto.Share) (barrier.Status, error) {
	return s.seal.SubmitShare(ctx, share)
}

// Seal re-seals the barrier, discarding the in-memory root key.
func (s *Server) Seal() barrier.Status {
	return s.seal.Seal()
}

const autounsealStorageKey = "core/autounseal/wrapped"

// Unseal drives the auto-unseal path configured via
// WithAutoUnsealProvider (SPEC_FULL.md §C.1): on first run it
// initializes the barrier with a 2-of-2 Shamir split, wraps both shares
// under the external KMS key, and persists the wrapped blob directly in
// the storage backend (not through the barrier, which cannot encrypt
// anything until it is unsealed). On every subsequent run it unwraps the
// blob and submits both shares. The root token is only ever returned
// from the first call, exactly once, matching Initialize's own
// contract.
func (s *Server) Unseal(ctx context.Context) (rootToken string, err error) {
	if s.cfg.AutoUnsealProvider == nil {
		return "", fmt.Errorf("zvault: no auto-unseal provider configured")
	}

	if wrapped, ok, err := s.storage.Get(ctx, autounsealStorageKey); err != nil {
		return "", fmt.Errorf("autounseal: reading wrapped shares: %w", err)
	} else if ok {
		shares, err := autounseal.Unseal(ctx, s.cfg.AutoUnsealProvider, wrapped)
		if err != nil {
			return "", err
		}
		for _, share := range shares {
			if _, err := s.seal.SubmitShare(ctx, share); err != nil {
				return "", fmt.Errorf("autounseal: submitting share: %w", err)
			}
		}
		return "", nil
	}

	result, err := s.seal.Initialize(ctx, 2, 2)
	if err != nil {
		return "", fmt.Errorf("autounseal: initializing barrier: %w", err)
	}
	wrapped, err := autounseal.Seal(ctx, s.cfg.AutoUnsealProvider, result.Shares)
	if err != nil {
		return "", err
	}
	if err := s.storage.Put(ctx, autounsealStorageKey, wrapped); err != nil {
		return "", fmt.Errorf("autounseal: persisting wrapped shares: %w", err)
	}
	for _, share := range result.Shares {
		if _, err := s.seal.SubmitShare(ctx, share); err != nil {
			return "", fmt.Errorf("autounseal: submitting share after initialize: %w", err)
		}
	}
	return result.RootToken, nil
}

// Mount registers a new secrets engine at path (§4.6).
func (s *Server) Mount(ctx context.Context, path, engineType, description string, config map[string]string) error {
	return s.router.Register(ctx, path, engineType, description, config)
}

// Unmount removes a secrets engine and its live instance (§4.6).
func (s *Server) Unmount(ctx context.Context, path string) error {
	return s.router.Unmount(ctx, path)
}

// Handle routes a request through the full pipeline: seal check,
// authentication, policy evaluation, engine dispatch, audit (§4.11).
func (s *Server) Handle(ctx context.Context, req pipeline.Request) (pipeline.Response, error) {
	s.wireStorageBackedAudit()
	s.wireBootstrapManifest(ctx)
	return s.pipe.Handle(ctx, req)
}

// Tokens exposes the token store for callers that need to issue or
// revoke tokens directly (e.g. an admin CLI), rather than through a
// mounted engine path.
func (s *Server) Tokens() *token.Store { return s.tokens }

// Policies exposes the policy store for administrative policy
// management.
func (s *Server) Policies() *token.PolicyStore { return s.policy }

// Run starts the lease manager's background expiry scanner and the
// mount router's periodic Tick, both on cfg.LeaseScanInterval, until ctx
// is canceled or Close is called.
func (s *Server) Run(ctx context.Context) {
	scanCtx, cancel := context.WithCancel(ctx)
	s.cancelScanner = cancel
	go s.leases.RunScanner(scanCtx, s.cfg.LeaseScanInterval)
	go s.tickLoop(scanCtx)
}

func (s *Server) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.LeaseScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.router.Tick(ctx); err != nil {
				s.logger.Error("mount router tick failed", "error", err)
			}
		}
	}
}

// Close stops the background scanner. It does not seal the barrier or
// close the storage backend's underlying file handles beyond what the
// backend's own lifecycle requires.
func (s *Server) Close() {
	if s.cancelScanner != nil {
		s.cancelScanner()
	}
}
