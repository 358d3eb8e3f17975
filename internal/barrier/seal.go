package barrier

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/zvault/zvault/internal/crypto"
	"github.com/zvault/zvault/internal/monitoring"
	"github.com/zvault/zvault/internal/security"
)

// State is the seal controller's lifecycle state.
type State int

const (
	// StateUninit means no encrypted-root-key record exists yet.
	StateUninit State = iota
	// StateSealed means the encrypted-root-key record exists but the root
	// key is not in memory.
	StateSealed
	// StateUnsealed means the root key is installed in the barrier.
	StateUnsealed
)

func (s State) String() string {
	switch s {
	case StateUninit:
		return "uninitialized"
	case StateSealed:
		return "sealed"
	case StateUnsealed:
		return "unsealed"
	default:
		return "unknown"
	}
}

const (
	sealConfigKey = "core/seal-config"
	rootKeyRecord = "core/root-key"
)

// RootTokenIssuer is the narrow capability the seal controller needs from
// the token store: mint a fresh root token during initialize. Taking this
// as an interface, rather than importing internal/token directly, keeps
// the dependency pointing the way the request pipeline composes things:
// token depends on barrier, not the reverse.
type RootTokenIssuer interface {
	IssueRootToken(ctx context.Context) (plaintext string, err error)
}

// sealConfig is the persisted (N, T) Shamir configuration. It is not
// secret, so it is stored via rawPut in cleartext JSON.
type sealConfig struct {
	SecretShares  int `json:"secret_shares"`
	SecretThreshold int `json:"secret_threshold"`
}

// Status reports the seal controller's externally observable state.
type Status struct {
	State     State
	Progress  int // number of shares submitted so far in the current cycle
	Threshold int // T, or 0 if uninitialized
}

// InitResult carries the one-time output of a successful initialize call.
// The unseal key itself is never included; only its Shamir shares are.
type InitResult struct {
	Shares    []crypto.Share
	RootToken string
}

// SealController drives the UNINIT -> SEALED -> UNSEALED state machine. It
// is the only component in the system authorized to hold the root key or
// the unseal key in cleartext, and it is the only caller of Barrier's
// unexported rawPut/rawGet.
type SealController struct {
	mu sync.Mutex

	barrier *Barrier
	issuer  RootTokenIssuer

	state        State
	config       sealConfig
	shareBuffer  []crypto.Share
	seenCoords   map[byte]bool
	subkeyCache  map[string]*crypto.KeyMaterial
	metrics      monitoring.MetricsCollector
}

// SetMetrics installs the collector seal/unseal transitions are reported
// to. A nil collector is ignored; an unconfigured controller reports to
// a no-op collector.
func (sc *SealController) SetMetrics(m monitoring.MetricsCollector) {
	if m != nil {
		sc.mu.Lock()
		sc.metrics = m
		sc.mu.Unlock()
	}
}

// NewSealController returns a SealController wrapping barrier. It probes storage via
// rawGet to decide whether the vault is UNINIT or SEALED; a fresh backend
// with no seal-config record starts UNINIT.
func NewSealController(ctx context.Context, b *Barrier, issuer RootTokenIssuer) (*SealController, error) {
	sc := &SealController{
		barrier:     b,
		issuer:      issuer,
		seenCoords:  make(map[byte]bool),
		subkeyCache: make(map[string]*crypto.KeyMaterial),
		metrics:     &monitoring.NoOpMetricsCollector{},
	}

	raw, ok, err := b.rawGet(ctx, sealConfigKey)
	if err != nil {
		return nil, fmt.Errorf("seal: failed to read seal config: %w", err)
	}
	if !ok {
		sc.state = StateUninit
		return sc, nil
	}
	var cfg sealConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("seal: corrupt seal config: %w", err)
	}
	sc.config = cfg
	sc.state = StateSealed
	return sc, nil
}

// Status reports the current state and, mid-unseal, submission progress.
func (sc *SealController) Status() Status {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return Status{
		State:     sc.state,
		Progress:  len(sc.shareBuffer),
		Threshold: sc.config.SecretThreshold,
	}
}

// Initialize generates a fresh root key and unseal key, splits the unseal
// key into n shares with threshold t, seals the root key under the unseal
// key and persists it, issues a root token, and returns the shares and
// token. This is the only path that ever produces shares; the unseal key
// itself is discarded immediately after sealing the root key.
func (sc *SealController) Initialize(ctx context.Context, n, t int) (*InitResult, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.state != StateUninit {
		return nil, ErrAlreadyInitialized
	}

	rootKey, err := crypto.RandomKey()
	if err != nil {
		return nil, fmt.Errorf("seal: failed to generate root key: %w", err)
	}
	defer crypto.ZeroizeBestEffort(rootKey)

	unsealKey, err := crypto.RandomKey()
	if err != nil {
		return nil, fmt.Errorf("seal: failed to generate unseal key: %w", err)
	}
	defer crypto.ZeroizeBestEffort(unsealKey)

	shares, err := crypto.Split(unsealKey, n, t)
	if err != nil {
		return nil, fmt.Errorf("seal: failed to split unseal key: %w", err)
	}

	sealedRoot, err := crypto.Seal(unsealKey, rootKey)
	if err != nil {
		return nil, fmt.Errorf("seal: failed to seal root key: %w", err)
	}
	if err := sc.barrier.rawPut(ctx, rootKeyRecord, sealedRoot); err != nil {
		return nil, err
	}

	cfg := sealConfig{SecretShares: n, SecretThreshold: t}
	cfgBytes, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("seal: failed to marshal seal config: %w", err)
	}
	if err := sc.barrier.rawPut(ctx, sealConfigKey, cfgBytes); err != nil {
		return nil, err
	}
	sc.config = cfg
	sc.state = StateSealed

	rootToken, err := sc.issuer.IssueRootToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("seal: failed to issue root token: %w", err)
	}

	sc.metrics.IncrementCounter("seal.initialize", nil)
	return &InitResult{Shares: shares, RootToken: rootToken}, nil
}

// SubmitShare appends a share to the in-memory buffer. Submission is
// serialized by sc.mu, so concurrent callers observe a well-defined
// accumulation order and threshold detection fires exactly once. Once the
// buffer reaches the configured threshold, the unseal key is reconstructed,
// the root key record is opened, the root key is installed into the
// barrier, and the controller transitions to UNSEALED. Per-engine subkeys
// are not derived at this point: Subkey derives each one on first use and
// caches it until Seal. A failed reconstruction clears the buffer so the next share
// submission starts a fresh cycle.
func (sc *SealController) SubmitShare(ctx context.Context, share crypto.Share) (Status, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	switch sc.state {
	case StateUninit:
		return Status{}, ErrUninitialized
	case StateUnsealed:
		return sc.statusLocked(), nil
	}

	if sc.seenCoords[share.Coordinate] {
		security.LogSecurityEvent("seal.duplicate_share", "share coordinate resubmitted in the same unseal cycle", security.SecurityLevelHigh)
		return sc.statusLocked(), fmt.Errorf("%w: coordinate %d already submitted this cycle", ErrInvalidShare, share.Coordinate)
	}
	sc.seenCoords[share.Coordinate] = true
	sc.shareBuffer = append(sc.shareBuffer, share)

	if len(sc.shareBuffer) < sc.config.SecretThreshold {
		return sc.statusLocked(), nil
	}

	if err := sc.reconstructLocked(ctx); err != nil {
		security.LogSecurityEvent("seal.reconstruction_failed", "unseal key reconstruction failed for submitted share set", security.SecurityLevelCritical)
		sc.clearShareBufferLocked()
		return sc.statusLocked(), err
	}
	return sc.statusLocked(), nil
}

func (sc *SealController) reconstructLocked(ctx context.Context) error {
	unsealKey, err := crypto.Combine(sc.shareBuffer)
	if err != nil {
		return fmt.Errorf("seal: failed to reconstruct unseal key: %w", err)
	}
	defer crypto.ZeroizeBestEffort(unsealKey)

	sealedRoot, ok, err := sc.barrier.rawGet(ctx, rootKeyRecord)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("seal: root key record missing")
	}
	rootKeyBytes, err := crypto.Open(unsealKey, sealedRoot)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruption, err)
	}

	root := crypto.NewKeyMaterial(rootKeyBytes)
	crypto.ZeroizeBestEffort(rootKeyBytes)

	sc.barrier.installRootKey(root)
	sc.state = StateUnsealed
	sc.clearShareBufferLocked()
	sc.metrics.IncrementCounter("seal.unsealed", nil)
	return nil
}

func (sc *SealController) clearShareBufferLocked() {
	for _, s := range sc.shareBuffer {
		crypto.ZeroizeBestEffort(s.Value)
	}
	sc.shareBuffer = nil
	sc.seenCoords = make(map[byte]bool)
}

// Seal zeroizes the root key, every derived subkey, and any engine-local
// caches, then transitions to SEALED. Idempotent.
func (sc *SealController) Seal() Status {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.state != StateUnsealed {
		return sc.statusLocked()
	}
	sc.barrier.clearRootKey()
	for info, km := range sc.subkeyCache {
		km.Destroy()
		delete(sc.subkeyCache, info)
	}
	sc.state = StateSealed
	sc.metrics.IncrementCounter("seal.sealed", nil)
	return sc.statusLocked()
}

// Subkey returns the derived subkey for the given engine type, deriving
// and caching it on first use. Only valid while UNSEALED.
func (sc *SealController) Subkey(engineType string) (*crypto.KeyMaterial, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.state != StateUnsealed {
		return nil, ErrSealed
	}
	info := crypto.EngineInfo(engineType)
	if km, ok := sc.subkeyCache[info]; ok {
		return km, nil
	}
	subkeyBytes, err := crypto.DeriveSubkey(sc.barrier.rootKeyBytes(), info)
	if err != nil {
		return nil, fmt.Errorf("seal: failed to derive subkey for %s: %w", engineType, err)
	}
	km := crypto.NewKeyMaterial(subkeyBytes)
	crypto.ZeroizeBestEffort(subkeyBytes)
	sc.subkeyCache[info] = km
	return km, nil
}

func (sc *SealController) statusLocked() Status {
	return Status{
		State:     sc.state,
		Progress:  len(sc.shareBuffer),
		Threshold: sc.config.SecretThreshold,
	}
}
