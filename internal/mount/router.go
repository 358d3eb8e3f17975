package mount

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/zvault/zvault/internal/apperr"
	"github.com/zvault/zvault/internal/barrier"
	"github.com/zvault/zvault/internal/crypto"
	"github.com/zvault/zvault/internal/engine"
)

// SubkeyProvider is the narrow capability the router needs from the seal
// controller: derive (and cache) the per-engine-type subkey an engine's
// storage is sealed under. Taken as an interface to avoid importing
// internal/barrier's SealController type directly into engine wiring.
type SubkeyProvider interface {
	Subkey(engineType string) (*crypto.KeyMaterial, error)
}

// LeaseRevoker is the narrow capability the router needs from the lease
// manager: release every lease issued by an engine before it is unmounted.
type LeaseRevoker interface {
	RevokePrefix(ctx context.Context, enginePath string) error
}

// Factory constructs a fresh engine instance bound to store (already
// prefixed at the mount path and sealed under the engine type's subkey)
// and the entry's free-form configuration.
type Factory func(store engine.KeyValueStore, entry Entry) (engine.Engine, error)

// Router maps path prefixes to live engine instances, backed by a
// barrier-persisted Table. Writers (Register/Unmount/LoadMounts) take mu
// exclusively and update live in place; Resolve and Tick hold mu's read
// lock while they read live. Readers do not work from a snapshot copy, so
// a Resolve waits while a writer holds the lock.
type Router struct {
	mu sync.RWMutex

	b        *barrier.Barrier
	table    *Table
	subkeys  SubkeyProvider
	revoker  LeaseRevoker
	factories map[string]Factory

	// live holds the active engine instances, keyed by normalized mount
	// path. Register, Unmount, and LoadMounts modify it in place while
	// holding mu exclusively.
	live map[string]liveMount
}

type liveMount struct {
	entry  Entry
	engine engine.Engine
}

// New returns a Router over barrier b. Call RegisterFactory for every
// engine type the server supports, then LoadMounts once the vault is
// unsealed to instantiate engines for any mounts already persisted.
func New(b *barrier.Barrier, subkeys SubkeyProvider) *Router {
	return &Router{
		b:         b,
		table:     newTable(b),
		subkeys:   subkeys,
		factories: make(map[string]Factory),
		live:      make(map[string]liveMount),
	}
}

// SetLeaseRevoker wires the lease manager's revoke-prefix hook, called
// during Unmount before the engine's storage tree is removed.
func (r *Router) SetLeaseRevoker(revoker LeaseRevoker) {
	r.revoker = revoker
}

// RegisterFactory makes engineType available for mounting.
func (r *Router) RegisterFactory(engineType string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[engineType] = f
}

// LoadMounts instantiates a live engine for every mount persisted in the
// table, called once after unseal (or at startup if already unsealed).
func (r *Router) LoadMounts(ctx context.Context) error {
	entries, err := r.table.List(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		eng, err := r.instantiateLocked(e)
		if err != nil {
			return fmt.Errorf("mount: failed to instantiate %s at %s: %w", e.EngineType, e.Path, err)
		}
		if err := eng.Init(ctx); err != nil {
			return fmt.Errorf("mount: failed to init %s at %s: %w", e.EngineType, e.Path, err)
		}
		r.live[e.Path] = liveMount{entry: e, engine: eng}
	}
	return nil
}

func (r *Router) instantiateLocked(e Entry) (engine.Engine, error) {
	factory, ok := r.factories[e.EngineType]
	if !ok {
		return nil, fmt.Errorf("mount: no factory registered for engine type %q", e.EngineType)
	}
	subkey, err := r.subkeys.Subkey(e.EngineType)
	if err != nil {
		return nil, err
	}
	store := &EngineStore{b: r.b, prefix: e.Path, subkey: subkey}
	return factory(store, e)
}

// Register mounts engineType at path. The prefix must not overlap any
// existing mount.
func (r *Router) Register(ctx context.Context, path, engineType, description string, config map[string]string) error {
	path = normalizePrefix(path)
	e := Entry{Path: path, EngineType: engineType, Description: description, Config: config}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[engineType]; !ok {
		return apperr.New(apperr.KindInvalidArgument, "unknown engine type %q", engineType)
	}
	if err := r.table.insert(ctx, e); err != nil {
		return err
	}
	eng, err := r.instantiateLocked(e)
	if err != nil {
		return err
	}
	if err := eng.Init(ctx); err != nil {
		return err
	}
	r.live[path] = liveMount{entry: e, engine: eng}
	return nil
}

// Unmount releases every lease the engine owns, shuts it down, and removes
// its entire storage tree before dropping it from the table.
func (r *Router) Unmount(ctx context.Context, path string) error {
	path = normalizePrefix(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	lm, ok := r.live[path]
	if !ok {
		return apperr.New(apperr.KindNotFound, "no mount at %q", path)
	}

	if r.revoker != nil {
		if err := r.revoker.RevokePrefix(ctx, path); err != nil {
			return fmt.Errorf("mount: failed to revoke leases under %s: %w", path, err)
		}
	}
	if err := lm.engine.Shutdown(ctx); err != nil {
		return fmt.Errorf("mount: engine shutdown failed for %s: %w", path, err)
	}

	suffixes, err := r.b.List(ctx, path)
	if err != nil {
		return fmt.Errorf("mount: failed to list storage tree for %s: %w", path, err)
	}
	for _, suffix := range suffixes {
		if err := r.b.Delete(ctx, path+suffix); err != nil {
			return fmt.Errorf("mount: failed to delete %s%s: %w", path, suffix, err)
		}
	}

	if _, err := r.table.remove(ctx, path); err != nil {
		return err
	}
	delete(r.live, path)
	return nil
}

// Resolved is the result of resolving a request path to a mount.
type Resolved struct {
	Entry   Entry
	Engine  engine.Engine
	Subpath string // path with the mount prefix stripped
}

// Resolve finds the longest mount prefix that matches path.
func (r *Router) Resolve(path string) (Resolved, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *liveMount
	var bestPrefix string
	for prefix, lm := range r.live {
		if strings.HasPrefix(path, prefix) && len(prefix) > len(bestPrefix) {
			p := lm
			best = &p
			bestPrefix = prefix
		}
	}
	if best == nil {
		return Resolved{}, apperr.New(apperr.KindNotFound, "no mount matches path %q", path)
	}
	return Resolved{
		Entry:   best.entry,
		Engine:  best.engine,
		Subpath: strings.TrimPrefix(path, bestPrefix),
	}, nil
}

// Tick drives every live engine's background maintenance hook once, called
// on the lease manager's scan cadence.
func (r *Router) Tick(ctx context.Context) error {
	r.mu.RLock()
	engines := make([]engine.Engine, 0, len(r.live))
	for _, lm := range r.live {
		engines = append(engines, lm.engine)
	}
	r.mu.RUnlock()

	for _, eng := range engines {
		if err := eng.Tick(ctx); err != nil {
			return err
		}
	}
	return nil
}
