package mount

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zvault/zvault/internal/barrier"
	"github.com/zvault/zvault/internal/crypto"
	"github.com/zvault/zvault/internal/engine"
	"github.com/zvault/zvault/internal/storage"
)

type fixedIssuer struct{}

func (fixedIssuer) IssueRootToken(ctx context.Context) (string, error) { return "root-token", nil }

func unsealedBarrier(t *testing.T) *barrier.Barrier {
	t.Helper()
	ctx := context.Background()
	b := barrier.New(storage.NewMemoryBackend())
	sc, err := barrier.NewSealController(ctx, b, fixedIssuer{})
	require.NoError(t, err)
	res, err := sc.Initialize(ctx, 1, 1)
	require.NoError(t, err)
	_, err = sc.SubmitShare(ctx, res.Shares[0])
	require.NoError(t, err)
	return b
}

type subkeyFromBarrier struct {
	sc *barrier.SealController
}

func (s subkeyFromBarrier) Subkey(engineType string) (*crypto.KeyMaterial, error) {
	return s.sc.Subkey(engineType)
}

func newTestRouter(t *testing.T) (*Router, *barrier.SealController) {
	t.Helper()
	ctx := context.Background()
	b := barrier.New(storage.NewMemoryBackend())
	sc, err := barrier.NewSealController(ctx, b, fixedIssuer{})
	require.NoError(t, err)
	res, err := sc.Initialize(ctx, 1, 1)
	require.NoError(t, err)
	_, err = sc.SubmitShare(ctx, res.Shares[0])
	require.NoError(t, err)

	r := New(b, subkeyFromBarrier{sc: sc})
	r.RegisterFactory("stub", func(store engine.KeyValueStore, e Entry) (engine.Engine, error) {
		return &stubEngine{store: store}, nil
	})
	return r, sc
}

// stubEngine is the smallest Engine that exercises the router's
// init/handle/shutdown lifecycle without pulling in a real engine package.
type stubEngine struct {
	store      engine.KeyValueStore
	inited     bool
	shutdown   bool
	tickCount  int
}

func (e *stubEngine) Type() string { return "stub" }

func (e *stubEngine) Handle(ctx context.Context, req engine.Request) (engine.Response, error) {
	switch req.Operation {
	case engine.OpCreate:
		if err := e.store.Put(ctx, req.Subpath, []byte("ok")); err != nil {
			return engine.Response{}, err
		}
		return engine.Response{Data: map[string]any{"subpath": req.Subpath}}, nil
	case engine.OpRead:
		v, ok, err := e.store.Get(ctx, req.Subpath)
		if err != nil {
			return engine.Response{}, err
		}
		return engine.Response{Data: map[string]any{"found": ok, "value": string(v)}}, nil
	default:
		return engine.Response{}, nil
	}
}

func (e *stubEngine) Init(ctx context.Context) error     { e.inited = true; return nil }
func (e *stubEngine) Tick(ctx context.Context) error     { e.tickCount++; return nil }
func (e *stubEngine) Shutdown(ctx context.Context) error { e.shutdown = true; return nil }

func TestRouter_RegisterAndResolve(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRouter(t)

	require.NoError(t, r.Register(ctx, "secret", "stub", "test mount", nil))

	resolved, err := r.Resolve("secret/foo")
	require.NoError(t, err)
	require.Equal(t, "secret/", resolved.Entry.Path)
	require.Equal(t, "foo", resolved.Subpath)
}

func TestRouter_RegisterRejectsUnknownEngineType(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRouter(t)

	err := r.Register(ctx, "secret", "no-such-engine", "", nil)
	require.Error(t, err)
}

func TestRouter_RegisterRejectsOverlappingMount(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRouter(t)

	require.NoError(t, r.Register(ctx, "secret", "stub", "", nil))
	require.Error(t, r.Register(ctx, "secret/nested", "stub", "", nil))

	// A genuinely distinct prefix mounts fine.
	require.NoError(t, r.Register(ctx, "transit", "stub", "", nil))
}

func TestRouter_ResolveLongestPrefixWins(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRouter(t)

	require.NoError(t, r.Register(ctx, "kv", "stub", "", nil))
	require.NoError(t, r.Register(ctx, "kv/nested", "stub", "", nil))

	resolved, err := r.Resolve("kv/nested/leaf")
	require.NoError(t, err)
	require.Equal(t, "kv/nested/", resolved.Entry.Path)
	require.Equal(t, "leaf", resolved.Subpath)

	resolved, err = r.Resolve("kv/other")
	require.NoError(t, err)
	require.Equal(t, "kv/", resolved.Entry.Path)
	require.Equal(t, "other", resolved.Subpath)
}

func TestRouter_ResolveNoMatchIsNotFound(t *testing.T) {
	r, _ := newTestRouter(t)
	_, err := r.Resolve("nowhere/leaf")
	require.Error(t, err)
}

func TestRouter_UnmountRemovesStorageAndRejectsFurtherResolve(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRouter(t)

	require.NoError(t, r.Register(ctx, "secret", "stub", "", nil))
	resolved, err := r.Resolve("secret/foo")
	require.NoError(t, err)

	_, err = resolved.Engine.Handle(ctx, engine.Request{Operation: engine.OpCreate, Subpath: "foo"})
	require.NoError(t, err)

	require.NoError(t, r.Unmount(ctx, "secret"))

	_, err = r.Resolve("secret/foo")
	require.Error(t, err)

	// Re-mounting at the same path starts from empty storage: an engine
	// instantiated against it finds nothing left over from before.
	require.NoError(t, r.Register(ctx, "secret", "stub", "", nil))
	resolved, err = r.Resolve("secret/foo")
	require.NoError(t, err)
	resp, err := resolved.Engine.Handle(ctx, engine.Request{Operation: engine.OpRead, Subpath: "foo"})
	require.NoError(t, err)
	require.Equal(t, false, resp.Data["found"])
}

func TestRouter_LoadMountsRestoresPersistedEntries(t *testing.T) {
	ctx := context.Background()
	b := barrier.New(storage.NewMemoryBackend())
	sc, err := barrier.NewSealController(ctx, b, fixedIssuer{})
	require.NoError(t, err)
	res, err := sc.Initialize(ctx, 1, 1)
	require.NoError(t, err)
	_, err = sc.SubmitShare(ctx, res.Shares[0])
	require.NoError(t, err)

	r1 := New(b, subkeyFromBarrier{sc: sc})
	r1.RegisterFactory("stub", func(store engine.KeyValueStore, e Entry) (engine.Engine, error) {
		return &stubEngine{store: store}, nil
	})
	require.NoError(t, r1.Register(ctx, "secret", "stub", "restored", nil))

	// A fresh router over the same barrier, as happens on process restart
	// once the table has already been persisted, must recover the mount
	// without a second Register call.
	r2 := New(b, subkeyFromBarrier{sc: sc})
	r2.RegisterFactory("stub", func(store engine.KeyValueStore, e Entry) (engine.Engine, error) {
		return &stubEngine{store: store}, nil
	})
	require.NoError(t, r2.LoadMounts(ctx))

	resolved, err := r2.Resolve("secret/foo")
	require.NoError(t, err)
	require.Equal(t, "restored", resolved.Entry.Description)
}

func TestRouter_TickDrivesEveryLiveEngine(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRouter(t)
	require.NoError(t, r.Register(ctx, "a", "stub", "", nil))
	require.NoError(t, r.Register(ctx, "b", "stub", "", nil))

	require.NoError(t, r.Tick(ctx))

	ra, err := r.Resolve("a/x")
	require.NoError(t, err)
	rb, err := r.Resolve("b/x")
	require.NoError(t, err)
	require.Equal(t, 1, ra.Engine.(*stubEngine).tickCount)
	require.Equal(t, 1, rb.Engine.(*stubEngine).tickCount)
}
