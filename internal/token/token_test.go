package token

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zvault/zvault/internal/apperr"
	"github.com/zvault/zvault/internal/barrier"
	"github.com/zvault/zvault/internal/storage"
)

// unsealedBarrier builds a Barrier plus a SealController wired with a real
// Store as its RootTokenIssuer, runs a full initialize+unseal cycle, and
// returns both, mirroring how the request pipeline wires them in practice.
func unsealedBarrier(t *testing.T) (*barrier.Barrier, *Store) {
	t.Helper()
	ctx := context.Background()
	b := barrier.New(storage.NewMemoryBackend())
	store := NewStore(b)
	sc, err := barrier.NewSealController(ctx, b, store)
	require.NoError(t, err)

	result, err := sc.Initialize(ctx, 3, 2)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := sc.SubmitShare(ctx, result.Shares[i])
		require.NoError(t, err)
	}
	require.False(t, b.IsSealed())
	return b, store
}

func TestStore_Create_ReturnsPlaintextOnceAndPersistsDigestOnly(t *testing.T) {
	ctx := context.Background()
	_, store := unsealedBarrier(t)

	plaintext, attrs, err := store.Create(ctx, "", []string{"default"}, time.Hour, 0, true)
	require.NoError(t, err)
	assert.NotEmpty(t, plaintext)
	assert.Equal(t, digestHex(plaintext), attrs.DigestHex)
}

func TestStore_Lookup_RoundTrips(t *testing.T) {
	ctx := context.Background()
	_, store := unsealedBarrier(t)

	plaintext, _, err := store.Create(ctx, "", []string{"default"}, time.Hour, 0, true)
	require.NoError(t, err)

	attrs, err := store.Lookup(ctx, plaintext)
	require.NoError(t, err)
	assert.Equal(t, []string{"default"}, attrs.Policies)
}

func TestStore_Lookup_UnknownTokenIsUnauthenticated(t *testing.T) {
	ctx := context.Background()
	_, store := unsealedBarrier(t)

	_, err := store.Lookup(ctx, "zvault.nonexistent")
	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindUnauthenticated, kind)
}

func TestStore_Lookup_ExpiredTokenIsUnauthenticated(t *testing.T) {
	ctx := context.Background()
	_, store := unsealedBarrier(t)
	store.now = func() time.Time { return time.Unix(1000, 0) }

	plaintext, _, err := store.Create(ctx, "", nil, time.Second, 0, false)
	require.NoError(t, err)

	store.now = func() time.Time { return time.Unix(2000, 0) }
	_, err = store.Lookup(ctx, plaintext)
	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindUnauthenticated, kind)
}

func TestStore_Renew_ExtendsWithinMaxTTL(t *testing.T) {
	ctx := context.Background()
	_, store := unsealedBarrier(t)
	base := time.Unix(1000, 0)
	store.now = func() time.Time { return base }

	plaintext, _, err := store.Create(ctx, "", nil, time.Minute, 10*time.Minute, true)
	require.NoError(t, err)

	store.now = func() time.Time { return base.Add(time.Minute) }
	attrs, err := store.Renew(ctx, plaintext, 100*time.Hour)
	require.NoError(t, err)
	// Capped by max TTL remaining (10 minutes from creation, 1 minute elapsed).
	assert.Equal(t, base.Add(time.Minute).Add(9*time.Minute), attrs.ExpiresAt)
}

func TestStore_Renew_RejectsNonRenewable(t *testing.T) {
	ctx := context.Background()
	_, store := unsealedBarrier(t)
	plaintext, _, err := store.Create(ctx, "", nil, time.Hour, 0, false)
	require.NoError(t, err)

	_, err = store.Renew(ctx, plaintext, time.Hour)
	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindInvalidArgument, kind)
}

func TestStore_Revoke_CascadesThroughDescendantForest(t *testing.T) {
	ctx := context.Background()
	_, store := unsealedBarrier(t)

	rootPlain, rootAttrs, err := store.Create(ctx, "", []string{RootPolicyName}, 0, 0, false)
	require.NoError(t, err)

	t1Plain, t1Attrs, err := store.Create(ctx, rootAttrs.DigestHex, []string{"default"}, 0, 0, false)
	require.NoError(t, err)

	t2Plain, _, err := store.Create(ctx, t1Attrs.DigestHex, []string{"default"}, 0, 0, false)
	require.NoError(t, err)

	require.NoError(t, store.Revoke(ctx, t1Plain))

	_, err = store.Lookup(ctx, t2Plain)
	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindUnauthenticated, kind, "revoking a parent must revoke its descendants")

	_, err = store.Lookup(ctx, t1Plain)
	assert.Error(t, err)

	// The root token itself, a sibling of t1's subtree, must survive.
	_, err = store.Lookup(ctx, rootPlain)
	assert.NoError(t, err)
}

type fakeLeaseRevoker struct {
	revoked []string
}

func (f *fakeLeaseRevoker) RevokeByToken(_ context.Context, digest string) error {
	f.revoked = append(f.revoked, digest)
	return nil
}

func TestStore_Revoke_CascadesIntoWiredLeaseRevoker(t *testing.T) {
	ctx := context.Background()
	_, store := unsealedBarrier(t)
	revoker := &fakeLeaseRevoker{}
	store.SetLeaseRevoker(revoker)

	plaintext, attrs, err := store.Create(ctx, "", nil, 0, 0, false)
	require.NoError(t, err)
	require.NoError(t, store.Revoke(ctx, plaintext))

	assert.Contains(t, revoker.revoked, attrs.DigestHex)
}

func TestStore_IssueRootToken_CarriesRootPolicy(t *testing.T) {
	ctx := context.Background()
	_, store := unsealedBarrier(t)

	plaintext, err := store.IssueRootToken(ctx)
	require.NoError(t, err)

	attrs, err := store.Lookup(ctx, plaintext)
	require.NoError(t, err)
	assert.Equal(t, []string{RootPolicyName}, attrs.Policies)
	assert.True(t, attrs.ExpiresAt.IsZero(), "root token must not expire")
}
