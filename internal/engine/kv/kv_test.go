package kv

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zvault/zvault/internal/apperr"
)

// memStore is a minimal in-memory engine.KeyValueStore for exercising the
// KV-v2 engine without the barrier or any encryption in the loop.
type memStore struct {
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (m *memStore) Put(_ context.Context, key string, value []byte) error {
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func (m *memStore) List(_ context.Context, prefix string) ([]string, error) {
	var out []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, strings.TrimPrefix(k, prefix))
		}
	}
	sort.Strings(out)
	return out, nil
}

func TestKV_WriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := New(newMemStore())

	v, err := e.Write(ctx, "app/db", map[string]any{"url": "postgres://x"})
	require.NoError(t, err)
	require.Equal(t, 1, v)

	data, version, err := e.Read(ctx, "app/db", 0)
	require.NoError(t, err)
	require.Equal(t, 1, version)
	require.Equal(t, "postgres://x", data["url"])
}

func TestKV_SoftDeleteThenUndelete(t *testing.T) {
	ctx := context.Background()
	e := New(newMemStore())

	_, err := e.Write(ctx, "app/db", map[string]any{"url": "x"})
	require.NoError(t, err)

	require.NoError(t, e.SoftDelete(ctx, "app/db", nil))
	_, _, err = e.Read(ctx, "app/db", 0)
	require.ErrorIs(t, err, apperr.Gone)

	require.NoError(t, e.Undelete(ctx, "app/db", nil))
	data, _, err := e.Read(ctx, "app/db", 0)
	require.NoError(t, err)
	require.Equal(t, "x", data["url"])
}

func TestKV_DestroyIsPermanent(t *testing.T) {
	ctx := context.Background()
	e := New(newMemStore())

	_, err := e.Write(ctx, "app/db", map[string]any{"url": "x"})
	require.NoError(t, err)

	require.NoError(t, e.Destroy(ctx, "app/db", []int{1}))
	_, _, err = e.Read(ctx, "app/db", 1)
	require.ErrorIs(t, err, apperr.Gone)

	require.NoError(t, e.Undelete(ctx, "app/db", []int{1}))
	_, _, err = e.Read(ctx, "app/db", 1)
	require.ErrorIs(t, err, apperr.Gone)
}

func TestKV_MaxVersionsTrimsOldest(t *testing.T) {
	ctx := context.Background()
	e := New(newMemStore())
	require.NoError(t, e.ConfigureMaxVersions(ctx, "app/db", 2))

	for i := 0; i < 3; i++ {
		_, err := e.Write(ctx, "app/db", map[string]any{"n": i})
		require.NoError(t, err)
	}

	_, _, err := e.Read(ctx, "app/db", 1)
	require.ErrorIs(t, err, apperr.Gone)

	data, v, err := e.Read(ctx, "app/db", 0)
	require.NoError(t, err)
	require.Equal(t, 3, v)
	require.EqualValues(t, 2, data["n"])
}

func TestKV_PathValidationRejectsBadPaths(t *testing.T) {
	ctx := context.Background()
	e := New(newMemStore())

	for _, bad := range []string{"", "a//b", "../etc", "a/../b", "a b", "a\x00b"} {
		_, err := e.Write(ctx, bad, map[string]any{})
		require.Error(t, err, "path %q should be rejected", bad)
	}
}

func TestKV_List(t *testing.T) {
	ctx := context.Background()
	e := New(newMemStore())

	_, err := e.Write(ctx, "app/db", map[string]any{"a": 1})
	require.NoError(t, err)
	_, err = e.Write(ctx, "app/cache", map[string]any{"a": 1})
	require.NoError(t, err)

	children, err := e.List(ctx, "app")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"db", "cache"}, children)
}
