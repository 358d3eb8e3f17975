package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backendFactories lets the conformance suite below run identically against
// every Backend implementation: the contract in storage.go promises the
// same behavior from all three.
func backendFactories(t *testing.T) map[string]func() Backend {
	t.Helper()
	return map[string]func() Backend{
		"memory": func() Backend {
			return NewMemoryBackend()
		},
		"bolt": func() Backend {
			b, err := NewBoltBackend(t.TempDir())
			require.NoError(t, err)
			return b
		},
		"lsm": func() Backend {
			l, err := NewLSMBackend(t.TempDir())
			require.NoError(t, err)
			return l
		},
	}
}

func TestBackends_ConformToContract(t *testing.T) {
	ctx := context.Background()

	for name, factory := range backendFactories(t) {
		t.Run(name, func(t *testing.T) {
			b := factory()
			defer b.Close()

			t.Run("GetMissingReturnsAbsentNotError", func(t *testing.T) {
				v, ok, err := b.Get(ctx, "missing")
				require.NoError(t, err)
				assert.False(t, ok)
				assert.Nil(t, v)
			})

			t.Run("PutThenGetRoundTrips", func(t *testing.T) {
				require.NoError(t, b.Put(ctx, "secret/foo", []byte("ciphertext-one")))
				v, ok, err := b.Get(ctx, "secret/foo")
				require.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, []byte("ciphertext-one"), v)
			})

			t.Run("PutIsLastWriterWins", func(t *testing.T) {
				require.NoError(t, b.Put(ctx, "secret/bar", []byte("v1")))
				require.NoError(t, b.Put(ctx, "secret/bar", []byte("v2")))
				v, ok, err := b.Get(ctx, "secret/bar")
				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, []byte("v2"), v)
			})

			t.Run("DeleteRemovesKey", func(t *testing.T) {
				require.NoError(t, b.Put(ctx, "secret/baz", []byte("v")))
				require.NoError(t, b.Delete(ctx, "secret/baz"))
				_, ok, err := b.Get(ctx, "secret/baz")
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("DeleteAbsentKeyIsNotAnError", func(t *testing.T) {
				assert.NoError(t, b.Delete(ctx, "never-existed"))
			})

			t.Run("ListReturnsLexicographicSuffixes", func(t *testing.T) {
				require.NoError(t, b.Put(ctx, "mount/zeta", []byte("1")))
				require.NoError(t, b.Put(ctx, "mount/alpha", []byte("2")))
				require.NoError(t, b.Put(ctx, "mount/mid", []byte("3")))
				require.NoError(t, b.Put(ctx, "other/unrelated", []byte("4")))

				suffixes, err := b.List(ctx, "mount/")
				require.NoError(t, err)
				assert.Equal(t, []string{"alpha", "mid", "zeta"}, suffixes)
			})

			t.Run("ListEmptyPrefixMatchesNothingAbsent", func(t *testing.T) {
				suffixes, err := b.List(ctx, "no-such-prefix/")
				require.NoError(t, err)
				assert.Empty(t, suffixes)
			})
		})
	}
}

func TestMemoryBackend_RejectsAfterClose(t *testing.T) {
	b := NewMemoryBackend()
	require.NoError(t, b.Close())

	_, _, err := b.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)

	err = b.Put(context.Background(), "k", []byte("v"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLSMBackend_SurvivesFlushAndReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	l, err := NewLSMBackend(dir)
	require.NoError(t, err)
	require.NoError(t, l.Put(ctx, "a", []byte("1")))
	require.NoError(t, l.Put(ctx, "b", []byte("2")))
	require.NoError(t, l.Delete(ctx, "a"))
	require.NoError(t, l.Flush())
	require.NoError(t, l.Close())

	reopened, err := NewLSMBackend(dir)
	require.NoError(t, err)
	defer reopened.Close()

	_, ok, err := reopened.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok, "tombstone must survive a flush and reopen")

	v, ok, err := reopened.Get(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("2"), v)
}

func TestLSMBackend_ReplaysWALWithoutFlush(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	l, err := NewLSMBackend(dir)
	require.NoError(t, err)
	require.NoError(t, l.Put(ctx, "unflushed", []byte("value")))
	require.NoError(t, l.Close())

	reopened, err := NewLSMBackend(dir)
	require.NoError(t, err)
	defer reopened.Close()

	v, ok, err := reopened.Get(ctx, "unflushed")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("value"), v)
}
