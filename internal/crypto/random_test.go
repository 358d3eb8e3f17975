package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomBytes_Length(t *testing.T) {
	b, err := RandomBytes(32)
	require.NoError(t, err)
	assert.Len(t, b, 32)
}

func TestRandomBytes_RejectsNonPositiveLength(t *testing.T) {
	_, err := RandomBytes(0)
	require.Error(t, err)

	_, err = RandomBytes(-1)
	require.Error(t, err)
}

func TestRandomBytes_NotConstant(t *testing.T) {
	a, err := RandomBytes(32)
	require.NoError(t, err)
	b, err := RandomBytes(32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestRandomKey_Size(t *testing.T) {
	k, err := RandomKey()
	require.NoError(t, err)
	assert.Len(t, k, KeySize)
}
