package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyMaterial_BytesReturnsCopyContent(t *testing.T) {
	src, err := RandomKey()
	require.NoError(t, err)
	km := NewKeyMaterial(src)
	defer km.Destroy()

	assert.Equal(t, src, km.Bytes())
	assert.Equal(t, KeySize, km.Len())
}

func TestKeyMaterial_DestroyScrubsAndDisables(t *testing.T) {
	src, err := RandomKey()
	require.NoError(t, err)
	km := NewKeyMaterial(src)

	km.Destroy()
	assert.Nil(t, km.Bytes())
	assert.Equal(t, 0, km.Len())

	// Idempotent.
	assert.NotPanics(t, func() { km.Destroy() })
}

func TestKeyMaterial_DoesNotAliasSource(t *testing.T) {
	src, err := RandomKey()
	require.NoError(t, err)
	original := append([]byte(nil), src...)
	km := NewKeyMaterial(src)
	defer km.Destroy()

	src[0] ^= 0xFF
	assert.Equal(t, original, km.Bytes())
}

func TestKeyMaterial_StringNeverLeaksBytes(t *testing.T) {
	src, err := RandomKey()
	require.NoError(t, err)
	km := NewKeyMaterial(src)

	rendered := km.String()
	assert.NotContains(t, rendered, string(src))
	assert.Contains(t, rendered, "redacted")

	km.Destroy()
	assert.Contains(t, km.String(), "destroyed")
}

func TestKeyMaterial_NilReceiverIsSafe(t *testing.T) {
	var km *KeyMaterial
	assert.Nil(t, km.Bytes())
	assert.Equal(t, 0, km.Len())
	assert.NotPanics(t, func() { km.Destroy() })
	assert.Contains(t, km.String(), "nil")
}
