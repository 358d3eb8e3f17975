package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShamir_SplitCombine_RoundTrip(t *testing.T) {
	secret, err := RandomKey()
	require.NoError(t, err)

	shares, err := Split(secret, 5, 3)
	require.NoError(t, err)
	assert.Len(t, shares, 5)

	combined, err := Combine(shares[:3])
	require.NoError(t, err)
	assert.Equal(t, secret, combined)
}

func TestShamir_Combine_AnyThresholdSubsetWorks(t *testing.T) {
	secret, err := RandomKey()
	require.NoError(t, err)

	shares, err := Split(secret, 5, 3)
	require.NoError(t, err)

	subsets := [][]Share{
		{shares[0], shares[1], shares[2]},
		{shares[1], shares[3], shares[4]},
		{shares[0], shares[2], shares[4]},
	}
	for _, subset := range subsets {
		combined, err := Combine(subset)
		require.NoError(t, err)
		assert.Equal(t, secret, combined)
	}
}

func TestShamir_Combine_BelowThresholdDoesNotReconstruct(t *testing.T) {
	secret, err := RandomKey()
	require.NoError(t, err)

	shares, err := Split(secret, 5, 3)
	require.NoError(t, err)

	// Two shares is below the threshold of three; Combine still runs (it
	// cannot know the original threshold) but must not silently produce the
	// right answer by coincidence.
	wrong, err := Combine(shares[:2])
	require.NoError(t, err)
	assert.NotEqual(t, secret, wrong)
}

func TestShamir_Split_RejectsInvalidParams(t *testing.T) {
	secret := []byte("secret")

	_, err := Split(secret, 5, 1)
	require.ErrorIs(t, err, ErrInvalidShamirParams)

	_, err = Split(secret, 11, 3)
	require.ErrorIs(t, err, ErrInvalidShamirParams)

	_, err = Split(secret, 3, 5)
	require.ErrorIs(t, err, ErrInvalidShamirParams)

	_, err = Split([]byte{}, 5, 3)
	require.ErrorIs(t, err, ErrInvalidShamirParams)
}

func TestShamir_Combine_RejectsDuplicateCoordinates(t *testing.T) {
	secret, err := RandomKey()
	require.NoError(t, err)
	shares, err := Split(secret, 5, 3)
	require.NoError(t, err)

	_, err = Combine([]Share{shares[0], shares[0], shares[1]})
	require.ErrorIs(t, err, ErrDuplicateShare)
}

func TestShamir_Combine_RejectsTooFewShares(t *testing.T) {
	secret, err := RandomKey()
	require.NoError(t, err)
	shares, err := Split(secret, 5, 3)
	require.NoError(t, err)

	_, err = Combine(shares[:1])
	require.ErrorIs(t, err, ErrInvalidShamirParams)
}

func TestShamir_EncodeDecodeShare_RoundTrip(t *testing.T) {
	secret, err := RandomKey()
	require.NoError(t, err)
	shares, err := Split(secret, 3, 2)
	require.NoError(t, err)

	for _, s := range shares {
		encoded := EncodeShare(s)
		decoded, err := DecodeShare(encoded)
		require.NoError(t, err)
		assert.Equal(t, s, decoded)
	}
}

func TestShamir_DecodeShare_RejectsMalformed(t *testing.T) {
	_, err := DecodeShare([]byte{0x01})
	require.ErrorIs(t, err, ErrMalformedShare)

	_, err = DecodeShare([]byte{0x00, 0x01, 0x02})
	require.ErrorIs(t, err, ErrMalformedShare)
}
