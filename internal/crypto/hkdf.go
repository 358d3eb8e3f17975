package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// subkeySalt is a fixed, public salt for per-engine subkey derivation. HKDF
// salts need not be secret; fixing it keeps derivation deterministic across
// unseal cycles for a given root key and info string.
var subkeySalt = []byte("zvault/barrier/hkdf-salt/v1")

// DeriveSubkey derives a 256-bit subkey from the root key via HKDF-SHA256.
// info should be of the form "zvault/<engine-type>/v1"; two calls with the
// same root key and info always produce the same subkey, and two different
// info strings yield computationally independent subkeys.
func DeriveSubkey(rootKey []byte, info string) ([]byte, error) {
	if len(rootKey) != KeySize {
		return nil, fmt.Errorf("%w: root key must be %d bytes, got %d", ErrInvalidKeySize, KeySize, len(rootKey))
	}
	reader := hkdf.New(sha256.New, rootKey, subkeySalt, []byte(info))
	subkey := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, subkey); err != nil {
		return nil, fmt.Errorf("hkdf derivation failed: %w", err)
	}
	return subkey, nil
}

// EngineInfo formats the HKDF info string for a named engine type, per
// the "zvault/<engine-type>/v1" convention.
func EngineInfo(engineType string) string {
	return fmt.Sprintf("zvault/%s/v1", engineType)
}
