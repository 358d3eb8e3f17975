package crypto

import (
	"fmt"

	"github.com/zvault/zvault/internal/security"
)

// RandomBytes returns n cryptographically secure random bytes, reading
// from the system CSPRNG via the shared secure random generator. The
// AEAD nonce (aead.go) and the Shamir coefficients (shamir.go) are read
// from crypto/rand directly rather than through here, and subkeys are
// derived with HKDF rather than drawn at random.
func RandomBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid random byte count: %d", n)
	}
	buf, err := security.GenerateSecureRandom(n)
	if err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return buf, nil
}

// RandomKey returns a fresh 256-bit symmetric key.
func RandomKey() ([]byte, error) {
	key, err := security.GenerateSecureKey(KeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}
	return key, nil
}
