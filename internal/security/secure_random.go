package security

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
)

// SecureRandomGenerator wraps crypto/rand.Reader behind a mutex so the
// package-level helpers below share one serialized reader instead of
// each call opening its own.
type SecureRandomGenerator struct {
	reader io.Reader
	mutex  sync.Mutex
}

func NewSecureRandomGenerator() *SecureRandomGenerator {
	return &SecureRandomGenerator{
		reader: rand.Reader,
	}
}

func (srg *SecureRandomGenerator) Read(b []byte) (int, error) {
	srg.mutex.Lock()
	defer srg.mutex.Unlock()

	n, err := srg.reader.Read(b)
	if err != nil {
		return n, fmt.Errorf("secure random generation failed: %w", err)
	}

	return n, nil
}

// Generate returns size bytes of cryptographically secure random data.
func (srg *SecureRandomGenerator) Generate(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid size: %d", size)
	}

	data := make([]byte, size)
	if _, err := srg.Read(data); err != nil {
		return nil, err
	}

	return data, nil
}

// GenerateKey generates a symmetric key, rejecting sizes too small to be
// a sound AES or HMAC key.
func (srg *SecureRandomGenerator) GenerateKey(keySize int) ([]byte, error) {
	validKeySizes := map[int]bool{
		16: true, // AES-128
		24: true, // AES-192
		32: true, // AES-256
		64: true, // HMAC and similar
	}

	if !validKeySizes[keySize] && keySize < 16 {
		return nil, fmt.Errorf("insecure key size: %d bytes (minimum 16 bytes)", keySize)
	}

	return srg.Generate(keySize)
}

var sharedRandom = NewSecureRandomGenerator()

// GenerateSecureRandom returns size bytes of cryptographically secure
// random data from the shared generator.
func GenerateSecureRandom(size int) ([]byte, error) {
	return sharedRandom.Generate(size)
}

// GenerateSecureKey generates a symmetric key of the given size.
func GenerateSecureKey(keySize int) ([]byte, error) {
	return sharedRandom.GenerateKey(keySize)
}
