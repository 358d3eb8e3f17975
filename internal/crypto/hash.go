package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
)

// DigestSize is the output length of SHA-256, used for token digests and
// storage key fingerprints.
const DigestSize = sha256.Size

// Digest returns the SHA-256 digest of data. Token plaintext is hashed with
// this before it is ever written to storage.
func Digest(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// HMAC returns the HMAC-SHA256 of data under key. Used to tag sensitive
// audit fields so entries can be correlated without persisting plaintext.
func HMAC(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// ConstantTimeEqual reports whether a and b are equal, in time that depends
// only on their lengths. All token, digest, and signature comparisons in
// this module go through this function, never through bytes.Equal or ==.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
