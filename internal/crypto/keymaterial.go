package crypto

import (
	"fmt"

	"github.com/zvault/zvault/internal/security"
)

// KeyMaterial holds raw key bytes that must never outlive their scope in
// cleartext. It scrubs its backing array on Destroy and redacts itself in
// any diagnostic rendering (String, %v, %+v, slog). The seal controller is
// the only component that holds the root key's KeyMaterial directly;
// engines receive derived subkeys wrapped the same way.
type KeyMaterial struct {
	bytes     []byte
	destroyed bool
}

// NewKeyMaterial copies src into a freshly allocated KeyMaterial. Callers
// remain responsible for zeroizing src itself if it is not needed after
// the copy.
func NewKeyMaterial(src []byte) *KeyMaterial {
	return &KeyMaterial{bytes: security.SecureCopy(src)}
}

// Bytes returns the underlying key bytes. The returned slice aliases
// KeyMaterial's internal storage and must not be retained past Destroy.
func (k *KeyMaterial) Bytes() []byte {
	if k == nil || k.destroyed {
		return nil
	}
	return k.bytes
}

// Len reports the key length in bytes, or 0 once destroyed.
func (k *KeyMaterial) Len() int {
	if k == nil || k.destroyed {
		return 0
	}
	return len(k.bytes)
}

// Destroy scrubs the key bytes in place and marks the material unusable.
// Idempotent: calling Destroy twice is a no-op the second time.
func (k *KeyMaterial) Destroy() {
	if k == nil || k.destroyed {
		return
	}
	security.ZeroBytes(k.bytes)
	k.bytes = nil
	k.destroyed = true
}

// String never renders key bytes, even under debug logging.
func (k *KeyMaterial) String() string {
	if k == nil {
		return "<nil key material>"
	}
	if k.destroyed {
		return "<destroyed key material>"
	}
	return fmt.Sprintf("<key material, %d bytes, redacted>", len(k.bytes))
}

// GoString satisfies fmt's %#v verb with the same redaction as String.
func (k *KeyMaterial) GoString() string {
	return k.String()
}

// ZeroizeBestEffort scrubs a raw byte slice in place. It exists for the
// handful of call sites that must hold a bare []byte briefly (a
// reconstructed unseal key, a freshly derived subkey before it is wrapped
// in KeyMaterial) rather than threading a KeyMaterial through a single
// local scope.
func ZeroizeBestEffort(b []byte) {
	security.ZeroBytes(b)
}
