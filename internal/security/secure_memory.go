package security

import "runtime"

// ZeroBytes overwrites data in place so a key or secret does not linger
// in memory after its owner is done with it. Callers hold sensitive
// material as []byte rather than string for exactly this reason: Go
// strings are immutable and cannot be wiped.
func ZeroBytes(data []byte) {
	if len(data) == 0 {
		return
	}

	for i := range data {
		data[i] = 0
	}

	runtime.KeepAlive(data)
}

// SecureCopy duplicates src into a freshly allocated slice so the caller
// can zero one copy without disturbing the other.
func SecureCopy(src []byte) []byte {
	if len(src) == 0 {
		return nil
	}

	dst := make([]byte, len(src))
	copy(dst, src)
	return dst
}
