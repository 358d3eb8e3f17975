// Package audit implements the fail-closed audit log: one HMAC'd entry per
// request, submitted to every enabled backend before a successful response
// is released. If every backend rejects an entry, the caller must treat the
// request as failed (§7's audit-failure error), reversing any mutation it
// already applied.
package audit

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zvault/zvault/internal/apperr"
	"github.com/zvault/zvault/internal/crypto"
)

// Entry is one append-only audit record: a timestamp, a fingerprint of the
// request and of the response, and the HMAC'd identity of the caller. No
// field ever carries a secret value, token plaintext, or share material in
// the clear — sensitive fields are HMAC'd with the process's audit key
// before the entry is built.
type Entry struct {
	ID                  string    `json:"id"`
	Timestamp           time.Time `json:"timestamp"`
	Operation           string    `json:"operation"`
	Path                string    `json:"path"`
	RequestFingerprint  string    `json:"request_fingerprint"`  // hex HMAC of sensitive request fields
	ResponseFingerprint string    `json:"response_fingerprint"` // hex HMAC of sensitive response fields
	StatusCode          int       `json:"status_code"`
	ErrorLabel          string    `json:"error_label,omitempty"`
	ActorTokenHMAC      string    `json:"actor_token_hmac"` // hex HMAC of the caller's token digest
	ActorPolicies       []string  `json:"actor_policies"`
}

// Backend is one audit sink. write(entry) -> ok or error, per §4.10: every
// enabled backend receives every entry; the log as a whole only fails
// closed when none of them accept it.
type Backend interface {
	Write(ctx context.Context, entry Entry) error
	Name() string
}

// HMACKey is the audit HMAC key generated fresh at process startup from the
// CSPRNG (§3) and zeroized at shutdown. It never persists.
type HMACKey struct {
	km *crypto.KeyMaterial
}

// NewHMACKey draws a fresh 256-bit key from the CSPRNG.
func NewHMACKey() (*HMACKey, error) {
	raw, err := crypto.RandomKey()
	if err != nil {
		return nil, fmt.Errorf("audit: failed to generate HMAC key: %w", err)
	}
	defer crypto.ZeroizeBestEffort(raw)
	return &HMACKey{km: crypto.NewKeyMaterial(raw)}, nil
}

// Fingerprint returns the hex HMAC of data under the key, the shape every
// sensitive audit field takes so entries can be correlated without ever
// exposing the plaintext they were computed over.
func (k *HMACKey) Fingerprint(data []byte) string {
	return hex.EncodeToString(crypto.HMAC(k.km.Bytes(), data))
}

// Destroy zeroizes the HMAC key. Called once at process shutdown.
func (k *HMACKey) Destroy() {
	k.km.Destroy()
}

// Log fans an entry out to every enabled backend and implements the
// fail-closed discipline: Write succeeds when at least one backend
// acknowledges, and returns apperr.AuditFailure only when all of them
// reject the entry, so the pipeline can refuse to release the response.
type Log struct {
	mu       sync.RWMutex
	backends []Backend
	hmacKey  *HMACKey
}

// New returns a Log with no backends enabled; call AddBackend for each
// configured destination (file, SQLite, ...).
func New(hmacKey *HMACKey) *Log {
	return &Log{hmacKey: hmacKey}
}

// AddBackend enables backend. The backend set is snapshot-on-write per the
// concurrency model (§5): writers replace the slice, readers never block.
func (l *Log) AddBackend(b Backend) {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := make([]Backend, len(l.backends), len(l.backends)+1)
	copy(next, l.backends)
	l.backends = append(next, b)
}

// HMACKey exposes the log's HMAC key so callers can fingerprint request and
// response fields before building an Entry.
func (l *Log) HMACKey() *HMACKey {
	return l.hmacKey
}

// NewEntry constructs an Entry with a fresh id and the current timestamp;
// callers fill in the remaining fields with fingerprinted data.
func NewEntry() Entry {
	return Entry{ID: uuid.NewString(), Timestamp: time.Now()}
}

// Write submits entry to every enabled backend and returns nil if at
// least one accepted it. If every backend errors (including the case of zero
// configured backends, which can never acknowledge anything), it returns
// apperr.AuditFailure — the request this entry describes must be treated
// as having no observable effect.
func (l *Log) Write(ctx context.Context, entry Entry) error {
	l.mu.RLock()
	backends := l.backends
	l.mu.RUnlock()

	if len(backends) == 0 {
		return apperr.New(apperr.KindAuditFailure, "no audit backends configured")
	}

	var lastErr error
	accepted := false
	for _, b := range backends {
		if err := b.Write(ctx, entry); err != nil {
			lastErr = fmt.Errorf("%s: %w", b.Name(), err)
			continue
		}
		accepted = true
	}
	if accepted {
		return nil
	}
	return fmt.Errorf("%w: all backends rejected entry %s: %v", apperr.AuditFailure, entry.ID, lastErr)
}
