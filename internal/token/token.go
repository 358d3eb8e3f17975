package token

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zvault/zvault/internal/apperr"
	"github.com/zvault/zvault/internal/barrier"
	"github.com/zvault/zvault/internal/crypto"
)

const (
	tokenPrefix       = "core/tokens/"
	tokenParentPrefix = "core/tokens-by-parent/"

	// tokenPayloadLen is the number of random bytes in a token's plaintext
	// payload, per the spec's "32 bytes of random payload".
	tokenPayloadLen = 32

	tokenStringPrefix = "zvault."
)

// Attributes is what lookup returns: everything about a token except its
// plaintext, which is never stored.
type Attributes struct {
	DigestHex string        `json:"digest_hex"`
	Parent    string        `json:"parent,omitempty"` // parent's DigestHex, empty for the root token
	Policies  []string      `json:"policies"`
	CreatedAt time.Time     `json:"created_at"`
	TTL       time.Duration `json:"ttl"`
	MaxTTL    time.Duration `json:"max_ttl"`
	ExpiresAt time.Time     `json:"expires_at"` // zero value means non-expiring
	Renewable bool          `json:"renewable"`
}

func (a Attributes) expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}

// LeaseRevoker is the narrow capability the token store needs from the
// lease manager: cascade-revoke every lease owned by a revoked token.
// Wired after construction to avoid an import cycle (the lease manager
// itself depends on token only for digest strings, not this package).
type LeaseRevoker interface {
	RevokeByToken(ctx context.Context, tokenDigestHex string) error
}

// Store implements token lifecycle: create, lookup, renew, revoke, and the
// parent-child revocation forest.
type Store struct {
	b            *barrier.Barrier
	leaseRevoker LeaseRevoker
	now          func() time.Time
}

// NewStore wraps b. Tokens are persisted through the barrier under
// core/tokens/<digest-hex> and core/tokens-by-parent/<parent>/<child>.
func NewStore(b *barrier.Barrier) *Store {
	return &Store{b: b, now: time.Now}
}

// SetLeaseRevoker wires the lease manager's cascade-revocation hook. Must
// be called before Revoke is exercised in a fully wired server; tests may
// leave it nil, in which case Revoke skips lease cascade.
func (s *Store) SetLeaseRevoker(r LeaseRevoker) {
	s.leaseRevoker = r
}

func digestHex(plaintext string) string {
	return hex.EncodeToString(crypto.Digest([]byte(plaintext)))
}

func tokenKey(digestHex string) string {
	return tokenPrefix + digestHex
}

func parentKey(parentDigestHex, childDigestHex string) string {
	return tokenParentPrefix + parentDigestHex + "/" + childDigestHex
}

// generatePlaintext draws 32 random bytes and formats them as a URL-safe
// string under a fixed prefix, the way every issued token (including the
// root token) is rendered to its holder.
func generatePlaintext() (string, error) {
	raw, err := crypto.RandomBytes(tokenPayloadLen)
	if err != nil {
		return "", fmt.Errorf("token: failed to generate payload: %w", err)
	}
	return tokenStringPrefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

// Create generates a fresh token under parent (empty for a root-level
// token) carrying policies, ttl, and returns its plaintext exactly once;
// only the SHA-256 digest is ever persisted.
func (s *Store) Create(ctx context.Context, parentDigestHex string, policies []string, ttl, maxTTL time.Duration, renewable bool) (plaintext string, attrs Attributes, err error) {
	plaintext, err = generatePlaintext()
	if err != nil {
		return "", Attributes{}, err
	}
	digest := digestHex(plaintext)

	now := s.now()
	attrs = Attributes{
		DigestHex: digest,
		Parent:    parentDigestHex,
		Policies:  policies,
		CreatedAt: now,
		TTL:       ttl,
		MaxTTL:    maxTTL,
		Renewable: renewable,
	}
	if ttl > 0 {
		attrs.ExpiresAt = now.Add(ttl)
	}

	if err := s.putAttrs(ctx, attrs); err != nil {
		return "", Attributes{}, err
	}

	if parentDigestHex != "" {
		if err := s.b.EncryptPut(ctx, parentKey(parentDigestHex, digest), []byte{1}, nil); err != nil {
			return "", Attributes{}, fmt.Errorf("token: failed to record parent pointer: %w", err)
		}
	}
	return plaintext, attrs, nil
}

// IssueRootToken implements barrier.RootTokenIssuer: a non-expiring,
// non-renewable token carrying only the root policy, with no parent.
func (s *Store) IssueRootToken(ctx context.Context) (string, error) {
	plaintext, _, err := s.Create(ctx, "", []string{RootPolicyName}, 0, 0, false)
	return plaintext, err
}

func (s *Store) putAttrs(ctx context.Context, attrs Attributes) error {
	data, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("token: failed to marshal attributes: %w", err)
	}
	if err := s.b.EncryptPut(ctx, tokenKey(attrs.DigestHex), data, nil); err != nil {
		return err
	}
	return nil
}

// Lookup hashes plaintext, retrieves its attributes, and checks expiry.
// It never returns both a not-found/expired error and attributes.
func (s *Store) Lookup(ctx context.Context, plaintext string) (Attributes, error) {
	digest := digestHex(plaintext)
	return s.lookupByDigest(ctx, digest)
}

func (s *Store) lookupByDigest(ctx context.Context, digest string) (Attributes, error) {
	data, ok, err := s.b.DecryptGet(ctx, tokenKey(digest), nil)
	if err != nil {
		return Attributes{}, err
	}
	if !ok {
		return Attributes{}, apperr.New(apperr.KindUnauthenticated, "token not found")
	}
	var attrs Attributes
	if err := json.Unmarshal(data, &attrs); err != nil {
		return Attributes{}, fmt.Errorf("token: corrupt token record: %w", err)
	}
	if attrs.expired(s.now()) {
		return Attributes{}, apperr.New(apperr.KindUnauthenticated, "token expired")
	}
	return attrs, nil
}

// Renew extends a token's expiry by min(increment, remaining max-TTL).
func (s *Store) Renew(ctx context.Context, plaintext string, increment time.Duration) (Attributes, error) {
	attrs, err := s.Lookup(ctx, plaintext)
	if err != nil {
		return Attributes{}, err
	}
	if !attrs.Renewable {
		return Attributes{}, apperr.New(apperr.KindInvalidArgument, "token is not renewable")
	}

	now := s.now()
	grant := increment
	if attrs.MaxTTL > 0 {
		elapsed := now.Sub(attrs.CreatedAt)
		remaining := attrs.MaxTTL - elapsed
		if remaining <= 0 {
			return Attributes{}, apperr.New(apperr.KindInvalidArgument, "token has reached its max TTL")
		}
		if grant > remaining {
			grant = remaining
		}
	}
	attrs.ExpiresAt = now.Add(grant)
	if err := s.putAttrs(ctx, attrs); err != nil {
		return Attributes{}, err
	}
	return attrs, nil
}

// Revoke deletes the token identified by plaintext and recursively revokes
// every descendant in the parent-child forest, using an explicit worklist
// rather than recursion so a deep tree cannot overflow the call stack. It
// also cascades into the lease manager, if wired, so every lease owned by
// any revoked token in the subtree is released.
func (s *Store) Revoke(ctx context.Context, plaintext string) error {
	digest := digestHex(plaintext)
	return s.revokeByDigest(ctx, digest)
}

func (s *Store) revokeByDigest(ctx context.Context, rootDigest string) error {
	worklist := []string{rootDigest}
	seen := map[string]bool{}

	for len(worklist) > 0 {
		digest := worklist[0]
		worklist = worklist[1:]
		if seen[digest] {
			continue
		}
		seen[digest] = true

		children, err := s.b.List(ctx, tokenParentPrefix+digest+"/")
		if err != nil {
			return fmt.Errorf("token: failed to list children of %s: %w", digest, err)
		}
		worklist = append(worklist, children...)

		if err := s.b.Delete(ctx, tokenKey(digest)); err != nil {
			return fmt.Errorf("token: failed to delete token %s: %w", digest, err)
		}
		for _, child := range children {
			if err := s.b.Delete(ctx, parentKey(digest, child)); err != nil {
				return fmt.Errorf("token: failed to delete forest pointer for %s: %w", child, err)
			}
		}
		if s.leaseRevoker != nil {
			if err := s.leaseRevoker.RevokeByToken(ctx, digest); err != nil {
				return fmt.Errorf("token: failed to cascade-revoke leases for %s: %w", digest, err)
			}
		}
	}
	return nil
}
