// Package lease implements the lease manager: the bound on the lifetime of
// every dynamic credential any engine issues, indexed by id, by owning
// token, and by expiry bucket, with a background scanner that revokes
// expired leases.
package lease

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zvault/zvault/internal/apperr"
	"github.com/zvault/zvault/internal/barrier"
	"github.com/zvault/zvault/internal/monitoring"
	"github.com/zvault/zvault/internal/reliability"
)

const (
	leasePrefix        = "core/leases/"
	byTokenPrefix      = "core/leases/by-token/"
	byExpiryPrefix     = "core/leases/by-expiry/"
	expiryBucketLayout = "20060102T1504" // minute-granularity buckets
)

// Lease is the tuple the spec names in §3: an issued credential's
// lifetime, the engine that owns it, and enough engine-specific data to
// revoke it later.
type Lease struct {
	ID             string         `json:"id"`
	EnginePath     string         `json:"engine_path"`
	TokenDigestHex string         `json:"token_digest_hex"`
	IssueTime      time.Time      `json:"issue_time"`
	TTL            time.Duration  `json:"ttl"`
	MaxTTL         time.Duration  `json:"max_ttl"`
	Renewable      bool           `json:"renewable"`
	RevocationData map[string]any `json:"revocation_data"`
}

func (l Lease) expiresAt() time.Time {
	return l.IssueTime.Add(l.TTL)
}

func bucketOf(t time.Time) string {
	return t.UTC().Format(expiryBucketLayout)
}

// RevokeFunc is the owning engine's revocation hook: given the engine path
// and the lease's engine-specific revocation data, undo whatever
// credential the lease represents. Wired by the mount router, which knows
// how to dispatch to the live engine instance at EnginePath.
type RevokeFunc func(ctx context.Context, enginePath string, revocationData map[string]any) error

// Manager implements lease creation, renewal, and cascading revocation.
type Manager struct {
	b       *barrier.Barrier
	revoke  RevokeFunc
	retry   *reliability.RetryExecutor
	metrics monitoring.MetricsCollector
}

// SetMetrics installs the collector lease creation and revocation are
// reported to.
func (m *Manager) SetMetrics(c monitoring.MetricsCollector) {
	if c != nil {
		m.metrics = c
	}
}

// New returns a Manager persisting through b. SetRevoker must be called
// before any lease with engine-specific revocation data is revoked;
// leases with nil RevocationData revoke cleanly without it.
func New(b *barrier.Barrier) *Manager {
	policy := reliability.NewExponentialBackoffPolicy(reliability.RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	})
	return &Manager{b: b, retry: reliability.NewRetryExecutor(policy), metrics: &monitoring.NoOpMetricsCollector{}}
}

// SetRevoker wires the mount router's engine-dispatch hook.
func (m *Manager) SetRevoker(fn RevokeFunc) {
	m.revoke = fn
}

// Create persists a lease's payload and both index entries, in that order
// per §4.9, and returns the generated lease id.
func (m *Manager) Create(ctx context.Context, enginePath, tokenDigestHex string, ttl, maxTTL time.Duration, renewable bool, revocationData map[string]any) (string, error) {
	id := uuid.NewString()
	l := Lease{
		ID:             id,
		EnginePath:     enginePath,
		TokenDigestHex: tokenDigestHex,
		IssueTime:      time.Now(),
		TTL:            ttl,
		MaxTTL:         maxTTL,
		Renewable:      renewable,
		RevocationData: revocationData,
	}

	if err := m.putLease(ctx, l); err != nil {
		return "", err
	}
	if err := m.b.EncryptPut(ctx, byTokenKey(tokenDigestHex, id), []byte{1}, nil); err != nil {
		return "", fmt.Errorf("lease: failed to write by-token index for %s: %w", id, err)
	}
	if err := m.b.EncryptPut(ctx, byExpiryKey(bucketOf(l.expiresAt()), id), []byte{1}, nil); err != nil {
		return "", fmt.Errorf("lease: failed to write by-expiry index for %s: %w", id, err)
	}
	m.metrics.IncrementCounter("lease.created", map[string]string{"engine_path": enginePath})
	return id, nil
}

func leaseKey(id string) string                  { return leasePrefix + id }
func byTokenKey(tokenDigestHex, id string) string { return byTokenPrefix + tokenDigestHex + "/" + id }
func byExpiryKey(bucket, id string) string        { return byExpiryPrefix + bucket + "/" + id }

func (m *Manager) putLease(ctx context.Context, l Lease) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("lease: failed to marshal %s: %w", l.ID, err)
	}
	return m.b.EncryptPut(ctx, leaseKey(l.ID), data, nil)
}

// Get returns the lease record for id.
func (m *Manager) Get(ctx context.Context, id string) (Lease, error) {
	data, ok, err := m.b.DecryptGet(ctx, leaseKey(id), nil)
	if err != nil {
		return Lease{}, err
	}
	if !ok {
		return Lease{}, apperr.New(apperr.KindNotFound, "no lease %q", id)
	}
	var l Lease
	if err := json.Unmarshal(data, &l); err != nil {
		return Lease{}, fmt.Errorf("%w: corrupt lease record %q", apperr.Corruption, id)
	}
	return l, nil
}

// Renew bumps a lease's effective TTL by inc, subject to max-TTL, and
// moves its expiry-index entry.
func (m *Manager) Renew(ctx context.Context, id string, inc time.Duration) (Lease, error) {
	l, err := m.Get(ctx, id)
	if err != nil {
		return Lease{}, err
	}
	if !l.Renewable {
		return Lease{}, apperr.New(apperr.KindInvalidArgument, "lease %q is not renewable", id)
	}

	oldBucket := bucketOf(l.expiresAt())
	newTTL := l.TTL + inc
	if l.MaxTTL > 0 && newTTL > l.MaxTTL {
		newTTL = l.MaxTTL
	}
	l.TTL = newTTL

	if err := m.putLease(ctx, l); err != nil {
		return Lease{}, err
	}
	newBucket := bucketOf(l.expiresAt())
	if newBucket != oldBucket {
		if err := m.b.EncryptPut(ctx, byExpiryKey(newBucket, id), []byte{1}, nil); err != nil {
			return Lease{}, fmt.Errorf("lease: failed to move expiry index for %s: %w", id, err)
		}
		if err := m.b.Delete(ctx, byExpiryKey(oldBucket, id)); err != nil {
			return Lease{}, fmt.Errorf("lease: failed to drop stale expiry index for %s: %w", id, err)
		}
	}
	return l, nil
}

// Revoke invokes the owning engine's revocation hook with bounded retry,
// then removes all three records. Per §4.9's ordering guarantee, the
// lease record is the last thing removed, so a credential can never
// outlive the index entry that would let the scanner find it again.
func (m *Manager) Revoke(ctx context.Context, id string) error {
	l, err := m.Get(ctx, id)
	if err != nil {
		if kind, ok := apperr.KindOf(err); ok && kind == apperr.KindNotFound {
			return nil
		}
		return err
	}

	if m.revoke != nil && l.RevocationData != nil {
		err := m.retry.Execute(ctx, func(ctx context.Context) error {
			return m.revoke(ctx, l.EnginePath, l.RevocationData)
		})
		if err != nil {
			// Per §4.9: a persistently failing revocation is reported and
			// escalated, but the index entry remains so retries continue.
			// The caller (scanner or explicit revoke) surfaces the error;
			// we do not remove the lease records on this path.
			return fmt.Errorf("lease: revocation hook failed for %s after retries: %w", id, err)
		}
	}

	if err := m.b.Delete(ctx, byTokenKey(l.TokenDigestHex, id)); err != nil {
		return fmt.Errorf("lease: failed to remove by-token index for %s: %w", id, err)
	}
	if err := m.b.Delete(ctx, byExpiryKey(bucketOf(l.expiresAt()), id)); err != nil {
		return fmt.Errorf("lease: failed to remove by-expiry index for %s: %w", id, err)
	}
	if err := m.b.Delete(ctx, leaseKey(id)); err != nil {
		return fmt.Errorf("lease: failed to remove lease record %s: %w", id, err)
	}
	m.metrics.IncrementCounter("lease.revoked", map[string]string{"engine_path": l.EnginePath})
	return nil
}

// RevokeByToken implements internal/token.LeaseRevoker: drains every
// lease owned by tokenDigestHex.
func (m *Manager) RevokeByToken(ctx context.Context, tokenDigestHex string) error {
	ids, err := m.b.List(ctx, byTokenPrefix+tokenDigestHex+"/")
	if err != nil {
		return fmt.Errorf("lease: failed to list leases for token %s: %w", tokenDigestHex, err)
	}
	for _, id := range ids {
		if err := m.Revoke(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// RevokePrefix implements internal/mount.LeaseRevoker: revokes every lease
// whose EnginePath falls under enginePath, in bounded batches. There is no
// by-engine index in the persisted layout (§6 only indexes by id, by
// token, and by expiry bucket), so this scans every lease record; real
// deployments bound this by keeping mount lifetimes long relative to
// lease count.
func (m *Manager) RevokePrefix(ctx context.Context, enginePath string) error {
	const batchSize = 100
	ids, err := m.b.List(ctx, leasePrefix)
	if err != nil {
		return fmt.Errorf("lease: failed to list leases: %w", err)
	}
	// leasePrefix also contains the by-token/ and by-expiry/ subtrees;
	// filter those out before treating entries as lease ids.
	matching := make([]string, 0, len(ids))
	for _, id := range ids {
		if strings.HasPrefix(id, "by-token/") || strings.HasPrefix(id, "by-expiry/") {
			continue
		}
		l, err := m.Get(ctx, id)
		if err != nil {
			continue
		}
		if strings.HasPrefix(l.EnginePath, enginePath) {
			matching = append(matching, id)
		}
	}
	for start := 0; start < len(matching); start += batchSize {
		end := start + batchSize
		if end > len(matching) {
			end = len(matching)
		}
		for _, id := range matching[start:end] {
			if err := m.Revoke(ctx, id); err != nil {
				return err
			}
		}
	}
	return nil
}

// ScanExpired reads every expiry bucket at or before now and revokes the
// leases in it. It is the body of the background scanner's periodic tick.
func (m *Manager) ScanExpired(ctx context.Context, now time.Time) error {
	buckets, err := m.b.List(ctx, byExpiryPrefix)
	if err != nil {
		return fmt.Errorf("lease: failed to list expiry buckets: %w", err)
	}
	nowBucket := bucketOf(now)

	seenBuckets := map[string]bool{}
	for _, entry := range buckets {
		i := strings.Index(entry, "/")
		if i < 0 {
			continue
		}
		seenBuckets[entry[:i]] = true
	}
	for bucket := range seenBuckets {
		if bucket > nowBucket {
			continue
		}
		ids, err := m.b.List(ctx, byExpiryPrefix+bucket+"/")
		if err != nil {
			return fmt.Errorf("lease: failed to list bucket %s: %w", bucket, err)
		}
		for _, id := range ids {
			if err := m.Revoke(ctx, id); err != nil {
				return err
			}
		}
	}
	return nil
}

// RunScanner drives ScanExpired on a fixed interval until ctx is
// cancelled, the way any single background task in this module
// parameterizes by interval and shuts down cooperatively (§4.9, §9).
func (m *Manager) RunScanner(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			_ = m.ScanExpired(ctx, now)
		}
	}
}
