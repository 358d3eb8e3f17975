// Package autounseal implements the convenience unseal path SPEC_FULL.md
// §C.1 adds over the spec's manual-Shamir baseline (§4.4): instead of an
// operator submitting threshold shares by hand, an external KMS wraps
// and unwraps the unseal key's Shamir shares.
//
// zvault still splits the unseal key into Shamir shares internally (the
// barrier and seal controller know nothing about auto-unseal); what
// changes is who holds the shares. Manual unseal hands them to
// operators. Auto-unseal wraps all of them together under the external
// key and persists the wrapped blob, then unwraps and submits them
// itself at startup.
package autounseal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zvault/zvault/internal/crypto"
	"github.com/zvault/zvault/internal/reliability"
	"github.com/zvault/zvault/internal/security"
)

// crm wraps every provider call in the KMS-tuned reliability profile
// (tighter retry/circuit-breaker thresholds than the general default,
// since the wrapped shares unlock the whole vault and a flapping KMS
// should fail fast rather than hammer the network). One
// CryptoReliabilityManager is shared across all configured providers;
// it keys its underlying services by "kms_"+operationName, so AWS KMS
// and Vault Transit trip independently of each other.
var crm = reliability.NewCryptoReliabilityManager(reliability.DefaultCryptoReliabilityConfig())

// callProvider executes fn as a named KMS operation through crm: bounded
// retry gated by a circuit breaker, so a transient network blip retries
// but a persistently unreachable KMS fails fast instead of retrying into
// an open circuit.
func callProvider(ctx context.Context, providerName string, fn func(context.Context) error) error {
	return crm.ExecuteKMSOperation(ctx, providerName, fn)
}

// Provider wraps and unwraps the unseal key's Shamir shares using an
// external key management service. zvault ships AWS KMS and HashiCorp
// Vault Transit implementations; it is the same shape as the top-level
// AutoUnsealProvider interface, duplicated here so this package does not
// import the root package (which imports internal packages, not the
// other way around).
type Provider interface {
	Name() string
	WrapRootKey(ctx context.Context, rootKey []byte) (wrapped []byte, err error)
	UnwrapRootKey(ctx context.Context, wrapped []byte) (rootKey []byte, err error)
}

// sealedShares is the on-disk shape of the Shamir shares, wrapped
// together as one opaque blob under the external key.
type sealedShares struct {
	Shares []crypto.Share `json:"shares"`
}

// Seal wraps every share in shares into one ciphertext blob the
// provider can later unwrap. Called once, right after
// SealController.Initialize, when a Provider is configured.
func Seal(ctx context.Context, provider Provider, shares []crypto.Share) ([]byte, error) {
	plaintext, err := json.Marshal(sealedShares{Shares: shares})
	if err != nil {
		return nil, fmt.Errorf("autounseal: marshaling shares: %w", err)
	}
	var wrapped []byte
	err = callProvider(ctx, provider.Name(), func(ctx context.Context) error {
		var err error
		wrapped, err = provider.WrapRootKey(ctx, plaintext)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("autounseal: wrapping shares via %s: %w", provider.Name(), err)
	}
	return wrapped, nil
}

// Unseal reverses Seal, returning the original Shamir shares ready to
// submit to SealController.SubmitShare.
func Unseal(ctx context.Context, provider Provider, wrapped []byte) ([]crypto.Share, error) {
	var plaintext []byte
	err := callProvider(ctx, provider.Name(), func(ctx context.Context) error {
		var err error
		plaintext, err = provider.UnwrapRootKey(ctx, wrapped)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("autounseal: unwrapping shares via %s: %w", provider.Name(), err)
	}
	var s sealedShares
	if err := json.Unmarshal(plaintext, &s); err != nil {
		return nil, fmt.Errorf("autounseal: unmarshaling shares: %w", err)
	}
	return s.Shares, nil
}

// HealthReport is the body of the /sys/health endpoint: per-provider
// reliability stats for the KMS calls made on the auto-unseal path, plus
// the most recent security-relevant events recorded anywhere in the
// process (failed token lookups, policy denials, duplicate share
// submissions).
type HealthReport struct {
	KMSOperations  map[string]reliability.ReliabilityStats `json:"kms_operations"`
	RecentSecurity []security.SecurityEvent                `json:"recent_security_events"`
}

// Health reports the current state of every KMS-backed provider this
// process has called plus a snapshot of recent security events, for an
// operator polling /sys/health rather than reading server logs.
func Health() HealthReport {
	return HealthReport{
		KMSOperations:  crm.GetAllStats(),
		RecentSecurity: security.RecentSecurityEvents(),
	}
}
