package zvault

import (
	"errors"
	"fmt"

	"github.com/zvault/zvault/internal/apperr"
)

// Top-level construction errors: failures that happen while assembling a
// Server, before any request pipeline ever runs. These are distinct from
// the request-time error taxonomy in internal/apperr, which is what
// Server.Handle returns.
var (
	ErrMissingStorageBackend = errors.New("zvault: storage backend is required")
	ErrMissingAuditBackend   = errors.New("zvault: at least one audit backend is required")
	ErrInvalidMountConfig    = errors.New("zvault: invalid mount configuration")
	ErrInvalidShamirParams   = errors.New("zvault: shamir parameters must satisfy 2 <= threshold <= shares <= 10")
)

func newInvalidMountConfigError(path string, reason error) error {
	return fmt.Errorf("%w: %s: %w", ErrInvalidMountConfig, path, reason)
}

// Request-time classification helpers mirror the teacher's
// IsRetryableError/IsConfigurationError convention, but classify against
// the apperr taxonomy (§7) instead of KMS-specific categories. Callers of
// Server.Handle should reach for one of these rather than comparing error
// strings.
func IsSealed(err error) bool          { return errors.Is(err, apperr.Sealed) }
func IsUninitialized(err error) bool   { return errors.Is(err, apperr.Uninitialized) }
func IsUnauthenticated(err error) bool { return errors.Is(err, apperr.Unauthenticated) }
func IsForbidden(err error) bool       { return errors.Is(err, apperr.Forbidden) }
func IsNotFound(err error) bool        { return errors.Is(err, apperr.NotFound) }
func IsGone(err error) bool            { return errors.Is(err, apperr.Gone) }
func IsInvalidArgument(err error) bool { return errors.Is(err, apperr.InvalidArgument) }
func IsCorruption(err error) bool      { return errors.Is(err, apperr.Corruption) }
func IsConflict(err error) bool        { return errors.Is(err, apperr.Conflict) }
func IsAuditFailure(err error) bool    { return errors.Is(err, apperr.AuditFailure) }
func IsInfrastructure(err error) bool  { return errors.Is(err, apperr.Infrastructure) }

// HTTPStatus maps any error returned by Server.Handle to the status code
// the transport contract specifies (§6), falling back to 500 for errors
// outside the apperr taxonomy (a bug, not a classified failure).
func HTTPStatus(err error) int {
	if err == nil {
		return 200
	}
	kind, ok := apperr.KindOf(err)
	if !ok {
		return 500
	}
	return apperr.HTTPStatus(kind)
}
