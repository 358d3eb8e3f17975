package barrier

import (
	"errors"

	"github.com/zvault/zvault/internal/apperr"
)

var (
	// ErrSealed is returned by every Barrier operation, including list,
	// while the root key is not installed. It is the same sentinel the
	// rest of the system classifies as apperr.KindSealed.
	ErrSealed = apperr.Sealed

	// ErrCorruption is returned when a stored record fails to authenticate;
	// distinct from a missing key.
	ErrCorruption = apperr.Corruption

	// ErrUninitialized is returned by submit_share before initialize has
	// ever succeeded.
	ErrUninitialized = apperr.Uninitialized

	// ErrAlreadyInitialized is returned by a second call to initialize.
	ErrAlreadyInitialized = apperr.AlreadyInitialized

	// ErrInvalidShare is returned when submit_share is given a duplicate
	// share within the same unseal cycle. Undecodable shares are rejected
	// earlier, by crypto.DecodeShare.
	ErrInvalidShare = errors.New("seal: invalid or duplicate share")
)
