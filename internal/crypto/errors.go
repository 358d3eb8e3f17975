package crypto

import "errors"

var (
	// ErrInvalidKeySize is returned when key material does not match the
	// algorithm's required length.
	ErrInvalidKeySize = errors.New("crypto: invalid key size")

	// ErrCorruption is returned when an AEAD tag fails to authenticate or a
	// sealed record is malformed. Callers surface this as the stable
	// "corruption" error kind rather than a generic failure.
	ErrCorruption = errors.New("crypto: authentication failed")

	// ErrInvalidShamirParams is returned when Shamir split parameters fall
	// outside 2 <= T <= N <= 10.
	ErrInvalidShamirParams = errors.New("crypto: invalid shamir parameters")

	// ErrDuplicateShare is returned when Combine is given two shares with
	// the same coordinate.
	ErrDuplicateShare = errors.New("crypto: duplicate shamir share")

	// ErrMalformedShare is returned when a share fails well-formedness
	// checks at parse time.
	ErrMalformedShare = errors.New("crypto: malformed shamir share")
)
