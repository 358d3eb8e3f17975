// Package apperr defines the stable, machine-readable error taxonomy every
// component of the core surfaces through the request pipeline. Every kind
// has a sentinel so callers can errors.Is against it, and an HTTP mapping
// lives alongside it for the transport adapter in internal/transport.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the stable error labels from the error handling design.
type Kind string

const (
	KindSealed             Kind = "sealed"
	KindUninitialized      Kind = "uninitialized"
	KindAlreadyInitialized Kind = "already-initialized"
	KindUnauthenticated    Kind = "unauthenticated"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not-found"
	KindGone               Kind = "gone"
	KindInvalidArgument    Kind = "invalid-argument"
	KindCorruption         Kind = "corruption"
	KindConflict           Kind = "conflict"
	KindAuditFailure       Kind = "audit-failure"
	KindInfrastructure     Kind = "infrastructure"
)

// Sentinel errors, one per kind, so any layer can do errors.Is(err,
// apperr.Sealed) without constructing an Error value.
var (
	Sealed             = errors.New(string(KindSealed))
	Uninitialized      = errors.New(string(KindUninitialized))
	AlreadyInitialized = errors.New(string(KindAlreadyInitialized))
	Unauthenticated    = errors.New(string(KindUnauthenticated))
	Forbidden          = errors.New(string(KindForbidden))
	NotFound           = errors.New(string(KindNotFound))
	Gone               = errors.New(string(KindGone))
	InvalidArgument    = errors.New(string(KindInvalidArgument))
	Corruption         = errors.New(string(KindCorruption))
	Conflict           = errors.New(string(KindConflict))
	AuditFailure       = errors.New(string(KindAuditFailure))
	Infrastructure     = errors.New(string(KindInfrastructure))
)

var sentinelByKind = map[Kind]error{
	KindSealed:             Sealed,
	KindUninitialized:      Uninitialized,
	KindAlreadyInitialized: AlreadyInitialized,
	KindUnauthenticated:    Unauthenticated,
	KindForbidden:          Forbidden,
	KindNotFound:           NotFound,
	KindGone:               Gone,
	KindInvalidArgument:    InvalidArgument,
	KindCorruption:         Corruption,
	KindConflict:           Conflict,
	KindAuditFailure:       AuditFailure,
	KindInfrastructure:     Infrastructure,
}

// Error pairs a Kind with a caller-facing message. Message must never
// contain secret values, token plaintext, or share material.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap lets errors.Is(err, apperr.Forbidden) succeed against an *Error
// built with New(KindForbidden, ...).
func (e *Error) Unwrap() error {
	return sentinelByKind[e.Kind]
}

// New constructs an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind carried by err, walking the error chain. It
// returns ("", false) for errors outside this taxonomy (typically
// infrastructure failures from a dependency that hasn't been classified).
func KindOf(err error) (Kind, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind, true
	}
	for kind, sentinel := range sentinelByKind {
		if errors.Is(err, sentinel) {
			return kind, true
		}
	}
	return "", false
}

// HTTPStatus maps a Kind to the status code the transport contract
// specifies.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnauthenticated:
		return 401
	case KindForbidden:
		return 403
	case KindNotFound:
		return 404
	case KindGone:
		return 410
	case KindInvalidArgument:
		return 400
	case KindSealed:
		return 503
	case KindCorruption:
		return 500
	case KindAuditFailure:
		return 503
	case KindConflict:
		return 409
	case KindUninitialized, KindAlreadyInitialized:
		return 400
	default:
		return 500
	}
}
