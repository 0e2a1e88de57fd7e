package token

import (
	"errors"
	"fmt"
)

// Configuration errors.
var (
	// ErrInvalidConfig is returned by constructors for invalid configuration.
	ErrInvalidConfig = errors.New("token: invalid configuration")

	// ErrInvalidClaims is returned when claims violate their invariants,
	// e.g. expiry not after issued-at or a reserved name in Extra.
	ErrInvalidClaims = errors.New("token: invalid claims")
)

// Validation errors. Each maps to exactly one Reason.
var (
	ErrMissing              = errors.New("token: missing")
	ErrMalformed            = errors.New("token: malformed encoding")
	ErrUnknownKey           = errors.New("token: unknown key")
	ErrUnsupportedAlgorithm = errors.New("token: unsupported algorithm")
	ErrTagMismatch          = errors.New("token: integrity tag mismatch")
	ErrNotYetValid          = errors.New("token: not yet valid")
	ErrExpired              = errors.New("token: expired")
)

// Reason classifies a validation failure.
type Reason string

// Validation failure reasons.
const (
	ReasonMissing              Reason = "missing"
	ReasonMalformedEncoding    Reason = "malformed_encoding"
	ReasonUnknownKey           Reason = "unknown_key"
	ReasonUnsupportedAlgorithm Reason = "unsupported_algorithm"
	ReasonTagMismatch          Reason = "tag_mismatch"
	ReasonNotYetValid          Reason = "not_yet_valid"
	ReasonExpired              Reason = "expired"
)

func (r Reason) String() string {
	return string(r)
}

// Error is returned by Validate when a token is rejected.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("token: invalid (%s)", e.Reason)
	}

	return fmt.Sprintf("token: invalid (%s): %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ReasonOf extracts the failure reason from an error returned by
// Validate or ParseBearer.
func ReasonOf(err error) (Reason, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason, true
	}

	return "", false
}

var sentinelReasons = []struct {
	err    error
	reason Reason
}{
	{ErrMissing, ReasonMissing},
	{ErrMalformed, ReasonMalformedEncoding},
	{ErrUnknownKey, ReasonUnknownKey},
	{ErrUnsupportedAlgorithm, ReasonUnsupportedAlgorithm},
	{ErrTagMismatch, ReasonTagMismatch},
	{ErrNotYetValid, ReasonNotYetValid},
	{ErrExpired, ReasonExpired},
}

// reject wraps err, which must wrap one of the validation sentinels, into
// an *Error.
func reject(err error) *Error {
	for _, s := range sentinelReasons {
		if errors.Is(err, s.err) {
			return &Error{Reason: s.reason, Err: err}
		}
	}

	return &Error{Reason: ReasonMalformedEncoding, Err: err}
}
