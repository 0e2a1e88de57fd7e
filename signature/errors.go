package signature

import (
	"errors"
	"fmt"
)

// Configuration errors.
var (
	// ErrInvalidScheme is returned by NewScheme for invalid configuration.
	ErrInvalidScheme = errors.New("signature: invalid scheme configuration")

	// ErrNoLookup is returned when Verify is called without a key lookup.
	ErrNoLookup = errors.New("signature: key lookup must not be nil")
)

// Signing errors.
var (
	// ErrAlgorithmNotAllowed is returned when signing with a key whose
	// algorithm is not in the scheme's allow-list.
	ErrAlgorithmNotAllowed = errors.New("signature: algorithm not allowed")

	// ErrMalformedFacts is returned when request facts cannot be
	// serialized unambiguously.
	ErrMalformedFacts = errors.New("signature: malformed request facts")
)

// Verification errors.
var (
	// ErrMissing is returned when the request carries no signature headers.
	ErrMissing = errors.New("signature: signature headers missing")

	// ErrMalformedHeader is returned when signature headers cannot be parsed.
	ErrMalformedHeader = errors.New("signature: malformed signature header")
)

// Reason classifies a verification failure.
type Reason string

// Verification failure reasons.
const (
	ReasonCanonicalMismatch Reason = "canonical_mismatch"
	ReasonUnknownKey        Reason = "unknown_key"
	ReasonExpired           Reason = "expired"
	ReasonMalformedEncoding Reason = "malformed_encoding"
	ReasonMissing           Reason = "missing"
)

func (r Reason) String() string {
	return string(r)
}

// Error is returned by Verify when a signature is invalid.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("signature: invalid (%s)", e.Reason)
	}

	return fmt.Sprintf("signature: invalid (%s): %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func invalid(reason Reason, err error) *Error {
	return &Error{Reason: reason, Err: err}
}

// ReasonOf extracts the failure reason from an error returned by Verify.
// It reports false for nil and for errors that are not verification
// failures, such as configuration errors.
func ReasonOf(err error) (Reason, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason, true
	}

	return "", false
}
