package signature

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"

	"github.com/vitalvas/gatekeeper/clock"
	"github.com/vitalvas/gatekeeper/keystore"
)

// DefaultSkew is the freshness window applied when SchemeConfig.Skew is zero.
const DefaultSkew = 5 * time.Minute

// DefaultHeaders are the covered headers when SchemeConfig.Headers is nil.
var DefaultHeaders = []string{"content-type", "x-request-date"}

// SchemeConfig configures a Scheme.
type SchemeConfig struct {
	// Headers lists the covered header names in canonical order. Names are
	// matched case-insensitively. Nil selects DefaultHeaders; an empty
	// non-nil slice covers no headers.
	Headers []string

	// Skew is the maximum distance between the signature's created time
	// and the verifier's clock. Defaults to DefaultSkew.
	Skew time.Duration

	// Algorithms is the allow-list for signing and verification. Defaults
	// to keystore.Algorithms.
	Algorithms []keystore.Algorithm

	// Clock defaults to the system clock.
	Clock clock.Clock
}

// Scheme signs and verifies requests. It is immutable after construction
// and safe for concurrent use.
type Scheme struct {
	headers    []string
	skew       time.Duration
	algorithms []keystore.Algorithm
	clock      clock.Clock
}

// NewScheme validates cfg and returns a Scheme.
func NewScheme(cfg SchemeConfig) (*Scheme, error) {
	if cfg.Skew < 0 {
		return nil, fmt.Errorf("%w: skew must not be negative", ErrInvalidScheme)
	}

	skew := cfg.Skew
	if skew == 0 {
		skew = DefaultSkew
	}

	names := cfg.Headers
	if names == nil {
		names = DefaultHeaders
	}

	headers := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))

		if !httpguts.ValidHeaderFieldName(name) {
			return nil, fmt.Errorf("%w: invalid header name %q", ErrInvalidScheme, name)
		}

		if slices.Contains(headers, name) {
			return nil, fmt.Errorf("%w: duplicate header %q", ErrInvalidScheme, name)
		}

		headers = append(headers, name)
	}

	algs := cfg.Algorithms
	if len(algs) == 0 {
		algs = keystore.Algorithms
	}

	for _, alg := range algs {
		if !alg.Supported() {
			return nil, fmt.Errorf("%w: %w: %q", ErrInvalidScheme, keystore.ErrUnknownAlgorithm, alg)
		}
	}

	return &Scheme{
		headers:    headers,
		skew:       skew,
		algorithms: slices.Clone(algs),
		clock:      clock.Default(cfg.Clock),
	}, nil
}

// Headers returns the covered header names, lowercased, in canonical order.
func (s *Scheme) Headers() []string {
	return slices.Clone(s.headers)
}

// Skew returns the freshness window.
func (s *Scheme) Skew() time.Duration {
	return s.skew
}

// Allowed reports whether alg is in the allow-list.
func (s *Scheme) Allowed(alg keystore.Algorithm) bool {
	return slices.Contains(s.algorithms, alg)
}

// Canonical returns the canonical string for f signed by keyID with alg at
// created. It is exposed for debugging interoperability issues.
func (s *Scheme) Canonical(f Facts, keyID string, alg keystore.Algorithm, created time.Time) ([]byte, error) {
	return canonicalize(f, s.headers, signedMeta{created: created, keyID: keyID, alg: alg})
}

// Sign signs f with key at the current time.
func (s *Scheme) Sign(f Facts, key *keystore.Key) (Signature, error) {
	return s.SignAt(f, key, s.clock.Now())
}

// SignAt signs f with key using created as the signature time. The facts
// must describe the request exactly as it will be sent.
func (s *Scheme) SignAt(f Facts, key *keystore.Key, created time.Time) (Signature, error) {
	if key == nil {
		return Signature{}, fmt.Errorf("%w: key must not be nil", keystore.ErrInvalidKey)
	}

	if key.Retired() {
		return Signature{}, fmt.Errorf("%w: %q", keystore.ErrKeyRetired, key.ID)
	}

	if !s.Allowed(key.Algorithm) {
		return Signature{}, fmt.Errorf("%w: %q", ErrAlgorithmNotAllowed, key.Algorithm)
	}

	signer, err := key.Signer()
	if err != nil {
		return Signature{}, err
	}

	created = created.Truncate(time.Second)

	msg, err := s.Canonical(f, key.ID, key.Algorithm, created)
	if err != nil {
		return Signature{}, err
	}

	value, err := signer.Sign(msg)
	if err != nil {
		return Signature{}, err
	}

	return Signature{
		KeyID:     key.ID,
		Algorithm: key.Algorithm,
		Created:   created,
		Value:     value,
	}, nil
}

// Verify checks sig against f at the current time. It returns nil when
// the signature is valid, an *Error with the failure reason when it is
// not, and a plain error only for caller mistakes such as a nil lookup.
func (s *Scheme) Verify(f Facts, sig Signature, lookup keystore.Lookup) error {
	return s.VerifyAt(f, sig, lookup, s.clock.Now())
}

// VerifyAt is Verify with an explicit verification time.
func (s *Scheme) VerifyAt(f Facts, sig Signature, lookup keystore.Lookup, now time.Time) error {
	if lookup == nil {
		return ErrNoLookup
	}

	if sig.KeyID == "" || sig.Algorithm == "" || len(sig.Value) == 0 {
		return invalid(ReasonMalformedEncoding, ErrMalformedHeader)
	}

	if !s.Allowed(sig.Algorithm) {
		return invalid(ReasonUnknownKey, fmt.Errorf("%w: %q", ErrAlgorithmNotAllowed, sig.Algorithm))
	}

	key, ok := lookup.Lookup(sig.KeyID)
	if !ok {
		return invalid(ReasonUnknownKey, fmt.Errorf("%w: %q", keystore.ErrKeyNotFound, sig.KeyID))
	}

	if key.Algorithm != sig.Algorithm {
		return invalid(ReasonUnknownKey, fmt.Errorf("key %q is bound to %s, signature declares %s", key.ID, key.Algorithm, sig.Algorithm))
	}

	if age := now.Sub(sig.Created); age > s.skew || age < -s.skew {
		return invalid(ReasonExpired, fmt.Errorf("created %s is outside the %s window", sig.Created.UTC().Format(time.RFC3339), s.skew))
	}

	verifier, err := key.Verifier()
	if err != nil {
		return invalid(ReasonUnknownKey, err)
	}

	msg, err := s.Canonical(f, sig.KeyID, sig.Algorithm, sig.Created)
	if err != nil {
		return invalid(ReasonMalformedEncoding, err)
	}

	if err := verifier.Verify(msg, sig.Value); err != nil {
		if errors.Is(err, keystore.ErrSignatureInvalid) {
			return invalid(ReasonCanonicalMismatch, err)
		}

		return invalid(ReasonMalformedEncoding, err)
	}

	return nil
}

// VerifyHeaders parses the signature headers and verifies them against f.
func (s *Scheme) VerifyHeaders(f Facts, input, value string, lookup keystore.Lookup) error {
	sig, err := ParseHeaders(input, value)
	if err != nil {
		if errors.Is(err, ErrMissing) {
			return invalid(ReasonMissing, err)
		}

		return invalid(ReasonMalformedEncoding, err)
	}

	return s.Verify(f, sig, lookup)
}
