package keystore

import (
	"fmt"
	"strings"
)

// Algorithm identifies a keyed-digest algorithm. Identifiers follow the
// JSON Web Algorithms registry (RFC 7518) so the same name is used in
// token headers and request signature parameters.
type Algorithm string

const (
	// HS256 is HMAC using SHA-256.
	HS256 Algorithm = "HS256"

	// HS512 is HMAC using SHA-512.
	HS512 Algorithm = "HS512"

	// RS256 is RSASSA-PKCS1-v1_5 using SHA-256.
	RS256 Algorithm = "RS256"

	// PS512 is RSASSA-PSS using SHA-512.
	PS512 Algorithm = "PS512"

	// ES256 is ECDSA using curve P-256 and SHA-256.
	ES256 Algorithm = "ES256"

	// ES384 is ECDSA using curve P-384 and SHA-384.
	ES384 Algorithm = "ES384"

	// EdDSA is Ed25519.
	EdDSA Algorithm = "EdDSA"
)

// Algorithms lists every supported algorithm.
var Algorithms = []Algorithm{HS256, HS512, RS256, PS512, ES256, ES384, EdDSA}

// String returns the registered algorithm name.
func (a Algorithm) String() string {
	return string(a)
}

// Symmetric reports whether the algorithm uses a shared secret.
func (a Algorithm) Symmetric() bool {
	return a == HS256 || a == HS512
}

// Supported reports whether a is a known algorithm.
func (a Algorithm) Supported() bool {
	for _, known := range Algorithms {
		if a == known {
			return true
		}
	}

	return false
}

// ParseAlgorithm resolves an algorithm name. Matching is case-insensitive
// so configuration may spell "hs256" or "eddsa".
func ParseAlgorithm(name string) (Algorithm, error) {
	for _, known := range Algorithms {
		if strings.EqualFold(name, string(known)) {
			return known, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
}

// Signer produces keyed digests over canonical byte strings.
type Signer interface {
	// Sign produces a signature over the given message bytes.
	Sign(message []byte) ([]byte, error)

	// Algorithm returns the algorithm identifier for this signer.
	Algorithm() Algorithm

	// KeyID returns the identifier of the key used to sign.
	KeyID() string
}

// Verifier checks keyed digests produced by a Signer.
type Verifier interface {
	// Verify checks that signature is valid for the given message bytes.
	// Returns nil on success and ErrSignatureInvalid on mismatch.
	Verify(message, signature []byte) error

	// Algorithm returns the algorithm identifier for this verifier.
	Algorithm() Algorithm

	// KeyID returns the identifier of the key used to verify.
	KeyID() string
}
