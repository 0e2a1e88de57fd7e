package token

import (
	"fmt"
	"maps"
	"time"
)

// Registered claim names written by the issuer. They cannot appear in
// Claims.Extra.
const (
	ClaimSubject   = "sub"
	ClaimIssuedAt  = "iat"
	ClaimExpiresAt = "exp"
	ClaimNotBefore = "nbf"
	ClaimID        = "jti"
)

var reservedClaims = []string{ClaimSubject, ClaimIssuedAt, ClaimExpiresAt, ClaimNotBefore, ClaimID}

// Claims is the token payload. Timestamps have second precision.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time

	// NotBefore is optional.
	NotBefore time.Time

	// ID is the optional unique token identifier (jti).
	ID string

	// Extra holds custom claims. Values must be JSON-encodable; after
	// validation numbers come back as float64, objects as map[string]any
	// and arrays as []any.
	Extra map[string]any
}

// Validate checks the claim invariants: both timestamps set, expiry after
// issued-at and no reserved names in Extra.
func (c Claims) Validate() error {
	if c.IssuedAt.IsZero() {
		return fmt.Errorf("%w: issued-at must be set", ErrInvalidClaims)
	}

	if c.ExpiresAt.IsZero() {
		return fmt.Errorf("%w: expiry must be set", ErrInvalidClaims)
	}

	if !c.ExpiresAt.After(c.IssuedAt) {
		return fmt.Errorf("%w: expiry %s is not after issued-at %s", ErrInvalidClaims,
			c.ExpiresAt.UTC().Format(time.RFC3339), c.IssuedAt.UTC().Format(time.RFC3339))
	}

	for _, name := range reservedClaims {
		if _, ok := c.Extra[name]; ok {
			return fmt.Errorf("%w: %q is reserved", ErrInvalidClaims, name)
		}
	}

	return nil
}

// Lifetime returns ExpiresAt - IssuedAt.
func (c Claims) Lifetime() time.Duration {
	return c.ExpiresAt.Sub(c.IssuedAt)
}

// truncate returns a copy with second-precision timestamps and its own
// Extra map.
func (c Claims) truncate() Claims {
	c.IssuedAt = c.IssuedAt.Truncate(time.Second)
	c.ExpiresAt = c.ExpiresAt.Truncate(time.Second)

	if !c.NotBefore.IsZero() {
		c.NotBefore = c.NotBefore.Truncate(time.Second)
	}

	c.Extra = maps.Clone(c.Extra)

	return c
}
