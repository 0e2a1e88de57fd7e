package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vitalvas/gatekeeper/clock"
	"github.com/vitalvas/gatekeeper/keystore"
)

// DefaultSkew is the tolerance applied to issued-at and not-before when
// ValidatorConfig.Skew is zero.
const DefaultSkew = 5 * time.Minute

// ValidatorConfig configures a Validator.
type ValidatorConfig struct {
	// Keys resolves the "kid" header. Required.
	Keys keystore.Lookup

	// Algorithms is the allow-list. Tokens declaring any other algorithm
	// are rejected before key resolution. Required.
	Algorithms []keystore.Algorithm

	// Skew tolerates issuer clocks running ahead: issued-at and not-before
	// may be up to Skew in the future. Expiry is always enforced exactly.
	// Defaults to DefaultSkew.
	Skew time.Duration

	// Clock defaults to the system clock.
	Clock clock.Clock
}

// Validator verifies tokens. It is safe for concurrent use.
type Validator struct {
	keys       keystore.Lookup
	algorithms []keystore.Algorithm
	skew       time.Duration
	clock      clock.Clock
	parser     *jwt.Parser
}

// NewValidator validates cfg and returns a Validator.
func NewValidator(cfg ValidatorConfig) (*Validator, error) {
	if cfg.Keys == nil {
		return nil, fmt.Errorf("%w: key lookup must not be nil", ErrInvalidConfig)
	}

	if len(cfg.Algorithms) == 0 {
		return nil, fmt.Errorf("%w: algorithm allow-list must not be empty", ErrInvalidConfig)
	}

	for _, alg := range cfg.Algorithms {
		if !alg.Supported() {
			return nil, fmt.Errorf("%w: %w: %q", ErrInvalidConfig, keystore.ErrUnknownAlgorithm, alg)
		}
	}

	if cfg.Skew < 0 {
		return nil, fmt.Errorf("%w: skew must not be negative", ErrInvalidConfig)
	}

	skew := cfg.Skew
	if skew == 0 {
		skew = DefaultSkew
	}

	return &Validator{
		keys:       cfg.Keys,
		algorithms: slices.Clone(cfg.Algorithms),
		skew:       skew,
		clock:      clock.Default(cfg.Clock),
		parser:     jwt.NewParser(jwt.WithoutClaimsValidation()),
	}, nil
}

// Validate checks raw at the current time.
func (v *Validator) Validate(raw string) (*Claims, error) {
	return v.ValidateAt(raw, v.clock.Now())
}

// ValidateAt checks raw at now. Failures are returned as *Error.
func (v *Validator) ValidateAt(raw string, now time.Time) (*Claims, error) {
	if raw == "" {
		return nil, reject(ErrMissing)
	}

	mc := jwt.MapClaims{}

	if _, err := v.parser.ParseWithClaims(raw, mc, v.keyFunc); err != nil {
		return nil, reject(classify(err))
	}

	claims, err := decodeClaims(mc)
	if err != nil {
		return nil, reject(err)
	}

	if err := v.checkTimes(claims, now); err != nil {
		return nil, reject(err)
	}

	return claims, nil
}

// keyFunc enforces the allow-list, resolves the key and binds the
// declared algorithm to the key's algorithm, in that order.
func (v *Validator) keyFunc(tok *jwt.Token) (any, error) {
	name, _ := tok.Header["alg"].(string)
	alg := keystore.Algorithm(name)

	if !slices.Contains(v.algorithms, alg) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
	}

	kid, _ := tok.Header["kid"].(string)
	if kid == "" {
		return nil, fmt.Errorf("%w: missing kid header", ErrUnknownKey)
	}

	key, ok := v.keys.Lookup(kid)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, kid)
	}

	if key.Algorithm != alg {
		return nil, fmt.Errorf("%w: key %q is bound to %s, token declares %s", ErrUnknownKey, kid, key.Algorithm, alg)
	}

	return key.VerificationKey()
}

// classify maps a parser error to a validation sentinel. Errors raised by
// keyFunc take precedence over the parser's own classification.
func classify(err error) error {
	for _, s := range sentinelReasons {
		if errors.Is(err, s.err) {
			return err
		}
	}

	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %w", ErrTagMismatch, err)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", ErrUnsupportedAlgorithm, err)
	}

	return fmt.Errorf("%w: %w", ErrMalformed, err)
}

func (v *Validator) checkTimes(c *Claims, now time.Time) error {
	if !now.Before(c.ExpiresAt) {
		return fmt.Errorf("%w: at %s", ErrExpired, c.ExpiresAt.UTC().Format(time.RFC3339))
	}

	horizon := now.Add(v.skew)

	if c.IssuedAt.After(horizon) {
		return fmt.Errorf("%w: issued at %s", ErrNotYetValid, c.IssuedAt.UTC().Format(time.RFC3339))
	}

	if !c.NotBefore.IsZero() && c.NotBefore.After(horizon) {
		return fmt.Errorf("%w: not before %s", ErrNotYetValid, c.NotBefore.UTC().Format(time.RFC3339))
	}

	return nil
}

func decodeClaims(mc jwt.MapClaims) (*Claims, error) {
	for _, name := range []string{ClaimIssuedAt, ClaimExpiresAt, ClaimNotBefore} {
		if err := checkDateRange(mc, name); err != nil {
			return nil, err
		}
	}

	sub, err := mc.GetSubject()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	iat, err := mc.GetIssuedAt()
	if err != nil || iat == nil {
		return nil, fmt.Errorf("%w: missing or invalid iat", ErrMalformed)
	}

	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: missing or invalid exp", ErrMalformed)
	}

	nbf, err := mc.GetNotBefore()
	if err != nil {
		return nil, fmt.Errorf("%w: invalid nbf", ErrMalformed)
	}

	c := &Claims{
		Subject:   sub,
		IssuedAt:  iat.Time,
		ExpiresAt: exp.Time,
		Extra:     map[string]any{},
	}

	if nbf != nil {
		c.NotBefore = nbf.Time
	}

	if jti, ok := mc[ClaimID]; ok {
		s, ok := jti.(string)
		if !ok {
			return nil, fmt.Errorf("%w: jti must be a string", ErrMalformed)
		}

		c.ID = s
	}

	for k, val := range mc {
		if !slices.Contains(reservedClaims, k) {
			c.Extra[k] = val
		}
	}

	if !c.ExpiresAt.After(c.IssuedAt) {
		return nil, fmt.Errorf("%w: exp is not after iat", ErrMalformed)
	}

	return c, nil
}

// maxNumericDate is the largest date in seconds that time.Time arithmetic
// can represent without overflow.
const maxNumericDate = math.MaxInt64 / int64(time.Second)

// checkDateRange rejects numeric dates before the Unix epoch or past
// maxNumericDate. Type errors are left to the jwt accessors.
func checkDateRange(mc jwt.MapClaims, name string) error {
	var secs float64

	switch v := mc[name].(type) {
	case float64:
		secs = v
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return fmt.Errorf("%w: invalid %s", ErrMalformed, name)
		}

		secs = f
	default:
		return nil
	}

	if math.IsNaN(secs) || secs < 0 || secs > float64(maxNumericDate) {
		return fmt.Errorf("%w: %s is out of range", ErrMalformed, name)
	}

	return nil
}
