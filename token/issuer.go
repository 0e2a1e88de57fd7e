package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vitalvas/gatekeeper/clock"
	"github.com/vitalvas/gatekeeper/keystore"
)

// DefaultTTL is the token lifetime used by IssueFor when IssuerConfig.TTL
// is zero.
const DefaultTTL = time.Hour

// DefaultKeySource yields the key new tokens are signed with.
// *keystore.Store satisfies it.
type DefaultKeySource interface {
	Default() (*keystore.Key, error)
}

// IssuerConfig configures an Issuer.
type IssuerConfig struct {
	// Keys supplies the default signing key for IssueFor. Issue works
	// without it.
	Keys DefaultKeySource

	// TTL is the lifetime of tokens built by IssueFor. Defaults to DefaultTTL.
	TTL time.Duration

	// MaxLifetime rejects claims living longer than this. It should match
	// keystore.StoreConfig.MaxTokenLifetime so removed keys can never be
	// referenced by a valid token. Zero disables the check.
	MaxLifetime time.Duration

	// Clock defaults to the system clock.
	Clock clock.Clock
}

// Issuer creates signed tokens.
type Issuer struct {
	keys        DefaultKeySource
	ttl         time.Duration
	maxLifetime time.Duration
	clock       clock.Clock
}

// NewIssuer validates cfg and returns an Issuer.
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if cfg.TTL < 0 || cfg.MaxLifetime < 0 {
		return nil, fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}

	if cfg.MaxLifetime > 0 && ttl > cfg.MaxLifetime {
		return nil, fmt.Errorf("%w: ttl %s exceeds max lifetime %s", ErrInvalidConfig, ttl, cfg.MaxLifetime)
	}

	return &Issuer{
		keys:        cfg.Keys,
		ttl:         ttl,
		maxLifetime: cfg.MaxLifetime,
		clock:       clock.Default(cfg.Clock),
	}, nil
}

// New builds claims for subject issued now, expiring after the configured
// TTL, with a random token ID.
func (i *Issuer) New(subject string, extra map[string]any) Claims {
	now := i.clock.Now().Truncate(time.Second)

	return Claims{
		Subject:   subject,
		IssuedAt:  now,
		ExpiresAt: now.Add(i.ttl),
		ID:        uuid.NewString(),
		Extra:     extra,
	}
}

// Issue signs claims with key and returns the encoded token.
func (i *Issuer) Issue(claims Claims, key *keystore.Key) (string, error) {
	if key == nil {
		return "", fmt.Errorf("%w: key must not be nil", keystore.ErrInvalidKey)
	}

	if key.Retired() {
		return "", fmt.Errorf("%w: %q", keystore.ErrKeyRetired, key.ID)
	}

	if err := claims.Validate(); err != nil {
		return "", err
	}

	if i.maxLifetime > 0 && claims.Lifetime() > i.maxLifetime {
		return "", fmt.Errorf("%w: lifetime %s exceeds %s", ErrInvalidClaims, claims.Lifetime(), i.maxLifetime)
	}

	method := jwt.GetSigningMethod(key.Algorithm.String())
	if method == nil {
		return "", fmt.Errorf("%w: %q", keystore.ErrUnknownAlgorithm, key.Algorithm)
	}

	signingKey, err := key.SigningKey()
	if err != nil {
		return "", err
	}

	tok := jwt.NewWithClaims(method, encodeClaims(claims.truncate()))
	tok.Header["kid"] = key.ID

	signed, err := tok.SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// IssueFor builds claims with New and signs them with the default key.
func (i *Issuer) IssueFor(subject string, extra map[string]any) (string, Claims, error) {
	if i.keys == nil {
		return "", Claims{}, fmt.Errorf("%w: no key source configured", ErrInvalidConfig)
	}

	key, err := i.keys.Default()
	if err != nil {
		return "", Claims{}, err
	}

	claims := i.New(subject, extra)

	signed, err := i.Issue(claims, key)
	if err != nil {
		return "", Claims{}, err
	}

	return signed, claims, nil
}

func encodeClaims(c Claims) jwt.MapClaims {
	mc := make(jwt.MapClaims, len(c.Extra)+5)
	for k, v := range c.Extra {
		mc[k] = v
	}

	mc[ClaimSubject] = c.Subject
	mc[ClaimIssuedAt] = c.IssuedAt.Unix()
	mc[ClaimExpiresAt] = c.ExpiresAt.Unix()

	if !c.NotBefore.IsZero() {
		mc[ClaimNotBefore] = c.NotBefore.Unix()
	}

	if c.ID != "" {
		mc[ClaimID] = c.ID
	}

	return mc
}
