package config

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http/httpguts"

	"github.com/vitalvas/gatekeeper/keystore"
)

// Validate checks c and reports every problem at once as an *Error.
func (c *Config) Validate() error {
	verr := &Error{}

	if c.Server.Address == "" {
		verr.add("server.address must not be empty")
	}

	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		verr.add("server timeouts must not be negative")
	}

	if c.Server.MaxBodyBytes < 0 {
		verr.add("server.max_body_bytes must not be negative")
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		verr.add("log.level: %v", err)
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		verr.add("log.format must be json or text, got %q", c.Log.Format)
	}

	if c.Features.RateLimit {
		c.validateRateLimit(verr)
	}

	c.validateKeys(verr)

	if c.Features.TokenAuth {
		if !httpguts.ValidHeaderFieldName(c.Token.Header) {
			verr.add("token.header %q is not a valid header name", c.Token.Header)
		}

		if c.Token.TTL <= 0 {
			verr.add("token.ttl must be positive")
		}

		if c.Keys.MaxTokenLifetime > 0 && c.Token.TTL > c.Keys.MaxTokenLifetime {
			verr.add("token.ttl %s exceeds keys.max_token_lifetime %s", c.Token.TTL, c.Keys.MaxTokenLifetime)
		}
	}

	if c.Token.Skew < 0 {
		verr.add("token.skew must not be negative")
	}

	if c.Signature.Skew < 0 {
		verr.add("signature.skew must not be negative")
	}

	validateAlgorithms(verr, "token.algorithms", c.Token.Algorithms)
	validateAlgorithms(verr, "signature.algorithms", c.Signature.Algorithms)

	return verr.orNil()
}

func (c *Config) validateRateLimit(verr *Error) {
	if err := c.RateLimit.Limit().Validate(); err != nil {
		verr.add("rate_limit: %v", err)
	}

	for key, l := range c.RateLimit.Overrides {
		if err := l.Validate(); err != nil {
			verr.add("rate_limit.overrides[%q]: %v", key, err)
		}
	}

	switch c.RateLimit.KeyStrategy {
	case KeyStrategyIP:
	case KeyStrategyHeader:
		if c.RateLimit.KeyHeader == "" {
			verr.add("rate_limit.key_header is required with the header key strategy")
		}
	default:
		verr.add("rate_limit.key_strategy must be %q or %q, got %q", KeyStrategyIP, KeyStrategyHeader, c.RateLimit.KeyStrategy)
	}

	if c.RateLimit.Shards < 0 {
		verr.add("rate_limit.shards must not be negative")
	}

	if c.RateLimit.IdleTimeout < 0 || c.RateLimit.SweepInterval < 0 || c.RateLimit.MaxClockRewind < 0 {
		verr.add("rate_limit durations must not be negative")
	}
}

func (c *Config) validateKeys(verr *Error) {
	needKeys := c.Features.TokenAuth || c.Features.Signing

	if needKeys && len(c.Keys.Inline) == 0 && c.Keys.JWKSFile == "" {
		verr.add("keys: token auth and signing need inline keys or a jwks_file")
	}

	if c.Keys.MaxTokenLifetime < 0 {
		verr.add("keys.max_token_lifetime must not be negative")
	}

	seen := make(map[string]bool, len(c.Keys.Inline))

	for i, kc := range c.Keys.Inline {
		if kc.ID == "" {
			verr.add("keys.inline[%d].id must not be empty", i)
		} else if seen[kc.ID] {
			verr.add("keys.inline[%d]: duplicate id %q", i, kc.ID)
		}

		seen[kc.ID] = true

		alg, err := keystore.ParseAlgorithm(kc.Algorithm)
		if err != nil {
			verr.add("keys.inline[%d].algorithm: %v", i, err)
			continue
		}

		if !alg.Symmetric() {
			verr.add("keys.inline[%d]: %s keys must come from jwks_file", i, alg)
		}

		if kc.Secret == "" {
			verr.add("keys.inline[%d].secret must not be empty", i)
		}
	}

	// Keys from the JWK set are only known after loading, see Build.
	if c.Keys.Default != "" && c.Keys.JWKSFile == "" && !seen[c.Keys.Default] {
		verr.add("keys.default %q does not name an inline key", c.Keys.Default)
	}
}

func validateAlgorithms(verr *Error, field string, names []string) {
	for _, name := range names {
		if _, err := keystore.ParseAlgorithm(name); err != nil {
			verr.add("%s: %v", field, err)
		}
	}
}
