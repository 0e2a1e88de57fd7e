package config

import (
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GATEKEEPER_"

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

type envBinding struct {
	name  string
	apply func(c *Config, value string) error
}

var envBindings = []envBinding{
	{"ADDRESS", func(c *Config, v string) error { c.Server.Address = v; return nil }},
	{"LOG_LEVEL", func(c *Config, v string) error { c.Log.Level = v; return nil }},
	{"LOG_FORMAT", func(c *Config, v string) error { c.Log.Format = v; return nil }},
	{"FEATURES_RATE_LIMIT", boolEnv(func(c *Config) *bool { return &c.Features.RateLimit })},
	{"FEATURES_TOKEN_AUTH", boolEnv(func(c *Config) *bool { return &c.Features.TokenAuth })},
	{"FEATURES_SIGNING", boolEnv(func(c *Config) *bool { return &c.Features.Signing })},
	{"RATE_LIMIT_CAPACITY", func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		c.RateLimit.Capacity = n
		return err
	}},
	{"RATE_LIMIT_REFILL_RATE", func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		c.RateLimit.RefillRate = f
		return err
	}},
	{"RATE_LIMIT_KEY_STRATEGY", func(c *Config, v string) error { c.RateLimit.KeyStrategy = v; return nil }},
	{"RATE_LIMIT_KEY_HEADER", func(c *Config, v string) error { c.RateLimit.KeyHeader = v; return nil }},
	{"KEYS_DEFAULT", func(c *Config, v string) error { c.Keys.Default = v; return nil }},
	{"KEYS_JWKS_FILE", func(c *Config, v string) error { c.Keys.JWKSFile = v; return nil }},
	{"TOKEN_HEADER", func(c *Config, v string) error { c.Token.Header = v; return nil }},
	{"TOKEN_TTL", durationEnv(func(c *Config) *time.Duration { return &c.Token.TTL })},
	{"TOKEN_SKEW", durationEnv(func(c *Config) *time.Duration { return &c.Token.Skew })},
	{"TOKEN_ALGORITHMS", func(c *Config, v string) error { c.Token.Algorithms = splitList(v); return nil }},
	{"SIGNATURE_SKEW", durationEnv(func(c *Config) *time.Duration { return &c.Signature.Skew })},
	{"SIGNATURE_HEADERS", func(c *Config, v string) error { c.Signature.Headers = splitList(v); return nil }},
	{"SIGNATURE_ALGORITHMS", func(c *Config, v string) error { c.Signature.Algorithms = splitList(v); return nil }},
}

// ApplyEnv overrides fields from GATEKEEPER_* variables resolved through
// lookup. GATEKEEPER_HMAC_SECRET adds or replaces the shared-secret key
// named by GATEKEEPER_HMAC_KEY_ID (default "default") so secrets need
// not live in the config file.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	verr := &Error{}

	for _, b := range envBindings {
		value, ok := lookup(EnvPrefix + b.name)
		if !ok {
			continue
		}

		if err := b.apply(c, strings.TrimSpace(value)); err != nil {
			verr.add("%s%s: %v", EnvPrefix, b.name, err)
		}
	}

	if secret, ok := lookup(EnvPrefix + "HMAC_SECRET"); ok && secret != "" {
		id, _ := lookup(EnvPrefix + "HMAC_KEY_ID")
		if id == "" {
			id = "default"
		}

		alg, _ := lookup(EnvPrefix + "HMAC_ALGORITHM")
		if alg == "" {
			alg = "HS256"
		}

		c.Keys.setInline(KeyConfig{ID: id, Algorithm: alg, Secret: secret})
	}

	return verr.orNil()
}

func (k *KeysConfig) setInline(kc KeyConfig) {
	for i := range k.Inline {
		if k.Inline[i].ID == kc.ID {
			k.Inline[i] = kc
			return
		}
	}

	k.Inline = append(k.Inline, kc)
}

func boolEnv(field func(c *Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}

		*field(c) = b

		return nil
	}
}

func durationEnv(field func(c *Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}

		*field(c) = d

		return nil
	}
}

func splitList(v string) []string {
	var out []string

	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}

	return out
}
