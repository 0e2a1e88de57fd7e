// Package config loads gatekeeper settings from a YAML file, an optional
// .env file and GATEKEEPER_* environment variables, and assembles the
// admission components from them.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/vitalvas/gatekeeper/admission"
	"github.com/vitalvas/gatekeeper/ratelimit"
)

// Key strategies for RateLimitConfig.KeyStrategy.
const (
	KeyStrategyIP     = "ip"
	KeyStrategyHeader = "header"
)

// Config is the complete gatekeeper configuration.
type Config struct {
	Server    ServerConfig       `yaml:"server"`
	Log       LogConfig          `yaml:"log"`
	Features  admission.Features `yaml:"features"`
	RateLimit RateLimitConfig    `yaml:"rate_limit"`
	Keys      KeysConfig         `yaml:"keys"`
	Token     TokenConfig        `yaml:"token"`
	Signature SignatureConfig    `yaml:"signature"`
	Policies  admission.Policies `yaml:"policies"`
}

type ServerConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// TrustedProxies may set X-Forwarded-For. Nil trusts private ranges.
	TrustedProxies []string `yaml:"trusted_proxies"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

type RateLimitConfig struct {
	Capacity   int     `yaml:"capacity"`
	RefillRate float64 `yaml:"refill_rate"`

	// KeyStrategy is "ip" or "header". With "header", KeyHeader names the
	// header whose value keys the bucket.
	KeyStrategy string `yaml:"key_strategy"`
	KeyHeader   string `yaml:"key_header"`

	Shards         int                        `yaml:"shards"`
	IdleTimeout    time.Duration              `yaml:"idle_timeout"`
	SweepInterval  time.Duration              `yaml:"sweep_interval"`
	MaxClockRewind time.Duration              `yaml:"max_clock_rewind"`
	Overrides      map[string]ratelimit.Limit `yaml:"overrides"`
}

// Limit returns the default bucket shape.
func (r RateLimitConfig) Limit() ratelimit.Limit {
	return ratelimit.Limit{Capacity: r.Capacity, RefillRate: r.RefillRate}
}

type KeysConfig struct {
	// Default is the signing key ID. Empty keeps the first signing key.
	Default string `yaml:"default"`

	// MaxTokenLifetime bounds credential lifetimes and delays removal of
	// retired keys.
	MaxTokenLifetime time.Duration `yaml:"max_token_lifetime"`

	// Inline holds shared-secret keys.
	Inline []KeyConfig `yaml:"inline"`

	// JWKSFile is a JSON Web Key Set with asymmetric or symmetric keys.
	JWKSFile string `yaml:"jwks_file"`
}

type KeyConfig struct {
	ID        string `yaml:"id"`
	Algorithm string `yaml:"algorithm"`
	Secret    string `yaml:"secret"`
}

type TokenConfig struct {
	// Header carries the token. Authorization expects the Bearer scheme.
	Header string        `yaml:"header"`
	TTL    time.Duration `yaml:"ttl"`
	Skew   time.Duration `yaml:"skew"`

	// Algorithms is the allow-list. Empty allows the algorithms of the
	// configured keys.
	Algorithms []string `yaml:"algorithms"`
}

type SignatureConfig struct {
	Headers    []string      `yaml:"headers"`
	Skew       time.Duration `yaml:"skew"`
	Algorithms []string      `yaml:"algorithms"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    10 << 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Features: admission.Features{RateLimit: true, TokenAuth: true, Signing: true},
		RateLimit: RateLimitConfig{
			Capacity:      60,
			RefillRate:    1,
			KeyStrategy:   KeyStrategyIP,
			IdleTimeout:   ratelimit.DefaultIdleTimeout,
			SweepInterval: ratelimit.DefaultSweepInterval,
		},
		Keys: KeysConfig{
			MaxTokenLifetime: 24 * time.Hour,
		},
		Token: TokenConfig{
			Header: "Authorization",
			TTL:    time.Hour,
			Skew:   5 * time.Minute,
		},
		Signature: SignatureConfig{
			Skew: 5 * time.Minute,
		},
		Policies: admission.Policies{
			Default: admission.Policy{RequireToken: true, RequireSignature: true},
		},
	}
}

// Load reads path on top of Default, loads envFiles into the process
// environment, applies GATEKEEPER_* overrides and validates the result.
// An empty path skips the YAML file. Missing env files are ignored.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cfg.Decode(data); err != nil {
			return nil, err
		}
	}

	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Decode decodes YAML data over the current values. Unknown fields are
// rejected so typos do not silently fall back to defaults.
func (c *Config) Decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	return nil
}
