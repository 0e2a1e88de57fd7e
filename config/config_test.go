package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalvas/gatekeeper/admission"
	"github.com/vitalvas/gatekeeper/clock"
	"github.com/vitalvas/gatekeeper/keystore"
	"github.com/vitalvas/gatekeeper/ratelimit"
	"github.com/vitalvas/gatekeeper/signature"
)

const testSecret = "0123456789abcdef0123456789abcdef"

const sampleYAML = `
server:
  address: "127.0.0.1:9090"
  trusted_proxies: ["10.0.0.0/8"]
log:
  level: debug
  format: text
features:
  rate_limit: true
  token_auth: true
  signing: false
rate_limit:
  capacity: 5
  refill_rate: 0.5
  key_strategy: header
  key_header: X-API-Key
  idle_timeout: 2m
  overrides:
    "X-API-Key:premium":
      capacity: 100
      refill_rate: 10
keys:
  default: k2
  max_token_lifetime: 2h
  inline:
    - id: k1
      algorithm: HS256
      secret: "0123456789abcdef0123456789abcdef"
    - id: k2
      algorithm: hs512
      secret: "fedcba9876543210fedcba9876543210"
token:
  ttl: 30m
  algorithms: [HS256, HS512]
signature:
  headers: [content-type, x-request-date, x-tenant]
  skew: 90s
policies:
  default:
    require_token: true
    require_signature: false
  routes:
    "GET /healthz": {}
    "/v1/orders/{id}":
      require_token: true
      require_signature: true
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "gatekeeper.yaml", sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Address)
	assert.Equal(t, []string{"10.0.0.0/8"}, cfg.Server.TrustedProxies)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout, "unset fields keep defaults")
	assert.Equal(t, LogConfig{Level: "debug", Format: "text"}, cfg.Log)
	assert.Equal(t, admission.Features{RateLimit: true, TokenAuth: true}, cfg.Features)

	assert.Equal(t, ratelimit.Limit{Capacity: 5, RefillRate: 0.5}, cfg.RateLimit.Limit())
	assert.Equal(t, 2*time.Minute, cfg.RateLimit.IdleTimeout)
	assert.Equal(t, ratelimit.Limit{Capacity: 100, RefillRate: 10}, cfg.RateLimit.Overrides["X-API-Key:premium"])

	assert.Equal(t, "k2", cfg.Keys.Default)
	assert.Len(t, cfg.Keys.Inline, 2)
	assert.Equal(t, 30*time.Minute, cfg.Token.TTL)
	assert.Equal(t, 90*time.Second, cfg.Signature.Skew)

	assert.Equal(t, admission.Policy{}, cfg.Policies.For("GET", "/healthz"))
	assert.Equal(t, admission.Policy{RequireToken: true, RequireSignature: true}, cfg.Policies.For("PUT", "/v1/orders/{id}"))
	assert.Equal(t, admission.Policy{RequireToken: true}, cfg.Policies.For("GET", "/other"))
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := Load(writeFile(t, "bad.yaml", "server:\n  adress: x\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "adress")
	})

	t.Run("invalid values are aggregated", func(t *testing.T) {
		_, err := Load(writeFile(t, "bad.yaml", `
log:
  level: loud
  format: xml
rate_limit:
  capacity: 0
  key_strategy: cookie
`))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalid)

		var cerr *Error
		require.ErrorAs(t, err, &cerr)
		assert.GreaterOrEqual(t, len(cerr.Problems), 5)
		assert.Contains(t, err.Error(), "log.level")
		assert.Contains(t, err.Error(), "log.format")
		assert.Contains(t, err.Error(), "key_strategy")
		assert.Contains(t, err.Error(), "need inline keys")
	})
}

func TestDecodeEmpty(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Decode(nil))
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"GATEKEEPER_ADDRESS":                ":7000",
		"GATEKEEPER_FEATURES_SIGNING":       "false",
		"GATEKEEPER_RATE_LIMIT_CAPACITY":    "12",
		"GATEKEEPER_RATE_LIMIT_REFILL_RATE": "2.5",
		"GATEKEEPER_TOKEN_TTL":              "15m",
		"GATEKEEPER_SIGNATURE_HEADERS":      "content-type, x-request-date ,",
		"GATEKEEPER_HMAC_SECRET":            testSecret,
		"GATEKEEPER_HMAC_KEY_ID":            "env",
	}

	cfg := Default()
	cfg.Keys.Inline = []KeyConfig{{ID: "env", Algorithm: "HS256", Secret: "old"}}

	require.NoError(t, cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))

	assert.Equal(t, ":7000", cfg.Server.Address)
	assert.False(t, cfg.Features.Signing)
	assert.Equal(t, ratelimit.Limit{Capacity: 12, RefillRate: 2.5}, cfg.RateLimit.Limit())
	assert.Equal(t, 15*time.Minute, cfg.Token.TTL)
	assert.Equal(t, []string{"content-type", "x-request-date"}, cfg.Signature.Headers)
	assert.Equal(t, []KeyConfig{{ID: "env", Algorithm: "HS256", Secret: testSecret}}, cfg.Keys.Inline)
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnvErrors(t *testing.T) {
	env := map[string]string{
		"GATEKEEPER_FEATURES_RATE_LIMIT": "maybe",
		"GATEKEEPER_TOKEN_SKEW":          "soon",
	}

	err := Default().ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.ErrorIs(t, err, ErrInvalid)

	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Len(t, cerr.Problems, 2)
}

func TestLoadDotEnv(t *testing.T) {
	for _, k := range []string{"GATEKEEPER_HMAC_SECRET", "GATEKEEPER_LOG_LEVEL"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}

	dotenv := writeFile(t, ".env", "GATEKEEPER_HMAC_SECRET="+testSecret+"\nGATEKEEPER_LOG_LEVEL=warn\n")

	cfg, err := Load("", dotenv, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	require.Len(t, cfg.Keys.Inline, 1)
	assert.Equal(t, "default", cfg.Keys.Inline[0].ID)
}

func TestValidateKeys(t *testing.T) {
	tests := []struct {
		name string
		keys KeysConfig
		want string
	}{
		{"asymmetric inline", KeysConfig{Inline: []KeyConfig{{ID: "a", Algorithm: "EdDSA", Secret: "x"}}}, "jwks_file"},
		{"duplicate", KeysConfig{Inline: []KeyConfig{{ID: "a", Algorithm: "HS256", Secret: testSecret}, {ID: "a", Algorithm: "HS256", Secret: testSecret}}}, "duplicate"},
		{"unknown algorithm", KeysConfig{Inline: []KeyConfig{{ID: "a", Algorithm: "none", Secret: testSecret}}}, "algorithm"},
		{"empty secret", KeysConfig{Inline: []KeyConfig{{ID: "a", Algorithm: "HS256"}}}, "secret"},
		{"unknown default", KeysConfig{Default: "b", Inline: []KeyConfig{{ID: "a", Algorithm: "HS256", Secret: testSecret}}}, "keys.default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Keys = tt.keys

			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateFeaturesOff(t *testing.T) {
	cfg := Default()
	cfg.Features = admission.Features{}
	cfg.RateLimit.Capacity = 0

	assert.NoError(t, cfg.Validate(), "disabled stages need no keys or limits")
}

func writeJWKS(t *testing.T) string {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	jk, err := jwk.FromRaw(priv)
	require.NoError(t, err)
	require.NoError(t, jk.Set(jwk.KeyIDKey, "ed1"))
	require.NoError(t, jk.Set(jwk.AlgorithmKey, jwa.EdDSA))

	set := jwk.NewSet()
	require.NoError(t, set.AddKey(jk))

	data, err := json.Marshal(set)
	require.NoError(t, err)

	return writeFile(t, "keys.json", string(data))
}

func TestBuild(t *testing.T) {
	cfg := Default()
	cfg.Keys.Inline = []KeyConfig{{ID: "k1", Algorithm: "HS256", Secret: testSecret}}
	cfg.Keys.JWKSFile = writeJWKS(t)
	cfg.Keys.Default = "ed1"
	require.NoError(t, cfg.Validate())

	clk := clock.NewFixture(time.Unix(1_700_000_000, 0))
	reg := prometheus.NewRegistry()

	rt, err := Build(cfg, BuildOptions{Logger: logrus.New(), Registerer: reg, Clock: clk})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"k1", "ed1"}, rt.Keys.IDs())

	def, err := rt.Keys.Default()
	require.NoError(t, err)
	assert.Equal(t, keystore.EdDSA, def.Algorithm)

	raw, _, err := rt.Issuer.IssueFor("svc", nil)
	require.NoError(t, err)

	claims, err := rt.Validator.Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, "svc", claims.Subject)

	f := signature.Facts{Method: "GET", Path: "/v1", Headers: map[string]string{}}
	sig, err := rt.Scheme.Sign(f, def)
	require.NoError(t, err)
	assert.NoError(t, rt.Scheme.Verify(f, sig, rt.Keys))

	require.NotNil(t, rt.Limiter)
	require.NotNil(t, rt.Metrics)
	require.NotNil(t, rt.Pipeline)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestBuildFeaturesOff(t *testing.T) {
	cfg := Default()
	cfg.Features = admission.Features{}

	rt, err := Build(cfg, BuildOptions{})
	require.NoError(t, err)

	assert.Nil(t, rt.Limiter)
	assert.Nil(t, rt.Validator)
	assert.Nil(t, rt.Metrics)
	require.NotNil(t, rt.Pipeline)
}

func TestBuildErrors(t *testing.T) {
	t.Run("missing jwks", func(t *testing.T) {
		cfg := Default()
		cfg.Keys.JWKSFile = filepath.Join(t.TempDir(), "absent.json")

		_, err := Build(cfg, BuildOptions{})
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("short secret", func(t *testing.T) {
		cfg := Default()
		cfg.Keys.Inline = []KeyConfig{{ID: "k1", Algorithm: "HS256", Secret: "short"}}

		_, err := Build(cfg, BuildOptions{})
		assert.ErrorIs(t, err, keystore.ErrInvalidKey)
	})

	t.Run("default not in jwks", func(t *testing.T) {
		cfg := Default()
		cfg.Keys.JWKSFile = writeJWKS(t)
		cfg.Keys.Default = "nope"

		_, err := Build(cfg, BuildOptions{})
		assert.ErrorIs(t, err, keystore.ErrKeyNotFound)
	})
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LogConfig{Level: "warn", Format: "text"})
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)

	logger, err = NewLogger(LogConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	_, err = NewLogger(LogConfig{Level: "chatty"})
	assert.Error(t, err)
}
