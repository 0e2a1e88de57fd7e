package config

import (
	"fmt"
	"os"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/vitalvas/gatekeeper/admission"
	"github.com/vitalvas/gatekeeper/clock"
	"github.com/vitalvas/gatekeeper/keystore"
	"github.com/vitalvas/gatekeeper/ratelimit"
	"github.com/vitalvas/gatekeeper/signature"
	"github.com/vitalvas/gatekeeper/token"
)

// Runtime holds the components assembled from a Config. Components for
// disabled features are still built when their inputs exist, so the CLI
// can issue and sign with the same keys the server verifies with.
type Runtime struct {
	Keys      *keystore.Store
	Limiter   *ratelimit.Limiter
	Issuer    *token.Issuer
	Validator *token.Validator
	Scheme    *signature.Scheme
	Metrics   *admission.Metrics
	Pipeline  *admission.Pipeline
}

// BuildOptions are the process-level inputs to Build.
type BuildOptions struct {
	Logger logrus.FieldLogger

	// Registerer receives the admission metrics. Nil skips metrics.
	Registerer prometheus.Registerer

	// Clock defaults to the system clock.
	Clock clock.Clock
}

// Build assembles the key store, limiter, token issuer and validator,
// signature scheme and admission pipeline described by cfg.
func Build(cfg *Config, opts BuildOptions) (*Runtime, error) {
	clk := clock.Default(opts.Clock)

	store, err := buildKeys(cfg.Keys, clk)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Keys: store}

	if cfg.Features.RateLimit {
		rl := cfg.RateLimit

		rt.Limiter, err = ratelimit.New(ratelimit.Config{
			Default:        rl.Limit(),
			Overrides:      rl.Overrides,
			Shards:         rl.Shards,
			IdleTimeout:    rl.IdleTimeout,
			SweepInterval:  rl.SweepInterval,
			MaxClockRewind: rl.MaxClockRewind,
			Clock:          clk,
			OnEvict:        func(n int) { rt.Metrics.Evicted(n) },
		})
		if err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	rt.Issuer, err = token.NewIssuer(token.IssuerConfig{
		Keys:        store,
		TTL:         cfg.Token.TTL,
		MaxLifetime: cfg.Keys.MaxTokenLifetime,
		Clock:       clk,
	})
	if err != nil {
		return nil, err
	}

	if len(store.IDs()) > 0 {
		tokenAlgs, err := allowList(cfg.Token.Algorithms, store)
		if err != nil {
			return nil, fmt.Errorf("token.algorithms: %w", err)
		}

		rt.Validator, err = token.NewValidator(token.ValidatorConfig{
			Keys:       store,
			Algorithms: tokenAlgs,
			Skew:       cfg.Token.Skew,
			Clock:      clk,
		})
		if err != nil {
			return nil, err
		}
	}

	sigAlgs, err := allowList(cfg.Signature.Algorithms, store)
	if err != nil {
		return nil, fmt.Errorf("signature.algorithms: %w", err)
	}

	rt.Scheme, err = signature.NewScheme(signature.SchemeConfig{
		Headers:    cfg.Signature.Headers,
		Skew:       cfg.Signature.Skew,
		Algorithms: sigAlgs,
		Clock:      clk,
	})
	if err != nil {
		return nil, err
	}

	if opts.Registerer != nil {
		var buckets func() int
		if rt.Limiter != nil {
			buckets = rt.Limiter.Len
		}

		rt.Metrics, err = admission.NewMetrics(opts.Registerer, buckets)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
	}

	pc := admission.Config{
		Features:    cfg.Features,
		TokenHeader: cfg.Token.Header,
		Scheme:      rt.Scheme,
		Keys:        store,
		Policies:    cfg.Policies,
		Logger:      opts.Logger,
		Metrics:     rt.Metrics,
	}

	// Typed nils must not reach the pipeline's interface fields.
	if rt.Limiter != nil {
		pc.Limiter = rt.Limiter
	}

	if rt.Validator != nil {
		pc.Validator = rt.Validator
	}

	if cfg.RateLimit.KeyStrategy == KeyStrategyHeader {
		pc.Key = admission.KeyByHeader(cfg.RateLimit.KeyHeader)
	}

	rt.Pipeline, err = admission.New(pc)
	if err != nil {
		return nil, err
	}

	return rt, nil
}

func buildKeys(kc KeysConfig, clk clock.Clock) (*keystore.Store, error) {
	store := keystore.NewStore(keystore.StoreConfig{MaxTokenLifetime: kc.MaxTokenLifetime, Clock: clk})

	for _, inline := range kc.Inline {
		alg, err := keystore.ParseAlgorithm(inline.Algorithm)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", inline.ID, err)
		}

		if err := store.Add(keystore.Key{ID: inline.ID, Algorithm: alg, Secret: []byte(inline.Secret)}); err != nil {
			return nil, fmt.Errorf("key %q: %w", inline.ID, err)
		}
	}

	if kc.JWKSFile != "" {
		data, err := os.ReadFile(kc.JWKSFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read jwks file: %w", err)
		}

		keys, err := keystore.ParseJWKSet(data)
		if err != nil {
			return nil, err
		}

		for _, k := range keys {
			if err := store.Add(k); err != nil {
				return nil, fmt.Errorf("key %q: %w", k.ID, err)
			}
		}
	}

	if kc.Default != "" {
		if err := store.SetDefault(kc.Default); err != nil {
			return nil, fmt.Errorf("keys.default: %w", err)
		}
	}

	return store, nil
}

// allowList parses names, or collects the algorithms of the stored keys
// when names is empty.
func allowList(names []string, store *keystore.Store) ([]keystore.Algorithm, error) {
	var algs []keystore.Algorithm

	if len(names) == 0 {
		for _, id := range store.IDs() {
			k, ok := store.Lookup(id)
			if ok && !slices.Contains(algs, k.Algorithm) {
				algs = append(algs, k.Algorithm)
			}
		}

		return algs, nil
	}

	for _, name := range names {
		alg, err := keystore.ParseAlgorithm(name)
		if err != nil {
			return nil, err
		}

		algs = append(algs, alg)
	}

	return algs, nil
}

// NewLogger returns a logrus logger configured from lc.
func NewLogger(lc LogConfig) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetLevel(level)

	if lc.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	return logger, nil
}
