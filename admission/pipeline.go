package admission

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vitalvas/gatekeeper/keystore"
	"github.com/vitalvas/gatekeeper/ratelimit"
	"github.com/vitalvas/gatekeeper/signature"
	"github.com/vitalvas/gatekeeper/token"
)

// Stage names used in logs and metrics.
const (
	StageRateLimit = "rate_limit"
	StageToken     = "token"
	StageSignature = "signature"
)

// RateLimiter is satisfied by *ratelimit.Limiter.
type RateLimiter interface {
	Allow(key string) (ratelimit.Decision, error)
}

// TokenValidator is satisfied by *token.Validator.
type TokenValidator interface {
	Validate(raw string) (*token.Claims, error)
}

// SignatureVerifier is satisfied by *signature.Scheme.
type SignatureVerifier interface {
	Headers() []string
	VerifyHeaders(f signature.Facts, input, value string, lookup keystore.Lookup) error
}

// Config configures a Pipeline. Components are only required for the
// features that are enabled.
type Config struct {
	Features Features

	// Limiter and Key serve the rate limit stage. Key defaults to
	// KeyByClientIP.
	Limiter RateLimiter
	Key     KeyFunc

	// Validator serves the token stage. TokenHeader defaults to
	// Authorization, which carries "Bearer <token>"; any other header
	// carries the bare token.
	Validator   TokenValidator
	TokenHeader string

	// Scheme and Keys serve the signature stage.
	Scheme SignatureVerifier
	Keys   keystore.Lookup

	Policies Policies

	// Logger defaults to a discarding logger.
	Logger logrus.FieldLogger

	// Metrics is optional.
	Metrics *Metrics
}

// Pipeline admits or rejects inbound requests. It holds no per-request
// state and is safe for concurrent use.
type Pipeline struct {
	features    Features
	limiter     RateLimiter
	key         KeyFunc
	validator   TokenValidator
	tokenHeader string
	scheme      SignatureVerifier
	keys        keystore.Lookup
	policies    Policies
	logger      logrus.FieldLogger
	metrics     *Metrics
}

// New validates cfg and returns a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Features.RateLimit && cfg.Limiter == nil {
		return nil, fmt.Errorf("%w: rate limiting enabled without a limiter", ErrInvalidConfig)
	}

	if cfg.Features.TokenAuth && cfg.Validator == nil {
		return nil, fmt.Errorf("%w: token auth enabled without a validator", ErrInvalidConfig)
	}

	if cfg.Features.Signing && (cfg.Scheme == nil || cfg.Keys == nil) {
		return nil, fmt.Errorf("%w: signing enabled without a scheme and key lookup", ErrInvalidConfig)
	}

	p := &Pipeline{
		features:    cfg.Features,
		limiter:     cfg.Limiter,
		key:         cfg.Key,
		validator:   cfg.Validator,
		tokenHeader: cfg.TokenHeader,
		scheme:      cfg.Scheme,
		keys:        cfg.Keys,
		policies:    cfg.Policies,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}

	if p.key == nil {
		p.key = KeyByClientIP
	}

	if p.tokenHeader == "" {
		p.tokenHeader = "Authorization"
	}

	if p.logger == nil {
		p.logger = discardLogger()
	}

	return p, nil
}

// Policy returns the policy that applies to r.
func (p *Pipeline) Policy(r Request) Policy {
	return p.policies.For(r.Method(), routeOf(r))
}

// Admit runs the enabled stages against r and returns the verdict.
func (p *Pipeline) Admit(r Request) Verdict {
	var v Verdict

	log := p.logger.WithFields(logrus.Fields{
		"method":     r.Method(),
		"path":       r.Path(),
		"client_ip":  r.ClientIP(),
		"request_id": requestID(r),
	})

	policy := p.Policy(r)

	if p.features.RateLimit {
		v.Rejection = p.rateLimit(r, &v, log)
	}

	if v.Rejection == nil && p.features.TokenAuth {
		v.Rejection = p.authenticate(r, policy, &v, log)
	}

	if v.Rejection == nil && p.features.Signing && policy.RequireSignature {
		v.Rejection = p.verifySignature(r, log)
	}

	p.metrics.observeVerdict(v)

	if v.Allowed() {
		log.Debug("request admitted")
	}

	return v
}

func (p *Pipeline) rateLimit(r Request, v *Verdict, log logrus.FieldLogger) *Rejection {
	defer p.metrics.observeStage(StageRateLimit, time.Now())

	key := p.key(r)

	d, err := p.limiter.Allow(key)
	if err != nil {
		log.WithError(err).WithFields(logrus.Fields{"stage": StageRateLimit, "key": key}).Error("rate limiter failed")

		return &Rejection{Kind: KindInternal, Err: err}
	}

	v.RateLimit = &d

	if d.Allowed {
		return nil
	}

	log.WithFields(logrus.Fields{
		"stage":       StageRateLimit,
		"key":         key,
		"retry_after": d.RetryAfter.String(),
	}).Info("request rate limited")

	return &Rejection{Kind: KindRateLimited, RetryAfter: d.RetryAfter}
}

func (p *Pipeline) authenticate(r Request, policy Policy, v *Verdict, log logrus.FieldLogger) *Rejection {
	defer p.metrics.observeStage(StageToken, time.Now())

	raw, _ := r.Header(p.tokenHeader)
	raw = strings.TrimSpace(raw)

	if raw == "" {
		if !policy.RequireToken {
			return nil
		}

		return p.unauthorized(token.ReasonMissing.String(), token.ErrMissing, log)
	}

	if strings.EqualFold(p.tokenHeader, "Authorization") {
		bearer, err := token.ParseBearer(raw)
		if err != nil {
			reason, _ := token.ReasonOf(err)
			return p.unauthorized(reason.String(), err, log)
		}

		raw = bearer
	}

	claims, err := p.validator.Validate(raw)
	if err != nil {
		reason, ok := token.ReasonOf(err)
		if !ok {
			log.WithError(err).WithField("stage", StageToken).Error("token validation failed")

			return &Rejection{Kind: KindInternal, Err: err}
		}

		return p.unauthorized(reason.String(), err, log)
	}

	v.Claims = claims

	return nil
}

func (p *Pipeline) unauthorized(reason string, err error, log logrus.FieldLogger) *Rejection {
	log.WithError(err).WithFields(logrus.Fields{"stage": StageToken, "reason": reason}).Info("request unauthorized")

	return &Rejection{Kind: KindUnauthorized, Reason: reason, Err: err}
}

func (p *Pipeline) verifySignature(r Request, log logrus.FieldLogger) *Rejection {
	defer p.metrics.observeStage(StageSignature, time.Now())

	f, err := Facts(r, p.scheme.Headers())
	if err != nil {
		if errors.Is(err, ErrBodyTooLarge) {
			log.WithError(err).WithField("stage", StageSignature).Warn("request body too large to verify")

			return &Rejection{Kind: KindPayloadTooLarge, Err: err}
		}

		if errors.Is(err, signature.ErrMalformedFacts) {
			reason := signature.ReasonMalformedEncoding
			log.WithError(err).WithFields(logrus.Fields{"stage": StageSignature, "reason": reason}).Warn("invalid request signature")

			return &Rejection{Kind: KindSignatureInvalid, Reason: reason.String(), Err: err}
		}

		log.WithError(err).WithField("stage", StageSignature).Error("failed to read request facts")

		return &Rejection{Kind: KindInternal, Err: err}
	}

	input, _ := r.Header(signature.HeaderInput)
	value, _ := r.Header(signature.HeaderValue)

	err = p.scheme.VerifyHeaders(f, input, value, p.keys)
	if err == nil {
		return nil
	}

	reason, ok := signature.ReasonOf(err)
	if !ok {
		log.WithError(err).WithField("stage", StageSignature).Error("signature verification failed")

		return &Rejection{Kind: KindInternal, Err: err}
	}

	log.WithError(err).WithFields(logrus.Fields{"stage": StageSignature, "reason": reason}).Warn("invalid request signature")

	return &Rejection{Kind: KindSignatureInvalid, Reason: reason.String(), Err: err}
}

func routeOf(r Request) string {
	if route := r.Route(); route != "" {
		return route
	}

	return r.Path()
}

// WriteRateLimitHeaders sets X-RateLimit-* and Retry-After on h from v.
func WriteRateLimitHeaders(h http.Header, v Verdict) {
	if v.RateLimit != nil {
		h.Set("X-RateLimit-Limit", fmt.Sprintf("%d", v.RateLimit.Limit.Capacity))
		h.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", v.RateLimit.Remaining))
	}

	if v.Rejection != nil && v.Rejection.RetryAfter > 0 {
		h.Set("Retry-After", fmt.Sprintf("%d", RetryAfterSeconds(v.Rejection.RetryAfter)))
	}
}

// RetryAfterSeconds rounds d up to whole seconds, with a minimum of one.
func RetryAfterSeconds(d time.Duration) int64 {
	secs := int64((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}

	return secs
}
