package admission

import (
	"fmt"
	"net/http"
	"time"

	"github.com/vitalvas/gatekeeper/ratelimit"
	"github.com/vitalvas/gatekeeper/token"
)

// Kind classifies a rejection.
type Kind string

// Rejection kinds.
const (
	KindRateLimited      Kind = "rate_limited"
	KindUnauthorized     Kind = "unauthorized"
	KindSignatureInvalid Kind = "signature_invalid"
	KindPayloadTooLarge  Kind = "payload_too_large"
	KindInternal         Kind = "internal"
)

// Status returns the HTTP status code conventionally used for k.
func (k Kind) Status() int {
	switch k {
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindSignatureInvalid:
		return http.StatusForbidden
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	}

	return http.StatusInternalServerError
}

// Rejection describes why a request was not admitted.
type Rejection struct {
	Kind Kind

	// Reason is the stage-specific reason, e.g. "expired".
	Reason string

	// RetryAfter is set for KindRateLimited.
	RetryAfter time.Duration

	// Err is the underlying error. It is not meant for clients.
	Err error
}

func (r *Rejection) Error() string {
	if r.Reason == "" {
		return fmt.Sprintf("admission: %s", r.Kind)
	}

	return fmt.Sprintf("admission: %s (%s)", r.Kind, r.Reason)
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

// Verdict is the outcome of Admit.
type Verdict struct {
	// Claims are the validated token claims, nil when no token was
	// presented or token auth is disabled.
	Claims *token.Claims

	// RateLimit is the limiter decision, nil when rate limiting is
	// disabled or failed.
	RateLimit *ratelimit.Decision

	// Rejection is nil when the request is admitted.
	Rejection *Rejection
}

// Allowed reports whether the request is admitted.
func (v Verdict) Allowed() bool {
	return v.Rejection == nil
}

// Body is the JSON error document adapters send with a rejection.
type Body struct {
	Error      string `json:"error"`
	Reason     string `json:"reason,omitempty"`
	RetryAfter int64  `json:"retry_after,omitempty"`
}

// Body returns the client-facing error document for r. Internal errors
// carry no reason.
func (r *Rejection) Body() Body {
	b := Body{Error: string(r.Kind)}

	if r.Kind != KindInternal {
		b.Reason = r.Reason
	}

	if r.RetryAfter > 0 {
		b.RetryAfter = RetryAfterSeconds(r.RetryAfter)
	}

	return b
}

// Challenge returns the WWW-Authenticate value for unauthorized
// rejections, or "" for other kinds.
func (r *Rejection) Challenge() string {
	if r.Kind != KindUnauthorized {
		return ""
	}

	if r.Reason == "" || r.Reason == token.ReasonMissing.String() {
		return token.BearerScheme
	}

	return fmt.Sprintf(`%s error="invalid_token", error_description=%q`, token.BearerScheme, r.Reason)
}
