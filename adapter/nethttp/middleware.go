package nethttp

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vitalvas/gatekeeper/admission"
)

// Admitter is satisfied by *admission.Pipeline.
type Admitter interface {
	Admit(r admission.Request) admission.Verdict
}

// Options configures Middleware.
type Options struct {
	// TrustedProxies lists proxy IPs and CIDR ranges whose forwarding
	// headers are honored. Nil selects DefaultTrustedProxies.
	TrustedProxies []string

	// MaxBodyBytes bounds the body buffered for signature verification.
	// Defaults to DefaultMaxBodyBytes.
	MaxBodyBytes int64

	// RequestIDHeader defaults to DefaultRequestIDHeader.
	RequestIDHeader string

	// OnReject replaces WriteRejection when set.
	OnReject func(w http.ResponseWriter, r *http.Request, v admission.Verdict)
}

// Middleware returns a gorilla/mux middleware that admits each request
// through p before calling the next handler. Admitted requests carry the
// validated claims in their context, see admission.ClaimsFromContext.
func Middleware(p Admitter, opts Options) (mux.MiddlewareFunc, error) {
	resolver, err := NewClientIPResolver(opts.TrustedProxies)
	if err != nil {
		return nil, err
	}

	reject := opts.OnReject
	if reject == nil {
		reject = func(w http.ResponseWriter, _ *http.Request, v admission.Verdict) {
			WriteRejection(w, v)
		}
	}

	requestIDHeader := opts.RequestIDHeader
	if requestIDHeader == "" {
		requestIDHeader = DefaultRequestIDHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := NewRequest(r, resolver.Resolve(r), opts.MaxBodyBytes)
			req.requestIDHeader = requestIDHeader

			v := p.Admit(req)
			if !v.Allowed() {
				reject(w, r, v)
				return
			}

			admission.WriteRateLimitHeaders(w.Header(), v)

			if v.Claims != nil {
				r = r.WithContext(admission.WithClaims(r.Context(), v.Claims))
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}
