// Package admission orchestrates rate limiting, token validation and
// request signature verification into one verdict per inbound request,
// and attaches tokens and signatures to outbound requests.
//
// The pipeline never touches a concrete HTTP framework. Host adapters
// implement Request for inbound traffic and OutboundRequest for client
// traffic; see the adapter packages for net/http, echo and gin.
//
// Stages run in a fixed order, cheapest first:
//
//  1. rate limit, keyed by a KeyFunc (client IP by default)
//  2. token, when present or required by the route policy
//  3. signature, when required by the route policy
//
// Request facts and the body digest are only extracted when the signature
// stage runs, so requests rejected earlier never pay for hashing.
//
//	p, err := admission.New(admission.Config{
//	    Features:  admission.Features{RateLimit: true, TokenAuth: true, Signing: true},
//	    Limiter:   limiter,
//	    Validator: validator,
//	    Scheme:    scheme,
//	    Keys:      store,
//	    Policies: admission.Policies{
//	        Default: admission.Policy{RequireToken: true},
//	    },
//	})
//
//	v := p.Admit(req)
//	if !v.Allowed() {
//	    // render v.Rejection.Kind.Status()
//	}
package admission
