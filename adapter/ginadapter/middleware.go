// Package ginadapter attaches the admission pipeline to gin-gonic/gin
// engines.
//
// Per-route policies are keyed by gin route templates, for example
// "GET /v1/items/:id".
package ginadapter

import (
	"github.com/gin-gonic/gin"

	"github.com/vitalvas/gatekeeper/adapter/nethttp"
	"github.com/vitalvas/gatekeeper/admission"
	"github.com/vitalvas/gatekeeper/token"
)

// ClaimsKey is the gin context key holding the validated *token.Claims.
const ClaimsKey = "gatekeeper.claims"

// Options configures Middleware.
type Options struct {
	// MaxBodyBytes bounds the body buffered for signature verification.
	// Defaults to nethttp.DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

type request struct {
	*nethttp.Request
	c *gin.Context
}

func (r request) Route() string { return r.c.FullPath() }

func (r request) RequestID() string {
	if id := r.c.Writer.Header().Get(nethttp.DefaultRequestIDHeader); id != "" {
		return id
	}

	return r.c.GetHeader(nethttp.DefaultRequestIDHeader)
}

// Middleware admits each request through p. Client addresses come from
// c.ClientIP, so configure the engine's trusted proxies accordingly.
func Middleware(p nethttp.Admitter, opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := request{
			Request: nethttp.NewRequest(c.Request, c.ClientIP(), opts.MaxBodyBytes),
			c:       c,
		}

		v := p.Admit(req)

		admission.WriteRateLimitHeaders(c.Writer.Header(), v)

		if !v.Allowed() {
			if challenge := v.Rejection.Challenge(); challenge != "" {
				c.Header("WWW-Authenticate", challenge)
			}

			c.Header("Cache-Control", "no-store")
			c.AbortWithStatusJSON(v.Rejection.Kind.Status(), v.Rejection.Body())

			return
		}

		if v.Claims != nil {
			c.Set(ClaimsKey, v.Claims)
			c.Request = c.Request.WithContext(admission.WithClaims(c.Request.Context(), v.Claims))
		}

		c.Next()
	}
}

// Claims returns the claims stored by Middleware, or nil.
func Claims(c *gin.Context) *token.Claims {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil
	}

	claims, _ := v.(*token.Claims)

	return claims
}
