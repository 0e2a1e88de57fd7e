// Package echoadapter attaches the admission pipeline to labstack/echo servers.
//
// Per-route policies are keyed by echo route templates, for example
// "GET /v1/items/:id".
package echoadapter

import (
	"github.com/labstack/echo/v4"

	"github.com/vitalvas/gatekeeper/adapter/nethttp"
	"github.com/vitalvas/gatekeeper/admission"
	"github.com/vitalvas/gatekeeper/token"
)

// ClaimsKey is the echo context key holding the validated *token.Claims.
const ClaimsKey = "gatekeeper.claims"

// Options configures Middleware.
type Options struct {
	// MaxBodyBytes bounds the body buffered for signature verification.
	// Defaults to nethttp.DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

type request struct {
	*nethttp.Request
	c echo.Context
}

func (r request) Route() string { return r.c.Path() }

func (r request) RequestID() string {
	if id := r.c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		return id
	}

	return r.c.Request().Header.Get(echo.HeaderXRequestID)
}

// Middleware admits each request through p. Client addresses come from
// echo's IPExtractor via c.RealIP.
func Middleware(p nethttp.Admitter, opts Options) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := request{
				Request: nethttp.NewRequest(c.Request(), c.RealIP(), opts.MaxBodyBytes),
				c:       c,
			}

			v := p.Admit(req)

			admission.WriteRateLimitHeaders(c.Response().Header(), v)

			if !v.Allowed() {
				if challenge := v.Rejection.Challenge(); challenge != "" {
					c.Response().Header().Set(echo.HeaderWWWAuthenticate, challenge)
				}

				c.Response().Header().Set(echo.HeaderCacheControl, "no-store")

				return c.JSON(v.Rejection.Kind.Status(), v.Rejection.Body())
			}

			if v.Claims != nil {
				c.Set(ClaimsKey, v.Claims)
				c.SetRequest(c.Request().WithContext(admission.WithClaims(c.Request().Context(), v.Claims)))
			}

			return next(c)
		}
	}
}

// Claims returns the claims stored by Middleware, or nil.
func Claims(c echo.Context) *token.Claims {
	claims, _ := c.Get(ClaimsKey).(*token.Claims)
	return claims
}
