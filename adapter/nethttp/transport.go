package nethttp

import (
	"net/http"

	"github.com/vitalvas/gatekeeper/admission"
)

// Preparer is satisfied by *admission.Outbound.
type Preparer interface {
	Prepare(req admission.OutboundRequest) error
}

// Transport is an http.RoundTripper that attaches a bearer token and a
// request signature to every outgoing request.
type Transport struct {
	base     http.RoundTripper
	outbound Preparer
}

// NewTransport wraps base. When base is nil a clone of
// http.DefaultTransport is used so the client gets its own connection
// pool.
func NewTransport(base http.RoundTripper, outbound Preparer) *Transport {
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}

	return &Transport{base: base, outbound: outbound}
}

// RoundTrip prepares a clone of req and delegates to the base transport.
// The caller's request is never mutated. When GetBody is set the clone
// gets its own body copy.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if clone.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}

		clone.Body = body
	}

	if err := t.outbound.Prepare(outboundRequest{r: clone}); err != nil {
		if req.Body != nil {
			req.Body.Close()
		}

		return nil, err
	}

	return t.base.RoundTrip(clone)
}
