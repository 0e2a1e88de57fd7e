package nethttp

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vitalvas/gatekeeper/admission"
	"github.com/vitalvas/gatekeeper/signature"
)

// Request adapts an inbound *http.Request to admission.Request.
type Request struct {
	r               *http.Request
	clientIP        string
	maxBodyBytes    int64
	requestIDHeader string

	digested  bool
	digest    []byte
	digestErr error
}

var _ admission.Request = (*Request)(nil)

// NewRequest wraps r. clientIP is the resolved client address.
func NewRequest(r *http.Request, clientIP string, maxBodyBytes int64) *Request {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}

	return &Request{r: r, clientIP: clientIP, maxBodyBytes: maxBodyBytes, requestIDHeader: DefaultRequestIDHeader}
}

func (a *Request) Method() string { return a.r.Method }

func (a *Request) Path() string { return a.r.URL.EscapedPath() }

func (a *Request) ClientIP() string { return a.clientIP }

func (a *Request) Query() ([]signature.Param, error) {
	return signature.ParseQuery(a.r.URL.RawQuery)
}

func (a *Request) Header(name string) (string, bool) {
	values := a.r.Header.Values(name)
	if len(values) == 0 {
		return "", false
	}

	return values[0], true
}

// Route returns the gorilla/mux route template when the request was
// matched by a mux.Router.
func (a *Request) Route() string {
	route := mux.CurrentRoute(a.r)
	if route == nil {
		return ""
	}

	tpl, err := route.GetPathTemplate()
	if err != nil {
		return ""
	}

	return tpl
}

// BodyDigest hashes the body on first call and restores it for the next
// handler.
func (a *Request) BodyDigest() ([]byte, error) {
	if !a.digested {
		a.digest, a.digestErr = DigestRequestBody(a.r, a.maxBodyBytes)
		a.digested = true
	}

	return a.digest, a.digestErr
}

// RequestID returns the ID assigned by RequestID middleware, falling back
// to the request header.
func (a *Request) RequestID() string {
	if id := RequestIDFromContext(a.r.Context()); id != "" {
		return id
	}

	return a.r.Header.Get(a.requestIDHeader)
}

// outboundRequest adapts a client *http.Request to
// admission.OutboundRequest.
type outboundRequest struct {
	r *http.Request
}

var _ admission.OutboundRequest = outboundRequest{}

func (o outboundRequest) Method() string { return o.r.Method }

func (o outboundRequest) Path() string { return o.r.URL.EscapedPath() }

func (o outboundRequest) Query() ([]signature.Param, error) {
	return signature.ParseQuery(o.r.URL.RawQuery)
}

func (o outboundRequest) Header(name string) (string, bool) {
	values := o.r.Header.Values(name)
	if len(values) == 0 {
		return "", false
	}

	return values[0], true
}

func (o outboundRequest) SetHeader(name, value string) {
	o.r.Header.Set(name, value)
}

// BodyDigest hashes a fresh copy from GetBody when available so the body
// that will be sent stays untouched.
func (o outboundRequest) BodyDigest() ([]byte, error) {
	if o.r.Body == nil || o.r.Body == http.NoBody {
		return signature.DigestBody(nil), nil
	}

	if o.r.GetBody != nil {
		body, err := o.r.GetBody()
		if err != nil {
			return nil, err
		}
		defer body.Close()

		return signature.DigestReader(body)
	}

	return DigestRequestBody(o.r, 1<<62)
}
