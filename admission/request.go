package admission

import (
	"strings"

	"github.com/vitalvas/gatekeeper/signature"
)

// Message is the read side shared by inbound and outbound requests.
type Message interface {
	Method() string

	// Path returns the escaped request path without the query.
	Path() string

	// Query returns the decoded query parameters in any order. A query
	// that does not decode cleanly yields signature.ErrMalformedFacts.
	Query() ([]signature.Param, error)

	// Header returns the first value of the named header.
	Header(name string) (string, bool)

	// BodyDigest returns the SHA-256 digest of the body. Adapters compute
	// it at most once per request and must leave the body readable.
	BodyDigest() ([]byte, error)
}

// Request is the inbound contract a host framework adapter implements.
type Request interface {
	Message

	// Route returns the matched route template, e.g. "/v1/items/{id}",
	// or "" when the host has no router information.
	Route() string

	// ClientIP returns the resolved client address.
	ClientIP() string
}

// RequestIDer is optionally implemented by a Request to correlate logs.
type RequestIDer interface {
	RequestID() string
}

// OutboundRequest is the client contract: a fully built request that can
// still receive headers.
type OutboundRequest interface {
	Message
	SetHeader(name, value string)
}

// Facts snapshots m into signature facts covering headers.
func Facts(m Message, headers []string) (signature.Facts, error) {
	digest, err := m.BodyDigest()
	if err != nil {
		return signature.Facts{}, err
	}

	query, err := m.Query()
	if err != nil {
		return signature.Facts{}, err
	}

	f := signature.Facts{
		Method:     m.Method(),
		Path:       m.Path(),
		Query:      query,
		Headers:    make(map[string]string, len(headers)),
		BodyDigest: digest,
	}

	for _, name := range headers {
		if v, ok := m.Header(name); ok {
			f.Headers[strings.ToLower(name)] = v
		}
	}

	return f, nil
}

func requestID(r Request) string {
	if rid, ok := r.(RequestIDer); ok {
		return rid.RequestID()
	}

	return ""
}
