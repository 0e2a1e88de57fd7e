package nethttp

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/vitalvas/gatekeeper/admission"
	"github.com/vitalvas/gatekeeper/signature"
)

// DefaultMaxBodyBytes bounds how much of a request body is buffered for
// digesting when Options.MaxBodyBytes is zero.
const DefaultMaxBodyBytes = 10 << 20

// DigestRequestBody hashes the body of r and replaces r.Body with an
// equivalent reader so downstream handlers can still consume it. Bodies
// larger than maxBytes yield admission.ErrBodyTooLarge.
func DigestRequestBody(r *http.Request, maxBytes int64) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return signature.DigestBody(nil), nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	r.Body.Close()

	if err != nil {
		return nil, err
	}

	if int64(len(body)) > maxBytes {
		r.Body = io.NopCloser(bytes.NewReader(body))
		return nil, fmt.Errorf("%w: limit is %d bytes", admission.ErrBodyTooLarge, maxBytes)
	}

	r.Body = io.NopCloser(bytes.NewReader(body))

	return signature.DigestBody(body), nil
}
