package signature

import (
	"crypto/sha256"
	"io"
	"strings"
)

// DigestSize is the length of a body digest in bytes.
const DigestSize = sha256.Size

// Param is one query parameter. Key and Value are decoded.
type Param struct {
	Key   string
	Value string
}

// Facts is the snapshot of a request that a signature covers. It is built
// once per request by the host adapter and never mutated afterwards.
type Facts struct {
	Method string
	Path   string
	Query  []Param

	// Headers maps lowercased header names to their values. Only the
	// scheme's covered headers are read.
	Headers map[string]string

	// BodyDigest is the SHA-256 of the body. Nil means an empty body.
	BodyDigest []byte
}

// Header returns the value of the named header, matching case-insensitively.
func (f Facts) Header(name string) (string, bool) {
	if f.Headers == nil {
		return "", false
	}

	v, ok := f.Headers[strings.ToLower(name)]

	return v, ok
}

// DigestBody returns the SHA-256 digest of body.
func DigestBody(body []byte) []byte {
	d := sha256.Sum256(body)
	return d[:]
}

// DigestReader streams r through SHA-256 and returns the digest.
func DigestReader(r io.Reader) ([]byte, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return nil, err
	}

	return h.Sum(nil), nil
}

var emptyDigest = DigestBody(nil)
