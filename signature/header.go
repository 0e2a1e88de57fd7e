package signature

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vitalvas/gatekeeper/keystore"
)

// Header names carrying a request signature.
const (
	HeaderInput = "X-Signature-Input"
	HeaderValue = "X-Signature"

	// HeaderDate carries the request creation time in RFC 3339. It is
	// covered by the default scheme so the body of a signed request is
	// bound to when it was built.
	HeaderDate = "X-Request-Date"
)

// Signature is a computed request signature and the metadata needed to
// verify it.
type Signature struct {
	KeyID     string
	Algorithm keystore.Algorithm
	Created   time.Time
	Value     []byte
}

// Headers returns the X-Signature-Input and X-Signature header values.
func (s Signature) Headers() (input, value string) {
	var b strings.Builder

	b.WriteString("keyid=")
	b.WriteString(quoteParam(s.KeyID))
	b.WriteString(";alg=")
	b.WriteString(quoteParam(s.Algorithm.String()))
	b.WriteString(";created=")
	b.WriteString(strconv.FormatInt(s.Created.Unix(), 10))

	return b.String(), base64.RawURLEncoding.EncodeToString(s.Value)
}

// ParseHeaders decodes the X-Signature-Input and X-Signature header
// values. It returns ErrMissing when both are empty and wraps
// ErrMalformedHeader for any other decoding failure.
func ParseHeaders(input, value string) (Signature, error) {
	var sig Signature

	input = strings.TrimSpace(input)
	value = strings.TrimSpace(value)

	if input == "" && value == "" {
		return sig, ErrMissing
	}

	if input == "" || value == "" {
		return sig, fmt.Errorf("%w: both %s and %s are required", ErrMalformedHeader, HeaderInput, HeaderValue)
	}

	var created bool

	for _, part := range splitQuoteAware(input, ';') {
		key, raw, ok := strings.Cut(part, "=")
		if !ok {
			return sig, fmt.Errorf("%w: parameter %q has no value", ErrMalformedHeader, part)
		}

		switch strings.TrimSpace(key) {
		case "keyid":
			sig.KeyID = unquoteParam(raw)

		case "alg":
			sig.Algorithm = keystore.Algorithm(unquoteParam(raw))

		case "created":
			ts, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
			if err != nil {
				return sig, fmt.Errorf("%w: invalid created timestamp", ErrMalformedHeader)
			}

			sig.Created = time.Unix(ts, 0)
			created = true
		}
	}

	if sig.KeyID == "" {
		return sig, fmt.Errorf("%w: missing keyid parameter", ErrMalformedHeader)
	}

	if sig.Algorithm == "" {
		return sig, fmt.Errorf("%w: missing alg parameter", ErrMalformedHeader)
	}

	if !created {
		return sig, fmt.Errorf("%w: missing created parameter", ErrMalformedHeader)
	}

	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return sig, fmt.Errorf("%w: signature is not unpadded base64url", ErrMalformedHeader)
	}

	sig.Value = decoded

	return sig, nil
}

// splitQuoteAware splits s on delim outside of "..." regions. Escaped
// quotes inside quoted strings are kept. Parts are trimmed and empty parts
// skipped.
func splitQuoteAware(s string, delim byte) []string {
	var (
		result  []string
		part    strings.Builder
		inQuote bool
	)

	flush := func() {
		if p := strings.TrimSpace(part.String()); p != "" {
			result = append(result, p)
		}

		part.Reset()
	}

	for i := 0; i < len(s); i++ {
		ch := s[i]

		switch {
		case inQuote && ch == '\\' && i+1 < len(s):
			part.WriteByte(ch)
			i++
			part.WriteByte(s[i])

		case ch == '"':
			inQuote = !inQuote
			part.WriteByte(ch)

		case !inQuote && ch == delim:
			flush()

		default:
			part.WriteByte(ch)
		}
	}

	flush()

	return result
}

// quoteParam produces a quoted string escaping only backslash and
// double quote.
func quoteParam(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')

	for i := 0; i < len(s); i++ {
		if s[i] == '\\' || s[i] == '"' {
			b.WriteByte('\\')
		}

		b.WriteByte(s[i])
	}

	b.WriteByte('"')

	return b.String()
}

// unquoteParam reverses quoteParam. Unquoted input is returned trimmed.
func unquoteParam(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return s
	}

	s = s[1 : len(s)-1]
	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}

		b.WriteByte(s[i])
	}

	return b.String()
}
