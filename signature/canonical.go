package signature

import (
	"cmp"
	"encoding/hex"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/vitalvas/gatekeeper/keystore"
)

// Version is the first line of every canonical string. Changing the
// serialization requires a new version.
const Version = "gatekeeper-v1"

// signedMeta is the signature metadata covered by the canonical string.
type signedMeta struct {
	created time.Time
	keyID   string
	alg     keystore.Algorithm
}

// canonicalize serializes facts and meta into the v1 canonical string.
// headers must already be lowercased.
func canonicalize(f Facts, headers []string, meta signedMeta) ([]byte, error) {
	if f.Method == "" {
		return nil, fmt.Errorf("%w: empty method", ErrMalformedFacts)
	}

	digest := f.BodyDigest
	if digest == nil {
		digest = emptyDigest
	}

	if len(digest) != DigestSize {
		return nil, fmt.Errorf("%w: body digest must be %d bytes", ErrMalformedFacts, DigestSize)
	}

	var b strings.Builder

	b.WriteString(Version)
	b.WriteByte('\n')
	b.WriteString(strings.ToUpper(f.Method))
	b.WriteByte('\n')
	b.WriteString(canonicalPath(f.Path))
	b.WriteByte('\n')
	b.WriteString(canonicalQuery(f.Query))
	b.WriteByte('\n')

	for _, name := range headers {
		v, _ := f.Header(name)
		v = strings.TrimSpace(v)

		if strings.ContainsAny(v, "\r\n") {
			return nil, fmt.Errorf("%w: header %q contains a line break", ErrMalformedFacts, name)
		}

		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(v)
		b.WriteByte('\n')
	}

	b.WriteString(hex.EncodeToString(digest))
	b.WriteByte('\n')
	b.WriteString(strconv.FormatInt(meta.created.Unix(), 10))
	b.WriteByte('\n')
	b.WriteString(meta.keyID)
	b.WriteByte('\n')
	b.WriteString(meta.alg.String())

	return []byte(b.String()), nil
}

func canonicalPath(p string) string {
	p = strings.TrimRight(p, "/")
	if p == "" {
		return "/"
	}

	return p
}

func canonicalQuery(params []Param) string {
	if len(params) == 0 {
		return ""
	}

	sorted := slices.Clone(params)
	slices.SortFunc(sorted, func(a, b Param) int {
		if c := cmp.Compare(a.Key, b.Key); c != 0 {
			return c
		}

		return cmp.Compare(a.Value, b.Value)
	})

	parts := make([]string, len(sorted))
	for i, p := range sorted {
		parts[i] = url.QueryEscape(p.Key) + "=" + url.QueryEscape(p.Value)
	}

	return strings.Join(parts, "&")
}

// ParseQuery decodes a raw query string into params. Pairs that fail to
// decode are reported as ErrMalformedFacts instead of being dropped.
func ParseQuery(raw string) ([]Param, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFacts, err)
	}

	return QueryParams(values), nil
}

// QueryParams flattens url.Values into params. Order is irrelevant to the
// canonical string.
func QueryParams(values url.Values) []Param {
	var params []Param
	for k, vs := range values {
		for _, v := range vs {
			params = append(params, Param{Key: k, Value: v})
		}
	}

	return params
}
