package nethttp

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalvas/gatekeeper/admission"
	"github.com/vitalvas/gatekeeper/signature"
)

func TestDigestRequestBody(t *testing.T) {
	t.Run("restores body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("hello"))

		digest, err := DigestRequestBody(req, 1024)
		require.NoError(t, err)
		assert.Equal(t, signature.DigestBody([]byte("hello")), digest)

		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(body))
	})

	t.Run("empty body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)

		digest, err := DigestRequestBody(req, 1024)
		require.NoError(t, err)
		assert.Equal(t, signature.DigestBody(nil), digest)
	})

	t.Run("exactly at limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("abcd"))

		_, err := DigestRequestBody(req, 4)
		assert.NoError(t, err)
	})

	t.Run("over limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("abcde"))

		_, err := DigestRequestBody(req, 4)
		assert.ErrorIs(t, err, admission.ErrBodyTooLarge)
	})
}

func TestRequestAdapter(t *testing.T) {
	var got *Request

	router := mux.NewRouter()
	router.HandleFunc("/v1/items/{id}", func(_ http.ResponseWriter, r *http.Request) {
		got = NewRequest(r, "203.0.113.9", 0)
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/items/a%20b?x=1&x=2&y=", strings.NewReader("body"))
	req.Header.Add("X-Multi", "first")
	req.Header.Add("X-Multi", "second")
	router.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, got)
	assert.Equal(t, http.MethodPost, got.Method())
	assert.Equal(t, "/v1/items/a%20b", got.Path())
	assert.Equal(t, "/v1/items/{id}", got.Route())
	assert.Equal(t, "203.0.113.9", got.ClientIP())
	query, err := got.Query()
	require.NoError(t, err)
	assert.ElementsMatch(t, []signature.Param{{Key: "x", Value: "1"}, {Key: "x", Value: "2"}, {Key: "y", Value: ""}}, query)

	v, ok := got.Header("x-multi")
	assert.True(t, ok)
	assert.Equal(t, "first", v)

	_, ok = got.Header("X-Absent")
	assert.False(t, ok)

	first, err := got.BodyDigest()
	require.NoError(t, err)
	second, err := got.BodyDigest()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, signature.DigestBody([]byte("body")), first)
}

func TestRequestRouteWithoutMux(t *testing.T) {
	req := NewRequest(httptest.NewRequest(http.MethodGet, "/plain", nil), "", 0)
	assert.Equal(t, "", req.Route())
}

func TestClientIPResolver(t *testing.T) {
	tests := []struct {
		name    string
		trusted []string
		remote  string
		xff     []string
		realIP  string
		want    string
	}{
		{name: "direct peer", remote: "203.0.113.5:1234", want: "203.0.113.5"},
		{name: "untrusted peer ignores xff", remote: "203.0.113.5:1234", xff: []string{"198.51.100.1"}, want: "203.0.113.5"},
		{name: "trusted peer uses xff", remote: "10.0.0.1:80", xff: []string{"198.51.100.1"}, want: "198.51.100.1"},
		{name: "spoofed leftmost hop is skipped", remote: "10.0.0.1:80", xff: []string{"1.1.1.1, 198.51.100.1"}, want: "198.51.100.1"},
		{name: "trusted hops are walked", remote: "10.0.0.1:80", xff: []string{"198.51.100.1, 10.0.0.2"}, want: "198.51.100.1"},
		{name: "multiple xff headers", remote: "10.0.0.1:80", xff: []string{"198.51.100.1", "10.0.0.2"}, want: "198.51.100.1"},
		{name: "all hops trusted", remote: "10.0.0.1:80", xff: []string{"10.0.0.3, 10.0.0.2"}, want: "10.0.0.3"},
		{name: "garbage hop stops the walk", remote: "10.0.0.1:80", xff: []string{"junk, 10.0.0.2"}, want: "10.0.0.2"},
		{name: "x-real-ip", remote: "10.0.0.1:80", realIP: "198.51.100.7", want: "198.51.100.7"},
		{name: "invalid x-real-ip", remote: "10.0.0.1:80", realIP: "nope", want: "10.0.0.1"},
		{name: "no trusted proxies", trusted: []string{}, remote: "10.0.0.1:80", xff: []string{"198.51.100.1"}, want: "10.0.0.1"},
		{name: "single trusted ip", trusted: []string{"192.0.2.1"}, remote: "192.0.2.1:80", xff: []string{"198.51.100.1"}, want: "198.51.100.1"},
		{name: "ipv6 peer", remote: "[2001:db8::1]:443", want: "2001:db8::1"},
		{name: "remote without port", remote: "203.0.113.5", want: "203.0.113.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewClientIPResolver(tt.trusted)
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote

			for _, v := range tt.xff {
				req.Header.Add("X-Forwarded-For", v)
			}

			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}

			assert.Equal(t, tt.want, res.Resolve(req))
		})
	}
}

func TestNewClientIPResolverErrors(t *testing.T) {
	for _, entry := range []string{"nope", "10.0.0.0/99", ""} {
		_, err := NewClientIPResolver([]string{entry})
		assert.ErrorIs(t, err, ErrInvalidProxy, entry)
	}
}
