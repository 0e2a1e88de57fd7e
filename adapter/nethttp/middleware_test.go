package nethttp

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalvas/gatekeeper/admission"
	"github.com/vitalvas/gatekeeper/clock"
	"github.com/vitalvas/gatekeeper/keystore"
	"github.com/vitalvas/gatekeeper/ratelimit"
	"github.com/vitalvas/gatekeeper/signature"
	"github.com/vitalvas/gatekeeper/token"
)

var testTime = time.Unix(1_700_000_000, 0)

type fixture struct {
	clock    *clock.Fixture
	store    *keystore.Store
	issuer   *token.Issuer
	scheme   *signature.Scheme
	pipeline *admission.Pipeline
	logs     *test.Hook
}

func newFixture(t *testing.T, capacity int, policies admission.Policies) *fixture {
	t.Helper()

	clk := clock.NewFixture(testTime)

	store := keystore.NewStore(keystore.StoreConfig{Clock: clk})
	require.NoError(t, store.Add(keystore.Key{
		ID:        "k1",
		Algorithm: keystore.HS256,
		Secret:    []byte("0123456789abcdef0123456789abcdef"),
	}))

	limiter, err := ratelimit.New(ratelimit.Config{
		Default: ratelimit.Limit{Capacity: capacity, RefillRate: 1},
		Clock:   clk,
	})
	require.NoError(t, err)

	issuer, err := token.NewIssuer(token.IssuerConfig{Keys: store, Clock: clk})
	require.NoError(t, err)

	validator, err := token.NewValidator(token.ValidatorConfig{
		Keys:       store,
		Algorithms: []keystore.Algorithm{keystore.HS256},
		Clock:      clk,
	})
	require.NoError(t, err)

	scheme, err := signature.NewScheme(signature.SchemeConfig{Clock: clk})
	require.NoError(t, err)

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	p, err := admission.New(admission.Config{
		Features:  admission.Features{RateLimit: true, TokenAuth: true, Signing: true},
		Limiter:   limiter,
		Validator: validator,
		Scheme:    scheme,
		Keys:      store,
		Policies:  policies,
		Logger:    logger,
	})
	require.NoError(t, err)

	return &fixture{clock: clk, store: store, issuer: issuer, scheme: scheme, pipeline: p, logs: hook}
}

func (f *fixture) outbound(t *testing.T) *admission.Outbound {
	t.Helper()

	src, err := token.NewSource(f.issuer, token.SourceConfig{Subject: "billing", Clock: f.clock})
	require.NoError(t, err)

	o, err := admission.NewOutbound(admission.OutboundConfig{Tokens: src, Signer: f.scheme, Keys: f.store, Clock: f.clock})
	require.NoError(t, err)

	return o
}

func (f *fixture) router(t *testing.T, opts Options) *mux.Router {
	t.Helper()

	mw, err := Middleware(f.pipeline, opts)
	require.NoError(t, err)

	r := mux.NewRouter()
	r.HandleFunc("/v1/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		subject := ""
		if claims := admission.ClaimsFromContext(r.Context()); claims != nil {
			subject = claims.Subject
		}

		w.Header().Set("X-Subject", subject)
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}).Methods(http.MethodGet, http.MethodPost)
	r.Use(mw)

	return r
}

var strict = admission.Policies{Default: admission.Policy{RequireToken: true, RequireSignature: true}}

func decodeBody(t *testing.T, body io.Reader) admission.Body {
	t.Helper()

	var b admission.Body
	require.NoError(t, json.NewDecoder(body).Decode(&b))

	return b
}

func TestTransportToMiddleware(t *testing.T) {
	f := newFixture(t, 10, strict)

	srv := httptest.NewServer(f.router(t, Options{}))
	defer srv.Close()

	client := &http.Client{Transport: NewTransport(nil, f.outbound(t))}

	payload := []byte(`{"name":"widget"}`)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/items/42?b=2&a=1", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, payload, body, "handler must see the original body")
	assert.Equal(t, "billing", resp.Header.Get("X-Subject"))
	assert.Equal(t, "10", resp.Header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", resp.Header.Get("X-RateLimit-Remaining"))

	assert.Empty(t, req.Header.Get(signature.HeaderValue), "caller request must not be mutated")
}

func TestMiddlewareRejections(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		f := newFixture(t, 10, strict)

		w := httptest.NewRecorder()
		f.router(t, Options{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/items/1", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.Equal(t, admission.Body{Error: "unauthorized", Reason: "missing"}, decodeBody(t, w.Body))
	})

	t.Run("expired token", func(t *testing.T) {
		f := newFixture(t, 10, strict)

		raw, _, err := f.issuer.IssueFor("billing", nil)
		require.NoError(t, err)

		f.clock.Advance(2 * time.Hour)

		req := httptest.NewRequest(http.MethodGet, "/v1/items/1", nil)
		req.Header.Set("Authorization", "Bearer "+raw)

		w := httptest.NewRecorder()
		f.router(t, Options{}).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Header().Get("WWW-Authenticate"), `error="invalid_token"`)
		assert.Equal(t, "expired", decodeBody(t, w.Body).Reason)
	})

	t.Run("rate limited", func(t *testing.T) {
		f := newFixture(t, 1, admission.Policies{})
		router := f.router(t, Options{})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/items/1", nil))
		require.Equal(t, http.StatusOK, w.Code)

		w = httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/items/1", nil))

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "1", w.Header().Get("Retry-After"))
		assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, admission.Body{Error: "rate_limited", RetryAfter: 1}, decodeBody(t, w.Body))
	})

	t.Run("tampered body", func(t *testing.T) {
		f := newFixture(t, 10, strict)

		req := httptest.NewRequest(http.MethodPost, "/v1/items/1", strings.NewReader("original"))
		require.NoError(t, f.outbound(t).Prepare(outboundRequest{r: req}))

		req.Body = io.NopCloser(strings.NewReader("tampered"))

		w := httptest.NewRecorder()
		f.router(t, Options{}).ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, admission.Body{Error: "signature_invalid", Reason: "canonical_mismatch"}, decodeBody(t, w.Body))
	})

	t.Run("undecodable query appended", func(t *testing.T) {
		f := newFixture(t, 10, strict)

		req := httptest.NewRequest(http.MethodPost, "/v1/items/1?a=1", strings.NewReader("original"))
		require.NoError(t, f.outbound(t).Prepare(outboundRequest{r: req}))

		req.URL.RawQuery += "&x=;y"

		w := httptest.NewRecorder()
		f.router(t, Options{}).ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, admission.Body{Error: "signature_invalid", Reason: "malformed_encoding"}, decodeBody(t, w.Body))
	})

	t.Run("body too large", func(t *testing.T) {
		f := newFixture(t, 10, strict)

		req := httptest.NewRequest(http.MethodPost, "/v1/items/1", strings.NewReader("0123456789"))
		require.NoError(t, f.outbound(t).Prepare(outboundRequest{r: req}))

		w := httptest.NewRecorder()
		f.router(t, Options{MaxBodyBytes: 4}).ServeHTTP(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, "payload_too_large", decodeBody(t, w.Body).Error)
	})
}

func TestMiddlewareRoutePolicy(t *testing.T) {
	f := newFixture(t, 10, admission.Policies{
		Default: admission.Policy{RequireToken: true, RequireSignature: true},
		Routes: map[string]admission.Policy{
			"GET /v1/items/{id}": {},
		},
	})
	router := f.router(t, Options{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/items/7", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/items/7", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddlewareOnReject(t *testing.T) {
	f := newFixture(t, 10, strict)

	var got admission.Verdict

	router := f.router(t, Options{
		OnReject: func(w http.ResponseWriter, _ *http.Request, v admission.Verdict) {
			got = v
			w.WriteHeader(http.StatusTeapot)
		},
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/items/1", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
	require.NotNil(t, got.Rejection)
	assert.Equal(t, admission.KindUnauthorized, got.Rejection.Kind)
}

func TestMiddlewareLogsRequestID(t *testing.T) {
	f := newFixture(t, 10, strict)

	mw, err := Middleware(f.pipeline, Options{})
	require.NoError(t, err)

	router := mux.NewRouter()
	router.HandleFunc("/v1/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Use(RequestID(RequestIDConfig{TrustIncoming: true}), mw)

	req := httptest.NewRequest(http.MethodGet, "/v1/items/1", nil)
	req.Header.Set(DefaultRequestIDHeader, "req-1")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)

	entry := f.logs.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "req-1", entry.Data["request_id"])
}

func TestMiddlewareInvalidProxy(t *testing.T) {
	f := newFixture(t, 10, strict)

	_, err := Middleware(f.pipeline, Options{TrustedProxies: []string{"not-an-ip"}})
	assert.ErrorIs(t, err, ErrInvalidProxy)
}
