package echoadapter

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalvas/gatekeeper/admission"
	"github.com/vitalvas/gatekeeper/clock"
	"github.com/vitalvas/gatekeeper/keystore"
	"github.com/vitalvas/gatekeeper/ratelimit"
	"github.com/vitalvas/gatekeeper/signature"
	"github.com/vitalvas/gatekeeper/token"
)

type fixture struct {
	clock  *clock.Fixture
	issuer *token.Issuer
	out    *admission.Outbound
	server *echo.Echo
}

func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()

	clk := clock.NewFixture(time.Unix(1_700_000_000, 0))

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

	p, err := admission.New(admission.Config{
		Features:  admission.Features{RateLimit: true, TokenAuth: true, Signing: true},
		Limiter:   limiter,
		Validator: validator,
		Scheme:    scheme,
		Keys:      store,
		Policies: admission.Policies{
			Default: admission.Policy{RequireToken: true, RequireSignature: true},
			Routes: map[string]admission.Policy{
				"GET /v1/public/:id": {},
			},
		},
	})
	require.NoError(t, err)

	src, err := token.NewSource(issuer, token.SourceConfig{Subject: "billing", Clock: clk})
	require.NoError(t, err)

	out, err := admission.NewOutbound(admission.OutboundConfig{Tokens: src, Signer: scheme, Keys: store, Clock: clk})
	require.NoError(t, err)

	e := echo.New()
	e.Use(middleware.RequestID())
	e.Use(Middleware(p, Options{}))

	e.POST("/v1/items/:id", func(c echo.Context) error {
		claims := Claims(c)
		if claims == nil {
			return c.NoContent(http.StatusInternalServerError)
		}

		return c.String(http.StatusOK, claims.Subject)
	})

	e.GET("/v1/public/:id", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	return &fixture{clock: clk, issuer: issuer, out: out, server: e}
}

// echoOutbound lets the test sign a request with admission.Outbound.
type echoOutbound struct {
	r    *http.Request
	body []byte
}

func (o echoOutbound) Method() string               { return o.r.Method }
func (o echoOutbound) Path() string                 { return o.r.URL.EscapedPath() }
func (o echoOutbound) SetHeader(name, value string) { o.r.Header.Set(name, value) }
func (o echoOutbound) BodyDigest() ([]byte, error)  { return signature.DigestBody(o.body), nil }
func (o echoOutbound) Query() ([]signature.Param, error) {
	return signature.ParseQuery(o.r.URL.RawQuery)
}

func (o echoOutbound) Header(name string) (string, bool) {
	v := o.r.Header.Get(name)
	return v, v != ""
}

func (f *fixture) signed(t *testing.T, method, target, body string) *http.Request {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	require.NoError(t, f.out.Prepare(echoOutbound{r: req, body: []byte(body)}))

	return req
}

func TestMiddlewareAdmits(t *testing.T) {
	f := newFixture(t, 5)

	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, f.signed(t, http.MethodPost, "/v1/items/9", `{"a":1}`))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "billing", w.Body.String())
	assert.Equal(t, "4", w.Header().Get("X-RateLimit-Remaining"))
}

func TestMiddlewareRejects(t *testing.T) {
	t.Run("unsigned", func(t *testing.T) {
		f := newFixture(t, 5)

		raw, _, err := f.issuer.IssueFor("billing", nil)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/v1/items/9", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+raw)

		w := httptest.NewRecorder()
		f.server.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)

		var body admission.Body
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, admission.Body{Error: "signature_invalid", Reason: "missing"}, body)
	})

	t.Run("replayed after skew", func(t *testing.T) {
		f := newFixture(t, 5)

		req := f.signed(t, http.MethodPost, "/v1/items/9", "x")
		f.clock.Advance(6 * time.Minute)

		w := httptest.NewRecorder()
		f.server.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), `"reason":"expired"`)
	})

	t.Run("no token", func(t *testing.T) {
		f := newFixture(t, 5)

		w := httptest.NewRecorder()
		f.server.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/items/9", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Bearer", w.Header().Get(echo.HeaderWWWAuthenticate))
	})

	t.Run("rate limited", func(t *testing.T) {
		f := newFixture(t, 1)

		w := httptest.NewRecorder()
		f.server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/public/1", nil))
		require.Equal(t, http.StatusNoContent, w.Code)

		w = httptest.NewRecorder()
		f.server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/public/1", nil))

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "1", w.Header().Get("Retry-After"))

		f.clock.Advance(time.Second)

		w = httptest.NewRecorder()
		f.server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/public/1", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestRouteTemplatePolicy(t *testing.T) {
	f := newFixture(t, 5)

	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/public/abc", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRequestIDFromEcho(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Response().Header().Set(echo.HeaderXRequestID, "generated")

	r := request{c: c}
	assert.Equal(t, "generated", r.RequestID())
}
