package admission

import (
	"strings"

	"github.com/vitalvas/gatekeeper/signature"
)

type fakeRequest struct {
	method  string
	path    string
	route   string
	ip      string
	id      string
	query   []signature.Param
	headers map[string]string
	body    []byte

	queryErr    error
	digestErr   error
	digestCalls int
}

func newFakeRequest(method, path string) *fakeRequest {
	return &fakeRequest{
		method:  method,
		path:    path,
		ip:      "192.0.2.10",
		headers: map[string]string{},
	}
}

func (r *fakeRequest) Method() string           { return r.method }
func (r *fakeRequest) Path() string             { return r.path }
func (r *fakeRequest) Route() string            { return r.route }
func (r *fakeRequest) ClientIP() string         { return r.ip }
func (r *fakeRequest) RequestID() string        { return r.id }
func (r *fakeRequest) SetHeader(name, v string) { r.headers[strings.ToLower(name)] = v }

func (r *fakeRequest) Query() ([]signature.Param, error) {
	if r.queryErr != nil {
		return nil, r.queryErr
	}

	return r.query, nil
}
func (r *fakeRequest) Header(name string) (string, bool) {
	v, ok := r.headers[strings.ToLower(name)]
	return v, ok
}

func (r *fakeRequest) BodyDigest() ([]byte, error) {
	r.digestCalls++

	if r.digestErr != nil {
		return nil, r.digestErr
	}

	return signature.DigestBody(r.body), nil
}

// clone copies the request as a server would receive it.
func (r *fakeRequest) clone() *fakeRequest {
	c := *r
	c.headers = make(map[string]string, len(r.headers))

	for k, v := range r.headers {
		c.headers[k] = v
	}

	c.digestCalls = 0

	return &c
}
