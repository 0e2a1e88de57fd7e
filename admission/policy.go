package admission

// Policy holds the per-route authentication requirements.
type Policy struct {
	// RequireToken rejects requests without a token. A token that is
	// present is always validated.
	RequireToken bool `yaml:"require_token" json:"require_token"`

	// RequireSignature verifies the request signature.
	RequireSignature bool `yaml:"require_signature" json:"require_signature"`
}

// Policies maps routes to policies. Keys are either "METHOD route" or a
// bare route; the method-qualified key wins. Routes without an entry get
// Default.
type Policies struct {
	Default Policy            `yaml:"default" json:"default"`
	Routes  map[string]Policy `yaml:"routes" json:"routes"`
}

// For returns the policy for method and route.
func (p Policies) For(method, route string) Policy {
	if pol, ok := p.Routes[method+" "+route]; ok {
		return pol
	}

	if pol, ok := p.Routes[route]; ok {
		return pol
	}

	return p.Default
}

// Features switches pipeline stages on and off at runtime, so one binary
// can run in every combination.
type Features struct {
	RateLimit bool `yaml:"rate_limit" json:"rate_limit"`
	TokenAuth bool `yaml:"token_auth" json:"token_auth"`
	Signing   bool `yaml:"signing" json:"signing"`
}

// KeyFunc derives the rate limit key for a request.
type KeyFunc func(r Request) string

// KeyByClientIP keys buckets by client IP.
func KeyByClientIP(r Request) string {
	return r.ClientIP()
}

// KeyByHeader keys buckets by the value of header, such as an API key,
// falling back to the client IP when the header is absent or empty.
func KeyByHeader(header string) KeyFunc {
	return func(r Request) string {
		if v, ok := r.Header(header); ok && v != "" {
			return header + ":" + v
		}

		return r.ClientIP()
	}
}
