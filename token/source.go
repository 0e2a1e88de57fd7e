package token

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vitalvas/gatekeeper/clock"
)

// BearerScheme is the Authorization scheme tokens are carried in.
const BearerScheme = "Bearer"

// ParseBearer extracts the token from an Authorization header value.
// An empty value yields ReasonMissing; any other scheme yields
// ReasonMalformedEncoding.
func ParseBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", reject(ErrMissing)
	}

	scheme, raw, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, BearerScheme) {
		return "", reject(fmt.Errorf("%w: expected %s authorization", ErrMalformed, BearerScheme))
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", reject(ErrMissing)
	}

	return raw, nil
}

// DefaultRefreshBefore is how long before expiry a Source replaces its
// cached token when SourceConfig.RefreshBefore is zero.
const DefaultRefreshBefore = 30 * time.Second

// SourceConfig configures a Source.
type SourceConfig struct {
	// Subject and Extra are the claims every issued token carries.
	Subject string
	Extra   map[string]any

	// RefreshBefore is the margin before expiry at which a new token is
	// issued. Defaults to DefaultRefreshBefore.
	RefreshBefore time.Duration

	// Clock defaults to the system clock.
	Clock clock.Clock
}

// Source hands out a cached token for outbound requests and issues a new
// one when the cached token is about to expire.
type Source struct {
	issuer        *Issuer
	subject       string
	extra         map[string]any
	refreshBefore time.Duration
	clock         clock.Clock

	mu      sync.Mutex
	current string
	expires time.Time
}

// NewSource returns a Source issuing tokens with issuer.
func NewSource(issuer *Issuer, cfg SourceConfig) (*Source, error) {
	if issuer == nil {
		return nil, fmt.Errorf("%w: issuer must not be nil", ErrInvalidConfig)
	}

	if cfg.Subject == "" {
		return nil, fmt.Errorf("%w: subject must not be empty", ErrInvalidConfig)
	}

	refresh := cfg.RefreshBefore
	if refresh == 0 {
		refresh = DefaultRefreshBefore
	}

	if refresh < 0 || refresh >= issuer.ttl {
		return nil, fmt.Errorf("%w: refresh margin must be positive and shorter than the ttl", ErrInvalidConfig)
	}

	return &Source{
		issuer:        issuer,
		subject:       cfg.Subject,
		extra:         cfg.Extra,
		refreshBefore: refresh,
		clock:         clock.Default(cfg.Clock),
	}, nil
}

// Token returns the cached token, issuing a fresh one when none is cached
// or the cached one expires within the refresh margin.
func (s *Source) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != "" && s.clock.Now().Before(s.expires.Add(-s.refreshBefore)) {
		return s.current, nil
	}

	raw, claims, err := s.issuer.IssueFor(s.subject, s.extra)
	if err != nil {
		return "", err
	}

	s.current = raw
	s.expires = claims.ExpiresAt

	return raw, nil
}
