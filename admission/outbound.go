package admission

import (
	"fmt"
	"strings"
	"time"

	"github.com/vitalvas/gatekeeper/clock"
	"github.com/vitalvas/gatekeeper/keystore"
	"github.com/vitalvas/gatekeeper/signature"
	"github.com/vitalvas/gatekeeper/token"
)

// TokenSource is satisfied by *token.Source.
type TokenSource interface {
	Token() (string, error)
}

// RequestSigner is satisfied by *signature.Scheme.
type RequestSigner interface {
	Headers() []string
	Sign(f signature.Facts, key *keystore.Key) (signature.Signature, error)
}

// OutboundConfig configures an Outbound. At least one of Tokens and
// Signer must be set.
type OutboundConfig struct {
	// Tokens supplies bearer tokens. TokenHeader defaults to Authorization.
	Tokens      TokenSource
	TokenHeader string

	// Signer and Keys sign requests with the default key.
	Signer RequestSigner
	Keys   token.DefaultKeySource

	// Clock stamps X-Request-Date. Defaults to the system clock.
	Clock clock.Clock
}

// Outbound attaches trust headers to client requests.
type Outbound struct {
	tokens      TokenSource
	tokenHeader string
	signer      RequestSigner
	keys        token.DefaultKeySource
	clock       clock.Clock
}

// NewOutbound validates cfg and returns an Outbound.
func NewOutbound(cfg OutboundConfig) (*Outbound, error) {
	if cfg.Tokens == nil && cfg.Signer == nil {
		return nil, fmt.Errorf("%w: outbound needs a token source or a signer", ErrInvalidConfig)
	}

	if cfg.Signer != nil && cfg.Keys == nil {
		return nil, fmt.Errorf("%w: signer configured without keys", ErrInvalidConfig)
	}

	o := &Outbound{
		tokens:      cfg.Tokens,
		tokenHeader: cfg.TokenHeader,
		signer:      cfg.Signer,
		keys:        cfg.Keys,
		clock:       clock.Default(cfg.Clock),
	}

	if o.tokenHeader == "" {
		o.tokenHeader = "Authorization"
	}

	return o, nil
}

// Prepare sets X-Request-Date when absent, attaches the token, then signs.
// Signing runs last so covered headers, including the token header when
// configured, are signed as sent. req must not change afterwards.
func (o *Outbound) Prepare(req OutboundRequest) error {
	if o.signer != nil {
		if v, ok := req.Header(signature.HeaderDate); !ok || v == "" {
			req.SetHeader(signature.HeaderDate, o.clock.Now().UTC().Format(time.RFC3339))
		}
	}

	if o.tokens != nil {
		raw, err := o.tokens.Token()
		if err != nil {
			return fmt.Errorf("failed to obtain token: %w", err)
		}

		if strings.EqualFold(o.tokenHeader, "Authorization") {
			raw = token.BearerScheme + " " + raw
		}

		req.SetHeader(o.tokenHeader, raw)
	}

	if o.signer == nil {
		return nil
	}

	key, err := o.keys.Default()
	if err != nil {
		return err
	}

	f, err := Facts(req, o.signer.Headers())
	if err != nil {
		return err
	}

	sig, err := o.signer.Sign(f, key)
	if err != nil {
		return err
	}

	input, value := sig.Headers()
	req.SetHeader(signature.HeaderInput, input)
	req.SetHeader(signature.HeaderValue, value)

	return nil
}
