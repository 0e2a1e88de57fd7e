package keystore

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// ParseJWKSet converts a JSON Web Key Set into keys. Every JWK must carry
// "kid" and "alg"; the alg must be one of Algorithms. Private JWKs yield
// signing keys, public JWKs yield verify-only keys.
func ParseJWKSet(data []byte) ([]Key, error) {
	set, err := jwk.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	keys := make([]Key, 0, set.Len())
	for i := 0; i < set.Len(); i++ {
		jk, ok := set.Key(i)
		if !ok {
			continue
		}

		k, err := fromJWK(jk)
		if err != nil {
			return nil, err
		}

		keys = append(keys, k)
	}

	return keys, nil
}

func fromJWK(jk jwk.Key) (Key, error) {
	kid := jk.KeyID()
	if kid == "" {
		return Key{}, fmt.Errorf("%w: jwk without kid", ErrInvalidKey)
	}

	algName := jk.Algorithm().String()
	if algName == "" {
		return Key{}, fmt.Errorf("%w: jwk %q without alg", ErrInvalidKey, kid)
	}

	alg, err := ParseAlgorithm(algName)
	if err != nil {
		return Key{}, fmt.Errorf("jwk %q: %w", kid, err)
	}

	var raw any
	if err := jk.Raw(&raw); err != nil {
		return Key{}, fmt.Errorf("%w: jwk %q: %v", ErrInvalidKey, kid, err)
	}

	k := Key{ID: kid, Algorithm: alg}

	switch v := raw.(type) {
	case []byte:
		k.Secret = v
	case *rsa.PrivateKey:
		k.Private = v
	case *rsa.PublicKey:
		k.Public = v
	case *ecdsa.PrivateKey:
		k.Private = v
	case *ecdsa.PublicKey:
		k.Public = v
	case ed25519.PrivateKey:
		k.Private = v
	case ed25519.PublicKey:
		k.Public = v
	default:
		return Key{}, fmt.Errorf("%w: jwk %q has unsupported key type %T", ErrInvalidKey, kid, raw)
	}

	return k, nil
}
