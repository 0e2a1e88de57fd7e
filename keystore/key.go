package keystore

import (
	"crypto"
	"fmt"
	"time"
)

// Key is a key record: an identifier bound to one algorithm and its key
// material. Symmetric algorithms use Secret; asymmetric algorithms use
// Private for signing and Public for verification. A key with only Public
// material can verify but never sign.
type Key struct {
	ID        string
	Algorithm Algorithm

	Secret  []byte
	Private crypto.Signer
	Public  crypto.PublicKey

	// AddedAt is set by Store.Add.
	AddedAt time.Time

	// RetiredAt is set by Store.Retire. A retired key no longer signs but
	// still verifies until removed.
	RetiredAt time.Time
}

// Retired reports whether the key has been retired.
func (k *Key) Retired() bool {
	return !k.RetiredAt.IsZero()
}

// CanSign reports whether the key carries signing material.
func (k *Key) CanSign() bool {
	if k.Algorithm.Symmetric() {
		return len(k.Secret) > 0
	}

	return k.Private != nil
}

// Signer returns a Signer over this key's material.
func (k *Key) Signer() (Signer, error) {
	return newSigner(k.ID, k.Algorithm, k.Secret, k.Private)
}

// Verifier returns a Verifier over this key's material.
func (k *Key) Verifier() (Verifier, error) {
	return newVerifier(k.ID, k.Algorithm, k.Secret, k.publicKey())
}

// SigningKey returns the raw material a JOSE library expects for signing:
// the secret for HMAC, the private key otherwise.
func (k *Key) SigningKey() (any, error) {
	if !k.CanSign() {
		return nil, ErrVerifyOnly
	}

	if k.Algorithm.Symmetric() {
		return k.Secret, nil
	}

	return k.Private, nil
}

// VerificationKey returns the raw material a JOSE library expects for
// verification: the secret for HMAC, the public key otherwise.
func (k *Key) VerificationKey() (any, error) {
	if k.Algorithm.Symmetric() {
		return k.Secret, nil
	}

	pub := k.publicKey()
	if pub == nil {
		return nil, fmt.Errorf("%w: public key must not be nil", ErrInvalidKey)
	}

	return pub, nil
}

// Validate checks that the key ID is set, the algorithm is supported and
// the material matches the algorithm.
func (k *Key) Validate() error {
	if k.ID == "" {
		return fmt.Errorf("%w: key id must not be empty", ErrInvalidKey)
	}

	if !k.Algorithm.Supported() {
		return fmt.Errorf("%w: %q", ErrUnknownAlgorithm, k.Algorithm)
	}

	if _, err := k.Verifier(); err != nil {
		return fmt.Errorf("key %q: %w", k.ID, err)
	}

	if k.CanSign() {
		if _, err := k.Signer(); err != nil {
			return fmt.Errorf("key %q: %w", k.ID, err)
		}
	}

	return nil
}

func (k *Key) publicKey() crypto.PublicKey {
	if k.Public != nil {
		return k.Public
	}

	if k.Private != nil {
		return k.Private.Public()
	}

	return nil
}

// clone returns a copy that does not share the secret slice.
func (k Key) clone() *Key {
	if k.Secret != nil {
		secret := make([]byte, len(k.Secret))
		copy(secret, k.Secret)
		k.Secret = secret
	}

	return &k
}
