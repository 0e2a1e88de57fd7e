package keystore

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
)

// Minimum RSA key size in bits.
const minRSAKeyBits = 2048

// Minimum HMAC secret size in bytes.
const minHMACKeyBytes = 32

// GenerateSecret returns a random secret suitable for HS256 and HS512.
func GenerateSecret() ([]byte, error) {
	b := make([]byte, minHMACKeyBytes*2)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}

	return b, nil
}

// --- HMAC ---

type hmacKey struct {
	alg   Algorithm
	hash  func() hash.Hash
	key   []byte
	keyID string
}

func newHMACKey(keyID string, alg Algorithm, secret []byte) (*hmacKey, error) {
	if len(secret) < minHMACKeyBytes {
		return nil, fmt.Errorf("%w: hmac key must be at least %d bytes", ErrInvalidKey, minHMACKeyBytes)
	}

	h := sha256.New
	if alg == HS512 {
		h = sha512.New
	}

	keyCopy := make([]byte, len(secret))
	copy(keyCopy, secret)

	return &hmacKey{alg: alg, hash: h, key: keyCopy, keyID: keyID}, nil
}

func (k *hmacKey) Sign(message []byte) ([]byte, error) {
	m := hmac.New(k.hash, k.key)
	m.Write(message)

	return m.Sum(nil), nil
}

func (k *hmacKey) Verify(message, signature []byte) error {
	expected, _ := k.Sign(message)
	if !hmac.Equal(expected, signature) {
		return ErrSignatureInvalid
	}

	return nil
}

func (k *hmacKey) Algorithm() Algorithm { return k.alg }
func (k *hmacKey) KeyID() string        { return k.keyID }

// --- RSA (PKCS1-v1_5 SHA-256, PSS SHA-512) ---

func rsaHash(alg Algorithm) crypto.Hash {
	if alg == PS512 {
		return crypto.SHA512
	}

	return crypto.SHA256
}

func rsaDigest(alg Algorithm, message []byte) []byte {
	if alg == PS512 {
		d := sha512.Sum512(message)
		return d[:]
	}

	d := sha256.Sum256(message)

	return d[:]
}

var pssOptions = &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}

type rsaSigner struct {
	alg   Algorithm
	key   *rsa.PrivateKey
	keyID string
}

func (s *rsaSigner) Sign(message []byte) ([]byte, error) {
	digest := rsaDigest(s.alg, message)
	if s.alg == PS512 {
		return rsa.SignPSS(rand.Reader, s.key, crypto.SHA512, digest, pssOptions)
	}

	return rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest)
}

func (s *rsaSigner) Algorithm() Algorithm { return s.alg }
func (s *rsaSigner) KeyID() string        { return s.keyID }

type rsaVerifier struct {
	alg   Algorithm
	key   *rsa.PublicKey
	keyID string
}

func (v *rsaVerifier) Verify(message, signature []byte) error {
	digest := rsaDigest(v.alg, message)

	var err error
	if v.alg == PS512 {
		err = rsa.VerifyPSS(v.key, crypto.SHA512, digest, signature, pssOptions)
	} else {
		err = rsa.VerifyPKCS1v15(v.key, rsaHash(v.alg), digest, signature)
	}

	if err != nil {
		return ErrSignatureInvalid
	}

	return nil
}

func (v *rsaVerifier) Algorithm() Algorithm { return v.alg }
func (v *rsaVerifier) KeyID() string        { return v.keyID }

func checkRSASize(n int) error {
	if n < minRSAKeyBits {
		return fmt.Errorf("%w: rsa key must be at least %d bits", ErrInvalidKey, minRSAKeyBits)
	}

	return nil
}

// --- ECDSA (P-256 SHA-256, P-384 SHA-384) ---

func ecdsaCurve(alg Algorithm) elliptic.Curve {
	if alg == ES384 {
		return elliptic.P384()
	}

	return elliptic.P256()
}

func ecdsaDigest(alg Algorithm, message []byte) []byte {
	if alg == ES384 {
		d := sha512.Sum384(message)
		return d[:]
	}

	d := sha256.Sum256(message)

	return d[:]
}

type ecdsaSigner struct {
	alg   Algorithm
	key   *ecdsa.PrivateKey
	keyID string
}

func (s *ecdsaSigner) Sign(message []byte) ([]byte, error) {
	return ecdsa.SignASN1(rand.Reader, s.key, ecdsaDigest(s.alg, message))
}

func (s *ecdsaSigner) Algorithm() Algorithm { return s.alg }
func (s *ecdsaSigner) KeyID() string        { return s.keyID }

type ecdsaVerifier struct {
	alg   Algorithm
	key   *ecdsa.PublicKey
	keyID string
}

func (v *ecdsaVerifier) Verify(message, signature []byte) error {
	if !ecdsa.VerifyASN1(v.key, ecdsaDigest(v.alg, message), signature) {
		return ErrSignatureInvalid
	}

	return nil
}

func (v *ecdsaVerifier) Algorithm() Algorithm { return v.alg }
func (v *ecdsaVerifier) KeyID() string        { return v.keyID }

// --- Ed25519 ---

type ed25519Signer struct {
	key   ed25519.PrivateKey
	keyID string
}

func (s *ed25519Signer) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(s.key, message), nil
}

func (s *ed25519Signer) Algorithm() Algorithm { return EdDSA }
func (s *ed25519Signer) KeyID() string        { return s.keyID }

type ed25519Verifier struct {
	key   ed25519.PublicKey
	keyID string
}

func (v *ed25519Verifier) Verify(message, signature []byte) error {
	if !ed25519.Verify(v.key, message, signature) {
		return ErrSignatureInvalid
	}

	return nil
}

func (v *ed25519Verifier) Algorithm() Algorithm { return EdDSA }
func (v *ed25519Verifier) KeyID() string        { return v.keyID }

// newSigner builds a Signer for alg from the given private material.
func newSigner(keyID string, alg Algorithm, secret []byte, private crypto.Signer) (Signer, error) {
	if alg.Symmetric() {
		return newHMACKey(keyID, alg, secret)
	}

	if private == nil {
		return nil, ErrVerifyOnly
	}

	switch alg {
	case RS256, PS512:
		key, ok := private.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: %s requires an rsa private key", ErrInvalidKey, alg)
		}

		if err := checkRSASize(key.N.BitLen()); err != nil {
			return nil, err
		}

		return &rsaSigner{alg: alg, key: key, keyID: keyID}, nil

	case ES256, ES384:
		key, ok := private.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: %s requires an ecdsa private key", ErrInvalidKey, alg)
		}

		if key.Curve != ecdsaCurve(alg) {
			return nil, fmt.Errorf("%w: key curve must be %s", ErrInvalidKey, ecdsaCurve(alg).Params().Name)
		}

		return &ecdsaSigner{alg: alg, key: key, keyID: keyID}, nil

	case EdDSA:
		key, ok := private.(ed25519.PrivateKey)
		if !ok || len(key) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("%w: ed25519 private key must be %d bytes", ErrInvalidKey, ed25519.PrivateKeySize)
		}

		return &ed25519Signer{key: key, keyID: keyID}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
}

// newVerifier builds a Verifier for alg from the given public material.
func newVerifier(keyID string, alg Algorithm, secret []byte, public crypto.PublicKey) (Verifier, error) {
	if alg.Symmetric() {
		return newHMACKey(keyID, alg, secret)
	}

	if public == nil {
		return nil, fmt.Errorf("%w: public key must not be nil", ErrInvalidKey)
	}

	switch alg {
	case RS256, PS512:
		key, ok := public.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: %s requires an rsa public key", ErrInvalidKey, alg)
		}

		if err := checkRSASize(key.N.BitLen()); err != nil {
			return nil, err
		}

		return &rsaVerifier{alg: alg, key: key, keyID: keyID}, nil

	case ES256, ES384:
		key, ok := public.(*ecdsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: %s requires an ecdsa public key", ErrInvalidKey, alg)
		}

		if key.Curve != ecdsaCurve(alg) {
			return nil, fmt.Errorf("%w: key curve must be %s", ErrInvalidKey, ecdsaCurve(alg).Params().Name)
		}

		return &ecdsaVerifier{alg: alg, key: key, keyID: keyID}, nil

	case EdDSA:
		key, ok := public.(ed25519.PublicKey)
		if !ok || len(key) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("%w: ed25519 public key must be %d bytes", ErrInvalidKey, ed25519.PublicKeySize)
		}

		return &ed25519Verifier{key: key, keyID: keyID}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
}
