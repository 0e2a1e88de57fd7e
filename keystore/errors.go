package keystore

import "errors"

// Key material errors.
var (
	// ErrInvalidKey is returned when key material is invalid (nil, wrong
	// curve, insufficient size, etc.).
	ErrInvalidKey = errors.New("keystore: invalid key material")

	// ErrUnknownAlgorithm is returned for algorithm identifiers that are
	// not supported.
	ErrUnknownAlgorithm = errors.New("keystore: unknown algorithm")

	// ErrVerifyOnly is returned when a signer is requested for a key that
	// only carries public material.
	ErrVerifyOnly = errors.New("keystore: key has no signing material")

	// ErrSignatureInvalid is returned by a Verifier when the signature does
	// not match the message.
	ErrSignatureInvalid = errors.New("keystore: signature verification failed")
)

// Store errors.
var (
	// ErrKeyNotFound is returned when no key exists for a key ID.
	ErrKeyNotFound = errors.New("keystore: key not found")

	// ErrDuplicateKey is returned when adding a key whose ID already exists.
	ErrDuplicateKey = errors.New("keystore: duplicate key id")

	// ErrNoDefaultKey is returned when no default signing key is set.
	ErrNoDefaultKey = errors.New("keystore: no default signing key")

	// ErrKeyRetired is returned when a retired key is used for signing.
	ErrKeyRetired = errors.New("keystore: key is retired")

	// ErrKeyInUse is returned when removing a key that may still verify
	// outstanding credentials.
	ErrKeyInUse = errors.New("keystore: key may still be referenced by valid credentials")

	// ErrCorrupted is returned when the store's internal state violates
	// its invariants, e.g. the default key ID has no record.
	ErrCorrupted = errors.New("keystore: corrupted state")
)
