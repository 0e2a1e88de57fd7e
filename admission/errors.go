package admission

import "errors"

var (
	// ErrInvalidConfig is returned by New and NewOutbound for invalid
	// configuration.
	ErrInvalidConfig = errors.New("admission: invalid configuration")

	// ErrBodyTooLarge is returned by adapters from BodyDigest when the body
	// exceeds their configured limit.
	ErrBodyTooLarge = errors.New("admission: request body too large")
)
