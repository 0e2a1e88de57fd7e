package ratelimit

import "errors"

var (
	// ErrInvalidConfig is returned by New and NewStore for invalid settings.
	ErrInvalidConfig = errors.New("ratelimit: invalid configuration")

	// ErrClockRewind is returned when a check observes a time earlier than
	// the bucket's last access by more than the configured tolerance. The
	// check is aborted; no token is taken.
	ErrClockRewind = errors.New("ratelimit: clock moved backwards")
)
