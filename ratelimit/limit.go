package ratelimit

import (
	"fmt"
	"math"
	"time"
)

// Limit is a token bucket shape.
type Limit struct {
	// Capacity is the maximum number of tokens, i.e. the burst size.
	Capacity int `yaml:"capacity" json:"capacity"`

	// RefillRate is the number of tokens added per second.
	RefillRate float64 `yaml:"refill_rate" json:"refill_rate"`
}

// Validate reports whether both fields are positive and finite.
func (l Limit) Validate() error {
	if l.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidConfig, l.Capacity)
	}

	if l.RefillRate <= 0 || math.IsInf(l.RefillRate, 0) || math.IsNaN(l.RefillRate) {
		return fmt.Errorf("%w: refill rate must be positive, got %v", ErrInvalidConfig, l.RefillRate)
	}

	return nil
}

// FillTime returns how long an empty bucket takes to refill completely.
func (l Limit) FillTime() time.Duration {
	return durationFor(float64(l.Capacity), l.RefillRate)
}

// Decision is the result of one check.
type Decision struct {
	Allowed bool

	// RetryAfter is zero when Allowed. Otherwise it is the time until the
	// bucket holds one whole token.
	RetryAfter time.Duration

	// Remaining is the number of whole tokens left after the check.
	Remaining int

	// Limit is the bucket shape applied to the key.
	Limit Limit
}

func durationFor(tokens, rate float64) time.Duration {
	if tokens <= 0 {
		return 0
	}

	return time.Duration(math.Ceil(tokens / rate * float64(time.Second)))
}
