package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is matched by every *Error.
var ErrInvalid = errors.New("config: invalid configuration")

// Error lists every problem found in a configuration.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalid, strings.Join(e.Problems, "; "))
}

func (e *Error) Unwrap() error {
	return ErrInvalid
}

func (e *Error) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

func (e *Error) orNil() error {
	if len(e.Problems) == 0 {
		return nil
	}

	return e
}
