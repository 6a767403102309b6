package auth

import (
	"errors"
	"fmt"
)

// UnauthorizedError is the single error kind this package surfaces to callers.
type UnauthorizedError struct {
	Message string
	Err     error
}

func (e *UnauthorizedError) Error() string {
	return e.Message
}

func (e *UnauthorizedError) Unwrap() error {
	return e.Err
}

// Unauthorized returns an UnauthorizedError carrying msg.
func Unauthorized(msg string) error {
	return &UnauthorizedError{Message: msg}
}

// Unauthorizedf formats a message and keeps err available to errors.Is/As.
func Unauthorizedf(err error, format string, args ...any) error {
	return &UnauthorizedError{Message: fmt.Sprintf(format, args...), Err: err}
}

// IsUnauthorized reports whether err carries an UnauthorizedError.
func IsUnauthorized(err error) bool {
	var target *UnauthorizedError
	return errors.As(err, &target)
}
