package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoToken is returned when a user has not registered a portal token yet.
	ErrNoToken = errors.New("no portal token")

	// ErrExpiredToken is returned when the portal rejects the token with 401.
	ErrExpiredToken = errors.New("portal token expired")
)

// ServerError reports any other portal failure: a status >= 400, a transport
// error (StatusCode 0) or a body that could not be decoded.
type ServerError struct {
	StatusCode int
	Err        error
}

func (e *ServerError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("portal error: status %d: %v", e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("portal error: status %d", e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("portal error: %v", e.Err)
	default:
		return "portal error"
	}
}

func (e *ServerError) Unwrap() error {
	return e.Err
}

// IsServerError reports whether err is or wraps a *ServerError.
func IsServerError(err error) bool {
	var se *ServerError
	return errors.As(err, &se)
}
