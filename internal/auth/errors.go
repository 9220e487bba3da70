package auth

import (
	"errors"
	"fmt"
)

// ErrNoToken is returned when the identity endpoint accepted the login but the
// response carried no token.
var ErrNoToken = errors.New("no token in login response")

// AuthenticationError reports that the session credential could not be acquired.
type AuthenticationError struct {
	Endpoint   string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *AuthenticationError) Error() string {
	switch {
	case e.StatusCode > 0:
		return fmt.Sprintf("authentication failed: %s returned status %d: %v", e.Endpoint, e.StatusCode, e.Err)
	case e.Endpoint != "":
		return fmt.Sprintf("authentication failed: %s: %v", e.Endpoint, e.Err)
	default:
		return fmt.Sprintf("authentication failed: %v", e.Err)
	}
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// IsAuthenticationError reports whether err is or wraps an *AuthenticationError.
func IsAuthenticationError(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr)
}
