package auth

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput    = errors.New("auth: invalid input")
	ErrNotFound        = errors.New("auth: not found")
	ErrConflict        = errors.New("auth: already exists")
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	ErrForbidden       = errors.New("auth: forbidden")

	// ErrHijackDetected is returned when a request's User-Agent does not match
	// the one recorded for its session. Mapped to the same HTTP shape as
	// ErrForbidden so the detection logic is not leaked to the caller.
	ErrHijackDetected = errors.New("auth: session hijacking detected")

	ErrTokenExpired = errors.New("auth: token expired")
	ErrTokenInvalid = errors.New("auth: invalid token")
)

// RateLimitedError reports a throttled credential operation along with the
// number of seconds until the window resets.
type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("auth: rate limited, retry after %d seconds", e.RetryAfterSeconds)
}

// IsRateLimited reports whether err is a RateLimitedError and returns it.
func IsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
