package apierr

import (
	"context"
	"errors"
)

// IsTimeout reports whether err is or wraps a deadline expiry.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// From returns err as an *Error. Coded errors pass through; deadline
// expiries become ResolutionTimeout and anything else InternalError.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if IsTimeout(err) {
		return ResolutionTimeout(err)
	}
	return InternalError(err)
}
