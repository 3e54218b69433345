package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the identity subsystem. Handlers map these to HTTP
// statuses; anything not in this list is an opaque internal failure.
var (
	// ErrUnauthenticated means no usable credential was found on the request.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidToken covers every signed-assertion failure: bad signature,
	// wrong issuer or audience, expired. Callers must not be able to tell
	// which; the concrete reason is only logged.
	ErrInvalidToken = errors.New("invalid token")

	ErrExpired  = errors.New("token expired")
	ErrRevoked  = errors.New("token revoked")
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned for disallowed operations by an authenticated
	// actor, e.g. self-impersonation or impersonating another admin.
	ErrForbidden = errors.New("forbidden")

	// ErrProviderExchangeFailed is a non-2xx from a remote OAuth endpoint.
	// Exchanges are never retried: authorization codes are single-use.
	ErrProviderExchangeFailed = errors.New("provider exchange failed")

	// ErrProfileIncomplete means the provider profile lacks a usable email.
	ErrProfileIncomplete = errors.New("provider profile incomplete")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
