// Package identity verifies identity-provider ID tokens and looks up user records.
package identity

import (
	"errors"
	"fmt"
)

// ErrUnauthenticated is the parent of every token failure that should end the session.
var ErrUnauthenticated = errors.New("unauthenticated")

// Token verification failures.
var (
	ErrTokenMissing = fmt.Errorf("%w: token missing", ErrUnauthenticated)
	ErrTokenExpired = fmt.Errorf("%w: token expired", ErrUnauthenticated)
	ErrTokenInvalid = fmt.Errorf("%w: token invalid", ErrUnauthenticated)
)

// ErrKeysUnavailable means the provider could not verify the token, for example
// because its public keys could not be fetched. The token itself is not known to be bad.
var ErrKeysUnavailable = errors.New("identity provider keys unavailable")

// ErrUserNotFound is returned by the directory for unknown subjects.
var ErrUserNotFound = errors.New("identity user not found")

// ShouldClearSession reports whether a verification failure must delete the session cookie.
func ShouldClearSession(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}
