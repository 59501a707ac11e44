package tokens

import "errors"

// Sentinel errors for credential validation. The HTTP layer maps these to
// statuses: missing and invalid map to 401, insufficient scope to 403.
var (
	ErrMissingCredential = errors.New("tokens: missing credential")
	ErrInvalidToken      = errors.New("tokens: invalid token")
	ErrTokenExpired      = errors.New("tokens: token expired")
	ErrInsufficientScope = errors.New("tokens: insufficient scope")
)
