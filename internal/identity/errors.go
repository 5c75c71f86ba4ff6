package identity

import "errors"

var (
	// ErrNoCredential indicates no session token was presented. This is the
	// normal state for a fresh visitor, not a fault.
	ErrNoCredential = errors.New("no session credential")

	// ErrInvalidToken indicates the token failed signature or claim checks.
	ErrInvalidToken = errors.New("invalid session token")

	// ErrNotAdmin indicates a valid session that lacks admin standing.
	ErrNotAdmin = errors.New("user is not an administrator")

	// ErrKeyRetrieval indicates the provider's key set could not be fetched.
	ErrKeyRetrieval = errors.New("signing key retrieval failed")

	// ErrUnknownKey indicates the key set holds no key for the token's kid.
	ErrUnknownKey = errors.New("no signing key for kid")

	// ErrProfileUnavailable indicates the profile endpoint could not be reached
	// or answered with a failure.
	ErrProfileUnavailable = errors.New("unable to retrieve user profile")

	// ErrLoginRejected indicates the provider refused the supplied credentials.
	ErrLoginRejected = errors.New("login rejected by identity provider")
)
