package password

import "errors"

var (
	// ErrMismatch is returned when the secret does not match the stored hash.
	ErrMismatch = errors.New("password mismatch")
	// ErrSentinelCredential is returned when a password is presented for an
	// account whose primary credential is a wallet or OAuth identity.
	ErrSentinelCredential = errors.New("account has no password credential")
	// ErrUnknownFormat is returned for hashes no configured hasher understands.
	ErrUnknownFormat = errors.New("unknown password hash format")
	// ErrTooShort is returned by [ValidateStrength].
	ErrTooShort = errors.New("password too short")
	// ErrTooLong is returned by [ValidateStrength] and the bcrypt hasher.
	ErrTooLong = errors.New("password too long")
)
