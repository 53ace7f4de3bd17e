package refile

import "errors"

var (
	// ErrInvalidInput marks caller errors: malformed requests, missing fields, bad identifiers.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMimeNotAllowed is returned when the mime policy rejects an upload.
	ErrMimeNotAllowed = errors.New("mime type not allowed")

	// ErrShortIDCollision is returned when a new digest's short id is already
	// mapped to a different digest in the index.
	ErrShortIDCollision = errors.New("short id collision")

	// ErrInvalidPointer is returned when a pointer file is missing or fails validation.
	ErrInvalidPointer = errors.New("invalid pointer")

	// ErrUntrustedURL is returned when a remote URL fails the trust policy.
	ErrUntrustedURL = errors.New("untrusted url")

	// ErrIntegrity is returned when downloaded content does not match its pointer.
	ErrIntegrity = errors.New("integrity check failed")
)
