package core

import "errors"

var (
	// ErrInvalidInput is returned when a request is malformed or missing
	// required fields. Nothing is written to the store after this error.
	ErrInvalidInput = errors.New("invalid input")

	// ErrChallengeExpired is returned when a challenge is absent, expired or
	// already consumed. The client must restart the ceremony.
	ErrChallengeExpired = errors.New("challenge expired")

	// ErrForbidden is returned on any authorization failure. It deliberately
	// carries no detail: a wrong edit secret and a missing stand look the
	// same to the caller.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned for genuinely absent stands or credentials.
	ErrNotFound = errors.New("not found")

	// ErrVerificationFailed is returned when any step of assertion
	// verification fails. The underlying reason is logged server-side only.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrStoreOperationFailed is returned when a store operation fails.
	ErrStoreOperationFailed = errors.New("store operation failed")
)
