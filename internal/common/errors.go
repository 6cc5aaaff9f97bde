// Package common defines shared constants and sentinel errors used across
// the gophsync server, its transports and the admin tooling. Callers should
// use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound       = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrInvalidReference = errors.New("invalid reference")

	// ErrVersionConflict is returned when a conditional write lost a race:
	// the replica changed between the read and the write.
	ErrVersionConflict = errors.New("version conflict")

	// Service-level errors.
	ErrorInternal           = errors.New("internal error")
	ErrorUnauthorized       = errors.New("unauthorized")
	ErrorValidation         = errors.New("validation error")
	ErrUserNotFound         = errors.New("user not found")
	ErrStorageLimitExceeded = errors.New("storage limit exceeded")
	ErrInvalidTransition    = errors.New("invalid session transition")

	// ErrDecryption means stored ciphertext could not be opened. It indicates
	// data corruption or a key mismatch and must not be retried.
	ErrDecryption = errors.New("decryption failed")

	// Auth errors.
	ErrInvalidToken = errors.New("invalid token")
)
