package model

import "errors"

// Error kinds shared by every layer. Callers classify with errors.Is.
var (
	// ErrValidation marks malformed or out-of-range input.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a reference to a user with no score row.
	ErrNotFound = errors.New("user not found")
	// ErrStorage marks a failure of the underlying store.
	ErrStorage = errors.New("storage error")
	// ErrAlreadyExists is returned when provisioning a user twice.
	ErrAlreadyExists = errors.New("user already exists")
)
