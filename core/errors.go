package core

import "errors"

var (
	// ErrInvalidInput marks analysis input that cannot produce a
	// result: an empty profile, a zero-length path, a non-positive
	// frequency. Wrapped errors carry the offending value.
	ErrInvalidInput = errors.New("invalid input")

	// ErrExternalService marks a failed call to one of the geodata
	// services. Such failures are never fatal to the engine; callers
	// report them and keep serving previously committed results.
	ErrExternalService = errors.New("external service failure")
)
