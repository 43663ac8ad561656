package model

import "errors"

var (
	// User related errors
	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPasswordTooLong    = errors.New("password exceeds 72 bytes")

	// Access related errors
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")

	// Reading related errors
	ErrInvalidReading = errors.New("invalid reading")
	ErrNoReadings     = errors.New("no readings recorded")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
