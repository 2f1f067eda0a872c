package service

import "errors"

// Error categories. Every error returned by EventService for a client-side
// problem wraps exactly one of these.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrCapacity   = errors.New("capacity exhausted")
)

// Service errors.
var (
	ErrMissingFields     = newError(ErrValidation, "missing required fields")
	ErrInvalidCapacity   = newError(ErrValidation, "invalid capacity")
	ErrInvalidDate       = newError(ErrValidation, "invalid date format")
	ErrMissingUserID     = newError(ErrValidation, "missing userId")
	ErrPastEvent         = newError(ErrValidation, "cannot register for past events")
	ErrEventNotFound     = newError(ErrNotFound, "event not found")
	ErrUserNotFound      = newError(ErrNotFound, "user not found")
	ErrNotRegistered     = newError(ErrNotFound, "not registered")
	ErrAlreadyRegistered = newError(ErrConflict, "already registered")
	ErrEventFull         = newError(ErrCapacity, "event is full")
)

// Error is a client-facing failure. Its message is safe to return to callers.
type Error struct {
	kind    error
	message string
}

func newError(kind error, message string) *Error {
	return &Error{kind: kind, message: message}
}

func (e *Error) Error() string {
	return e.message
}

// Unwrap exposes the error category to errors.Is.
func (e *Error) Unwrap() error {
	return e.kind
}
