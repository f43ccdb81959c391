package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrDuplicateEvent  = errors.New("event already applied")
	ErrInvalidWindow   = errors.New("window cannot be reset")
	ErrUnknownDriver   = errors.New("unknown store driver")
)
