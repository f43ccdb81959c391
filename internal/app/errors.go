package service

import (
	"errors"
	"fmt"
)

// Sentinel kinds returned by the service.
var (
	ErrInvalidInput              = errors.New("invalid input")
	ErrUnknownPlayer             = errors.New("unknown player")
	ErrNonPlayer                 = errors.New("account is not a ranked player")
	ErrNotFound                  = errors.New("not found")
	ErrConcurrentUpdateExhausted = errors.New("concurrent update retries exhausted")
)

// invalid tags err as a client error while keeping the cause for errors.Is.
func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidInput, err)
}
