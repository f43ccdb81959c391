package subscriber

import "errors"

// Subscriber errors.
var (
	ErrMalformed      = errors.New("malformed message")
	ErrUnknownChannel = errors.New("unknown channel")
)
