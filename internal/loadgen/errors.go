package loadgen

import "errors"

// Errors reported by a run.
var (
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrVerification     = errors.New("verification failed")
)
