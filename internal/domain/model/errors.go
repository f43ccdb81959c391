package model

import "errors"

// Validation errors. All of them are client errors.
var (
	ErrUnknownSkillLevel = errors.New("unknown skill level")
	ErrUnknownRole       = errors.New("unknown role")
	ErrUnknownWindow     = errors.New("unknown period")
	ErrInvalidScope      = errors.New("invalid scope")
	ErrMissingEventID    = errors.New("missing event id")
	ErrMissingPlayerID   = errors.New("missing player id")
	ErrMissingOccurredAt = errors.New("missing occurred at")
	ErrInvalidAccuracy   = errors.New("accuracy must be within 0..100")
	ErrNegativeMetric    = errors.New("duration and calories must not be negative")
	ErrNonFiniteMetric   = errors.New("accuracy, duration and calories must be finite numbers")
)

// IsValidation reports whether err is one of the validation errors above.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrUnknownSkillLevel, ErrUnknownRole, ErrUnknownWindow, ErrInvalidScope,
		ErrMissingEventID, ErrMissingPlayerID, ErrMissingOccurredAt,
		ErrInvalidAccuracy, ErrNegativeMetric, ErrNonFiniteMetric,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
