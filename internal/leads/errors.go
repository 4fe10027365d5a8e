package leads

import "errors"

var (
	// ErrInvalidName is returned when the name is invalid
	ErrInvalidName = errors.New("name is required")

	// ErrInvalidEmail is returned when the email is missing or malformed
	ErrInvalidEmail = errors.New("email is invalid")

	// ErrInvalidPhone is returned when the phone is missing or malformed
	ErrInvalidPhone = errors.New("phone is invalid")

	// ErrMissingOperator is returned when no operator was selected
	ErrMissingOperator = errors.New("operator is required")

	// ErrInvalidPriority is returned for priorities outside 1-5
	ErrInvalidPriority = errors.New("priority must be between 1 and 5")
)
