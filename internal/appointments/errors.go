package appointments

import "errors"

var (
	// ErrNotFound is returned when no appointment exists with the given id
	ErrNotFound = errors.New("appointment not found")

	// ErrInvalidStatus is returned when a status is not one of the four enum values
	ErrInvalidStatus = errors.New("invalid appointment status")

	// ErrMissingPatientName is returned when the patient name is blank
	ErrMissingPatientName = errors.New("patient name is required")

	// ErrMissingTime is returned when the appointment time is unset
	ErrMissingTime = errors.New("appointment time is required")
)
