package appointments

import (
	"strings"
	"time"
)

// Status is the confirmation state of an appointment.
type Status string

const (
	StatusPending     Status = "pending"
	StatusConfirmed   Status = "confirmed"
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"
)

// Valid reports whether the status is one of the four known values.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusRescheduled:
		return true
	}
	return false
}

// Appointment represents a scheduled patient visit.
type Appointment struct {
	ID              string    `json:"id"`
	PatientName     string    `json:"patient_name"`
	PhoneNumber     string    `json:"phone_number"`
	AppointmentTime time.Time `json:"appointment_time"`
	Status          Status    `json:"status"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CreateRequest represents the request body for creating an appointment.
type CreateRequest struct {
	PatientName     string    `json:"patient_name"`
	PhoneNumber     string    `json:"phone_number"`
	AppointmentTime time.Time `json:"appointment_time"`
	Status          Status    `json:"status"`
	Notes           string    `json:"notes"`
}

// Validate validates the create request.
func (r *CreateRequest) Validate() error {
	if strings.TrimSpace(r.PatientName) == "" {
		return ErrMissingPatientName
	}
	if r.AppointmentTime.IsZero() {
		return ErrMissingTime
	}
	if r.Status == "" {
		r.Status = StatusPending
	}
	if !r.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

// Update is a sparse patch applied to a stored appointment. Nil fields
// are left untouched.
type Update struct {
	Status          *Status    `json:"status,omitempty"`
	AppointmentTime *time.Time `json:"appointment_time,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
}

// Validate checks the patch. The only field-level invariant is that the
// status, if present, is one of the four enum values.
func (u *Update) Validate() error {
	if u.Status != nil && !u.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

// Empty reports whether the patch changes nothing.
func (u *Update) Empty() bool {
	return u.Status == nil && u.AppointmentTime == nil && u.Notes == nil
}
