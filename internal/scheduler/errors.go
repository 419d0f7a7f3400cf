package scheduler

import "errors"

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrDoctorNotAssigned   = errors.New("you can only book appointments with your assigned doctor")
	ErrSlotAlreadyBooked   = errors.New("slot already booked")
	ErrSlotBeingBooked     = errors.New("slot is being booked by another request, try again")
	ErrStatusLocked        = errors.New("appointment status can no longer be changed")
	ErrInvalidStatus       = errors.New("invalid status value")
)

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// IsValidation reports whether err should be surfaced as a bad request.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr) || errors.Is(err, ErrInvalidStatus)
}
