package models

import "errors"

// Validation errors for model construction and request parsing. These
// are structural checks only; business-rule errors (capacity,
// credits, locking, CRM failures) live in the packages that own that
// state.
var (
	// Contact errors
	ErrInvalidContactID = errors.New("invalid contact id")
	ErrInvalidStudentID = errors.New("invalid student id")
	ErrInvalidEmail     = errors.New("invalid email address")

	// Session errors
	ErrInvalidSessionID  = errors.New("invalid session id")
	ErrInvalidMockType   = errors.New("invalid mock type")
	ErrInvalidLocation   = errors.New("invalid location")
	ErrInvalidTimeRange  = errors.New("end time must be after start time")
	ErrInvalidCapacity   = errors.New("capacity must be between 1 and 100")
	ErrInvalidActivation = errors.New("scheduled sessions require a future activation datetime")
	ErrInvalidTransition = errors.New("status transition not permitted")

	// Booking errors
	ErrInvalidBookingID  = errors.New("invalid booking id")
	ErrInvalidTokenUsed  = errors.New("invalid token_used value")
	ErrInvalidAttendance = errors.New("invalid attendance value")

	// Credit errors
	ErrInvalidCreditField  = errors.New("invalid credit field name")
	ErrInvalidCreditAmount = errors.New("credit amount must be non-negative")
	ErrNegativeBalance     = errors.New("operation would drive a credit balance negative")
)
