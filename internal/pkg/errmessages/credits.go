// Package errmessages holds user-facing strings for the error kinds
// the engine surfaces, kept separate from the sentinel errors
// themselves so that wording can change without touching callers that
// switch on error kind.
package errmessages

const (
	// Credit errors
	ErrMsgInsufficientCredits = "Not enough credits in the required pool to complete this booking"
	ErrMsgBalanceExceeded     = "Credit balance cannot exceed the maximum allowed"
	ErrMsgNegativeBalance     = "This operation would drive a credit balance negative"
	ErrMsgCreditNotFound      = "No credit account found for this contact"
)

const (
	// Booking errors
	ErrMsgAlreadyBooked       = "This contact already has an active booking for this session"
	ErrMsgSessionFull         = "This session is at capacity"
	ErrMsgSessionNotActive    = "This session is not open for booking"
	ErrMsgSessionNotFound     = "Session not found"
	ErrMsgBookingNotFound     = "Booking not found"
	ErrMsgBookingNotActive    = "This booking is not active"
	ErrMsgPreviouslyCancelled = "This booking was previously cancelled"
	ErrMsgLockContention      = "Another request is already modifying this session, try again shortly"
	ErrMsgOperationFailed     = "The operation could not be completed, try again later"
)

const (
	ErrMsgValidation       = "The request is missing or has invalid required fields"
	ErrMsgUnauthorized     = "You are not allowed to modify this booking"
	ErrMsgNotFound         = "The requested resource was not found"
	ErrMsgExamTypeMismatch = "The target session runs a different mock type than the original booking"
	ErrMsgExamPastDate     = "The target session's exam date has already passed"
	ErrMsgCRMUnavailable   = "The CRM is temporarily unavailable, try again shortly"
)

// ForKind maps one of the engine's ErrorKind strings to the
// user-facing message a caller can surface directly. An unrecognized
// kind returns ErrMsgOperationFailed.
func ForKind(kind string) string {
	switch kind {
	case "VALIDATION_ERROR":
		return ErrMsgValidation
	case "UNAUTHORIZED":
		return ErrMsgUnauthorized
	case "NOT_FOUND":
		return ErrMsgNotFound
	case "EXAM_NOT_ACTIVE":
		return ErrMsgSessionNotActive
	case "EXAM_FULL":
		return ErrMsgSessionFull
	case "INSUFFICIENT_CREDITS":
		return ErrMsgInsufficientCredits
	case "DUPLICATE_BOOKING":
		return ErrMsgAlreadyBooked
	case "BOOKING_CANCELLED":
		return ErrMsgPreviouslyCancelled
	case "EXAM_TYPE_MISMATCH":
		return ErrMsgExamTypeMismatch
	case "EXAM_PAST_DATE":
		return ErrMsgExamPastDate
	case "LOCK_ACQUISITION_FAILED":
		return ErrMsgLockContention
	case "CRM_UNAVAILABLE":
		return ErrMsgCRMUnavailable
	case "CLEANUP_FAILED", "INTERNAL_ERROR":
		return ErrMsgOperationFailed
	default:
		return ErrMsgOperationFailed
	}
}
