package engine

// ErrorKind is the typed enum every Outcome's Code is drawn from,
// matching the engine's documented error kinds one to one so callers
// never need to string-match a raw error.
type ErrorKind string

const (
	KindValidationError     ErrorKind = "VALIDATION_ERROR"
	KindUnauthorized        ErrorKind = "UNAUTHORIZED"
	KindNotFound            ErrorKind = "NOT_FOUND"
	KindExamNotActive       ErrorKind = "EXAM_NOT_ACTIVE"
	KindExamFull            ErrorKind = "EXAM_FULL"
	KindInsufficientCredits ErrorKind = "INSUFFICIENT_CREDITS"
	KindDuplicateBooking    ErrorKind = "DUPLICATE_BOOKING"
	KindBookingCancelled    ErrorKind = "BOOKING_CANCELLED"
	KindExamTypeMismatch    ErrorKind = "EXAM_TYPE_MISMATCH"
	KindExamPastDate        ErrorKind = "EXAM_PAST_DATE"
	KindLockAcquisitionFail ErrorKind = "LOCK_ACQUISITION_FAILED"
	KindCRMUnavailable      ErrorKind = "CRM_UNAVAILABLE"
	KindCleanupFailed       ErrorKind = "CLEANUP_FAILED"
	KindInternalError       ErrorKind = "INTERNAL_ERROR"
)
