package booking

import "errors"

// Domain errors the coordinator returns, mapped by internal/engine to
// its ErrorKind enum for the command surface.
var (
	ErrExamNotActive       = errors.New("booking: exam is not active")
	ErrExamFull            = errors.New("booking: exam is at capacity")
	ErrDuplicateBooking    = errors.New("booking: an active booking with this id already exists")
	ErrBookingCancelled    = errors.New("booking: booking is already cancelled")
	ErrExamTypeMismatch    = errors.New("booking: target session mock type does not match the booking")
	ErrExamPastDate        = errors.New("booking: target session exam date has already passed")
	ErrLockAcquisitionFail = errors.New("booking: failed to acquire coordination lock")
	ErrCleanupFailed       = errors.New("booking: failed to compensate a partially created booking")
)
