package models

import (
	"time"

	"github.com/google/uuid"
)

// Booking represents a student's reservation of a seat in a Session.
type Booking struct {
	UUID              uuid.UUID     `db:"uuid" json:"uuid"`
	CRMID             string        `db:"hubspot_id" json:"crm_id,omitempty"`
	BookingID         string        `db:"booking_id" json:"booking_id"`
	SessionUUID       uuid.UUID     `db:"session_uuid" json:"session_uuid"`
	ContactUUID       uuid.UUID     `db:"contact_uuid" json:"contact_uuid"`
	MockType          MockType      `db:"mock_type" json:"mock_type"`
	ExamDate          time.Time     `db:"exam_date" json:"exam_date"`
	IsActive          BookingStatus `db:"is_active" json:"is_active"`
	TokenUsed         string        `db:"token_used" json:"token_used"`
	Attendance        Attendance    `db:"attendance" json:"attendance,omitempty"`
	DominantHand      string        `db:"dominant_hand" json:"dominant_hand,omitempty"`
	AttendingLocation Location      `db:"attending_location" json:"attending_location,omitempty"`
	IdempotencyKey    string        `db:"idempotency_key" json:"idempotency_key"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`
	SyncedAt          time.Time     `db:"synced_at" json:"synced_at"`
}

// IsActiveStatus reports whether the booking currently holds a seat.
func (b *Booking) IsActiveStatus() bool {
	return b.IsActive == BookingActive
}

// CreateBookingRequest is the input to the booking coordinator's
// Create operation.
type CreateBookingRequest struct {
	ContactUUID       uuid.UUID
	SessionUUID       uuid.UUID
	StudentID         string
	Name              string
	Email             string
	DominantHand      string
	AttendingLocation Location
	IdempotencyKey    string // caller-supplied override; derived when empty
}

// Validate checks the structural preconditions of a create request,
// independent of any database or CRM state.
func (r *CreateBookingRequest) Validate() error {
	if r.ContactUUID == uuid.Nil {
		return ErrInvalidContactID
	}
	if r.SessionUUID == uuid.Nil {
		return ErrInvalidSessionID
	}
	if r.Email != "" && !ValidEmail(r.Email) {
		return ErrInvalidEmail
	}
	return nil
}

// CancelBookingRequest is the input to the booking coordinator's
// Cancel operation. Identifier is the cascading lookup key: a local
// UUID string or a CRM object id.
type CancelBookingRequest struct {
	Identifier   string
	IsAdmin      bool
	Reason       string
	RefundTokens bool // copied from the engine's CancelBookingParams; false skips the refund
}

func (r *CancelBookingRequest) Validate() error {
	if r.Identifier == "" {
		return ErrInvalidBookingID
	}
	return nil
}

// RebookRequest moves an active booking from one session to another
// without touching credit balances.
type RebookRequest struct {
	Identifier     string
	NewSessionUUID uuid.UUID
}

func (r *RebookRequest) Validate() error {
	if r.Identifier == "" {
		return ErrInvalidBookingID
	}
	if r.NewSessionUUID == uuid.Nil {
		return ErrInvalidSessionID
	}
	return nil
}

// OutcomeStatus mirrors the teacher's idempotent CancelBookingResult
// idiom, generalized to all three coordinator operations.
type OutcomeStatus string

const (
	OutcomeCreated          OutcomeStatus = "created"
	OutcomeAlreadyExists    OutcomeStatus = "already_exists"
	OutcomeCancelled        OutcomeStatus = "cancelled"
	OutcomeAlreadyCancelled OutcomeStatus = "already_cancelled"
	OutcomeRebooked         OutcomeStatus = "rebooked"
)

// BookingOutcome is returned by every booking coordinator operation,
// carrying both the resulting booking and whether the call was a
// no-op replay of a previous request.
type BookingOutcome struct {
	Status  OutcomeStatus
	Booking *Booking
}

// ListBookingsFilter narrows a contact's booking history.
type ListBookingsFilter struct {
	ContactUUID  uuid.UUID
	Status       *BookingStatus
	MockType     *MockType
	ExamDateFrom *time.Time
	ExamDateTo   *time.Time
	Page         int
	Limit        int
}

// Normalize clamps paging the same way SessionFilter does.
func (f *ListBookingsFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
}

// IdempotencyRecord maps a request fingerprint to the outcome that
// was produced the first time it was seen, so replays within the
// bucket window return the original result instead of re-executing
// the mutation.
type IdempotencyRecord struct {
	Key       string    `db:"idempotency_key" json:"idempotency_key"`
	BookingID uuid.UUID `db:"booking_uuid" json:"booking_uuid"`
	Outcome   string    `db:"outcome" json:"outcome"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
