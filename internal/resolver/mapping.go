package resolver

import (
	"strconv"
	"time"

	"examhub/internal/crm"
	"examhub/internal/models"

	"github.com/google/uuid"
)

const (
	crmDateLayout = "2006-01-02"
	crmTimeLayout = time.RFC3339
)

// SessionFromCRM translates a CRM session object's property bag into
// a models.Session. CRM values are always strings; numeric and time
// fields are parsed defensively, falling back to zero values rather
// than failing the whole translation on one malformed property.
func SessionFromCRM(obj crm.Object) models.Session {
	s := models.Session{
		CRMID:     obj.ID,
		MockType:  models.MockType(obj.Prop("mock_type")),
		StartTime: obj.Prop("start_time"),
		EndTime:   obj.Prop("end_time"),
		Location:  models.Location(obj.Prop("location")),
		IsActive:  models.SessionStatus(obj.Prop("is_active")),
	}
	if examDate, err := time.Parse(crmDateLayout, obj.Prop("exam_date")); err == nil {
		s.ExamDate = examDate
	}
	s.Capacity, _ = strconv.Atoi(obj.Prop("capacity"))
	s.TotalBookings, _ = strconv.Atoi(obj.Prop("total_bookings"))
	if raw := obj.Prop("scheduled_activation_datetime"); raw != "" {
		if t, err := time.Parse(crmTimeLayout, raw); err == nil {
			s.ScheduledActivationDatetime = &t
		}
	}
	return s
}

// SessionToCRM builds the property bag for creating or updating a
// session in the CRM. Calculated properties the CRM derives from
// associations are never included here.
func SessionToCRM(s models.Session) map[string]string {
	props := map[string]string{
		"mock_type":      string(s.MockType),
		"exam_date":      s.ExamDate.Format(crmDateLayout),
		"start_time":     s.StartTime,
		"end_time":       s.EndTime,
		"location":       string(s.Location),
		"capacity":       strconv.Itoa(s.Capacity),
		"total_bookings": strconv.Itoa(s.TotalBookings),
		"is_active":      string(s.IsActive),
	}
	if s.ScheduledActivationDatetime != nil {
		props["scheduled_activation_datetime"] = s.ScheduledActivationDatetime.Format(crmTimeLayout)
	}
	return props
}

// ContactFromCRM translates a CRM contact object into a models.Contact.
func ContactFromCRM(obj crm.Object) models.Contact {
	c := models.Contact{
		CRMID:     obj.ID,
		StudentID: obj.Prop("student_id"),
		Email:     obj.Prop("email"),
		FirstName: obj.Prop("first_name"),
		LastName:  obj.Prop("last_name"),
	}
	c.Credits.SJ, _ = strconv.Atoi(obj.Prop("sj"))
	c.Credits.CS, _ = strconv.Atoi(obj.Prop("cs"))
	c.Credits.SJMini, _ = strconv.Atoi(obj.Prop("sjmini"))
	c.Credits.MockDiscussion, _ = strconv.Atoi(obj.Prop("mock_discussion"))
	c.Credits.Shared, _ = strconv.Atoi(obj.Prop("shared"))
	return c
}

// BookingFromCRM translates a CRM booking object into a models.Booking.
// sessionUUID and contactUUID are supplied by the caller because the
// CRM links bookings to sessions/contacts by association, not by a
// property the object bag carries directly.
func BookingFromCRM(obj crm.Object, sessionUUID, contactUUID uuid.UUID) models.Booking {
	b := models.Booking{
		CRMID:             obj.ID,
		BookingID:         obj.Prop("booking_id"),
		SessionUUID:       sessionUUID,
		ContactUUID:       contactUUID,
		MockType:          models.MockType(obj.Prop("mock_type")),
		IsActive:          models.BookingStatus(obj.Prop("is_active")),
		TokenUsed:         obj.Prop("token_used"),
		Attendance:        models.Attendance(obj.Prop("attendance")),
		DominantHand:      obj.Prop("dominant_hand"),
		AttendingLocation: models.Location(obj.Prop("attending_location")),
		IdempotencyKey:    obj.Prop("idempotency_key"),
	}
	if examDate, err := time.Parse(crmDateLayout, obj.Prop("exam_date")); err == nil {
		b.ExamDate = examDate
	}
	return b
}

// BookingToCRM builds the property bag for creating a booking in the
// CRM. Calculated properties the CRM computes from the associated
// session (mock_type, exam_date, times, location) are deliberately
// excluded.
func BookingToCRM(b models.Booking) map[string]string {
	props := map[string]string{
		"booking_id":      b.BookingID,
		"token_used":      b.TokenUsed,
		"idempotency_key": b.IdempotencyKey,
	}
	if b.DominantHand != "" {
		props["dominant_hand"] = b.DominantHand
	}
	if b.AttendingLocation != "" {
		props["attending_location"] = string(b.AttendingLocation)
	}
	return props
}
