package faststore

// Field-list constants for each table, kept in one place so a new
// column only needs to change here.
const (
	SessionSelectFields = `
		uuid, hubspot_id, mock_type, exam_date, start_time, end_time,
		location, capacity, total_bookings, is_active, scheduled_activation_datetime,
		created_at, updated_at, synced_at
	`

	BookingSelectFields = `
		uuid, hubspot_id, booking_id, session_uuid, contact_uuid,
		mock_type, exam_date, is_active, token_used, attendance,
		dominant_hand, attending_location, idempotency_key,
		created_at, updated_at, synced_at
	`

	ContactSelectFields = `
		uuid, hubspot_id, student_id, email, first_name, last_name,
		sj, cs, sjmini, mock_discussion, shared,
		created_at, updated_at, synced_at
	`
)
