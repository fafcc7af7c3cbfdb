package faststore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"examhub/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jmoiron/sqlx"
)

// BookingRepository is the sqlx/pgx split repository for the bookings
// table: sqlx for plain reads, pgx transactions for anything that
// needs row locking.
type BookingRepository struct {
	db *sqlx.DB
}

func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// Create inserts booking inside tx, deriving its UUID, status and
// timestamps. A unique constraint violation on idempotency_key or
// hubspot_id surfaces as ErrDuplicateBooking rather than a raw driver
// error.
func (r *BookingRepository) Create(ctx context.Context, tx pgx.Tx, booking *models.Booking) error {
	if booking.UUID == uuid.Nil {
		booking.UUID = uuid.New()
	}
	booking.IsActive = models.BookingActive
	now := time.Now().UTC()
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.SyncedAt = now

	query := `
		INSERT INTO bookings (
			uuid, hubspot_id, booking_id, session_uuid, contact_uuid,
			mock_type, exam_date, is_active, token_used, attendance,
			dominant_hand, attending_location, idempotency_key,
			created_at, updated_at, synced_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := tx.Exec(ctx, query,
		booking.UUID, booking.CRMID, booking.BookingID, booking.SessionUUID, booking.ContactUUID,
		booking.MockType, booking.ExamDate, booking.IsActive, booking.TokenUsed, booking.Attendance,
		booking.DominantHand, booking.AttendingLocation, booking.IdempotencyKey,
		booking.CreatedAt, booking.UpdatedAt, booking.SyncedAt,
	)
	if err != nil {
		if IsUniqueViolationError(err) {
			return ErrDuplicateBooking
		}
		return fmt.Errorf("faststore: create booking: %w", err)
	}
	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	query := `SELECT ` + BookingSelectFields + ` FROM bookings WHERE uuid = $1`
	var booking models.Booking
	if err := r.db.GetContext(ctx, &booking, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("faststore: get booking by id: %w", err)
	}
	return &booking, nil
}

// GetByIDForUpdate locks the row for the duration of tx, so that
// concurrent mutations of the same booking made through tx serialize.
func (r *BookingRepository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Booking, error) {
	query := `SELECT ` + BookingSelectFields + ` FROM bookings WHERE uuid = $1 FOR UPDATE`
	var b models.Booking
	err := tx.QueryRow(ctx, query, id).Scan(
		&b.UUID, &b.CRMID, &b.BookingID, &b.SessionUUID, &b.ContactUUID,
		&b.MockType, &b.ExamDate, &b.IsActive, &b.TokenUsed, &b.Attendance,
		&b.DominantHand, &b.AttendingLocation, &b.IdempotencyKey,
		&b.CreatedAt, &b.UpdatedAt, &b.SyncedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("faststore: get booking by id for update: %w", err)
	}
	return &b, nil
}

// GetByIdempotencyKey looks up a prior booking for a replayed request
// within the same fingerprint bucket.
func (r *BookingRepository) GetByIdempotencyKey(ctx context.Context, key string) (*models.Booking, error) {
	query := `SELECT ` + BookingSelectFields + ` FROM bookings WHERE idempotency_key = $1`
	var booking models.Booking
	if err := r.db.GetContext(ctx, &booking, query, key); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("faststore: get booking by idempotency key: %w", err)
	}
	return &booking, nil
}

// UpdateStatus transitions a booking's status inside tx, used by the
// coordinator's cancel path.
func (r *BookingRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status models.BookingStatus) error {
	_, err := tx.Exec(ctx, `UPDATE bookings SET is_active = $1, updated_at = $2 WHERE uuid = $3`,
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("faststore: update booking status: %w", err)
	}
	return nil
}

// Rebook atomically repoints a booking at a new session inside tx.
func (r *BookingRepository) Rebook(ctx context.Context, tx pgx.Tx, id, newSessionUUID uuid.UUID) error {
	_, err := tx.Exec(ctx, `UPDATE bookings SET session_uuid = $1, updated_at = $2 WHERE uuid = $3`,
		newSessionUUID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("faststore: rebook: %w", err)
	}
	return nil
}

// List returns a filtered, paginated slice of a contact's bookings
// plus the total matching count, building the WHERE clause
// incrementally so unset filters add neither a predicate nor a bind
// argument.
func (r *BookingRepository) List(ctx context.Context, filter models.ListBookingsFilter) (models.Page[models.Booking], error) {
	filter.Normalize()

	where := `WHERE contact_uuid = $1`
	args := []interface{}{filter.ContactUUID}
	argIndex := 2

	if filter.Status != nil {
		where += fmt.Sprintf(" AND is_active = $%d", argIndex)
		args = append(args, *filter.Status)
		argIndex++
	}
	if filter.MockType != nil {
		where += fmt.Sprintf(" AND mock_type = $%d", argIndex)
		args = append(args, *filter.MockType)
		argIndex++
	}
	if filter.ExamDateFrom != nil {
		where += fmt.Sprintf(" AND exam_date >= $%d", argIndex)
		args = append(args, *filter.ExamDateFrom)
		argIndex++
	}
	if filter.ExamDateTo != nil {
		where += fmt.Sprintf(" AND exam_date <= $%d", argIndex)
		args = append(args, *filter.ExamDateTo)
		argIndex++
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM bookings ` + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return models.Page[models.Booking]{}, fmt.Errorf("faststore: count bookings: %w", err)
	}

	dataQuery := `SELECT ` + BookingSelectFields + ` FROM bookings ` + where +
		fmt.Sprintf(" ORDER BY exam_date DESC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, filter.Limit, Offset(filter.Page, filter.Limit))

	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, dataQuery, args...); err != nil {
		return models.Page[models.Booking]{}, fmt.Errorf("faststore: list bookings: %w", err)
	}

	return models.NewPage(bookings, filter.Page, filter.Limit, total), nil
}

// CountActiveForSession counts active bookings against a session, used
// by the reconciler to detect drift against the cached TotalBookings.
func (r *BookingRepository) CountActiveForSession(ctx context.Context, sessionUUID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM bookings WHERE session_uuid = $1 AND is_active = $2`
	if err := r.db.GetContext(ctx, &count, query, sessionUUID, models.BookingActive); err != nil {
		return 0, fmt.Errorf("faststore: count active bookings for session: %w", err)
	}
	return count, nil
}
