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

// SessionRepository is the sqlx/pgx split repository for the sessions
// table. It also implements counter.PostgresFallback so the atomic
// counter service can fall back to a locked read-modify-write when
// Redis is unreachable.
type SessionRepository struct {
	db *sqlx.DB
}

func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, tx pgx.Tx, session *models.Session) error {
	if session.UUID == uuid.Nil {
		session.UUID = uuid.New()
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	session.SyncedAt = now

	query := `
		INSERT INTO sessions (
			uuid, hubspot_id, mock_type, exam_date, start_time, end_time,
			location, capacity, total_bookings, is_active, scheduled_activation_datetime,
			created_at, updated_at, synced_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := tx.Exec(ctx, query,
		session.UUID, session.CRMID, session.MockType, session.ExamDate, session.StartTime, session.EndTime,
		session.Location, session.Capacity, session.TotalBookings, session.IsActive, session.ScheduledActivationDatetime,
		session.CreatedAt, session.UpdatedAt, session.SyncedAt,
	)
	if err != nil {
		return fmt.Errorf("faststore: create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	query := `SELECT ` + SessionSelectFields + ` FROM sessions WHERE uuid = $1`
	var s models.Session
	if err := r.db.GetContext(ctx, &s, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("faststore: get session by id: %w", err)
	}
	return &s, nil
}

// GetByIDForUpdate reads the session row and locks it for the
// duration of tx.
func (r *SessionRepository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Session, error) {
	query := `SELECT ` + SessionSelectFields + ` FROM sessions WHERE uuid = $1 FOR UPDATE`
	var s models.Session
	err := tx.QueryRow(ctx, query, id).Scan(
		&s.UUID, &s.CRMID, &s.MockType, &s.ExamDate, &s.StartTime, &s.EndTime,
		&s.Location, &s.Capacity, &s.TotalBookings, &s.IsActive, &s.ScheduledActivationDatetime,
		&s.CreatedAt, &s.UpdatedAt, &s.SyncedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("faststore: get session by id for update: %w", err)
	}
	return &s, nil
}

func (r *SessionRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status models.SessionStatus) error {
	_, err := tx.Exec(ctx, `UPDATE sessions SET is_active = $1, updated_at = $2 WHERE uuid = $3`,
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("faststore: update session status: %w", err)
	}
	return nil
}

// AdjustTotalBookings implements counter.PostgresFallback: it locks
// the session row, clamps the adjusted total at zero, and writes it
// back inside a single transaction, mirroring the atomicity the Lua
// scripts give the Redis-backed path.
func (r *SessionRepository) AdjustTotalBookings(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	sqlDB := r.db.DB
	tx, err := sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("faststore: begin tx: %w", err)
	}
	defer tx.Rollback()

	var current int
	if err := tx.QueryRowContext(ctx, `SELECT total_bookings FROM sessions WHERE uuid = $1 FOR UPDATE`, id).Scan(&current); err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrSessionNotFound
		}
		return 0, fmt.Errorf("faststore: lock session for counter adjustment: %w", err)
	}

	next := current + delta
	if next < 0 {
		next = 0
	}

	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET total_bookings = $1, updated_at = $2 WHERE uuid = $3`,
		next, time.Now().UTC(), id); err != nil {
		return 0, fmt.Errorf("faststore: write adjusted total bookings: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("faststore: commit counter adjustment: %w", err)
	}
	return next, nil
}

// SetTotalBookings overwrites total_bookings directly, used by the
// activator's reconciliation pass once it has recomputed the
// authoritative count from the bookings table. Unlike
// AdjustTotalBookings this is not delta-based and does not clamp.
func (r *SessionRepository) SetTotalBookings(ctx context.Context, tx pgx.Tx, id uuid.UUID, total int) error {
	_, err := tx.Exec(ctx, `UPDATE sessions SET total_bookings = $1, updated_at = $2 WHERE uuid = $3`,
		total, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("faststore: set total bookings: %w", err)
	}
	return nil
}

// ListActiveOrScheduled returns every session not yet archived,
// the working set the reconciliation pass walks.
func (r *SessionRepository) ListActiveOrScheduled(ctx context.Context) ([]models.Session, error) {
	query := `SELECT ` + SessionSelectFields + ` FROM sessions WHERE is_active IN ($1, $2)`
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, models.SessionActive, models.SessionScheduled); err != nil {
		return nil, fmt.Errorf("faststore: list active or scheduled sessions: %w", err)
	}
	return sessions, nil
}

// List returns a filtered, paginated slice of sessions.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) (models.Page[models.Session], error) {
	filter.Normalize()

	where := "WHERE 1=1"
	args := []interface{}{}
	argIndex := 1

	if filter.FilterLocation != "" {
		where += fmt.Sprintf(" AND location = $%d", argIndex)
		args = append(args, filter.FilterLocation)
		argIndex++
	}
	if filter.FilterMockType != "" {
		where += fmt.Sprintf(" AND mock_type = $%d", argIndex)
		args = append(args, filter.FilterMockType)
		argIndex++
	}
	switch filter.FilterStatus {
	case "active":
		where += fmt.Sprintf(" AND is_active = $%d", argIndex)
		args = append(args, models.SessionActive)
		argIndex++
	case "inactive":
		where += fmt.Sprintf(" AND is_active = $%d", argIndex)
		args = append(args, models.SessionInactive)
		argIndex++
	case "scheduled":
		where += fmt.Sprintf(" AND is_active = $%d", argIndex)
		args = append(args, models.SessionScheduled)
		argIndex++
	}
	if filter.FilterDateFrom != nil {
		where += fmt.Sprintf(" AND exam_date >= $%d", argIndex)
		args = append(args, *filter.FilterDateFrom)
		argIndex++
	}
	if filter.FilterDateTo != nil {
		where += fmt.Sprintf(" AND exam_date <= $%d", argIndex)
		args = append(args, *filter.FilterDateTo)
		argIndex++
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM sessions `+where, args...); err != nil {
		return models.Page[models.Session]{}, fmt.Errorf("faststore: count sessions: %w", err)
	}

	dataQuery := `SELECT ` + SessionSelectFields + ` FROM sessions ` + where +
		fmt.Sprintf(" ORDER BY %s %s LIMIT $%d OFFSET $%d", filter.SortBy, filter.SortOrder, argIndex, argIndex+1)
	args = append(args, filter.Limit, Offset(filter.Page, filter.Limit))

	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, dataQuery, args...); err != nil {
		return models.Page[models.Session]{}, fmt.Errorf("faststore: list sessions: %w", err)
	}

	return models.NewPage(sessions, filter.Page, filter.Limit, total), nil
}

// DueForActivation returns scheduled sessions whose activation time
// has arrived, the query behind the scheduled activator's tick.
func (r *SessionRepository) DueForActivation(ctx context.Context, asOf time.Time) ([]models.Session, error) {
	query := `
		SELECT ` + SessionSelectFields + `
		FROM sessions
		WHERE is_active = $1 AND scheduled_activation_datetime IS NOT NULL AND scheduled_activation_datetime <= $2
	`
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, models.SessionScheduled, asOf); err != nil {
		return nil, fmt.Errorf("faststore: due for activation: %w", err)
	}
	return sessions, nil
}
