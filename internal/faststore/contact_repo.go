package faststore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"examhub/internal/credit"
	"examhub/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jmoiron/sqlx"
)

// ContactRepository is the sqlx/pgx split repository for contacts. It
// also implements credit.Repository so the ledger can drive balance
// reads, writes and audit rows inside its own transaction without
// importing faststore.
type ContactRepository struct {
	db *sqlx.DB
}

func NewContactRepository(db *sqlx.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// scanContact reads one row in ContactSelectFields order into a
// Contact. Used instead of sqlx's automatic struct mapping because
// Credits is a named (non-embedded) nested struct, which sqlx does
// not flatten against the flat sj/cs/sjmini/mock_discussion/shared
// columns.
func scanContact(row interface {
	Scan(dest ...any) error
}) (*models.Contact, error) {
	var c models.Contact
	err := row.Scan(
		&c.UUID, &c.CRMID, &c.StudentID, &c.Email, &c.FirstName, &c.LastName,
		&c.Credits.SJ, &c.Credits.CS, &c.Credits.SJMini, &c.Credits.MockDiscussion, &c.Credits.Shared,
		&c.CreatedAt, &c.UpdatedAt, &c.SyncedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ContactRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Contact, error) {
	query := `SELECT ` + ContactSelectFields + ` FROM contacts WHERE uuid = $1`
	c, err := scanContact(r.db.QueryRowxContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrContactNotFound
		}
		return nil, fmt.Errorf("faststore: get contact by id: %w", err)
	}
	return c, nil
}

func (r *ContactRepository) GetByStudentID(ctx context.Context, studentID string) (*models.Contact, error) {
	query := `SELECT ` + ContactSelectFields + ` FROM contacts WHERE student_id = $1`
	c, err := scanContact(r.db.QueryRowxContext(ctx, query, studentID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrContactNotFound
		}
		return nil, fmt.Errorf("faststore: get contact by student id: %w", err)
	}
	return c, nil
}

func (r *ContactRepository) Upsert(ctx context.Context, c *models.Contact) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	now := time.Now().UTC()
	c.UpdatedAt = now
	c.SyncedAt = now

	query := `
		INSERT INTO contacts (
			uuid, hubspot_id, student_id, email, first_name, last_name,
			sj, cs, sjmini, mock_discussion, shared,
			created_at, updated_at, synced_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (hubspot_id) DO UPDATE SET
			student_id = EXCLUDED.student_id,
			email = EXCLUDED.email,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			sj = EXCLUDED.sj,
			cs = EXCLUDED.cs,
			sjmini = EXCLUDED.sjmini,
			mock_discussion = EXCLUDED.mock_discussion,
			shared = EXCLUDED.shared,
			updated_at = EXCLUDED.updated_at,
			synced_at = EXCLUDED.synced_at
	`
	_, err := r.db.ExecContext(ctx, query,
		c.UUID, c.CRMID, c.StudentID, c.Email, c.FirstName, c.LastName,
		c.Credits.SJ, c.Credits.CS, c.Credits.SJMini, c.Credits.MockDiscussion, c.Credits.Shared,
		now, c.UpdatedAt, c.SyncedAt,
	)
	if err != nil {
		return fmt.Errorf("faststore: upsert contact: %w", err)
	}
	return nil
}

// GetBalanceForUpdate locks the contact row and returns its credit
// balance, implementing credit.Repository. The contact row is created
// by sync before any booking touches it, so unlike the teacher's
// credits table this never needs an ON CONFLICT DO NOTHING insert to
// paper over a missing row.
func (r *ContactRepository) GetBalanceForUpdate(ctx context.Context, tx pgx.Tx, contactID uuid.UUID) (models.CreditBalance, error) {
	query := `SELECT sj, cs, sjmini, mock_discussion, shared FROM contacts WHERE uuid = $1 FOR UPDATE`
	var b models.CreditBalance
	err := tx.QueryRow(ctx, query, contactID).Scan(&b.SJ, &b.CS, &b.SJMini, &b.MockDiscussion, &b.Shared)
	if err != nil {
		if err == pgx.ErrNoRows {
			return models.CreditBalance{}, ErrContactNotFound
		}
		return models.CreditBalance{}, fmt.Errorf("faststore: get balance for update: %w", err)
	}
	return b, nil
}

// UpdateBalance implements credit.Repository.
func (r *ContactRepository) UpdateBalance(ctx context.Context, tx pgx.Tx, contactID uuid.UUID, balance models.CreditBalance) error {
	query := `
		UPDATE contacts
		SET sj = $1, cs = $2, sjmini = $3, mock_discussion = $4, shared = $5, updated_at = $6
		WHERE uuid = $7
	`
	_, err := tx.Exec(ctx, query, balance.SJ, balance.CS, balance.SJMini, balance.MockDiscussion, balance.Shared,
		time.Now().UTC(), contactID)
	if err != nil {
		return fmt.Errorf("faststore: update balance: %w", err)
	}
	return nil
}

// CreateTransaction implements credit.Repository, writing the audit
// row the ledger produces alongside every balance mutation.
func (r *ContactRepository) CreateTransaction(ctx context.Context, tx pgx.Tx, record credit.TransactionRecord) error {
	query := `
		INSERT INTO credit_transactions (
			uuid, contact_uuid, field, delta, operation_type, reason,
			balance_before, balance_after, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := tx.Exec(ctx, query,
		uuid.New(), record.ContactUUID, record.Field, record.Delta, record.OperationType, record.Reason,
		record.BalanceBefore, record.BalanceAfter, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("faststore: create credit transaction: %w", err)
	}
	return nil
}
