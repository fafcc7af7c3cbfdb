// Package credit implements the credit ledger: resolving which pool a
// mock type draws from (including shared-pool fall-through), and
// debiting/crediting balances atomically under a SERIALIZABLE
// transaction, mirroring the teacher's credit service.
package credit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"examhub/internal/models"
	"examhub/pkg/metrics"
)

// serializationFailure is the Postgres SQLSTATE for a SERIALIZABLE
// transaction that lost a write-skew race with a concurrent one - the
// documented, expected way two deducts against the same contact can
// collide, not a real error.
const serializationFailure = "40001"

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == serializationFailure
}

// Repository is the fast-store collaborator the ledger drives inside
// its own transaction. Implemented by internal/faststore.
type Repository interface {
	GetBalanceForUpdate(ctx context.Context, tx pgx.Tx, contactID uuid.UUID) (models.CreditBalance, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, contactID uuid.UUID, balance models.CreditBalance) error
	CreateTransaction(ctx context.Context, tx pgx.Tx, record TransactionRecord) error
}

// TransactionRecord is a single audit row in credit_transactions.
type TransactionRecord struct {
	ContactUUID   uuid.UUID
	Field         string
	Delta         int
	OperationType string // debit|credit
	Reason        string
	BalanceBefore int
	BalanceAfter  int
}

const (
	OperationDebit  = "debit"
	OperationCredit = "credit"
)

// Ledger owns the read-modify-write of a contact's credit balance.
type Ledger struct {
	pool *pgxpool.Pool
	repo Repository
}

func NewLedger(pool *pgxpool.Pool, repo Repository) *Ledger {
	return &Ledger{pool: pool, repo: repo}
}

// ResolveField determines which credit field a booking for mockType
// should debit, given the contact's current balance. SJ and CS fall
// through to the shared pool when their specific pool is exhausted;
// Mini-mock and Mock Discussion never touch shared.
func ResolveField(mockType models.MockType, balance models.CreditBalance) (field string, ok bool) {
	specific := mockType.CreditField()
	if specific == "" {
		return "", false
	}
	if balance.Field(specific) > 0 {
		return specific, true
	}
	if mockType.SharesPool() && balance.Shared > 0 {
		return "shared", true
	}
	return specific, false
}

// withSerializableTx runs fn inside a SERIALIZABLE transaction,
// retrying the whole attempt when Postgres aborts it with a 40001
// serialization failure - the contact-scoped lock the coordinator
// holds around credit operations already keeps concurrent attempts
// for the SAME contact from reaching the database at the same time,
// but a retry here is cheap insurance against any other writer
// touching the same balance row outside that lock.
func (l *Ledger) withSerializableTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 200 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("credit: begin serializable tx: %w", err))
		}
		defer func() {
			if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
				log.Ctx(ctx).Warn().Err(rbErr).Msg("credit: rollback failed")
			}
		}()

		if err := fn(ctx, tx); err != nil {
			if isSerializationFailure(err) {
				metrics.CreditSerializationRetriesTotal.Inc()
				return struct{}{}, err
			}
			return struct{}{}, backoff.Permanent(err)
		}
		if err := tx.Commit(ctx); err != nil {
			if isSerializationFailure(err) {
				metrics.CreditSerializationRetriesTotal.Inc()
				return struct{}{}, err
			}
			return struct{}{}, backoff.Permanent(fmt.Errorf("credit: commit: %w", err))
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(5))
	return err
}

// DeductResult reports which field was debited and the balances after
// the operation, needed for the coordinator's outcome record.
type DeductResult struct {
	FieldUsed     string
	SpecificAfter int
	SharedAfter   int
}

// Deduct debits one credit for mockType from the contact's balance,
// falling through to the shared pool per ResolveField, inside a
// SERIALIZABLE transaction that locks the balance row for its
// duration. Returns an error wrapping ErrInsufficientCredits (see
// errors.go) when neither pool has a credit available.
func (l *Ledger) Deduct(ctx context.Context, contactID uuid.UUID, mockType models.MockType, reason string) (DeductResult, error) {
	var result DeductResult
	err := l.withSerializableTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		balance, err := l.repo.GetBalanceForUpdate(ctx, tx, contactID)
		if err != nil {
			return fmt.Errorf("credit: get balance for update: %w", err)
		}

		field, ok := ResolveField(mockType, balance)
		if !ok {
			return ErrInsufficientCredits
		}

		before := balance.Field(field)
		after := before - 1
		next := balance.WithField(field, after)
		if !next.Valid() {
			return ErrNegativeBalance
		}

		if err := l.repo.UpdateBalance(ctx, tx, contactID, next); err != nil {
			return fmt.Errorf("credit: update balance: %w", err)
		}
		if err := l.repo.CreateTransaction(ctx, tx, TransactionRecord{
			ContactUUID:   contactID,
			Field:         field,
			Delta:         -1,
			OperationType: OperationDebit,
			Reason:        reason,
			BalanceBefore: before,
			BalanceAfter:  after,
		}); err != nil {
			return fmt.Errorf("credit: create transaction: %w", err)
		}

		result = DeductResult{
			FieldUsed:     field,
			SpecificAfter: next.Field(mockType.CreditField()),
			SharedAfter:   next.Shared,
		}
		return nil
	})
	if err != nil {
		return DeductResult{}, err
	}
	metrics.CreditsDeducted.Inc()
	return result, nil
}

// Restore credits one unit back to field, used on booking
// cancellation when refund_tokens is true.
func (l *Ledger) Restore(ctx context.Context, contactID uuid.UUID, field string, reason string) error {
	err := l.withSerializableTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		balance, err := l.repo.GetBalanceForUpdate(ctx, tx, contactID)
		if err != nil {
			return fmt.Errorf("credit: get balance for update: %w", err)
		}

		before := balance.Field(field)
		after := before + 1
		next := balance.WithField(field, after)

		if err := l.repo.UpdateBalance(ctx, tx, contactID, next); err != nil {
			return fmt.Errorf("credit: update balance: %w", err)
		}
		return l.repo.CreateTransaction(ctx, tx, TransactionRecord{
			ContactUUID:   contactID,
			Field:         field,
			Delta:         1,
			OperationType: OperationCredit,
			Reason:        reason,
			BalanceBefore: before,
			BalanceAfter:  after,
		})
	})
	if err != nil {
		return err
	}
	metrics.CreditsRefunded.Inc()
	return nil
}
