package booking

import (
	"context"
	"fmt"
	"time"

	"examhub/internal/cachelayer"
	"examhub/internal/crm"
	"examhub/internal/faststore"
	"examhub/internal/lockmgr"
	"examhub/internal/models"
	"examhub/pkg/concurrent"
	"examhub/pkg/metrics"

	"github.com/rs/zerolog/log"
)

// Cancel releases a held booking: CRM first, fast-store projection
// second, with a best-effort credit refund that never blocks success.
func (co *Coordinator) Cancel(ctx context.Context, req models.CancelBookingRequest) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	booking, err := co.resolveBooking(ctx, req.Identifier)
	if err != nil {
		return Result{}, fmt.Errorf("booking: resolve for cancel: %w", err)
	}

	if booking.IsActive.IsTerminal() {
		return Result{
			Outcome:           models.BookingOutcome{Status: models.OutcomeAlreadyCancelled, Booking: booking},
			IdempotentRequest: true,
		}, nil
	}

	lockName := lockmgr.SessionLockName(booking.SessionUUID)
	lease, err := co.locks.TryAcquire(ctx, lockName, co.cfg.SessionLockTTL)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrLockAcquisitionFail, err)
	}
	defer func() {
		if relErr := co.locks.Release(ctx, lease); relErr != nil {
			log.Ctx(ctx).Warn().Err(relErr).Str("lock", lockName).Msg("booking: session lock release failed")
		}
	}()

	if booking.CRMID != "" {
		if _, err := co.crm.Update(ctx, crm.ObjectBooking, booking.CRMID, map[string]string{
			"is_active": string(models.BookingCancelled),
		}); err != nil {
			return Result{}, fmt.Errorf("%w: %v", crm.ErrCRMUnavailable, err)
		}
	}
	booking.IsActive = models.BookingCancelled

	var warnings []string
	refund := req.RefundTokens
	if refund && booking.TokenUsed != "" {
		contactLockName := lockmgr.ContactLockName(booking.ContactUUID)
		contactLease, lockErr := co.locks.Acquire(ctx, contactLockName, co.cfg.ContactLockTTL)
		if lockErr != nil {
			warnings = append(warnings, "CREDIT_REFUND_FAILED")
			metrics.CreditRefundFailuresTotal.Inc()
			log.Ctx(ctx).Error().Err(lockErr).Str("booking_id", booking.BookingID).Msg("booking: contact lock for refund unavailable, reporting cancel success anyway")
		} else {
			if err := co.ledger.Restore(ctx, booking.ContactUUID, booking.TokenUsed, "cancel:"+booking.BookingID); err != nil {
				warnings = append(warnings, "CREDIT_REFUND_FAILED")
				metrics.CreditRefundFailuresTotal.Inc()
				log.Ctx(ctx).Error().Err(err).Str("booking_id", booking.BookingID).Msg("booking: credit restore failed, reporting cancel success anyway")
			}
			if relErr := co.locks.Release(ctx, contactLease); relErr != nil {
				log.Ctx(ctx).Warn().Err(relErr).Str("lock", contactLockName).Msg("booking: contact lock release failed")
			}
		}
	}

	if _, err := co.counters.Decrement(ctx, booking.SessionUUID, 1); err != nil {
		warnings = append(warnings, "COUNTER_DECREMENT_FAILED")
		log.Ctx(ctx).Error().Err(err).Str("session_uuid", booking.SessionUUID.String()).Msg("booking: counter decrement failed")
	}

	concurrent.SafeGo(func() {
		bgCtx := context.WithoutCancel(ctx)
		tx, err := co.pool.Begin(bgCtx)
		if err != nil {
			log.Ctx(bgCtx).Warn().Err(err).Msg("booking: cancel projection begin failed, swallowing")
			return
		}
		defer func() { _ = tx.Rollback(bgCtx) }()
		if err := co.bookings.UpdateStatus(bgCtx, tx, booking.UUID, models.BookingCancelled); err != nil {
			log.Ctx(bgCtx).Warn().Err(err).Msg("booking: cancel projection failed, swallowing")
			return
		}
		if err := tx.Commit(bgCtx); err != nil {
			log.Ctx(bgCtx).Warn().Err(err).Msg("booking: cancel projection commit failed, swallowing")
			return
		}
		cachelayer.InvalidateWrite(bgCtx, co.cache, booking.ContactUUID.String(), booking.SessionUUID.String())
	})

	metrics.BookingsCancelled.Inc()
	return Result{
		Outcome:  models.BookingOutcome{Status: models.OutcomeCancelled, Booking: booking},
		Warnings: warnings,
	}, nil
}

// Rebook moves an active booking to a different session. The target
// session is read from the fast store only, with no CRM fallback, and
// rebook never moves credits or changes token_used.
func (co *Coordinator) Rebook(ctx context.Context, req models.RebookRequest) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	booking, err := co.resolveBooking(ctx, req.Identifier)
	if err != nil {
		return Result{}, fmt.Errorf("booking: resolve for rebook: %w", err)
	}
	if booking.IsActive == models.BookingCancelled {
		return Result{}, ErrBookingCancelled
	}

	newSession, err := co.sessions.GetFastStoreOnly(ctx, req.NewSessionUUID)
	if err != nil {
		if err == faststore.ErrSessionNotFound {
			return Result{}, ErrExamNotActive
		}
		return Result{}, fmt.Errorf("booking: load target session: %w", err)
	}
	if newSession.IsActive != models.SessionActive {
		return Result{}, ErrExamNotActive
	}
	if newSession.ExamDate.Before(time.Now().Truncate(24 * time.Hour)) {
		return Result{}, ErrExamPastDate
	}
	if newSession.MockType != booking.MockType {
		return Result{}, ErrExamTypeMismatch
	}

	lockName := lockmgr.SessionLockName(newSession.UUID)
	lease, err := co.locks.TryAcquire(ctx, lockName, co.cfg.SessionLockTTL)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrLockAcquisitionFail, err)
	}

	oldSessionUUID := booking.SessionUUID
	oldCRMID := ""
	if oldSession, err := co.sessions.GetFastStoreOnly(ctx, oldSessionUUID); err == nil {
		oldCRMID = oldSession.CRMID
	}

	tx, err := co.pool.Begin(ctx)
	if err != nil {
		_ = co.locks.Release(ctx, lease)
		return Result{}, fmt.Errorf("booking: begin rebook tx: %w", err)
	}
	if err := co.bookings.Rebook(ctx, tx, booking.UUID, newSession.UUID); err != nil {
		_ = tx.Rollback(ctx)
		_ = co.locks.Release(ctx, lease)
		return Result{}, fmt.Errorf("booking: rebook fast store: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		_ = co.locks.Release(ctx, lease)
		return Result{}, fmt.Errorf("booking: commit rebook: %w", err)
	}
	if relErr := co.locks.Release(ctx, lease); relErr != nil {
		log.Ctx(ctx).Warn().Err(relErr).Str("lock", lockName).Msg("booking: new-session lock release failed")
	}

	booking.SessionUUID = newSession.UUID
	booking.ExamDate = newSession.ExamDate

	var warnings []string
	if booking.CRMID != "" {
		if err := co.crm.Disassociate(ctx, crm.AssociationSpec{FromType: crm.ObjectBooking, FromID: booking.CRMID, ToType: crm.ObjectSession, ToID: oldCRMID}); err != nil {
			warnings = append(warnings, "ASSOCIATION_WARNING: old session disassociation failed")
		}
		if err := co.crm.Associate(ctx, crm.AssociationSpec{FromType: crm.ObjectBooking, FromID: booking.CRMID, ToType: crm.ObjectSession, ToID: newSession.CRMID}); err != nil {
			warnings = append(warnings, "ASSOCIATION_WARNING: new session association failed")
		}
	}

	cachelayer.InvalidateWrite(ctx, co.cache, booking.ContactUUID.String(), oldSessionUUID.String())
	cachelayer.InvalidateWrite(ctx, co.cache, booking.ContactUUID.String(), newSession.UUID.String())

	metrics.BookingsRebooked.Inc()
	return Result{
		Outcome:  models.BookingOutcome{Status: models.OutcomeRebooked, Booking: booking},
		Warnings: warnings,
	}, nil
}
