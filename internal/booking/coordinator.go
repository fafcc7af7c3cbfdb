// Package booking implements the booking coordinator, the heart of
// the engine: create, cancel and rebook, each serialized under the
// session lock so capacity and credit invariants hold under
// concurrent callers, using a transaction-then-compensate shape
// adapted to a CRM-first, fast-store-second dual-write model.
package booking

import (
	"context"
	"fmt"
	"time"

	"examhub/internal/cachelayer"
	"examhub/internal/counter"
	"examhub/internal/credit"
	"examhub/internal/crm"
	"examhub/internal/examsession"
	"examhub/internal/faststore"
	"examhub/internal/idgen"
	"examhub/internal/lockmgr"
	"examhub/internal/models"
	"examhub/internal/resolver"
	"examhub/internal/utils"
	"examhub/pkg/concurrent"
	"examhub/pkg/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Config carries the coordinator's tunable timings, defaulted from
// the engine's configuration options of the same name.
type Config struct {
	SessionLockTTL    time.Duration
	ContactLockTTL    time.Duration
	IdempotencyBucket time.Duration
}

func (c Config) withDefaults() Config {
	if c.SessionLockTTL == 0 {
		c.SessionLockTTL = 15 * time.Second
	}
	if c.ContactLockTTL == 0 {
		c.ContactLockTTL = 10 * time.Second
	}
	if c.IdempotencyBucket == 0 {
		c.IdempotencyBucket = 5 * time.Minute
	}
	return c
}

// Coordinator wires together every collaborator the three booking
// commands drive.
type Coordinator struct {
	crm      crm.Client
	sessions *examsession.Store
	bookings *faststore.BookingRepository
	contacts *faststore.ContactRepository
	pool     *pgxpool.Pool
	locks    lockmgr.Manager
	counters *counter.Service
	ledger   *credit.Ledger
	cache    cachelayer.Cache
	cfg      Config
}

func New(
	client crm.Client,
	sessions *examsession.Store,
	bookings *faststore.BookingRepository,
	contacts *faststore.ContactRepository,
	pool *pgxpool.Pool,
	locks lockmgr.Manager,
	counters *counter.Service,
	ledger *credit.Ledger,
	cache cachelayer.Cache,
	cfg Config,
) *Coordinator {
	return &Coordinator{
		crm: client, sessions: sessions, bookings: bookings, contacts: contacts,
		pool: pool, locks: locks, counters: counters, ledger: ledger, cache: cache,
		cfg: cfg.withDefaults(),
	}
}

// Result is the coordinator's output for all three commands.
type Result struct {
	Outcome           models.BookingOutcome
	IdempotentRequest bool
	RetryAfterCancel  bool
	Warnings          []string
	SpecificAfter     int
	SharedAfter       int
}

// Create reserves a seat: lock the session, recheck capacity, create
// the booking in the CRM, deduct a credit, then project to the fast
// store in the background.
func (co *Coordinator) Create(ctx context.Context, req models.CreateBookingRequest) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	session, err := co.sessions.Get(ctx, req.SessionUUID)
	if err != nil {
		return Result{}, fmt.Errorf("booking: load session: %w", err)
	}

	idempotencyKey := req.IdempotencyKey
	bucketNow := time.Now().UTC()
	if idempotencyKey == "" {
		idempotencyKey = idgen.DeriveIdempotencyKey(req.ContactUUID, req.SessionUUID, session.ExamDate, session.MockType, bucketNow, co.cfg.IdempotencyBucket)
	}

	if existing, err := co.bookings.GetByIdempotencyKey(ctx, idempotencyKey); err == nil {
		switch existing.IsActive {
		case models.BookingActive, models.BookingCompleted:
			return Result{
				Outcome:           models.BookingOutcome{Status: models.OutcomeAlreadyExists, Booking: existing},
				IdempotentRequest: true,
			}, nil
		case models.BookingCancelled:
			idempotencyKey = idgen.RetryAfterCancel(req.ContactUUID, req.SessionUUID, session.ExamDate, session.MockType, bucketNow, co.cfg.IdempotencyBucket)
		}
	} else if err != faststore.ErrBookingNotFound {
		return Result{}, fmt.Errorf("booking: idempotency lookup: %w", err)
	}

	lockName := lockmgr.SessionLockName(req.SessionUUID)
	lease, err := co.locks.TryAcquire(ctx, lockName, co.cfg.SessionLockTTL)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrLockAcquisitionFail, err)
	}
	defer func() {
		if relErr := co.locks.Release(ctx, lease); relErr != nil {
			log.Ctx(ctx).Warn().Err(relErr).Str("lock", lockName).Msg("booking: session lock release failed")
		}
	}()

	session, err = co.sessions.Get(ctx, req.SessionUUID)
	if err != nil {
		return Result{}, fmt.Errorf("booking: reload session under lock: %w", err)
	}
	if session.IsActive != models.SessionActive {
		return Result{}, ErrExamNotActive
	}
	if !session.HasCapacity() {
		return Result{}, ErrExamFull
	}

	// Credit operations run under a contact-scoped lock for the rest of
	// Create: two concurrent bookings for the same contact must not
	// both pass resolve_field against the same last credit, even when
	// they target different sessions (and so hold different session
	// locks).
	contactLockName := lockmgr.ContactLockName(req.ContactUUID)
	contactLease, err := co.locks.Acquire(ctx, contactLockName, co.cfg.ContactLockTTL)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrLockAcquisitionFail, err)
	}
	defer func() {
		if relErr := co.locks.Release(ctx, contactLease); relErr != nil {
			log.Ctx(ctx).Warn().Err(relErr).Str("lock", contactLockName).Msg("booking: contact lock release failed")
		}
	}()

	contact, err := co.contacts.GetByID(ctx, req.ContactUUID)
	if err != nil {
		return Result{}, fmt.Errorf("booking: load contact: %w", err)
	}
	field, ok := credit.ResolveField(session.MockType, contact.Credits)
	if !ok {
		return Result{}, credit.ErrInsufficientCredits
	}

	bookingID := idgen.BookingID(session.MockType, req.Name, session.ExamDate)
	if dup, err := co.findActiveBookingByBookingID(ctx, bookingID); err != nil {
		return Result{}, err
	} else if dup != nil {
		return Result{}, ErrDuplicateBooking
	}

	crmProps := map[string]string{
		"booking_id":      bookingID,
		"student_id":      req.StudentID,
		"name":            req.Name,
		"email":           req.Email,
		"token_used":      field,
		"idempotency_key": idempotencyKey,
	}
	if req.DominantHand != "" {
		crmProps["dominant_hand"] = req.DominantHand
	}
	if req.AttendingLocation != "" {
		crmProps["attending_location"] = string(req.AttendingLocation)
	}

	bookingObj, err := co.crm.Create(ctx, crm.ObjectBooking, crmProps)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", crm.ErrCRMUnavailable, err)
	}

	var warnings []string
	if err := co.crm.Associate(ctx, crm.AssociationSpec{FromType: crm.ObjectBooking, FromID: bookingObj.ID, ToType: crm.ObjectContact, ToID: contact.CRMID}); err != nil {
		warnings = append(warnings, "ASSOCIATION_WARNING: booking-contact association failed")
	}
	if err := co.crm.Associate(ctx, crm.AssociationSpec{FromType: crm.ObjectBooking, FromID: bookingObj.ID, ToType: crm.ObjectSession, ToID: session.CRMID}); err != nil {
		warnings = append(warnings, "ASSOCIATION_WARNING: booking-session association failed")
	}

	newTotal, err := co.counters.Increment(ctx, session.UUID, 1)
	if err != nil {
		co.compensateCreate(ctx, bookingObj.ID, nil, session.UUID, 0)
		return Result{}, fmt.Errorf("booking: increment counter: %w", err)
	}
	_ = newTotal

	deduct, err := co.ledger.Deduct(ctx, req.ContactUUID, session.MockType, "booking:"+bookingID)
	if err != nil {
		if cleanupErr := co.compensateCreate(ctx, bookingObj.ID, nil, session.UUID, 1); cleanupErr != nil {
			log.Ctx(ctx).Error().Err(cleanupErr).Str("booking_crm_id", bookingObj.ID).Msg("CLEANUP_FAILED")
		} else {
			log.Ctx(ctx).Warn().Str("booking_crm_id", bookingObj.ID).Msg("CLEANUP_PERFORMED")
		}
		return Result{}, fmt.Errorf("booking: deduct credit: %w", err)
	}

	booking := &models.Booking{
		CRMID:             bookingObj.ID,
		BookingID:         bookingID,
		SessionUUID:       session.UUID,
		ContactUUID:       req.ContactUUID,
		MockType:          session.MockType,
		ExamDate:          session.ExamDate,
		IsActive:          models.BookingActive,
		TokenUsed:         deduct.FieldUsed,
		DominantHand:      req.DominantHand,
		AttendingLocation: req.AttendingLocation,
		IdempotencyKey:    idempotencyKey,
	}

	log.Ctx(ctx).Debug().
		Str("contact", utils.MaskUserID(req.ContactUUID)).
		Str("email", utils.MaskEmail(req.Email)).
		Str("specific_after", utils.MaskAmount(deduct.SpecificAfter)).
		Msg("booking: created")

	// If the session lease lapsed somewhere during the writes above, a
	// concurrent caller could have been granted the same lock and
	// written again; this outcome must not assert success from its own
	// local state, it must reconfirm the booking actually landed by
	// reading it back from the CRM.
	if lease.Expired() {
		confirmed, findErr := co.findActiveBookingByBookingID(ctx, bookingID)
		if findErr != nil {
			return Result{}, fmt.Errorf("booking: reconfirm after lease lapse: %w", findErr)
		}
		if confirmed == nil {
			return Result{}, fmt.Errorf("booking: session lock lease lapsed and booking %s could not be reconfirmed", bookingID)
		}
		log.Ctx(ctx).Warn().Str("booking_id", bookingID).Msg("booking: session lock lease lapsed, reconfirmed booking before returning success")
		booking.CRMID = confirmed.CRMID
		booking.IsActive = confirmed.IsActive
	}

	concurrent.SafeGo(func() {
		bgCtx := context.WithoutCancel(ctx)
		tx, err := co.pool.Begin(bgCtx)
		if err != nil {
			log.Ctx(bgCtx).Warn().Err(err).Msg("booking: fast-store projection begin failed, swallowing")
			return
		}
		defer func() { _ = tx.Rollback(bgCtx) }()
		if err := co.bookings.Create(bgCtx, tx, booking); err != nil {
			log.Ctx(bgCtx).Warn().Err(err).Msg("booking: fast-store projection failed, swallowing")
			return
		}
		if err := tx.Commit(bgCtx); err != nil {
			log.Ctx(bgCtx).Warn().Err(err).Msg("booking: fast-store projection commit failed, swallowing")
			return
		}
		cachelayer.InvalidateWrite(bgCtx, co.cache, req.ContactUUID.String(), session.UUID.String())
	})

	metrics.BookingsCreated.Inc()
	return Result{
		Outcome:       models.BookingOutcome{Status: models.OutcomeCreated, Booking: booking},
		Warnings:      warnings,
		SpecificAfter: deduct.SpecificAfter,
		SharedAfter:   deduct.SharedAfter,
	}, nil
}

// compensateCreate deletes the just-created CRM booking and, if it
// had already been counted, decrements the counter back. Called only
// on the failure paths after the booking has been created in the CRM.
func (co *Coordinator) compensateCreate(ctx context.Context, bookingCRMID string, booking *models.Booking, sessionUUID uuid.UUID, counterDelta int) error {
	if err := co.crm.Delete(ctx, crm.ObjectBooking, bookingCRMID); err != nil {
		return fmt.Errorf("%w: delete booking: %v", ErrCleanupFailed, err)
	}
	if counterDelta != 0 {
		if _, err := co.counters.Decrement(ctx, sessionUUID, counterDelta); err != nil {
			return fmt.Errorf("%w: decrement counter: %v", ErrCleanupFailed, err)
		}
	}
	return nil
}

func (co *Coordinator) findActiveBookingByBookingID(ctx context.Context, bookingID string) (*models.Booking, error) {
	result, err := co.crm.Search(ctx, crm.SearchRequest{
		ObjectType: crm.ObjectBooking,
		Filters: []crm.SearchFilter{
			{PropertyName: "booking_id", Operator: "EQ", Value: bookingID},
			{PropertyName: "is_active", Operator: "EQ", Value: string(models.BookingActive)},
		},
		Limit: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("booking: duplicate check: %w", err)
	}
	if len(result.Objects) == 0 {
		return nil, nil
	}
	b := resolver.BookingFromCRM(result.Objects[0], uuid.Nil, uuid.Nil)
	return &b, nil
}

// resolveBooking performs the cascading lookup cancel and rebook both
// need: local UUID first, then CRM id.
func (co *Coordinator) resolveBooking(ctx context.Context, identifier string) (*models.Booking, error) {
	if id, err := uuid.Parse(identifier); err == nil {
		return co.bookings.GetByID(ctx, id)
	}
	obj, err := co.crm.Get(ctx, crm.ObjectBooking, identifier)
	if err != nil {
		if err == crm.ErrNotFound {
			return nil, faststore.ErrBookingNotFound
		}
		return nil, err
	}
	b := resolver.BookingFromCRM(obj, uuid.Nil, uuid.Nil)
	return &b, nil
}
