// Package engine is the top-level facade the command surface is built
// from: plain Go methods taking typed params and returning a typed
// Outcome, wiring the booking coordinator, session store, and fast
// store behind the eight operations HTTP handlers and cron triggers
// drive.
package engine

import (
	"context"
	"errors"
	"time"

	"examhub/internal/booking"
	"examhub/internal/cachelayer"
	"examhub/internal/credit"
	"examhub/internal/crm"
	"examhub/internal/examsession"
	"examhub/internal/faststore"
	"examhub/internal/lockmgr"
	"examhub/internal/models"
	"examhub/internal/pkg/errmessages"
	"examhub/pkg/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Outcome is the uniform return shape of every command: Success tells
// the caller whether Data is meaningful or Code explains the failure.
type Outcome struct {
	Success  bool
	Code     ErrorKind
	Message  string
	Data     any
	Warnings []string
}

func ok(data any, warnings []string) Outcome {
	return Outcome{Success: true, Data: data, Warnings: warnings}
}

func fail(kind ErrorKind) Outcome {
	metrics.EngineCommandFailuresTotal.WithLabelValues(string(kind)).Inc()
	return Outcome{Success: false, Code: kind, Message: errmessages.ForKind(string(kind))}
}

// mapErr translates a sentinel error from booking, credit, lockmgr,
// crm or faststore into the ErrorKind the command surface promises.
func mapErr(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, models.ErrInvalidContactID),
		errors.Is(err, models.ErrInvalidSessionID),
		errors.Is(err, models.ErrInvalidBookingID),
		errors.Is(err, models.ErrInvalidEmail),
		errors.Is(err, models.ErrInvalidTimeRange),
		errors.Is(err, models.ErrInvalidCapacity),
		errors.Is(err, models.ErrInvalidActivation):
		return KindValidationError
	case errors.Is(err, faststore.ErrSessionNotFound),
		errors.Is(err, faststore.ErrBookingNotFound),
		errors.Is(err, faststore.ErrContactNotFound),
		errors.Is(err, crm.ErrNotFound):
		return KindNotFound
	case errors.Is(err, booking.ErrExamNotActive):
		return KindExamNotActive
	case errors.Is(err, booking.ErrExamFull):
		return KindExamFull
	case errors.Is(err, credit.ErrInsufficientCredits):
		return KindInsufficientCredits
	case errors.Is(err, booking.ErrDuplicateBooking), errors.Is(err, faststore.ErrDuplicateBooking):
		return KindDuplicateBooking
	case errors.Is(err, booking.ErrBookingCancelled):
		return KindBookingCancelled
	case errors.Is(err, booking.ErrExamTypeMismatch):
		return KindExamTypeMismatch
	case errors.Is(err, booking.ErrExamPastDate):
		return KindExamPastDate
	case errors.Is(err, booking.ErrLockAcquisitionFail), errors.Is(err, lockmgr.ErrNotAcquired):
		return KindLockAcquisitionFail
	case errors.Is(err, crm.ErrCRMUnavailable):
		return KindCRMUnavailable
	case errors.Is(err, booking.ErrCleanupFailed):
		return KindCleanupFailed
	default:
		return KindInternalError
	}
}

// Engine wires the session store, booking coordinator and fast-store
// read paths behind the command surface.
type Engine struct {
	sessions *examsession.Store
	coord    *booking.Coordinator
	bookings *faststore.BookingRepository
	contacts *faststore.ContactRepository
	cache    cachelayer.Cache
}

func New(
	sessions *examsession.Store,
	coord *booking.Coordinator,
	bookings *faststore.BookingRepository,
	contacts *faststore.ContactRepository,
	cache cachelayer.Cache,
) *Engine {
	return &Engine{sessions: sessions, coord: coord, bookings: bookings, contacts: contacts, cache: cache}
}

// CreateBookingParams mirrors the command surface's CreateBooking
// signature. MockType and ExamDate are the caller's declared
// expectation; a mismatch against the session's actual values is a
// VALIDATION_ERROR raised before the coordinator is ever invoked.
type CreateBookingParams struct {
	ContactID         uuid.UUID
	SessionID         uuid.UUID
	StudentID         string
	Name              string
	Email             string
	MockType          models.MockType
	ExamDate          time.Time
	DominantHand      string
	AttendingLocation models.Location
	IdempotencyKey    string
}

func (e *Engine) CreateBooking(ctx context.Context, p CreateBookingParams) Outcome {
	session, err := e.sessions.Get(ctx, p.SessionID)
	if err != nil {
		return fail(mapErr(err))
	}
	if p.MockType != "" && p.MockType != session.MockType {
		return fail(KindValidationError)
	}
	if !p.ExamDate.IsZero() && !sameDate(p.ExamDate, session.ExamDate) {
		return fail(KindValidationError)
	}

	result, err := e.coord.Create(ctx, models.CreateBookingRequest{
		ContactUUID:       p.ContactID,
		SessionUUID:       p.SessionID,
		StudentID:         p.StudentID,
		Name:              p.Name,
		Email:             p.Email,
		DominantHand:      p.DominantHand,
		AttendingLocation: p.AttendingLocation,
		IdempotencyKey:    p.IdempotencyKey,
	})
	if err != nil {
		return fail(mapErr(err))
	}
	return ok(result.Outcome, result.Warnings)
}

// Actor identifies who is cancelling a booking, needed only to decide
// whether a non-owning cancellation should be rejected; the
// coordinator itself is actor-agnostic.
type Actor struct {
	ContactID uuid.UUID
	IsAdmin   bool
}

type CancelBookingParams struct {
	Identifier   string
	Actor        Actor
	Reason       string
	RefundTokens bool
}

func (e *Engine) CancelBooking(ctx context.Context, p CancelBookingParams) Outcome {
	result, err := e.coord.Cancel(ctx, models.CancelBookingRequest{
		Identifier:   p.Identifier,
		IsAdmin:      p.Actor.IsAdmin,
		Reason:       p.Reason,
		RefundTokens: p.RefundTokens,
	})
	if err != nil {
		return fail(mapErr(err))
	}
	if !p.Actor.IsAdmin && result.Outcome.Booking != nil && result.Outcome.Booking.ContactUUID != p.Actor.ContactID {
		return fail(KindUnauthorized)
	}
	return ok(result.Outcome, result.Warnings)
}

type RebookBookingParams struct {
	Identifier   string
	NewSessionID uuid.UUID
}

func (e *Engine) RebookBooking(ctx context.Context, p RebookBookingParams) Outcome {
	result, err := e.coord.Rebook(ctx, models.RebookRequest{
		Identifier:     p.Identifier,
		NewSessionUUID: p.NewSessionID,
	})
	if err != nil {
		return fail(mapErr(err))
	}
	return ok(result.Outcome, result.Warnings)
}

// ActivationSummary is the data payload ActivateScheduled returns.
type ActivationSummary struct {
	Activated int
	Failed    int
	Total     int
}

// ActivateScheduled flips every due scheduled session to active, for
// callers that trigger activation on demand rather than waiting for
// internal/activator's own tick.
func (e *Engine) ActivateScheduled(ctx context.Context) Outcome {
	due, err := e.sessions.DueForActivation(ctx)
	if err != nil {
		return fail(mapErr(err))
	}
	ids := make([]uuid.UUID, len(due))
	for i, s := range due {
		ids[i] = s.UUID
	}
	activated, failed := e.sessions.ActivateBatch(ctx, ids)

	if activated > 0 {
		for _, pattern := range []string{"sessions:list:*", "sessions:aggregates:*"} {
			if err := e.cache.DeletePattern(ctx, pattern); err != nil {
				log.Ctx(ctx).Warn().Err(err).Str("pattern", pattern).Msg("engine: cache invalidation failed, swallowing")
			}
		}
	}

	return ok(ActivationSummary{Activated: activated, Failed: failed, Total: len(due)}, nil)
}

// BookingListFilter enumerates the three views ListBookingsByContact
// supports.
type BookingListFilter string

const (
	BookingListAll      BookingListFilter = "all"
	BookingListUpcoming BookingListFilter = "upcoming"
	BookingListPast     BookingListFilter = "past"
)

func (e *Engine) ListBookingsByContact(ctx context.Context, contactID uuid.UUID, filter BookingListFilter, page, limit int) Outcome {
	f := models.ListBookingsFilter{ContactUUID: contactID, Page: page, Limit: limit}
	now := time.Now().UTC()
	switch filter {
	case BookingListUpcoming:
		f.ExamDateFrom = &now
	case BookingListPast:
		f.ExamDateTo = &now
	}

	result, err := e.bookings.List(ctx, f)
	if err != nil {
		return fail(mapErr(err))
	}
	return ok(result, nil)
}

func (e *Engine) GetSession(ctx context.Context, sessionID uuid.UUID) Outcome {
	session, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return fail(mapErr(err))
	}
	return ok(session, nil)
}

func (e *Engine) SearchSessions(ctx context.Context, filter models.SessionFilter) Outcome {
	result, err := e.sessions.Search(ctx, filter)
	if err != nil {
		return fail(mapErr(err))
	}
	return ok(result, nil)
}

// CreditsView is the data payload GetCredits returns.
type CreditsView struct {
	Specific  int
	Shared    int
	Available int
	Eligible  bool
}

func (e *Engine) GetCredits(ctx context.Context, contactID uuid.UUID, mockType models.MockType) Outcome {
	contact, err := e.contacts.GetByID(ctx, contactID)
	if err != nil {
		return fail(mapErr(err))
	}

	specificField := mockType.CreditField()
	if specificField == "" {
		return fail(KindValidationError)
	}
	specific := contact.Credits.Field(specificField)
	shared := contact.Credits.Shared
	available := specific
	if mockType.SharesPool() {
		available += shared
	}
	_, eligible := credit.ResolveField(mockType, contact.Credits)

	return ok(CreditsView{Specific: specific, Shared: shared, Available: available, Eligible: eligible}, nil)
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
