package engine

import (
	"context"
	"testing"
	"time"

	"examhub/internal/booking"
	"examhub/internal/cachelayer"
	"examhub/internal/counter"
	"examhub/internal/credit"
	"examhub/internal/crm"
	"examhub/internal/examsession"
	"examhub/internal/faststore"
	"examhub/internal/lockmgr"
	"examhub/internal/models"
	"examhub/internal/testsupport"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParseDate(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func TestMapErr(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{models.ErrInvalidContactID, KindValidationError},
		{models.ErrInvalidEmail, KindValidationError},
		{faststore.ErrSessionNotFound, KindNotFound},
		{faststore.ErrBookingNotFound, KindNotFound},
		{crm.ErrNotFound, KindNotFound},
		{booking.ErrExamNotActive, KindExamNotActive},
		{booking.ErrExamFull, KindExamFull},
		{credit.ErrInsufficientCredits, KindInsufficientCredits},
		{booking.ErrDuplicateBooking, KindDuplicateBooking},
		{booking.ErrBookingCancelled, KindBookingCancelled},
		{booking.ErrExamTypeMismatch, KindExamTypeMismatch},
		{booking.ErrExamPastDate, KindExamPastDate},
		{booking.ErrLockAcquisitionFail, KindLockAcquisitionFail},
		{lockmgr.ErrNotAcquired, KindLockAcquisitionFail},
		{crm.ErrCRMUnavailable, KindCRMUnavailable},
		{booking.ErrCleanupFailed, KindCleanupFailed},
		{assert.AnError, KindInternalError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, mapErr(tc.err), tc.err.Error())
	}
}

func TestOkFail(t *testing.T) {
	o := ok("data", []string{"w"})
	assert.True(t, o.Success)
	assert.Equal(t, "data", o.Data)
	assert.Equal(t, []string{"w"}, o.Warnings)

	f := fail(KindExamFull)
	assert.False(t, f.Success)
	assert.Equal(t, KindExamFull, f.Code)
	assert.NotEmpty(t, f.Message)
}

func TestSameDate(t *testing.T) {
	a := mustParseDate(t, "2026-08-01T09:00:00Z")
	b := mustParseDate(t, "2026-08-01T23:00:00Z")
	c := mustParseDate(t, "2026-08-02T00:00:01Z")
	assert.True(t, sameDate(a, b))
	assert.False(t, sameDate(a, c))
}

func newTestEngine(t *testing.T) (*Engine, *crm.FakeClient, *faststore.ContactRepository) {
	t.Helper()
	pool, sqlxDB := testsupport.Postgres(t)

	client := crm.NewFakeClient()
	sessionRepo := faststore.NewSessionRepository(sqlxDB)
	bookingRepo := faststore.NewBookingRepository(sqlxDB)
	contactRepo := faststore.NewContactRepository(sqlxDB)
	sessionStore := examsession.New(client, sessionRepo, pool, 0)
	locks := lockmgr.NewInMemoryManager()
	redisClient := redis.NewClient(&redis.Options{
		Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond,
		ReadTimeout: 100 * time.Millisecond, WriteTimeout: 100 * time.Millisecond,
	})
	counters := counter.NewService(redisClient, sessionRepo, true)
	ledger := credit.NewLedger(pool, contactRepo)
	cache := cachelayer.NewInMemoryCache()

	coord := booking.New(client, sessionStore, bookingRepo, contactRepo, pool, locks, counters, ledger, cache, booking.Config{})
	e := New(sessionStore, coord, bookingRepo, contactRepo, cache)
	return e, client, contactRepo
}

func TestEngine_CreateBooking_EndToEnd(t *testing.T) {
	e, client, contacts := newTestEngine(t)
	ctx := context.Background()

	session, err := e.sessions.Create(ctx, models.Session{
		MockType: models.MockTypeClinicalSkills, ExamDate: time.Now().Add(48 * time.Hour),
		StartTime: "09:00", EndTime: "11:00", Location: models.LocationToronto,
		Capacity: 1, IsActive: models.SessionActive,
	})
	require.NoError(t, err)

	contact := &models.Contact{
		CRMID: uuid.NewString(), StudentID: "STU1", Email: "student@example.com",
		Credits: models.CreditBalance{CS: 1},
	}
	require.NoError(t, contacts.Upsert(ctx, contact))

	outcome := e.CreateBooking(ctx, CreateBookingParams{
		ContactID: contact.UUID, SessionID: session.UUID,
		StudentID: "STU1", Name: "A Student", Email: "student@example.com",
	})
	require.True(t, outcome.Success, "%+v", outcome)
	result, ok := outcome.Data.(models.BookingOutcome)
	require.True(t, ok)
	assert.Equal(t, models.OutcomeCreated, result.Status)
	_ = client

	second := e.CreateBooking(ctx, CreateBookingParams{
		ContactID: uuid.New(), SessionID: session.UUID,
		StudentID: "STU2", Name: "B Student", Email: "other@example.com",
	})
	assert.False(t, second.Success)
	assert.Equal(t, KindExamFull, second.Code)
}

func TestEngine_CancelBooking_RejectsNonOwningActor(t *testing.T) {
	e, _, contacts := newTestEngine(t)
	ctx := context.Background()

	session, err := e.sessions.Create(ctx, models.Session{
		MockType: models.MockTypeClinicalSkills, ExamDate: time.Now().Add(48 * time.Hour),
		StartTime: "09:00", EndTime: "11:00", Location: models.LocationToronto,
		Capacity: 5, IsActive: models.SessionActive,
	})
	require.NoError(t, err)

	contact := &models.Contact{
		CRMID: uuid.NewString(), StudentID: "STU3", Email: "c@example.com",
		Credits: models.CreditBalance{CS: 1},
	}
	require.NoError(t, contacts.Upsert(ctx, contact))

	created := e.CreateBooking(ctx, CreateBookingParams{
		ContactID: contact.UUID, SessionID: session.UUID,
		StudentID: "STU3", Name: "C Student", Email: "c@example.com",
	})
	require.True(t, created.Success)
	bookingOutcome := created.Data.(models.BookingOutcome)

	// Cancel resolves its identifier as a fast-store UUID first; wait
	// for the background projection so that lookup actually succeeds
	// rather than racing it.
	var projected *models.Booking
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b, err := e.bookings.GetByIdempotencyKey(ctx, bookingOutcome.Booking.IdempotencyKey); err == nil {
			projected = b
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NotNil(t, projected, "timed out waiting for fast-store projection")

	rejected := e.CancelBooking(ctx, CancelBookingParams{
		Identifier: projected.UUID.String(),
		Actor:      Actor{ContactID: uuid.New()},
	})
	assert.False(t, rejected.Success)
	assert.Equal(t, KindUnauthorized, rejected.Code)

	accepted := e.CancelBooking(ctx, CancelBookingParams{
		Identifier:   projected.UUID.String(),
		Actor:        Actor{ContactID: contact.UUID},
		RefundTokens: true,
	})
	assert.True(t, accepted.Success, "%+v", accepted)
}
