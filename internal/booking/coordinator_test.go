package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

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
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 15*time.Second, cfg.SessionLockTTL)
	assert.Equal(t, 10*time.Second, cfg.ContactLockTTL)
	assert.Equal(t, 5*time.Minute, cfg.IdempotencyBucket)
}

func TestConfig_WithDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := Config{SessionLockTTL: 30 * time.Second}.withDefaults()
	assert.Equal(t, 30*time.Second, cfg.SessionLockTTL)
	assert.Equal(t, 10*time.Second, cfg.ContactLockTTL)
}

func TestCreateBookingRequest_ValidateCatchesMissingIDs(t *testing.T) {
	req := models.CreateBookingRequest{}
	assert.ErrorIs(t, req.Validate(), models.ErrInvalidContactID)

	req.ContactUUID = uuid.New()
	assert.ErrorIs(t, req.Validate(), models.ErrInvalidSessionID)

	req.SessionUUID = uuid.New()
	req.Email = "not-an-email"
	assert.ErrorIs(t, req.Validate(), models.ErrInvalidEmail)
}

func TestCancelBookingRequest_ValidateRequiresIdentifier(t *testing.T) {
	req := models.CancelBookingRequest{}
	assert.ErrorIs(t, req.Validate(), models.ErrInvalidBookingID)

	req.Identifier = "abc"
	assert.NoError(t, req.Validate())
}

func TestRebookRequest_ValidateRequiresBothFields(t *testing.T) {
	req := models.RebookRequest{}
	assert.ErrorIs(t, req.Validate(), models.ErrInvalidBookingID)

	req.Identifier = "abc"
	assert.ErrorIs(t, req.Validate(), models.ErrInvalidSessionID)

	req.NewSessionUUID = uuid.New()
	assert.NoError(t, req.Validate())
}

func unreachableRedisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond,
		ReadTimeout: 100 * time.Millisecond, WriteTimeout: 100 * time.Millisecond,
	})
}

type coordinatorFixture struct {
	co       *Coordinator
	crm      *crm.FakeClient
	sessions *examsession.Store
	bookings *faststore.BookingRepository
	contacts *faststore.ContactRepository
	counters *counter.Service
	sqlxDB   *sqlx.DB
}

func newCoordinatorFixture(t *testing.T, cfg Config) coordinatorFixture {
	t.Helper()
	pool, sqlxDB := testsupport.Postgres(t)

	client := crm.NewFakeClient()
	sessionRepo := faststore.NewSessionRepository(sqlxDB)
	bookingRepo := faststore.NewBookingRepository(sqlxDB)
	contactRepo := faststore.NewContactRepository(sqlxDB)
	sessionStore := examsession.New(client, sessionRepo, pool, 0)
	locks := lockmgr.NewInMemoryManager()
	counters := counter.NewService(unreachableRedisClient(), sessionRepo, true)
	ledger := credit.NewLedger(pool, contactRepo)
	cache := cachelayer.NewInMemoryCache()

	co := New(client, sessionStore, bookingRepo, contactRepo, pool, locks, counters, ledger, cache, cfg)
	return coordinatorFixture{co: co, crm: client, sessions: sessionStore, bookings: bookingRepo, contacts: contactRepo, counters: counters, sqlxDB: sqlxDB}
}

// waitForProjection polls the fast store for the booking Create just
// returned, since its fast-store row is written by a background
// goroutine and is not guaranteed to exist the instant Create
// returns. Returns the projected row's own UUID, the only identifier
// resolveBooking's UUID-parse branch can reliably resolve (unlike the
// fake CRM's ID, which also happens to parse as a UUID and would
// otherwise be misrouted into this same branch).
func waitForProjection(t *testing.T, f coordinatorFixture, idempotencyKey string) *models.Booking {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		b, err := f.bookings.GetByIdempotencyKey(context.Background(), idempotencyKey)
		if err == nil {
			return b
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for fast-store projection of idempotency key %q", idempotencyKey)
	return nil
}

func newFixtureSession(t *testing.T, f coordinatorFixture, mockType models.MockType, capacity int) models.Session {
	t.Helper()
	session, err := f.sessions.Create(context.Background(), models.Session{
		MockType: mockType, ExamDate: time.Now().Add(48 * time.Hour),
		StartTime: "09:00", EndTime: "11:00", Location: models.LocationToronto,
		Capacity: capacity, IsActive: models.SessionActive,
	})
	require.NoError(t, err)
	return session
}

func newFixtureContact(t *testing.T, f coordinatorFixture, balance models.CreditBalance) uuid.UUID {
	t.Helper()
	contact := &models.Contact{
		CRMID: uuid.NewString(), StudentID: "STU" + uuid.NewString()[:8],
		Email: "student-" + uuid.NewString()[:8] + "@example.com", Credits: balance,
	}
	require.NoError(t, f.contacts.Upsert(context.Background(), contact))
	return contact.UUID
}

// TestCoordinator_Create_OverbookingResistance_ConcurrentCallers fires
// N concurrent Create calls at a capacity-1 session, each for a
// distinct, fully-funded contact. Exactly one must win; the rest must
// fail on either the session lock (TryAcquire is non-blocking, so a
// losing racer never even reaches the capacity check) or the capacity
// check itself — never succeed, and never overbook the session.
func TestCoordinator_Create_OverbookingResistance_ConcurrentCallers(t *testing.T) {
	f := newCoordinatorFixture(t, Config{})
	session := newFixtureSession(t, f, models.MockTypeClinicalSkills, 1)

	const n = 6
	contactIDs := make([]uuid.UUID, n)
	for i := range contactIDs {
		contactIDs[i] = newFixtureContact(t, f, models.CreditBalance{CS: 1})
	}

	results := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.co.Create(context.Background(), models.CreateBookingRequest{
				ContactUUID: contactIDs[i], SessionUUID: session.UUID,
				StudentID: "STU", Name: "Concurrent Student", Email: "concurrent@example.com",
			})
			results[i] = err
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrExamFull), errors.Is(err, ErrLockAcquisitionFail):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes, "exactly one concurrent Create against a capacity-1 session must win")

	got, err := f.sessions.GetFastStoreOnly(context.Background(), session.UUID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalBookings, "the session must never end up overbooked")
}

// TestCoordinator_Create_IdempotentReplay_ReturnsSameBooking verifies
// that replaying Create with the same idempotency key returns the
// original booking instead of creating a second one.
func TestCoordinator_Create_IdempotentReplay_ReturnsSameBooking(t *testing.T) {
	f := newCoordinatorFixture(t, Config{})
	session := newFixtureSession(t, f, models.MockTypeClinicalSkills, 5)
	contactID := newFixtureContact(t, f, models.CreditBalance{CS: 2})

	req := models.CreateBookingRequest{
		ContactUUID: contactID, SessionUUID: session.UUID,
		StudentID: "STU", Name: "Idempotent Student", Email: "idem@example.com",
		IdempotencyKey: "fixed-key-" + uuid.NewString(),
	}

	first, err := f.co.Create(context.Background(), req)
	require.NoError(t, err)
	require.False(t, first.IdempotentRequest)

	second, err := f.co.Create(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.IdempotentRequest)
	assert.Equal(t, models.OutcomeAlreadyExists, second.Outcome.Status)
	assert.Equal(t, first.Outcome.Booking.CRMID, second.Outcome.Booking.CRMID)
}

// TestCoordinator_Create_SJCreditFallsThroughToSharedPool checks that
// an SJ booking with no sj-specific credit left still succeeds from
// the shared pool.
func TestCoordinator_Create_SJCreditFallsThroughToSharedPool(t *testing.T) {
	f := newCoordinatorFixture(t, Config{})
	session := newFixtureSession(t, f, models.MockTypeSituationalJudgment, 5)
	contactID := newFixtureContact(t, f, models.CreditBalance{SJ: 0, Shared: 1})

	result, err := f.co.Create(context.Background(), models.CreateBookingRequest{
		ContactUUID: contactID, SessionUUID: session.UUID,
		StudentID: "STU", Name: "Shared Pool Student", Email: "shared@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "shared", result.Outcome.Booking.TokenUsed)
	assert.Equal(t, 0, result.SharedAfter)
}

// TestCoordinator_Create_MiniMockNeverTouchesSharedPool checks that a
// Mini-mock booking with no sjmini-specific credit is rejected even
// when the shared pool has plenty.
func TestCoordinator_Create_MiniMockNeverTouchesSharedPool(t *testing.T) {
	f := newCoordinatorFixture(t, Config{})
	session := newFixtureSession(t, f, models.MockTypeMiniMock, 5)
	contactID := newFixtureContact(t, f, models.CreditBalance{SJMini: 0, Shared: 100})

	_, err := f.co.Create(context.Background(), models.CreateBookingRequest{
		ContactUUID: contactID, SessionUUID: session.UUID,
		StudentID: "STU", Name: "Mini Mock Student", Email: "mini@example.com",
	})
	assert.ErrorIs(t, err, credit.ErrInsufficientCredits)
}

// TestCoordinator_Create_CreditCheckPrecedesDuplicateCheck pins down
// the ordering fix: when both an insufficient-credit condition and a
// duplicate booking_id collision apply to the same request, the
// caller must see INSUFFICIENT_CREDITS, not DUPLICATE_BOOKING.
func TestCoordinator_Create_CreditCheckPrecedesDuplicateCheck(t *testing.T) {
	f := newCoordinatorFixture(t, Config{})
	session := newFixtureSession(t, f, models.MockTypeClinicalSkills, 5)

	funded := newFixtureContact(t, f, models.CreditBalance{CS: 1})
	_, err := f.co.Create(context.Background(), models.CreateBookingRequest{
		ContactUUID: funded, SessionUUID: session.UUID,
		StudentID: "STU-A", Name: "Same Name", Email: "a@example.com",
	})
	require.NoError(t, err)

	unfunded := newFixtureContact(t, f, models.CreditBalance{})
	_, err = f.co.Create(context.Background(), models.CreateBookingRequest{
		ContactUUID: unfunded, SessionUUID: session.UUID,
		StudentID: "STU-B", Name: "Same Name", Email: "b@example.com",
	})
	assert.ErrorIs(t, err, credit.ErrInsufficientCredits, "credit check must run before the duplicate-booking-id check")
}

// TestCoordinator_Create_ReconfirmsAfterSessionLockLeaseLapse forces
// lease.Expired() to be true by the time Create finishes its writes
// (a near-zero TTL), then checks Create still returns a successful,
// reconfirmed outcome rather than trusting stale local state.
func TestCoordinator_Create_ReconfirmsAfterSessionLockLeaseLapse(t *testing.T) {
	f := newCoordinatorFixture(t, Config{SessionLockTTL: time.Nanosecond})
	session := newFixtureSession(t, f, models.MockTypeClinicalSkills, 5)
	contactID := newFixtureContact(t, f, models.CreditBalance{CS: 1})

	result, err := f.co.Create(context.Background(), models.CreateBookingRequest{
		ContactUUID: contactID, SessionUUID: session.UUID,
		StudentID: "STU", Name: "Lapsed Lease Student", Email: "lapsed@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCreated, result.Outcome.Status)
	assert.NotEmpty(t, result.Outcome.Booking.CRMID)
}

// TestCoordinator_Cancel_SucceedsDespiteFailedCreditRefund removes the
// contact's fast-store row out from under a booking before cancelling
// it, so the credit restore fails; Cancel must still report success
// with a CREDIT_REFUND_FAILED warning.
func TestCoordinator_Cancel_SucceedsDespiteFailedCreditRefund(t *testing.T) {
	f := newCoordinatorFixture(t, Config{})
	session := newFixtureSession(t, f, models.MockTypeClinicalSkills, 5)
	contactID := newFixtureContact(t, f, models.CreditBalance{CS: 1})

	created, err := f.co.Create(context.Background(), models.CreateBookingRequest{
		ContactUUID: contactID, SessionUUID: session.UUID,
		StudentID: "STU", Name: "Refund Failure Student", Email: "refund@example.com",
	})
	require.NoError(t, err)

	projected := waitForProjection(t, f, created.Outcome.Booking.IdempotencyKey)

	_, err = f.sqlxDB.Exec(`DELETE FROM contacts WHERE uuid = $1`, contactID)
	require.NoError(t, err)

	result, err := f.co.Cancel(context.Background(), models.CancelBookingRequest{
		Identifier: projected.UUID.String(), RefundTokens: true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCancelled, result.Outcome.Status)
	assert.Contains(t, result.Warnings, "CREDIT_REFUND_FAILED")
}

// TestCoordinator_Rebook_LeavesCapacityCountersUnchanged checks that
// moving a booking to a new session does not touch either session's
// total_bookings counter: rebook is a pure session-pointer swap.
func TestCoordinator_Rebook_LeavesCapacityCountersUnchanged(t *testing.T) {
	f := newCoordinatorFixture(t, Config{})
	oldSession := newFixtureSession(t, f, models.MockTypeClinicalSkills, 5)
	newSession := newFixtureSession(t, f, models.MockTypeClinicalSkills, 5)
	contactID := newFixtureContact(t, f, models.CreditBalance{CS: 1})

	created, err := f.co.Create(context.Background(), models.CreateBookingRequest{
		ContactUUID: contactID, SessionUUID: oldSession.UUID,
		StudentID: "STU", Name: "Rebook Student", Email: "rebook@example.com",
	})
	require.NoError(t, err)

	projected := waitForProjection(t, f, created.Outcome.Booking.IdempotencyKey)

	before, err := f.sessions.GetFastStoreOnly(context.Background(), oldSession.UUID)
	require.NoError(t, err)

	result, err := f.co.Rebook(context.Background(), models.RebookRequest{
		Identifier: projected.UUID.String(), NewSessionUUID: newSession.UUID,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeRebooked, result.Outcome.Status)
	assert.Equal(t, newSession.UUID, result.Outcome.Booking.SessionUUID)

	afterOld, err := f.sessions.GetFastStoreOnly(context.Background(), oldSession.UUID)
	require.NoError(t, err)
	afterNew, err := f.sessions.GetFastStoreOnly(context.Background(), newSession.UUID)
	require.NoError(t, err)
	assert.Equal(t, before.TotalBookings, afterOld.TotalBookings)
	assert.Equal(t, 0, afterNew.TotalBookings)
}
