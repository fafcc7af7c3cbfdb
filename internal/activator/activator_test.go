package activator

import (
	"context"
	"testing"
	"time"

	"examhub/internal/cachelayer"
	"examhub/internal/counter"
	"examhub/internal/crm"
	"examhub/internal/examsession"
	"examhub/internal/faststore"
	"examhub/internal/models"
	"examhub/internal/testsupport"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unreachableRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond,
		ReadTimeout: 100 * time.Millisecond, WriteTimeout: 100 * time.Millisecond,
	})
}

func TestActivator_Tick_ActivatesDueSessions(t *testing.T) {
	pool, sqlxDB := testsupport.Postgres(t)
	sessionRepo := faststore.NewSessionRepository(sqlxDB)
	bookingRepo := faststore.NewBookingRepository(sqlxDB)
	client := crm.NewFakeClient()
	sessionStore := examsession.New(client, sessionRepo, pool, 0)
	counters := counter.NewService(unreachableRedis(), sessionRepo, true)
	cache := cachelayer.NewInMemoryCache()
	act := New(sessionStore, sessionRepo, bookingRepo, counters, pool, cache)

	future := time.Now().Add(time.Hour)
	session := models.Session{
		MockType: models.MockTypeClinicalSkills, ExamDate: time.Now().Add(48 * time.Hour),
		StartTime: "09:00", EndTime: "11:00", Location: models.LocationToronto,
		Capacity: 5, IsActive: models.SessionScheduled, ScheduledActivationDatetime: &future,
	}
	created, err := sessionStore.Create(context.Background(), session)
	require.NoError(t, err)

	past := time.Now().Add(-time.Minute)
	_, err = sqlxDB.Exec(`UPDATE sessions SET scheduled_activation_datetime = $1 WHERE uuid = $2`, past, created.UUID)
	require.NoError(t, err)

	activated, failed, err := act.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, activated)
	assert.Equal(t, 0, failed)

	got, err := sessionStore.GetFastStoreOnly(context.Background(), created.UUID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, got.IsActive)
}

func TestActivator_Reconcile_RepairsDriftedCounter(t *testing.T) {
	pool, sqlxDB := testsupport.Postgres(t)
	sessionRepo := faststore.NewSessionRepository(sqlxDB)
	bookingRepo := faststore.NewBookingRepository(sqlxDB)
	client := crm.NewFakeClient()
	sessionStore := examsession.New(client, sessionRepo, pool, 0)
	counters := counter.NewService(unreachableRedis(), sessionRepo, true)
	cache := cachelayer.NewInMemoryCache()
	act := New(sessionStore, sessionRepo, bookingRepo, counters, pool, cache)
	ctx := context.Background()

	session := models.Session{
		MockType: models.MockTypeClinicalSkills, ExamDate: time.Now().Add(48 * time.Hour),
		StartTime: "09:00", EndTime: "11:00", Location: models.LocationToronto,
		Capacity: 5, IsActive: models.SessionActive,
	}
	created, err := sessionStore.Create(ctx, session)
	require.NoError(t, err)

	booking := &models.Booking{
		CRMID: uuid.NewString(), BookingID: "bk-reconcile", SessionUUID: created.UUID,
		ContactUUID: uuid.New(), MockType: created.MockType, TokenUsed: "cs",
		IdempotencyKey: "idem-reconcile",
	}
	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, bookingRepo.Create(ctx, tx, booking))
	require.NoError(t, tx.Commit(ctx))

	// total_bookings is still 0 from Create; one active booking exists.
	fixed, err := act.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fixed)

	got, err := sessionStore.GetFastStoreOnly(ctx, created.UUID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalBookings)

	again, err := act.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again, "a second reconcile with no new drift should fix nothing")
}
