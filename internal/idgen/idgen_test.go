package idgen

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"examhub/internal/models"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple name", "Jane Doe", "Jane_Doe"},
		{"extra whitespace", "  Jane   Doe  ", "Jane_Doe"},
		{"punctuation", "O'Brien, Mary-Jane", "O_Brien_Mary_Jane"},
		{"already clean", "JaneDoe", "JaneDoe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeName(tt.input))
		})
	}
}

func TestBookingID(t *testing.T) {
	examDate := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)
	got := BookingID(models.MockTypeClinicalSkills, "Jane Doe", examDate)
	assert.Equal(t, "Clinical Skills-Jane_Doe - March 5, 2026", got)
}

func TestIdempotencyKey_Deterministic(t *testing.T) {
	contactID := uuid.New()
	sessionID := uuid.New()
	examDate := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	k1 := DeriveIdempotencyKey(contactID, sessionID, examDate, models.MockTypeSituationalJudgment, now, 5*time.Minute)
	k2 := DeriveIdempotencyKey(contactID, sessionID, examDate, models.MockTypeSituationalJudgment, now, 5*time.Minute)

	require.Equal(t, k1, k2)
	assert.True(t, len(k1) == len(idempotencyPrefix)+32)
	assert.Contains(t, k1, idempotencyPrefix)
}

func TestIdempotencyKey_DiffersAcrossBuckets(t *testing.T) {
	contactID := uuid.New()
	sessionID := uuid.New()
	examDate := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)
	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(10 * time.Minute)

	k1 := DeriveIdempotencyKey(contactID, sessionID, examDate, models.MockTypeSituationalJudgment, t1, 5*time.Minute)
	k2 := DeriveIdempotencyKey(contactID, sessionID, examDate, models.MockTypeSituationalJudgment, t2, 5*time.Minute)

	assert.NotEqual(t, k1, k2)
}

func TestIdempotencyKey_SameBucketWindow(t *testing.T) {
	contactID := uuid.New()
	sessionID := uuid.New()
	examDate := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)
	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(2 * time.Minute)

	k1 := DeriveIdempotencyKey(contactID, sessionID, examDate, models.MockTypeSituationalJudgment, t1, 5*time.Minute)
	k2 := DeriveIdempotencyKey(contactID, sessionID, examDate, models.MockTypeSituationalJudgment, t2, 5*time.Minute)

	assert.Equal(t, k1, k2)
}

func TestRetryAfterCancel_ProducesFreshKey(t *testing.T) {
	contactID := uuid.New()
	sessionID := uuid.New()
	examDate := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	original := DeriveIdempotencyKey(contactID, sessionID, examDate, models.MockTypeSituationalJudgment, now, 5*time.Minute)
	retry := RetryAfterCancel(contactID, sessionID, examDate, models.MockTypeSituationalJudgment, now, 5*time.Minute)

	assert.NotEqual(t, original, retry)
}

func TestCacheKeys(t *testing.T) {
	contactID := uuid.New()
	sessionID := uuid.New()

	assert.Equal(t, "bookings:contact:"+contactID.String()+":upcoming:page1:limit20", BookingsByContactKey(contactID, "upcoming", 1, 20))
	assert.Equal(t, "bookings:contact:"+contactID.String()+":*", BookingsByContactPattern(contactID))
	assert.Equal(t, "session:"+sessionID.String()+":bookings", SessionBookingsKey(sessionID))
	assert.Equal(t, "sessions:list:abc123", SessionsListKey("abc123"))
	assert.Equal(t, "sessions:list:*", SessionsListPattern())
	assert.Equal(t, "sessions:aggregates:abc123", SessionsAggregateKey("abc123"))
	assert.Equal(t, "sessions:aggregates:*", SessionsAggregatePattern())
}

func TestFilterHash_Deterministic(t *testing.T) {
	filter := map[string]string{"location": "Toronto", "mock_type": "Clinical Skills"}
	h1 := FilterHash(filter)
	h2 := FilterHash(filter)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 16)
}
