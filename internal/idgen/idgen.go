// Package idgen derives the engine's three families of deterministic
// identifiers: human-meaningful booking ids, idempotency fingerprints,
// and cache keys. Nothing in here touches storage; every function is
// pure given its inputs, which keeps the coordinator's retry logic
// easy to reason about.
package idgen

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"examhub/internal/models"
)

const idempotencyPrefix = "idem_"

var nameSanitizePattern = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// SanitizeName collapses runs of non-alphanumeric characters to a
// single underscore, used when building a booking id from a
// student's display name.
func SanitizeName(name string) string {
	cleaned := nameSanitizePattern.ReplaceAllString(strings.TrimSpace(name), "_")
	return strings.Trim(cleaned, "_")
}

// BookingID builds the human-meaningful identifier used for duplicate
// detection: "{mock_type}-{sanitized_name} - {Month D, YYYY}".
func BookingID(mockType models.MockType, studentName string, examDate time.Time) string {
	return fmt.Sprintf("%s-%s - %s", mockType, SanitizeName(studentName), examDate.Format("January 2, 2006"))
}

// IdempotencyFingerprint is the canonical, lexicographically-keyed
// payload hashed into an idempotency key. Field order in the struct
// is irrelevant: IdempotencyKey re-marshals the fields through a map,
// and json.Marshal writes map keys in sorted order, which gives the
// lexicographic key order of the wire format.
type IdempotencyFingerprint struct {
	ContactID string `json:"contact_id"`
	SessionID string `json:"session_id"`
	ExamDate  string `json:"exam_date"`
	MockType  string `json:"mock_type"`
	Bucket    int64  `json:"bucket"`
}

// Bucket returns the 5-minute (or configured width) time bucket
// containing t, per floor(now_ms / bucket_ms).
func Bucket(t time.Time, bucketWidth time.Duration) int64 {
	ms := t.UnixMilli()
	width := bucketWidth.Milliseconds()
	if width <= 0 {
		width = 1
	}
	return ms / width
}

// IdempotencyKey hashes fp's fields, in sorted-key JSON form, into a
// "idem_" + 32 hex char key.
func IdempotencyKey(fp IdempotencyFingerprint) string {
	canonical := map[string]any{
		"bucket":     fp.Bucket,
		"contact_id": fp.ContactID,
		"exam_date":  fp.ExamDate,
		"mock_type":  fp.MockType,
		"session_id": fp.SessionID,
	}
	payload, err := json.Marshal(canonical)
	if err != nil {
		// canonical is a map of primitives; Marshal cannot fail.
		panic("idgen: unexpected marshal failure: " + err.Error())
	}
	sum := sha256.Sum256(payload)
	return idempotencyPrefix + hex.EncodeToString(sum[:])[:32]
}

// DeriveIdempotencyKey is the common-path helper the coordinator
// calls when the caller did not supply their own key.
func DeriveIdempotencyKey(contactID, sessionID uuid.UUID, examDate time.Time, mockType models.MockType, now time.Time, bucketWidth time.Duration) string {
	fp := IdempotencyFingerprint{
		ContactID: contactID.String(),
		SessionID: sessionID.String(),
		ExamDate:  examDate.Format("2006-01-02"),
		MockType:  string(mockType),
		Bucket:    Bucket(now, bucketWidth),
	}
	return IdempotencyKey(fp)
}

// RetryAfterCancel bumps the bucket by one, producing a fresh key for
// the "retry after a cancelled booking inside the same window" case.
func RetryAfterCancel(contactID, sessionID uuid.UUID, examDate time.Time, mockType models.MockType, now time.Time, bucketWidth time.Duration) string {
	fp := IdempotencyFingerprint{
		ContactID: contactID.String(),
		SessionID: sessionID.String(),
		ExamDate:  examDate.Format("2006-01-02"),
		MockType:  string(mockType),
		Bucket:    Bucket(now, bucketWidth) + 1,
	}
	return IdempotencyKey(fp)
}

// Cache key namespaces, kept as constants so every producer and
// invalidator of a given shape stays in sync.
const (
	nsBookingsByContact = "bookings:contact"
	nsSessionBookings   = "session"
	nsSessionsList      = "sessions:list"
	nsSessionsAggregate = "sessions:aggregates"
)

// BookingsByContactKey builds the cache key for a contact's booking
// list under a given filter and page.
func BookingsByContactKey(contactID uuid.UUID, filter string, page, limit int) string {
	return fmt.Sprintf("%s:%s:%s:page%d:limit%d", nsBookingsByContact, contactID, filter, page, limit)
}

// BookingsByContactPattern is the invalidation pattern covering every
// page/filter combination cached for a contact.
func BookingsByContactPattern(contactID uuid.UUID) string {
	return fmt.Sprintf("%s:%s:*", nsBookingsByContact, contactID)
}

// SessionBookingsKey caches the booking count/roster view of a single
// session.
func SessionBookingsKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("%s:%s:bookings", nsSessionBookings, sessionID)
}

// SessionsListKey caches a SearchSessions page under a hash of its
// filter set.
func SessionsListKey(filterHash string) string {
	return fmt.Sprintf("%s:%s", nsSessionsList, filterHash)
}

// SessionsListPattern invalidates every cached session listing.
func SessionsListPattern() string {
	return nsSessionsList + ":*"
}

// SessionsAggregateKey caches capacity/credit aggregate views keyed
// by the same filter hash scheme as listings.
func SessionsAggregateKey(filterHash string) string {
	return fmt.Sprintf("%s:%s", nsSessionsAggregate, filterHash)
}

// SessionsAggregatePattern invalidates every cached aggregate.
func SessionsAggregatePattern() string {
	return nsSessionsAggregate + ":*"
}

// FilterHash derives a short deterministic hash for an arbitrary
// filter struct, used to key list/aggregate caches without enumerating
// every field combination by hand.
func FilterHash(filter any) string {
	payload, err := json.Marshal(filter)
	if err != nil {
		return "unhashable"
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])[:16]
}
