// Package counter maintains the atomic total_bookings counter for a
// session. The fast store's row is the counter's canonical value; this
// package provides an atomic Redis-backed fast path mirroring it, and
// falls back to a locked Postgres fetch-update-set when a Redis call
// fails and counter_fallback_enabled is set.
package counter

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"examhub/pkg/metrics"
)

// ErrWouldGoNegative is returned when a PostgresFallback refuses a
// decrement that would drive the counter below zero (InMemoryFallback
// does); the Redis path clamps at zero instead.
var ErrWouldGoNegative = errors.New("counter: decrement would go negative")

const keyPrefix = "counter:session:"

// incrScript bumps the counter and returns the new value.
var incrScript = redis.NewScript(`
	return redis.call('INCRBY', KEYS[1], ARGV[1])
`)

// decrScript subtracts ARGV[1] and clamps the result at zero, so the
// counter never goes below zero.
var decrScript = redis.NewScript(`
	local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
	local next = cur - tonumber(ARGV[1])
	if next < 0 then
		next = 0
	end
	redis.call('SET', KEYS[1], next)
	return next
`)

// PostgresFallback performs the locked fetch-update-set path against
// the fast store when Redis is unavailable. delta may be negative.
// Implementations must run inside a transaction that holds a row lock
// on the session for the duration of the read-modify-write.
type PostgresFallback interface {
	AdjustTotalBookings(ctx context.Context, sessionID uuid.UUID, delta int) (newTotal int, err error)
}

// Service is the atomic counter collaborator used by the booking
// coordinator (C6) to track session occupancy.
type Service struct {
	redis           *redis.Client
	fallback        PostgresFallback
	fallbackEnabled bool
}

// NewService builds a counter Service. fallbackEnabled corresponds to
// the coordinator option of the same name; when true, any Redis error
// (not just unavailability) routes the operation through fallback.
func NewService(client *redis.Client, fallback PostgresFallback, fallbackEnabled bool) *Service {
	return &Service{redis: client, fallback: fallback, fallbackEnabled: fallbackEnabled}
}

func counterKey(sessionID uuid.UUID) string {
	return keyPrefix + sessionID.String()
}

// Increment adds delta (normally 1, on booking create) to the
// session's counter, preferring the atomic Redis path.
func (s *Service) Increment(ctx context.Context, sessionID uuid.UUID, delta int) (int, error) {
	val, err := incrScript.Run(ctx, s.redis, []string{counterKey(sessionID)}, delta).Int()
	if err == nil {
		return val, nil
	}
	return s.viaFallback(ctx, sessionID, delta, err)
}

// Decrement subtracts delta (normally 1, on booking cancel) from the
// session's counter, clamping it at zero.
func (s *Service) Decrement(ctx context.Context, sessionID uuid.UUID, delta int) (int, error) {
	val, err := decrScript.Run(ctx, s.redis, []string{counterKey(sessionID)}, delta).Int()
	if err == nil {
		if val < 0 {
			return 0, ErrWouldGoNegative
		}
		return val, nil
	}
	return s.viaFallback(ctx, sessionID, -delta, err)
}

func (s *Service) viaFallback(ctx context.Context, sessionID uuid.UUID, delta int, redisErr error) (int, error) {
	if !s.fallbackEnabled || s.fallback == nil {
		return 0, fmt.Errorf("counter: redis unavailable and fallback disabled: %w", redisErr)
	}
	log.Ctx(ctx).Warn().
		Str("session_uuid", sessionID.String()).
		Err(redisErr).
		Msg("counter: falling back to locked postgres path")
	metrics.CounterFallbackInvocationsTotal.Inc()

	total, err := s.fallback.AdjustTotalBookings(ctx, sessionID, delta)
	if err != nil {
		if delta < 0 && errors.Is(err, ErrWouldGoNegative) {
			return 0, ErrWouldGoNegative
		}
		return 0, fmt.Errorf("counter: fallback adjust: %w", err)
	}
	return total, nil
}

// Seed overwrites the Redis mirror with an authoritative value, used
// by the activator's reconciliation pass and by cold-start warmup.
func (s *Service) Seed(ctx context.Context, sessionID uuid.UUID, value int) error {
	if err := s.redis.Set(ctx, counterKey(sessionID), value, 0).Err(); err != nil {
		return fmt.Errorf("counter: seed %s: %w", sessionID, err)
	}
	return nil
}

// Get reads the current mirrored value without mutating it.
func (s *Service) Get(ctx context.Context, sessionID uuid.UUID) (int, error) {
	val, err := s.redis.Get(ctx, counterKey(sessionID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("counter: get %s: %w", sessionID, err)
	}
	return val, nil
}
