// Package activator runs the scheduled activation tick: every
// activation_tick_ms it flips scheduled sessions whose
// scheduled_activation_datetime has arrived to active, and on a
// slower cadence it reconciles each session's total_bookings against
// an authoritative count of active bookings, repairing drift the
// counter's Redis path or a crashed coordinator run left behind.
// Grounded on the ticker/stopChan idiom in the pack's redis sync
// service reference.
package activator

import (
	"context"
	"fmt"
	"time"

	"examhub/internal/cachelayer"
	"examhub/internal/counter"
	"examhub/internal/examsession"
	"examhub/internal/faststore"
	"examhub/pkg/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Activator owns the background tick loops. Construct one per process
// and call Run from a goroutine; it stops when ctx is cancelled.
type Activator struct {
	sessions *examsession.Store
	repo     *faststore.SessionRepository
	bookings *faststore.BookingRepository
	counters *counter.Service
	pool     *pgxpool.Pool
	cache    cachelayer.Cache
}

func New(
	sessions *examsession.Store,
	repo *faststore.SessionRepository,
	bookings *faststore.BookingRepository,
	counters *counter.Service,
	pool *pgxpool.Pool,
	cache cachelayer.Cache,
) *Activator {
	return &Activator{sessions: sessions, repo: repo, bookings: bookings, counters: counters, pool: pool, cache: cache}
}

// Run ticks activation every interval and reconciliation every
// reconcileEvery ticks, until ctx is cancelled. A reconcileEvery of 0
// or less disables reconciliation from this loop (useful when a
// separate cron invokes Reconcile directly).
func (a *Activator) Run(ctx context.Context, interval time.Duration, reconcileEvery int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var tickCount int
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tickCount++
			activated, failed, err := a.Tick(ctx)
			if err != nil {
				log.Ctx(ctx).Error().Err(err).Msg("activator: tick failed")
			} else if activated > 0 || failed > 0 {
				log.Ctx(ctx).Info().Int("activated", activated).Int("failed", failed).Msg("activator: tick complete")
			}

			if reconcileEvery > 0 && tickCount%reconcileEvery == 0 {
				fixed, err := a.Reconcile(ctx)
				if err != nil {
					log.Ctx(ctx).Error().Err(err).Msg("activator: reconcile failed")
				} else if fixed > 0 {
					log.Ctx(ctx).Warn().Int("fixed", fixed).Msg("activator: reconcile repaired drifted counters")
				}
			}
		}
	}
}

// Tick activates every scheduled session whose activation time has
// arrived and invalidates the session listing/aggregate caches when
// anything changed. Idempotent across ticks: a session already
// activated by a prior tick no longer matches DueForActivation.
func (a *Activator) Tick(ctx context.Context) (activated, failed int, err error) {
	due, err := a.sessions.DueForActivation(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("activator: list due sessions: %w", err)
	}
	if len(due) == 0 {
		return 0, 0, nil
	}

	ids := make([]uuid.UUID, 0, len(due))
	for _, s := range due {
		ids = append(ids, s.UUID)
	}
	activated, failed = a.sessions.ActivateBatch(ctx, ids)
	metrics.ActivationBatchSize.Observe(float64(activated))
	if failed > 0 {
		metrics.ActivationFailuresTotal.Add(float64(failed))
	}

	if activated > 0 {
		for _, pattern := range []string{"sessions:list:*", "sessions:aggregates:*"} {
			if err := a.cache.DeletePattern(ctx, pattern); err != nil {
				log.Ctx(ctx).Warn().Err(err).Str("pattern", pattern).Msg("activator: cache invalidation failed, swallowing")
			}
		}
	}
	return activated, failed, nil
}

// Reconcile recomputes total_bookings for every active or scheduled
// session from COUNT(*) of its active bookings, repairing drift in
// both the fast store row and the Redis counter mirror. Returns the
// number of sessions whose stored total disagreed with the recount.
func (a *Activator) Reconcile(ctx context.Context) (fixed int, err error) {
	sessions, err := a.repo.ListActiveOrScheduled(ctx)
	if err != nil {
		return 0, fmt.Errorf("activator: list sessions for reconciliation: %w", err)
	}

	for _, s := range sessions {
		actual, err := a.bookings.CountActiveForSession(ctx, s.UUID)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("session_uuid", s.UUID.String()).Msg("activator: count active bookings failed")
			continue
		}
		if actual == s.TotalBookings {
			continue
		}

		if err := a.writeTotalBookings(ctx, s.UUID, actual); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("session_uuid", s.UUID.String()).Msg("activator: reconcile write failed")
			continue
		}
		if err := a.counters.Seed(ctx, s.UUID, actual); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("session_uuid", s.UUID.String()).Msg("activator: redis counter reseed failed, fast store already repaired")
		}

		log.Ctx(ctx).Warn().
			Str("session_uuid", s.UUID.String()).
			Int("stored", s.TotalBookings).
			Int("actual", actual).
			Msg("activator: repaired drifted total_bookings")
		metrics.CounterDriftRepairsTotal.Inc()
		fixed++
	}
	return fixed, nil
}

func (a *Activator) writeTotalBookings(ctx context.Context, sessionID uuid.UUID, total int) error {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("activator: begin reconcile tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := a.repo.SetTotalBookings(ctx, tx, sessionID, total); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
