// Package examsession is the thin layer over the CRM session object
// with a fast-store projection described as the engine's session
// store: reads are fast-store-first with CRM fallback via
// internal/resolver, writes are CRM-first with best-effort projection,
// and a batch activation path flips scheduled sessions to active.
package examsession

import (
	"context"
	"fmt"
	"time"

	"examhub/internal/crm"
	"examhub/internal/faststore"
	"examhub/internal/models"
	"examhub/internal/resolver"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Store is the session store facade the booking coordinator and the
// engine's command surface depend on.
type Store struct {
	crm       crm.Client
	sessions  *faststore.SessionRepository
	pool      *pgxpool.Pool
	batchSize int
}

func New(client crm.Client, sessions *faststore.SessionRepository, pool *pgxpool.Pool, batchSize int) *Store {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Store{crm: client, sessions: sessions, pool: pool, batchSize: batchSize}
}

// Get resolves a session by its local UUID, fast-store-first with CRM
// fallback.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (models.Session, error) {
	return resolver.Resolve(ctx, faststore.ErrSessionNotFound,
		func(ctx context.Context) (models.Session, error) {
			v, err := s.sessions.GetByID(ctx, id)
			if err != nil {
				return models.Session{}, err
			}
			return *v, nil
		},
		func(ctx context.Context) (models.Session, error) {
			obj, err := s.crm.Get(ctx, crm.ObjectSession, id.String())
			if err != nil {
				if err == crm.ErrNotFound {
					return models.Session{}, faststore.ErrSessionNotFound
				}
				return models.Session{}, err
			}
			sess := resolver.SessionFromCRM(obj)
			sess.UUID = id
			return sess, nil
		},
		func(ctx context.Context, v models.Session) {
			if err := s.upsertFastStore(ctx, &v); err != nil {
				log.Ctx(ctx).Warn().Err(err).Str("session_uuid", id.String()).Msg("examsession: backfill failed, swallowing")
			}
		},
	)
}

// GetFastStoreOnly resolves a session from the fast store alone, with
// no CRM fallback. Rebook uses this: a session missing from the fast
// store is not a valid rebook target even if the CRM still has it.
func (s *Store) GetFastStoreOnly(ctx context.Context, id uuid.UUID) (models.Session, error) {
	v, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return models.Session{}, err
	}
	return *v, nil
}

// Search lists sessions from the fast store against filter.
func (s *Store) Search(ctx context.Context, filter models.SessionFilter) (models.Page[models.Session], error) {
	return s.sessions.List(ctx, filter)
}

// Create validates session, writes it to the CRM first, then projects
// it to the fast store.
func (s *Store) Create(ctx context.Context, session models.Session) (models.Session, error) {
	if err := validate(session); err != nil {
		return models.Session{}, err
	}

	props := resolver.SessionToCRM(session)
	obj, err := s.crm.Create(ctx, crm.ObjectSession, props)
	if err != nil {
		return models.Session{}, fmt.Errorf("examsession: crm create: %w", err)
	}
	session.CRMID = obj.ID
	if session.UUID == uuid.Nil {
		session.UUID = uuid.New()
	}

	if err := s.upsertFastStore(ctx, &session); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("session_crm_id", obj.ID).Msg("examsession: projection after create failed, swallowing")
	}
	return session, nil
}

// Update validates the requested status transition, writes to CRM
// first, then projects.
func (s *Store) Update(ctx context.Context, session models.Session) (models.Session, error) {
	if err := validate(session); err != nil {
		return models.Session{}, err
	}
	if current, err := s.sessions.GetByID(ctx, session.UUID); err == nil && !current.IsActive.CanTransitionTo(session.IsActive) {
		return models.Session{}, models.ErrInvalidTransition
	}

	props := resolver.SessionToCRM(session)
	if _, err := s.crm.Update(ctx, crm.ObjectSession, session.CRMID, props); err != nil {
		return models.Session{}, fmt.Errorf("examsession: crm update: %w", err)
	}
	if err := s.upsertFastStore(ctx, &session); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("session_crm_id", session.CRMID).Msg("examsession: projection after update failed, swallowing")
	}
	return session, nil
}

func (s *Store) Delete(ctx context.Context, session models.Session) error {
	if err := s.crm.Delete(ctx, crm.ObjectSession, session.CRMID); err != nil {
		return fmt.Errorf("examsession: crm delete: %w", err)
	}
	return nil
}

// ActivateBatch flips all due scheduled sessions to active, in
// chunks no larger than s.batchSize, returning the counts the
// scheduled activator reports to its caller.
func (s *Store) ActivateBatch(ctx context.Context, ids []uuid.UUID) (activated, failed int) {
	for i := 0; i < len(ids); i += s.batchSize {
		end := i + s.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[i:end]

		updates := make(map[string]map[string]string, len(chunk))
		for _, id := range chunk {
			sess, err := s.sessions.GetByID(ctx, id)
			if err != nil {
				log.Ctx(ctx).Error().Err(err).Str("session_uuid", id.String()).Msg("examsession: activation lookup failed")
				failed++
				continue
			}
			if sess.CRMID != "" {
				updates[sess.CRMID] = map[string]string{"is_active": string(models.SessionActive)}
			}
		}
		if len(updates) > 0 {
			if err := s.crm.BatchUpdate(ctx, crm.ObjectSession, updates); err != nil {
				log.Ctx(ctx).Error().Err(err).Int("batch_size", len(updates)).Msg("examsession: batch activation failed")
				failed += len(updates)
				continue
			}
		}

		for _, id := range chunk {
			if err := s.markActiveInFastStore(ctx, id); err != nil {
				log.Ctx(ctx).Error().Err(err).Str("session_uuid", id.String()).Msg("examsession: fast-store activation projection failed")
				failed++
				continue
			}
			activated++
		}
	}
	return activated, failed
}

// DueForActivation lists scheduled sessions whose activation time has
// passed, the query the scheduled activator ticks against.
func (s *Store) DueForActivation(ctx context.Context) ([]models.Session, error) {
	return s.sessions.DueForActivation(ctx, time.Now().UTC())
}

func (s *Store) upsertFastStore(ctx context.Context, session *models.Session) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("examsession: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	existing, err := s.sessions.GetByID(ctx, session.UUID)
	if err != nil && err != faststore.ErrSessionNotFound {
		return err
	}
	if existing == nil {
		if err := s.sessions.Create(ctx, tx, session); err != nil {
			return err
		}
	} else if err := s.sessions.UpdateStatus(ctx, tx, session.UUID, session.IsActive); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) markActiveInFastStore(ctx context.Context, id uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("examsession: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.sessions.UpdateStatus(ctx, tx, id, models.SessionActive); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func validate(session models.Session) error {
	if !session.ValidTimeRange() {
		return models.ErrInvalidTimeRange
	}
	if session.Capacity < 1 || session.Capacity > 100 {
		return models.ErrInvalidCapacity
	}
	if session.RequiresActivationDatetime() {
		if session.ScheduledActivationDatetime == nil || !session.ScheduledActivationDatetime.After(time.Now()) {
			return models.ErrInvalidActivation
		}
	}
	return nil
}
