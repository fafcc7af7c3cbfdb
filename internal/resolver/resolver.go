// Package resolver implements the uniform fast-store-first,
// CRM-fallback read path shared by contacts, sessions and bookings:
// query the fast store, fall back to the CRM-of-record on a miss, and
// opportunistically backfill the fast store from what the CRM
// returned. Grounded on the teacher's repository-then-remote fallback
// idiom seen across its service layer, generalized here with a type
// parameter instead of being duplicated per entity.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Resolve runs the fast-store-first/CRM-fallback sequence for a
// single entity of type T. fastGet and crmGet each return
// (zero-value, notFound, nil) on a clean miss, or a non-nil error for
// anything else. backfill is invoked fire-and-forget (its error is
// logged, never returned) when the CRM produced a hit the fast store
// didn't have.
func Resolve[T any](ctx context.Context, notFound error, fastGet func(ctx context.Context) (T, error), crmGet func(ctx context.Context) (T, error), backfill func(ctx context.Context, v T)) (T, error) {
	var zero T

	v, err := fastGet(ctx)
	switch {
	case err == nil:
		return v, nil
	case errors.Is(err, notFound):
		// fall through to CRM
	default:
		return zero, fmt.Errorf("resolver: fast store lookup: %w", err)
	}

	v, err = crmGet(ctx)
	if err != nil {
		if errors.Is(err, notFound) {
			return zero, notFound
		}
		return zero, fmt.Errorf("resolver: crm lookup: %w", err)
	}

	if backfill != nil {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Msg("resolver: backfill goroutine panicked")
				}
			}()
			backfill(context.WithoutCancel(ctx), v)
		}()
	}

	return v, nil
}
