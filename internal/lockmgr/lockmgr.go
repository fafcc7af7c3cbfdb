// Package lockmgr implements the session-scoped and contact-scoped
// mutual exclusion the booking coordinator relies on to serialize
// capacity and credit mutations. Locks are Redis-backed with a TTL
// lease so a crashed holder cannot wedge a resource forever, and
// release is token-guarded so a holder can never release a lease it
// no longer owns.
package lockmgr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"examhub/pkg/metrics"
)

// ErrNotAcquired is returned when a lock is already held by someone
// else. Callers surface this as LOCK_ACQUISITION_FAILED and retry
// end-to-end with backoff; TryAcquire itself never retries.
var ErrNotAcquired = errors.New("lockmgr: lock not acquired")

// ErrLeaseExpired is returned from Release/Extend when the token no
// longer matches the holder recorded in Redis, meaning the lease
// already lapsed and was possibly reassigned.
var ErrLeaseExpired = errors.New("lockmgr: lease expired or held by another caller")

const keyPrefix = "lock:"

// releaseScript deletes the key only if its value still matches the
// caller's token, so a lease that already expired and was reacquired
// by someone else is never deleted out from under them.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// extendScript bumps the TTL on a held lock only if the token still
// matches, mirroring the release script's compare-and-act shape.
var extendScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('PEXPIRE', KEYS[1], ARGV[2])
	end
	return 0
`)

// Lease represents a held lock. The zero value is not valid; Leases
// are only constructed by Manager.Acquire and Manager.TryAcquire.
type Lease struct {
	key        string
	token      string
	acquiredAt time.Time
	ttl        time.Duration
}

// Expired reports whether ttl has elapsed since the lease was
// acquired, by wall clock alone - it does not re-check Redis. A
// caller whose lease may have expired mid-operation must not trust
// its own writes as having happened under exclusive ownership; it has
// to reconfirm the resulting state some other way before reporting
// success.
func (l *Lease) Expired() bool {
	if l.ttl <= 0 || l.acquiredAt.IsZero() {
		return false
	}
	return time.Since(l.acquiredAt) >= l.ttl
}

// Manager acquires and releases named locks with bounded lifetime.
type Manager interface {
	// Acquire blocks until ctx is done or the lock is obtained,
	// returning ctx's error if ctx is done first.
	Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error)
	// TryAcquire makes a single attempt and returns ErrNotAcquired
	// immediately if the lock is held.
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error)
	// Release gives up the lease. Safe to call once; returns
	// ErrLeaseExpired if the lease already lapsed.
	Release(ctx context.Context, lease *Lease) error
	// Extend refreshes the lease's TTL, used by long-running holders
	// that want to avoid losing the lock mid-operation.
	Extend(ctx context.Context, lease *Lease, ttl time.Duration) error
}

// RedisManager is the production Manager backed by SET NX PX and
// token-guarded Lua release/extend, grounded on the same
// DECR/INCR-via-Lua atomicity pattern used for quota reservation.
type RedisManager struct {
	client *redis.Client
	// retryInterval is how often Acquire polls when the lock is busy.
	retryInterval time.Duration
}

// NewRedisManager builds a RedisManager. retryInterval defaults to
// 50ms when zero.
func NewRedisManager(client *redis.Client, retryInterval time.Duration) *RedisManager {
	if retryInterval <= 0 {
		retryInterval = 50 * time.Millisecond
	}
	return &RedisManager{client: client, retryInterval: retryInterval}
}

func lockKey(name string) string {
	return keyPrefix + name
}

// TryAcquire makes a single SET NX PX attempt.
func (m *RedisManager) TryAcquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	token := uuid.NewString()
	ok, err := m.client.SetNX(ctx, lockKey(name), token, ttl).Result()
	if err != nil {
		metrics.LockAcquisitionsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("lockmgr: acquire %s: %w", name, err)
	}
	if !ok {
		metrics.LockAcquisitionsTotal.WithLabelValues("contended").Inc()
		return nil, ErrNotAcquired
	}
	metrics.LockAcquisitionsTotal.WithLabelValues("acquired").Inc()
	return &Lease{key: lockKey(name), token: token, acquiredAt: time.Now(), ttl: ttl}, nil
}

// Acquire polls TryAcquire until it succeeds or ctx is done.
func (m *RedisManager) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	ticker := time.NewTicker(m.retryInterval)
	defer ticker.Stop()

	for {
		lease, err := m.TryAcquire(ctx, name, ttl)
		if err == nil {
			return lease, nil
		}
		if !errors.Is(err, ErrNotAcquired) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lockmgr: acquire %s: %w", name, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Release deletes the lock iff it is still held by this lease's
// token.
func (m *RedisManager) Release(ctx context.Context, lease *Lease) error {
	res, err := releaseScript.Run(ctx, m.client, []string{lease.key}, lease.token).Int()
	if err != nil {
		return fmt.Errorf("lockmgr: release %s: %w", lease.key, err)
	}
	if res == 0 {
		return ErrLeaseExpired
	}
	if !lease.acquiredAt.IsZero() {
		metrics.LockHoldDuration.Observe(time.Since(lease.acquiredAt).Seconds())
	}
	return nil
}

// Extend refreshes the TTL on a still-held lease.
func (m *RedisManager) Extend(ctx context.Context, lease *Lease, ttl time.Duration) error {
	res, err := extendScript.Run(ctx, m.client, []string{lease.key}, lease.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("lockmgr: extend %s: %w", lease.key, err)
	}
	if res == 0 {
		return ErrLeaseExpired
	}
	return nil
}

// Key namespaces for the two scopes the coordinator locks on.
func SessionLockName(sessionID uuid.UUID) string {
	return "session:" + sessionID.String()
}

func ContactLockName(contactID uuid.UUID) string {
	return "contact:" + contactID.String()
}
