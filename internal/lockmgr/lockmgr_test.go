package lockmgr

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryManager_TryAcquire_SecondCallerBlocked(t *testing.T) {
	m := NewInMemoryManager()
	ctx := context.Background()

	lease, err := m.TryAcquire(ctx, "session:1", time.Second)
	require.NoError(t, err)
	require.NotNil(t, lease)

	_, err = m.TryAcquire(ctx, "session:1", time.Second)
	assert.ErrorIs(t, err, ErrNotAcquired)
}

func TestInMemoryManager_ReleaseThenReacquire(t *testing.T) {
	m := NewInMemoryManager()
	ctx := context.Background()

	lease, err := m.TryAcquire(ctx, "session:1", time.Second)
	require.NoError(t, err)

	require.NoError(t, m.Release(ctx, lease))

	lease2, err := m.TryAcquire(ctx, "session:1", time.Second)
	require.NoError(t, err)
	assert.NotEqual(t, lease.token, lease2.token)
}

func TestInMemoryManager_ReleaseAfterExpiry_ReturnsLeaseExpired(t *testing.T) {
	m := NewInMemoryManager()
	ctx := context.Background()

	lease, err := m.TryAcquire(ctx, "session:1", 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	_, err = m.TryAcquire(ctx, "session:1", time.Second)
	require.NoError(t, err, "lock should be acquirable again once the lease expires")

	assert.ErrorIs(t, m.Release(ctx, lease), ErrLeaseExpired)
}

func TestInMemoryManager_Acquire_SerializesConcurrentHolders(t *testing.T) {
	m := NewInMemoryManager()
	ctx := context.Background()

	var active int32
	var maxObserved int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := m.Acquire(ctx, "contact:1", 200*time.Millisecond)
			require.NoError(t, err)

			cur := atomic.AddInt32(&active, 1)
			for {
				max := atomic.LoadInt32(&maxObserved)
				if cur <= max || atomic.CompareAndSwapInt32(&maxObserved, max, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)

			require.NoError(t, m.Release(ctx, lease))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxObserved, "lock must serialize all holders to exactly one at a time")
}

func TestInMemoryManager_Acquire_RespectsContextCancellation(t *testing.T) {
	m := NewInMemoryManager()
	held, err := m.TryAcquire(context.Background(), "session:1", time.Second)
	require.NoError(t, err)
	defer m.Release(context.Background(), held)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = m.Acquire(ctx, "session:1", time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSessionAndContactLockNames_AreNamespaced(t *testing.T) {
	id := uuid.New()
	assert.Contains(t, SessionLockName(id), "session:")
	assert.Contains(t, ContactLockName(id), "contact:")
	assert.NotEqual(t, SessionLockName(id), ContactLockName(id))
}
