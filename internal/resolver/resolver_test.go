package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNotFound = errors.New("not found")

func TestResolve_FastStoreHit_NeverCallsCRM(t *testing.T) {
	ctx := context.Background()
	crmCalled := false

	got, err := Resolve(ctx, errNotFound,
		func(ctx context.Context) (string, error) { return "fast-value", nil },
		func(ctx context.Context) (string, error) { crmCalled = true; return "", errNotFound },
		nil,
	)

	require.NoError(t, err)
	assert.Equal(t, "fast-value", got)
	assert.False(t, crmCalled)
}

func TestResolve_FastStoreMiss_FallsBackToCRM(t *testing.T) {
	ctx := context.Background()
	backfilled := make(chan string, 1)

	got, err := Resolve(ctx, errNotFound,
		func(ctx context.Context) (string, error) { return "", errNotFound },
		func(ctx context.Context) (string, error) { return "crm-value", nil },
		func(ctx context.Context, v string) { backfilled <- v },
	)

	require.NoError(t, err)
	assert.Equal(t, "crm-value", got)

	select {
	case v := <-backfilled:
		assert.Equal(t, "crm-value", v)
	case <-time.After(time.Second):
		t.Fatal("backfill was never invoked")
	}
}

func TestResolve_BothMiss_ReturnsNotFound(t *testing.T) {
	ctx := context.Background()

	_, err := Resolve(ctx, errNotFound,
		func(ctx context.Context) (string, error) { return "", errNotFound },
		func(ctx context.Context) (string, error) { return "", errNotFound },
		nil,
	)

	assert.ErrorIs(t, err, errNotFound)
}

func TestResolve_FastStoreError_PropagatesWithoutTryingCRM(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")
	crmCalled := false

	_, err := Resolve(ctx, errNotFound,
		func(ctx context.Context) (string, error) { return "", boom },
		func(ctx context.Context) (string, error) { crmCalled = true; return "", nil },
		nil,
	)

	assert.ErrorIs(t, err, boom)
	assert.False(t, crmCalled)
}
