package cachelayer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionStub struct {
	UUID string `json:"uuid"`
}

func TestInMemoryCache_SetGet(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	require.NoError(t, c.Set(ctx, "session:abc:detail", sessionStub{UUID: "abc"}, time.Minute))

	var got sessionStub
	found, err := c.Get(ctx, "session:abc:detail", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "abc", got.UUID)
}

func TestInMemoryCache_Get_ExpiredEntryMisses(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()
	require.NoError(t, c.Set(ctx, "k", sessionStub{UUID: "x"}, -time.Second))

	var got sessionStub
	found, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInMemoryCache_DeletePattern(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()
	require.NoError(t, c.Set(ctx, "bookings:contact:c1:all", sessionStub{}, time.Minute))
	require.NoError(t, c.Set(ctx, "bookings:contact:c1:upcoming", sessionStub{}, time.Minute))
	require.NoError(t, c.Set(ctx, "bookings:contact:c2:all", sessionStub{}, time.Minute))

	require.NoError(t, c.DeletePattern(ctx, "bookings:contact:c1:*"))

	var got sessionStub
	found, _ := c.Get(ctx, "bookings:contact:c1:all", &got)
	assert.False(t, found)
	found, _ = c.Get(ctx, "bookings:contact:c2:all", &got)
	assert.True(t, found)
}

func TestInvalidateWrite_DeletesSessionDetail(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()
	require.NoError(t, c.Set(ctx, "session:s1:detail", sessionStub{UUID: "s1"}, time.Minute))

	InvalidateWrite(ctx, c, "contact1", "s1")

	var got sessionStub
	found, _ := c.Get(ctx, "session:s1:detail", &got)
	assert.False(t, found)
}
