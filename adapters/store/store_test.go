package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/wconnect"
)

func TestMemoryStoreSaveLoad(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "client-1", `{"connected":false}`, time.Minute))

	record, err := s.Load(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, `{"connected":false}`, record)

	_, err = s.Load(ctx, "unknown")
	assert.ErrorIs(t, err, wconnect.ErrNoSession)
}

func TestMemoryStoreOverwrite(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "client-1", "first", time.Minute))
	require.NoError(t, s.Save(ctx, "client-1", "second", time.Minute))

	record, err := s.Load(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, "second", record)
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "client-1", "record", 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	_, err := s.Load(ctx, "client-1")
	assert.ErrorIs(t, err, wconnect.ErrNoSession)
}

func newRedisStore(t *testing.T) (wconnect.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStoreSaveLoad(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "client-1", `{"connected":true}`, time.Minute))

	record, err := s.Load(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, `{"connected":true}`, record)

	_, err = s.Load(ctx, "unknown")
	assert.ErrorIs(t, err, wconnect.ErrNoSession)
}

func TestRedisStoreExpiry(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "client-1", "record", time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := s.Load(ctx, "client-1")
	assert.ErrorIs(t, err, wconnect.ErrNoSession)
}
