package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisKV_RoundTripAndExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	kv := NewRedisKV(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	_, err := kv.Get(ctx, "tenant:slug:acme")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, kv.Set(ctx, "tenant:slug:acme", `{"slug":"acme"}`, time.Minute))
	v, err := kv.Get(ctx, "tenant:slug:acme")
	require.NoError(t, err)
	assert.Equal(t, `{"slug":"acme"}`, v)

	mr.FastForward(2 * time.Minute)
	_, err = kv.Get(ctx, "tenant:slug:acme")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisKV_Del(t *testing.T) {
	mr := miniredis.RunT(t)
	kv := NewRedisKV(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "a", "1", 0))
	require.NoError(t, kv.Del(ctx, "a"))
	require.NoError(t, kv.Del(ctx))
	assert.False(t, mr.Exists("a"))
}
