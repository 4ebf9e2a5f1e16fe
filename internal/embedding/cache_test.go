package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/supportdesk/pkg/logger"
)

func setupTestCache(t *testing.T, next Provider) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return NewCache(next, client, time.Hour, logger.NewNop()), mr
}

func TestCache_HitAvoidsProvider(t *testing.T) {
	p := &mockProvider{dimensions: 3}
	p.On("Embed", mock.Anything, "track my parcel").Return([]float32{0.1, -0.2, 0.3}, nil).Once()

	cache, mr := setupTestCache(t, p)
	ctx := context.Background()

	first, err := cache.Embed(ctx, "track my parcel")
	require.NoError(t, err)
	second, err := cache.Embed(ctx, "track my parcel")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, mr.Keys(), 1)
	p.AssertNumberOfCalls(t, "Embed", 1)

	ttl := mr.TTL(mr.Keys()[0])
	assert.Equal(t, time.Hour, ttl)
}

func TestCache_DoesNotStoreErrors(t *testing.T) {
	p := &mockProvider{dimensions: 3}
	p.On("Embed", mock.Anything, "x").Return(nil, errors.New("rate limited"))

	cache, mr := setupTestCache(t, p)

	_, err := cache.Embed(context.Background(), "x")
	assert.Error(t, err)
	assert.Empty(t, mr.Keys())
}

func TestCache_RedisDownFallsThrough(t *testing.T) {
	p := &mockProvider{dimensions: 2}
	p.On("Embed", mock.Anything, "x").Return([]float32{1, 0}, nil)

	cache, mr := setupTestCache(t, p)
	mr.Close()

	vec, err := cache.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vec)
}

func TestCache_IgnoresCorruptEntry(t *testing.T) {
	p := &mockProvider{dimensions: 2}
	p.On("Embed", mock.Anything, "x").Return([]float32{1, 0}, nil)

	cache, mr := setupTestCache(t, p)
	require.NoError(t, mr.Set(cache.key("x"), "abc"))

	vec, err := cache.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vec)
	p.AssertNumberOfCalls(t, "Embed", 1)
}

func TestVectorCodec(t *testing.T) {
	in := []float32{0, 1.5, -3.25}
	out, ok := decodeVector(encodeVector(in), 3)
	require.True(t, ok)
	assert.Equal(t, in, out)

	_, ok = decodeVector(encodeVector(in), 4)
	assert.False(t, ok)
}
