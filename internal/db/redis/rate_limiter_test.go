package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"norelock.dev/rpcsite/internal/config"
	"norelock.dev/rpcsite/internal/utils"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	cfg := config.CreateDefaultConfig()
	cfg.Redis.Addr = addr
	client, err := NewClient(cfg, utils.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewClientWithoutAddress(t *testing.T) {
	cfg := config.CreateDefaultConfig()
	cfg.Redis.Addr = ""
	_, err := NewClient(cfg, utils.NewNopLogger())
	assert.ErrorIs(t, err, ErrNoAddress)
}

func TestFormatKey(t *testing.T) {
	assert.Equal(t, "ratelimit:ip:10.0.0.1", FormatKey(RateLimitKeyPrefix, "ip:10.0.0.1"))
}

func TestRateLimiterCheck(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	limiter := NewRateLimiter(client, 2, time.Minute)
	id := "test:" + uuid.NewString()
	t.Cleanup(func() { _ = limiter.Reset(ctx, id) })

	first, err := limiter.Check(ctx, id)
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	assert.Equal(t, 1, first.Remaining)

	second, err := limiter.Check(ctx, id)
	require.NoError(t, err)
	assert.True(t, second.Allowed)
	assert.Equal(t, 0, second.Remaining)

	third, err := limiter.Check(ctx, id)
	require.NoError(t, err)
	assert.False(t, third.Allowed)
	assert.Greater(t, third.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, third.RetryAfter, time.Minute)

	require.NoError(t, limiter.Reset(ctx, id))
	again, err := limiter.Check(ctx, id)
	require.NoError(t, err)
	assert.True(t, again.Allowed)
}
