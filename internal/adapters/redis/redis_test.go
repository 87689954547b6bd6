package redis_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	redisadapter "github.com/robertarktes/event-seat-inventory/internal/adapters/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *goredis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("needs redis container")
	}
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client := goredis.NewClient(&goredis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestIdempotencyLifecycle(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	idemp := redisadapter.NewIdempotency(client)

	resp, pending, err := idemp.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, resp)
	assert.False(t, pending)

	ok, err := idemp.Claim(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = idemp.Claim(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	_, pending, err = idemp.Get(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, pending)

	require.NoError(t, idemp.Set(ctx, "k1", redisadapter.IdempResponse{Status: 201, Result: []byte(`{"ok":true}`)}, time.Minute))
	resp, pending, err = idemp.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, pending)
	require.NotNil(t, resp)
	assert.Equal(t, 201, resp.Status)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Result))

	require.NoError(t, idemp.Forget(ctx, "k1"))
	resp, _, err = idemp.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestIncrWindow(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	cache := redisadapter.NewCache(client)
	require.NoError(t, cache.Ping(ctx))

	for want := int64(1); want <= 3; want++ {
		n, err := cache.IncrWindow(ctx, "rl:test", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	ttl, err := client.TTL(ctx, "rl:test").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
