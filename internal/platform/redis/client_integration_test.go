//go:build integration

package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentguard/internal/platform/config"
	"rentguard/pkg/testutil/containers"
)

func TestNewPingsServer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	client, err := New(ctx, config.Redis{URL: rc.Addr, PoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	assert.NoError(t, client.Health(ctx))

	none, err := New(ctx, config.Redis{})
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = New(ctx, config.Redis{URL: "://bad"})
	assert.Error(t, err)
}
