package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, ttl time.Duration) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := New(mr.Addr(), "", 0, ttl)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestKey(t *testing.T) {
	k := Key("anthropic", "acme solar", "bolt energy")
	assert.True(t, strings.HasPrefix(k, "compare:analysis:v1:"))
	assert.Len(t, strings.TrimPrefix(k, "compare:analysis:v1:"), 64)

	assert.Equal(t, k, Key("anthropic", "acme solar", "bolt energy"))
	assert.NotEqual(t, k, Key("anthropic", "bolt energy", "acme solar"))
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
}

func TestClient_GetSet(t *testing.T) {
	c, _ := newTestClient(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", "Acme is older."))
	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Acme is older.", got)

	require.NoError(t, c.Delete(ctx, "k"))
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_Expires(t *testing.T) {
	c, mr := newTestClient(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "text"))
	assert.Equal(t, time.Minute, mr.TTL("k"))

	mr.FastForward(2 * time.Minute)
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewFromClient_DefaultTTL(t *testing.T) {
	c, mr := newTestClient(t, 0)
	require.NoError(t, c.Set(context.Background(), "k", "text"))
	assert.Equal(t, DefaultTTL, mr.TTL("k"))
}

func TestClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr(), "", 0, time.Minute)
	defer c.Close() //nolint:errcheck
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := c.Get(ctx, "k")
	assert.ErrorContains(t, err, "cache: get")
}
