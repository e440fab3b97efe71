package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type profile struct {
	Name   string   `json:"name"`
	Skills []string `json:"skills"`
}

func TestGetSetRoundTrip(t *testing.T) {
	c := New("portal", time.Minute, 0)
	ctx := context.Background()
	key := c.Key("go", "hamburg")

	var got []profile
	assert.False(t, c.Get(ctx, key, &got))

	c.Set(ctx, key, []profile{{Name: "Lea", Skills: []string{"Go"}}})
	require.True(t, c.Get(ctx, key, &got))
	assert.Equal(t, "Lea", got[0].Name)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestEntriesExpire(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := New("portal", time.Minute, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Set(ctx, "k", 1)
	now = now.Add(2 * time.Minute)
	var v int
	assert.False(t, c.Get(ctx, "k", &v))

	c.Set(ctx, "a", 1)
	c.Set(ctx, "b", 2)
	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, c.CleanExpired())
}

func TestEvictsOldestWhenFull(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := New("portal", time.Hour, 2)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Set(ctx, "first", 1)
	now = now.Add(time.Second)
	c.Set(ctx, "second", 2)
	now = now.Add(time.Second)
	c.Set(ctx, "third", 3)

	var v int
	assert.False(t, c.Get(ctx, "first", &v))
	assert.True(t, c.Get(ctx, "second", &v))
	assert.True(t, c.Get(ctx, "third", &v))
}

func TestKeyIsDeterministic(t *testing.T) {
	c := New("portal", time.Minute, 0)
	assert.Equal(t, c.Key("a", "b"), c.Key("a", "b"))
	assert.NotEqual(t, c.Key("a", "b"), c.Key("b", "a"))
	assert.Contains(t, c.Key("x"), "portal:")
}

func TestClearWithoutRedis(t *testing.T) {
	c := New("portal", time.Minute, 0)
	ctx := context.Background()
	c.Set(ctx, "k", "v")
	c.Clear(ctx)
	var v string
	assert.False(t, c.Get(ctx, "k", &v))
	assert.NoError(t, c.Close())
}

func TestConnectRedisRejectsBadURL(t *testing.T) {
	c := New("portal", time.Minute, 0)
	assert.Error(t, c.ConnectRedis(context.Background(), "not-a-redis-url"))
}
