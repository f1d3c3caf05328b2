package auth

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTokenStore(t *testing.T) {
	store := NewMemoryTokenStore()
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	session := TokenSession{Token: "abc", Expires: time.Now().Add(time.Minute)}
	require.NoError(t, store.Put(ctx, "alice", session))

	got, ok, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", got.Token)

	// expired sessions are retained so callers can report the expiry
	require.NoError(t, store.Put(ctx, "bob", TokenSession{Token: "old", Expires: time.Now().Add(-time.Minute)}))
	_, ok, err = store.Get(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Delete(ctx, "alice"))
	_, ok, err = store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisTokenStore_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	defer client.Close()
	store := NewRedisTokenStore(client)
	ctx := context.Background()

	err := store.Put(ctx, "alice", TokenSession{Token: "abc", Expires: time.Now().Add(time.Minute)})
	assert.ErrorContains(t, err, "store token session")

	_, _, err = store.Get(ctx, "alice")
	assert.ErrorContains(t, err, "load token session")
}
