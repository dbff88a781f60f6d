package tokenstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestRedisStore(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	defer client.Close()

	store := NewRedisStore(client, time.Hour)
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		token := &oauth2.Token{
			AccessToken:  "access-123",
			RefreshToken: "refresh-456",
			TokenType:    "Bearer",
			Expiry:       time.Now().Add(time.Hour).UTC(),
		}

		err := store.Set(ctx, "acct-1", token)
		require.NoError(t, err)

		got, err := store.Get(ctx, "acct-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, token.AccessToken, got.AccessToken)
		assert.Equal(t, token.RefreshToken, got.RefreshToken)
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := store.Get(ctx, "nobody")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Clear", func(t *testing.T) {
		token := &oauth2.Token{AccessToken: "short-lived"}
		require.NoError(t, store.Set(ctx, "acct-2", token))

		require.NoError(t, store.Clear(ctx, "acct-2"))

		_, err := store.Get(ctx, "acct-2")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("TTLApplied", func(t *testing.T) {
		token := &oauth2.Token{AccessToken: "expiring"}
		require.NoError(t, store.Set(ctx, "acct-3", token))

		s.FastForward(2 * time.Hour)

		_, err := store.Get(ctx, "acct-3")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
