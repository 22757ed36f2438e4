package sessions

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisRepository_CreateGetDelete(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	repo := NewRedisRepository(client, "test:session:", time.Hour)

	ctx := context.Background()
	s := &Session{
		Token:         "t1",
		Username:      "admin",
		Authenticated: true,
		CreatedAt:     time.Now().UTC(),
	}

	require.NoError(t, repo.Create(ctx, s))

	got, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, s.Username, got.Username)
	require.True(t, got.Authenticated)

	// test deletion
	require.NoError(t, repo.Delete(ctx, "t1"))
	got2, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	require.Nil(t, got2)
}

func TestRedisRepository_TTLExpiry(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	repo := NewRedisRepository(client, "test:session:", time.Second)

	ctx := context.Background()
	s := &Session{Token: "t2", Username: "admin", Authenticated: true, CreatedAt: time.Now().UTC()}
	require.NoError(t, repo.Create(ctx, s))

	// visible immediately
	got, err := repo.Get(ctx, "t2")
	require.NoError(t, err)
	require.NotNil(t, got)

	// advance miniredis clock past TTL
	m.FastForward(2 * time.Second)

	got2, err := repo.Get(ctx, "t2")
	require.NoError(t, err)
	require.Nil(t, got2)
}
